package reload

import (
	"errors"
	"strings"
	"unicode"
)

var (
	ErrUnterminatedQuote = errors.New("reload: unterminated quote")
	ErrEmptyCommand      = errors.New("reload: empty command")
)

type tokenState int

const (
	stateOutside tokenState = iota
	stateUnquoted
	stateSingle
	stateDouble
)

// Tokenize splits a command line into arguments. Whitespace separates
// arguments; single or double quotes keep their content verbatim and may be
// joined to unquoted text (`--name="a b"` is one argument). There are no
// escape sequences.
func Tokenize(cmdline string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		state   = stateOutside
		inToken bool
	)

	emit := func() {
		args = append(args, current.String())
		current.Reset()
		inToken = false
	}

	for _, r := range cmdline {
		switch state {
		case stateOutside, stateUnquoted:
			switch {
			case unicode.IsSpace(r):
				if inToken {
					emit()
				}
				state = stateOutside
			case r == '\'':
				inToken = true
				state = stateSingle
			case r == '"':
				inToken = true
				state = stateDouble
			default:
				inToken = true
				current.WriteRune(r)
				state = stateUnquoted
			}
		case stateSingle:
			if r == '\'' {
				state = stateUnquoted
				continue
			}
			current.WriteRune(r)
		case stateDouble:
			if r == '"' {
				state = stateUnquoted
				continue
			}
			current.WriteRune(r)
		}
	}

	if state == stateSingle || state == stateDouble {
		return nil, ErrUnterminatedQuote
	}
	if inToken {
		emit()
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	return args, nil
}
