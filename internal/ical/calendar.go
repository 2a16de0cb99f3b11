package ical

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrMalformed = errors.New("ical: malformed calendar")

const (
	crlf   = "\r\n"
	prodID = "-//OpenMined//CalSync//EN"
)

// Component is one top-level block of a VCALENDAR, kept as its raw lines
// (BEGIN and END included) so members are written back byte for byte.
type Component struct {
	Name  string
	Lines []string
}

// Calendar is the result of Parse: the container properties and its
// top-level components in document order.
type Calendar struct {
	Props      []string
	Components []Component
}

// Parse splits a VCALENDAR into its top-level components. Nested blocks
// such as VALARM stay inside their parent. Only the structure is checked.
func Parse(data []byte) (*Calendar, error) {
	text := strings.ReplaceAll(strings.ToValidUTF8(string(data), "�"), "\r\n", "\n")

	cal := &Calendar{}
	var (
		stack   []string
		current *Component
		opened  bool
		closed  bool
	)

	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		if closed {
			return nil, fmt.Errorf("%w: content after END:VCALENDAR at line %d", ErrMalformed, n+1)
		}

		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "BEGIN:"):
			name := strings.TrimSpace(upper[len("BEGIN:"):])
			if !opened {
				if name != "VCALENDAR" {
					return nil, fmt.Errorf("%w: expected BEGIN:VCALENDAR, got %q", ErrMalformed, line)
				}
				opened = true
				stack = append(stack, name)
				continue
			}
			stack = append(stack, name)
			if len(stack) == 2 {
				current = &Component{Name: name}
			}
			current.Lines = append(current.Lines, line)

		case strings.HasPrefix(upper, "END:"):
			name := strings.TrimSpace(upper[len("END:"):])
			if len(stack) == 0 || stack[len(stack)-1] != name {
				return nil, fmt.Errorf("%w: unexpected %q at line %d", ErrMalformed, line, n+1)
			}
			stack = stack[:len(stack)-1]
			switch len(stack) {
			case 0:
				closed = true
			case 1:
				current.Lines = append(current.Lines, line)
				cal.Components = append(cal.Components, *current)
				current = nil
			default:
				current.Lines = append(current.Lines, line)
			}

		default:
			if !opened {
				return nil, fmt.Errorf("%w: content before BEGIN:VCALENDAR", ErrMalformed)
			}
			if current != nil {
				current.Lines = append(current.Lines, line)
			} else {
				cal.Props = append(cal.Props, line)
			}
		}
	}

	if !opened {
		return nil, fmt.Errorf("%w: no VCALENDAR", ErrMalformed)
	}
	if !closed {
		return nil, fmt.Errorf("%w: missing END:VCALENDAR", ErrMalformed)
	}
	return cal, nil
}

// IsItem reports whether the component is an event or a todo.
func (c Component) IsItem() bool {
	return c.Name == "VEVENT" || c.Name == "VTODO"
}

// Property returns the value of the first property with the given name that
// belongs to the component itself, not to a nested block.
func (c Component) Property(name string) string {
	depth := 0
	lines := unfold(c.Lines)
	for _, line := range lines {
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "BEGIN:"):
			depth++
			continue
		case strings.HasPrefix(upper, "END:"):
			depth--
			continue
		}
		if depth != 1 {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if params := strings.IndexByte(key, ';'); params >= 0 {
			key = key[:params]
		}
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

func (c Component) UID() string {
	return c.Property("UID")
}

// Wrap places components inside a VCALENDAR container.
func Wrap(components ...Component) []byte {
	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR" + crlf)
	buf.WriteString("VERSION:2.0" + crlf)
	buf.WriteString("PRODID:" + prodID + crlf)
	for _, c := range components {
		for _, line := range c.Lines {
			buf.WriteString(line)
			buf.WriteString(crlf)
		}
	}
	buf.WriteString("END:VCALENDAR" + crlf)
	return buf.Bytes()
}

// Notice builds a single all-day event used to tell calendar viewers that
// synchronization has stopped.
func Notice(uid, summary string, at time.Time) []byte {
	at = at.UTC()
	return Wrap(Component{
		Name: "VEVENT",
		Lines: []string{
			"BEGIN:VEVENT",
			"UID:" + uid,
			"DTSTAMP:" + at.Format("20060102T150405Z"),
			"DTSTART;VALUE=DATE:" + at.Format("20060102"),
			"DTEND;VALUE=DATE:" + at.AddDate(0, 0, 1).Format("20060102"),
			"SUMMARY:" + summary,
			"END:VEVENT",
		},
	})
}
