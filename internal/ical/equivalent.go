package ical

import "strings"

// Equivalent reports whether two calendars carry the same content once
// volatile metadata is ignored. Everything before the first event or todo is
// discarded, folded lines are joined, and lines mentioning STAMP or starting
// with UID, PRODID or X- are dropped. A nil input is never equivalent.
func Equivalent(a, b []byte) bool {
	if a == nil || b == nil {
		return false
	}
	return canonical(a) == canonical(b)
}

func canonical(data []byte) string {
	text := strings.ToValidUTF8(string(data), "�")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line == "BEGIN:VEVENT" || line == "BEGIN:VTODO" {
			lines = lines[i:]
			break
		}
	}

	kept := make([]string, 0, len(lines))
	for _, line := range unfold(lines) {
		if strings.Contains(line, "STAMP") ||
			strings.HasPrefix(line, "UID") ||
			strings.HasPrefix(line, "PRODID") ||
			strings.HasPrefix(line, "X-") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// unfold joins continuation lines onto the previous logical line. A
// continuation starts with a space or tab; only that first character is
// removed.
func unfold(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if len(out) > 0 && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			out[len(out)-1] += line[1:]
			continue
		}
		out = append(out, line)
	}
	return out
}

