package naming

import (
	"strconv"
	"strings"
	"unicode"
)

const (
	maxNameLen        = 120
	maxWorkspaceIDLen = 64
	linePrefix        = "Line "
)

// LineName is the automatic name of the n-th line attached to a splitter.
func LineName(n int) string {
	return linePrefix + strconv.Itoa(n)
}

// ParseLineNumber extracts n from an automatic "Line n" name.
func ParseLineNumber(name string) (int, bool) {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, linePrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(name, linePrefix)))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// NormalizeName trims, drops control characters and collapses inner whitespace.
// ok is false for names that end up empty.
func NormalizeName(raw string) (name string, ok bool) {
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	name = b.String()
	if name == "" {
		return "", false
	}
	if runes := []rune(name); len(runes) > maxNameLen {
		name = strings.TrimSpace(string(runes[:maxNameLen]))
	}
	return name, true
}

// ValidWorkspaceID accepts short ids made of letters, digits, '-' and '_'.
func ValidWorkspaceID(id string) bool {
	if id == "" || len(id) > maxWorkspaceIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

// NormalizeColor accepts #rgb and #rrggbb stroke colors, lowercased.
func NormalizeColor(raw string) (string, bool) {
	c := strings.ToLower(strings.TrimSpace(raw))
	if len(c) != 4 && len(c) != 7 {
		return "", false
	}
	if c[0] != '#' {
		return "", false
	}
	for _, r := range c[1:] {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return "", false
		}
	}
	return c, true
}
