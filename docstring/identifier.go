package docstring

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ExtractIdentifier returns the display identifier declared in doc: the
// trimmed remainder of the first line that begins with delimiter followed by
// whitespace. Later matching lines are ignored.
func ExtractIdentifier(doc, delimiter string) (string, bool) {
	if delimiter == "" {
		return "", false
	}
	for _, line := range strings.Split(doc, "\n") {
		if id, ok := identifierLine(line, delimiter); ok {
			return id, true
		}
	}
	return "", false
}

func identifierLine(line, delimiter string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimLeft(line, " \t\r"), delimiter)
	if !ok {
		return "", false
	}
	r, size := utf8.DecodeRuneInString(rest)
	if size == 0 || !unicode.IsSpace(r) {
		return "", false
	}
	id := strings.TrimSpace(rest)
	return id, id != ""
}

// Title returns the first non-blank line of doc that is neither a metadata
// line nor an identifier line.
func Title(doc, metaDelimiter, idDelimiter string) string {
	for _, line := range strings.Split(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if metaDelimiter != "" && strings.HasPrefix(trimmed, metaDelimiter) {
			continue
		}
		if _, ok := identifierLine(trimmed, idDelimiter); idDelimiter != "" && ok {
			continue
		}
		return trimmed
	}
	return ""
}
