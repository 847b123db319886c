package search

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Wildcard is appended to sanitized full-text terms for prefix matching
const Wildcard = "*"

// SanitizeFreeText normalizes a free-text term for the full-text index.
//
// The term is lower-cased, every character other than ASCII letters, digits and
// whitespace is removed, and Wildcard is appended. A term that is empty (or only
// whitespace) after stripping is returned as "" so callers can reject it. The result is stable
// under re-sanitization.
func SanitizeFreeText(input string) string {
	// Casers carry state and are not shared between goroutines
	lowered := cases.Lower(language.English).String(input)

	var b strings.Builder
	b.Grow(len(lowered) + 1)
	for _, r := range lowered {
		if isTermRune(r) {
			b.WriteRune(r)
		}
	}

	if strings.TrimSpace(b.String()) == "" {
		return ""
	}
	b.WriteString(Wildcard)
	return b.String()
}

func isTermRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == ' ', r == '\t', r == '\n', r == '\v', r == '\f', r == '\r':
		return true
	}
	return false
}

// LikePattern wraps an attribute value for a case-insensitive LIKE match
func LikePattern(value string) string {
	return "%" + cases.Lower(language.English).String(value) + "%"
}
