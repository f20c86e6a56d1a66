package tabular

import (
	"strings"
	"unicode"
)

// NormalizeName canonicalizes a column header or field label for fuzzy
// comparison: lowercase, punctuation and separators collapsed to single
// spaces, surrounding whitespace trimmed. Pure; shared by the type detector
// and the auto-mapper so both sides agree on what "equal" means.
func NormalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		// Any run of punctuation, separators, or spaces becomes one space.
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// MachineName derives a machine-safe snake_case identifier from a header,
// e.g. "E-mail Address" -> "e_mail_address". Falls back to "field" for
// headers with no usable characters.
func MachineName(s string) string {
	n := NormalizeName(s)
	if n == "" {
		return "field"
	}
	return strings.ReplaceAll(n, " ", "_")
}
