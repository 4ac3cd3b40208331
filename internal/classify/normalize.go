package classify

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes a raw transaction description for rule matching
// and cache keying: trim, lowercase, strip punctuation and symbols, collapse
// runs of whitespace to a single space. Letters and digits of any script are
// kept, so Korean merchant names survive normalization intact.
func Normalize(description string) string {
	var b strings.Builder
	b.Grow(len(description))

	lastSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(description)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			// Punctuation and symbols are dropped entirely.
		}
	}
	return strings.TrimSpace(b.String())
}
