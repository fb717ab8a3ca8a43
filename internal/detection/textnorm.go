package detection

import (
	"strings"
	"unicode"
)

// Normalize lowercases text and strips every character outside
// [a-z0-9 whitespace], then trims. Idempotent, so stored normalized
// text can be re-normalized safely.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', unicode.IsSpace(r):
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(b.String())
}

// WordCount counts whitespace-separated words in normalized text
func WordCount(normalized string) int {
	return len(strings.Fields(normalized))
}
