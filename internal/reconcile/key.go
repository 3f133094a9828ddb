package reconcile

import (
	"strings"
	"unicode"
)

// NormalizeKey makes primary keys comparable across feed and page: case,
// punctuation and leading zero padding are ignored.
func NormalizeKey(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	key := strings.TrimLeft(b.String(), "0")
	if key == "" && b.Len() > 0 {
		return "0"
	}
	return key
}
