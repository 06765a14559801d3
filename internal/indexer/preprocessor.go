package indexer

import (
	"strings"
	"unicode"
)

// Normalize lowercases text, trims it, and collapses whitespace runs to
// single spaces. Chunk contents and queries go through the same
// normalization so lexical matching and text-layer search agree.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
