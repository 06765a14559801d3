// Package utils provides shared logging, math, and text helpers.
package utils

// Truncate shortens s to at most maxLen runes, appending "..." when anything
// was cut. Rune-based so multi-byte snippets are never split mid-character.
// A non-positive maxLen returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
