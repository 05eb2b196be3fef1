// Package utils holds small helpers shared across packages: the zap
// logger constructor, vector math, and text truncation.
package utils

// Truncate shortens s to at most max runes, appending "..." when anything
// was cut. Non-positive max returns s unchanged. Cutting on rune
// boundaries keeps multi-byte text valid.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
