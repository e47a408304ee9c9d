package util

// Truncate shortens a string to maxLen with ellipsis.
// Uses three ASCII periods "..." to indicate truncation.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	// When n too small for content + ellipsis, just return first n chars
	if n <= 3 {
		// Find last rune boundary at or before n bytes
		lastValid := 0
		for i := range s {
			if i > n {
				break
			}
			lastValid = i
		}
		if lastValid == 0 && len(s) > 0 {
			return ""
		}
		return s[:lastValid]
	}
	// Find the last rune boundary that allows for "..." suffix within n bytes.
	targetLen := n - 3
	prevI := 0
	for i := range s {
		if i > targetLen {
			return s[:prevI] + "..."
		}
		prevI = i
	}
	// All rune starts are <= targetLen, but string is > n bytes.
	return s[:prevI] + "..."
}
