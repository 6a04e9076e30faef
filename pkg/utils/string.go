package utils

// Truncate shortens s to maxLen bytes with a trailing ellipsis. The CLI uses
// it to render node and conversation ids as short prefixes.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
