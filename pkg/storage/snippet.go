package storage

import "strings"

// Snippet returns a window of content around the first case-insensitive
// occurrence of query, with ellipses where the window clips the content.
// Used by drivers to build SearchHit previews.
func Snippet(content, query string, radius int) string {
	if radius <= 0 {
		radius = 60
	}

	idx := strings.Index(strings.ToLower(content), strings.ToLower(query))
	if idx < 0 {
		if len(content) <= 2*radius {
			return content
		}
		return content[:2*radius] + "…"
	}

	start := idx - radius
	if start < 0 {
		start = 0
	}
	end := idx + len(query) + radius
	if end > len(content) {
		end = len(content)
	}

	snippet := content[start:end]
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(content) {
		snippet += "…"
	}

	return snippet
}
