package search

import "strings"

// snippetLength is the display snippet budget in bytes.
const snippetLength = 200

// Snippet collapses whitespace and truncates content at a word boundary
// close to maxLen.
func Snippet(content string, maxLen int) string {
	flat := strings.Join(strings.Fields(content), " ")
	if maxLen <= 0 || len(flat) <= maxLen {
		return flat
	}
	cut := flat[:maxLen]
	if idx := strings.LastIndexByte(cut, ' '); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}
