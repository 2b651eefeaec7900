package turnengine

import "strings"

// SplitMessage splits t into chunks no longer than limit bytes,
// preferring to cut at a paragraph break ("\n\n"), then a line break
// ("\n"), then a space, and only hard-cutting at limit when none of those
// appear in the window. The separator characters stay attached to the end
// of the preceding chunk, so concatenating every returned chunk
// reproduces t exactly (spec §8 Testable Property 8) and no chunk starts
// with a stray blank line.
func SplitMessage(t string, limit int) []string {
	if limit <= 0 || len(t) <= limit {
		return []string{t}
	}

	var chunks []string
	for len(t) > limit {
		window := t[:limit]
		cut := splitPoint(window, limit)
		chunks = append(chunks, t[:cut])
		t = t[cut:]
	}
	if t != "" {
		chunks = append(chunks, t)
	}
	return chunks
}

func splitPoint(window string, limit int) int {
	if idx := strings.LastIndex(window, "\n\n"); idx >= 0 {
		return idx + 2
	}
	if idx := strings.LastIndex(window, "\n"); idx >= 0 {
		return idx + 1
	}
	if idx := strings.LastIndex(window, " "); idx >= 0 {
		return idx + 1
	}
	return limit
}
