// Package extraction narrows ordinance document text through staged LLM
// passes and parses structured ordinance values out of the result.
package extraction

import "strings"

// DefaultMergeOverlap is the number of characters checked at the head of
// each chunk for overlap with the tail of the accumulated text.
const DefaultMergeOverlap = 300

// MergeOverlappingTexts joins consecutive text chunks, splicing out any
// overlap between the tail of the accumulated text and the head of the next
// chunk. The first n characters of each chunk are searched for within the
// last 2n characters of the accumulated text; when found, the duplicated
// prefix is dropped. Chunks with no detected overlap are joined with a
// newline.
func MergeOverlappingTexts(chunks []string, n int) string {
	if len(chunks) == 0 {
		return ""
	}
	if n <= 0 {
		n = DefaultMergeOverlap
	}

	out := chunks[0]
	for _, next := range chunks[1:] {
		probe := next
		if len(probe) > n {
			probe = probe[:n]
		}
		window := out
		windowStart := 0
		if len(out) > 2*n {
			windowStart = len(out) - 2*n
			window = out[windowStart:]
		}
		i := strings.Index(window, probe)
		if i < 0 || probe == "" {
			out = out + "\n" + next
			continue
		}
		// Everything from the match position to the end of the
		// accumulated text is a prefix of the next chunk.
		dup := len(window) - i
		if dup > len(next) {
			dup = len(next)
		}
		out += next[dup:]
	}
	return out
}
