package chunker

import "strings"

// ChunkText splits plain content near the target size, preferring paragraph
// breaks, then line breaks, then spaces, with a hard cut as last resort.
// No chunk exceeds max.
func ChunkText(content string, target, min, max int) []Span {
	target, min, max = clampSizes(target, min, max)
	n := len(content)

	if n <= max {
		return []Span{{Start: 0, End: n, Reason: "single_chunk"}}
	}

	var spans []Span
	pos := 0
	for pos < n {
		if n-pos <= max {
			spans = append(spans, Span{Start: pos, End: n, Reason: "end"})
			break
		}
		end, reason := findCut(content, pos, target, min, max)
		spans = append(spans, Span{Start: pos, End: end, Reason: reason})
		pos = end
	}
	return spans
}

// findCut locates the best cut point for a chunk starting at pos. Paragraph
// and line breaks are searched up to max so a natural boundary slightly past
// the target still wins over a mid-sentence cut.
func findCut(content string, pos, target, min, max int) (int, string) {
	lo := pos + min
	if lo <= pos {
		lo = pos + 1
	}
	ideal := pos + target
	hi := pos + max
	if hi > len(content) {
		hi = len(content)
	}
	if lo >= hi {
		return hi, "hard_cut"
	}

	if cut := nearestBreak(content, lo, hi, ideal, "\n\n"); cut >= 0 {
		// Land just past the blank-line run so the next chunk starts at
		// the following paragraph.
		end := cut + 2
		for end < hi && content[end] == '\n' {
			end++
		}
		return end, "paragraph"
	}
	if cut := nearestBreak(content, lo, hi, ideal, "\n"); cut >= 0 {
		return cut + 1, "line_break"
	}
	if cut := nearestBreak(content, lo, hi, ideal, " "); cut >= 0 {
		return cut + 1, "space"
	}
	end := ideal
	if end > hi {
		end = hi
	}
	return end, "hard_cut"
}

// nearestBreak finds the occurrence of sep within [lo, hi) closest to ideal,
// or -1 when there is none.
func nearestBreak(content string, lo, hi, ideal int, sep string) int {
	window := content[lo:hi]
	best := -1
	offset := 0
	for {
		idx := strings.Index(window[offset:], sep)
		if idx < 0 {
			break
		}
		abs := lo + offset + idx
		if best < 0 || absDiff(abs, ideal) < absDiff(best, ideal) {
			best = abs
		}
		offset += idx + 1
		if offset >= len(window) {
			break
		}
	}
	return best
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
