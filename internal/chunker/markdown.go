package chunker

import (
	"fmt"
	"regexp"
	"strings"
)

var headerRe = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.*)$`)

// Header is one markdown heading with its position in the content.
type Header struct {
	Start int
	End   int
	Level int
	Text  string
}

// FindHeaders locates ATX headings. Start/End delimit the heading line
// itself, without the trailing newline.
func FindHeaders(content string) []Header {
	var headers []Header
	for _, m := range headerRe.FindAllStringSubmatchIndex(content, -1) {
		start, end := m[0], m[1]
		level := m[3] - m[2]
		text := strings.TrimSpace(content[m[4]:m[5]])
		headers = append(headers, Header{Start: start, End: end, Level: level, Text: text})
	}
	return headers
}

// ChunkMarkdown grows chunks section by section, cutting at headings:
// eagerly at level-2/3 headings once a chunk is half full, at any heading
// once it passes the target. Content without headings falls back to the
// text strategy. Oversized sections are hard-split to honor max.
func ChunkMarkdown(content string, target, min, max int) []Span {
	target, min, max = clampSizes(target, min, max)
	headers := FindHeaders(content)
	if len(headers) == 0 {
		return ChunkText(content, target, min, max)
	}

	// A section runs from one heading to the next; content before the
	// first heading belongs to the first section.
	type section struct {
		start  int
		end    int
		header *Header
	}
	var sections []section
	if headers[0].Start > 0 {
		sections = append(sections, section{start: 0, end: headers[0].Start})
	}
	for i := range headers {
		end := len(content)
		if i+1 < len(headers) {
			end = headers[i+1].Start
		}
		sections = append(sections, section{start: headers[i].Start, end: end, header: &headers[i]})
	}

	var spans []Span
	chunkStart := sections[0].start
	for i, sec := range sections {
		acc := sec.start - chunkStart
		if i > 0 && sec.header != nil && acc >= min {
			cutHere := acc >= target
			if !cutHere && (sec.header.Level == 2 || sec.header.Level == 3) && acc*2 >= target {
				cutHere = true
			}
			if cutHere {
				spans = append(spans, Span{
					Start:  chunkStart,
					End:    sec.start,
					Reason: fmt.Sprintf("header_level_%d", sec.header.Level),
				})
				chunkStart = sec.start
			}
		}
	}
	spans = append(spans, Span{Start: chunkStart, End: len(content), Reason: lastReason(len(spans))})

	spans = enforceMax(content, spans, target, min, max)
	for i := range spans {
		spans[i].Boundaries = headingBoundaries(content, headers, spans[i])
	}
	return spans
}

func lastReason(prior int) string {
	if prior == 0 {
		return "single_chunk"
	}
	return "end"
}

// enforceMax hard-splits any span larger than max by re-running the text
// strategy inside it; those cuts may land mid-section.
func enforceMax(content string, spans []Span, target, min, max int) []Span {
	var out []Span
	for _, sp := range spans {
		if sp.End-sp.Start <= max {
			out = append(out, sp)
			continue
		}
		sub := ChunkText(content[sp.Start:sp.End], target, min, max)
		for j, s := range sub {
			reason := sp.Reason
			if j > 0 {
				reason = "max_size"
			}
			out = append(out, Span{Start: sp.Start + s.Start, End: sp.Start + s.End, Reason: reason})
		}
	}
	return out
}

func headingBoundaries(content string, headers []Header, sp Span) []Boundary {
	var bounds []Boundary
	for _, h := range headers {
		if h.Start >= sp.Start && h.Start < sp.End {
			bounds = append(bounds, Boundary{
				Type:  "heading",
				Level: h.Level,
				Text:  h.Text,
				Line:  strings.Count(content[:h.Start], "\n") + 1,
			})
		}
	}
	return bounds
}
