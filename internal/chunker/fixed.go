package chunker

import (
	"context"
	"fmt"
	"strings"
)

// DefaultFixedSize is the chunk size for the plain character-count strategy.
const DefaultFixedSize = 200_000

// Indices computes fixed-size [start, end) spans over a content length.
// Overlap repeats the tail of each chunk at the head of the next; this is
// the only strategy where spans may overlap.
func Indices(contentLen, size, overlap int) ([][2]int, error) {
	if size <= 0 {
		return nil, fmt.Errorf("size must be > 0")
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap must be >= 0")
	}
	if overlap >= size {
		return nil, fmt.Errorf("overlap must be < size")
	}

	var spans [][2]int
	step := size - overlap
	for start := 0; start < contentLen; start += step {
		end := start + size
		if end > contentLen {
			end = contentLen
		}
		spans = append(spans, [2]int{start, end})
		if end >= contentLen {
			break
		}
	}
	return spans, nil
}

// Fixed writes fixed-size chunks without structure awareness. Used when a
// caller asks for raw slices instead of smart chunking.
func (e *Engine) Fixed(ctx context.Context, content, contextPath, outDir, sessionName string, size, overlap int, includeHints bool) ([]string, *Manifest, error) {
	_ = ctx
	if size <= 0 {
		size = DefaultFixedSize
	}
	spans, err := Indices(len(content), size, overlap)
	if err != nil {
		return nil, nil, err
	}

	manifest := &Manifest{
		Session:        sessionName,
		ContextFile:    contextPath,
		TotalChars:     len(content),
		TotalLines:     strings.Count(content, "\n") + 1,
		Format:         string(FormatText),
		ChunkingMethod: "fixed_size",
		ChunkSize:      size,
		Overlap:        overlap,
	}

	metaSpans := make([]Span, len(spans))
	for i, sp := range spans {
		metaSpans[i] = Span{Start: sp[0], End: sp[1], Reason: "fixed_size"}
	}
	paths, err := e.writeSpans(content, outDir, ".txt", string(FormatText), metaSpans, manifest, includeHints)
	if err != nil {
		return nil, nil, err
	}
	return paths, manifest, nil
}
