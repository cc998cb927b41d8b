package chunker

import (
	"context"
	"errors"

	"github.com/selimbzr/ravel/internal/structure"
)

// ChunkCode packs symbol spans (plus the gaps between them) into chunks up
// to the target size. The bool returns report whether a structure tool was
// reachable at all and whether it actually drove the boundaries; a tool that
// answers but yields nothing usable counts as available but unused. On any
// analyzer failure the text strategy takes over without failing the
// operation.
func ChunkCode(ctx context.Context, content, path string, analyzer structure.Analyzer, target, min, max int) ([]Span, bool, bool) {
	target, min, max = clampSizes(target, min, max)
	if analyzer == nil {
		return ChunkText(content, target, min, max), false, false
	}

	symbols, err := analyzer.Analyze(ctx, path)
	if err != nil {
		available := !errors.Is(err, structure.ErrUnavailable)
		return ChunkText(content, target, min, max), available, false
	}
	if len(symbols) == 0 {
		return ChunkText(content, target, min, max), true, false
	}

	atoms := symbolAtoms(content, symbols)
	if len(atoms) == 0 {
		return ChunkText(content, target, min, max), true, false
	}

	var spans []Span
	chunkStart := 0
	var bounds []Boundary
	for _, a := range atoms {
		if a.end-chunkStart > target && a.start > chunkStart {
			spans = append(spans, Span{Start: chunkStart, End: a.start, Reason: "symbol_boundary", Boundaries: bounds})
			chunkStart = a.start
			bounds = nil
		}
		if a.sym != nil {
			bounds = append(bounds, Boundary{
				Type: "symbol",
				Name: a.sym.Name,
				Kind: a.sym.Kind,
				Line: a.sym.StartLine,
			})
		}
	}
	reason := "end"
	if len(spans) == 0 {
		reason = "single_chunk"
	}
	spans = append(spans, Span{Start: chunkStart, End: len(content), Reason: reason, Boundaries: bounds})

	return enforceMaxCode(content, spans, target, min, max), true, true
}

type atom struct {
	start int
	end   int
	sym   *structure.Symbol
}

// symbolAtoms converts line-ranged symbols into ordered char-span atoms,
// treating interstitial content (imports, comments, whitespace) as atoms of
// its own so the whole file stays covered.
func symbolAtoms(content string, symbols []structure.Symbol) []atom {
	var atoms []atom
	pos := 0
	for i := range symbols {
		s := &symbols[i]
		start := structure.LineToChar(content, s.StartLine)
		end := structure.LineToChar(content, s.EndLine+1)
		if start < pos {
			start = pos
		}
		if end > len(content) {
			end = len(content)
		}
		if end <= start {
			continue
		}
		if start > pos {
			atoms = append(atoms, atom{start: pos, end: start})
		}
		atoms = append(atoms, atom{start: start, end: end, sym: s})
		pos = end
	}
	if pos < len(content) {
		atoms = append(atoms, atom{start: pos, end: len(content)})
	}
	return atoms
}

func enforceMaxCode(content string, spans []Span, target, min, max int) []Span {
	var out []Span
	for _, sp := range spans {
		if sp.End-sp.Start <= max {
			out = append(out, sp)
			continue
		}
		sub := ChunkText(content[sp.Start:sp.End], target, min, max)
		for j, s := range sub {
			reason := sp.Reason
			var bounds []Boundary
			if j > 0 {
				reason = "max_size"
			} else {
				bounds = sp.Boundaries
			}
			out = append(out, Span{Start: sp.Start + s.Start, End: sp.Start + s.End, Reason: reason, Boundaries: bounds})
		}
	}
	return out
}
