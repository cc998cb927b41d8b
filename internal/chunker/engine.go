package chunker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/selimbzr/ravel/internal/structure"
)

// ChunkMeta is one manifest entry.
type ChunkMeta struct {
	ID           string         `json:"id"`
	File         string         `json:"file"`
	StartChar    int            `json:"start_char"`
	EndChar      int            `json:"end_char"`
	StartLine    int            `json:"start_line"`
	EndLine      int            `json:"end_line"`
	Format       string         `json:"format"`
	SplitReason  string         `json:"split_reason"`
	Preview      string         `json:"preview"`
	Boundaries   []Boundary     `json:"boundaries,omitempty"`
	ElementRange []int          `json:"element_range,omitempty"`
	Keys         []string       `json:"keys,omitempty"`
	KeyRange     []int          `json:"key_range,omitempty"`
	Hints        map[string]any `json:"hints,omitempty"`
}

// Manifest describes one chunking run.
type Manifest struct {
	Session        string      `json:"session"`
	ContextFile    string      `json:"context_file"`
	TotalChars     int         `json:"total_chars"`
	TotalLines     int         `json:"total_lines"`
	Format         string      `json:"format"`
	ChunkingMethod string      `json:"chunking_method"`
	TargetSize     int         `json:"target_size,omitempty"`
	MaxSize        int         `json:"max_size,omitempty"`
	ChunkSize      int         `json:"chunk_size,omitempty"`
	Overlap        int         `json:"overlap,omitempty"`
	ToolAvailable  *bool       `json:"structure_tool_available,omitempty"`
	ToolUsed       *bool       `json:"structure_tool_used,omitempty"`
	JSONChunked    *bool       `json:"json_chunked,omitempty"`
	ChunkCount     int         `json:"chunk_count"`
	Chunks         []ChunkMeta `json:"chunks"`
}

// ManifestFileName is written next to the chunk files on every run.
const ManifestFileName = "manifest.json"

// Engine performs format-aware chunking runs.
type Engine struct {
	Analyzer   structure.Analyzer
	TargetSize int
	MinSize    int
	MaxSize    int
}

// NewEngine builds an engine with default sizes. analyzer may be nil, in
// which case code falls back to text chunking.
func NewEngine(analyzer structure.Analyzer) *Engine {
	return &Engine{
		Analyzer:   analyzer,
		TargetSize: DefaultTargetSize,
		MinSize:    DefaultMinSize,
		MaxSize:    DefaultMaxSize,
	}
}

// Smart chunks content by its detected format and writes one file per chunk
// plus a manifest into outDir. It returns the chunk file paths and the
// manifest.
func (e *Engine) Smart(ctx context.Context, content, contextPath, outDir, sessionName string) ([]string, *Manifest, error) {
	format := DetectFormat(content, contextPath)

	manifest := &Manifest{
		Session:     sessionName,
		ContextFile: contextPath,
		TotalChars:  len(content),
		TotalLines:  strings.Count(content, "\n") + 1,
		Format:      string(format),
		TargetSize:  e.TargetSize,
		MaxSize:     e.MaxSize,
	}

	var spans []Span
	var jsonChunks []JSONChunk
	ext := ".txt"

	switch format {
	case FormatMarkdown:
		spans = ChunkMarkdown(content, e.TargetSize, e.MinSize, e.MaxSize)
		manifest.ChunkingMethod = "smart_markdown"
		ext = ".md"

	case FormatCode:
		var available, used bool
		spans, available, used = ChunkCode(ctx, content, contextPath, e.Analyzer, e.TargetSize, e.MinSize, e.MaxSize)
		manifest.ToolAvailable = &available
		manifest.ToolUsed = &used
		if used {
			manifest.ChunkingMethod = "smart_code"
			ext = filepath.Ext(contextPath)
			if ext == "" {
				ext = ".txt"
			}
		} else {
			manifest.ChunkingMethod = "smart_text"
		}

	case FormatJSON:
		var ok bool
		jsonChunks, ok = ChunkJSON(content, e.TargetSize, e.MinSize, e.MaxSize)
		manifest.JSONChunked = &ok
		if ok {
			manifest.ChunkingMethod = "smart_json"
			ext = ".json"
		} else {
			spans = ChunkText(content, e.TargetSize, e.MinSize, e.MaxSize)
			manifest.ChunkingMethod = "smart_text"
		}

	default:
		spans = ChunkText(content, e.TargetSize, e.MinSize, e.MaxSize)
		manifest.ChunkingMethod = "smart_text"
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}

	var paths []string
	if jsonChunks != nil {
		for i, jc := range jsonChunks {
			meta := ChunkMeta{
				ID:           fmt.Sprintf("chunk_%04d", i),
				File:         fmt.Sprintf("chunk_%04d%s", i, ext),
				StartChar:    jc.SourceStart,
				EndChar:      jc.SourceEnd,
				Format:       string(format),
				SplitReason:  jc.Reason,
				Preview:      Preview(jc.Content),
				ElementRange: jc.ElementRange,
				Keys:         jc.Keys,
				KeyRange:     jc.KeyRange,
				Hints:        Hints(jc.Content),
			}
			meta.StartLine, meta.EndLine = countLinesInRange(content, clampOffset(jc.SourceStart, len(content)), clampOffset(jc.SourceEnd, len(content)))

			p := filepath.Join(outDir, meta.File)
			if err := os.WriteFile(p, []byte(jc.Content), 0644); err != nil {
				return nil, nil, fmt.Errorf("failed to write chunk %s: %w", meta.ID, err)
			}
			paths = append(paths, p)
			manifest.Chunks = append(manifest.Chunks, meta)
		}
		manifest.ChunkCount = len(manifest.Chunks)
		if err := writeManifest(outDir, manifest); err != nil {
			return nil, nil, err
		}
		return paths, manifest, nil
	}

	paths, err := e.writeSpans(content, outDir, ext, string(format), spans, manifest, true)
	if err != nil {
		return nil, nil, err
	}
	return paths, manifest, nil
}

// writeSpans materializes raw-slice chunks, fills the manifest, and writes
// it out.
func (e *Engine) writeSpans(content, outDir, ext, format string, spans []Span, manifest *Manifest, includeHints bool) ([]string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}

	var paths []string
	for i, sp := range spans {
		chunkText := content[sp.Start:sp.End]
		meta := ChunkMeta{
			ID:          fmt.Sprintf("chunk_%04d", i),
			File:        fmt.Sprintf("chunk_%04d%s", i, ext),
			StartChar:   sp.Start,
			EndChar:     sp.End,
			Format:      format,
			SplitReason: sp.Reason,
			Boundaries:  sp.Boundaries,
		}
		if includeHints {
			meta.Preview = Preview(chunkText)
			meta.Hints = Hints(chunkText)
		}
		meta.StartLine, meta.EndLine = countLinesInRange(content, sp.Start, sp.End)

		p := filepath.Join(outDir, meta.File)
		if err := os.WriteFile(p, []byte(chunkText), 0644); err != nil {
			return nil, fmt.Errorf("failed to write chunk %s: %w", meta.ID, err)
		}
		paths = append(paths, p)
		manifest.Chunks = append(manifest.Chunks, meta)
	}

	manifest.ChunkCount = len(manifest.Chunks)
	if err := writeManifest(outDir, manifest); err != nil {
		return nil, err
	}
	return paths, nil
}

func clampOffset(v, n int) int {
	if v < 0 {
		return 0
	}
	if v > n {
		return n
	}
	return v
}

func writeManifest(outDir string, manifest *Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, ManifestFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by a previous run.
func ReadManifest(outDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(outDir, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}
