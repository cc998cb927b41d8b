// Package structure obtains symbol-level layout of source files from an
// external analysis tool, so code can be chunked at function and class
// boundaries instead of arbitrary offsets.
package structure

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/selimbzr/ravel/internal/sandbox"
)

// ErrUnavailable means no analysis tool could be found or run. Callers treat
// it as a signal to fall back, never as a fatal error.
var ErrUnavailable = errors.New("structure analyzer unavailable")

// Symbol is one function/class/method span reported by the tool.
type Symbol struct {
	Name      string
	Kind      string
	Signature string
	StartLine int
	EndLine   int
	Exported  bool
}

// Analyzer yields the symbols of a source file.
type Analyzer interface {
	Analyze(ctx context.Context, path string) ([]Symbol, error)
}

// ToolAnalyzer shells out to the codemap CLI through a sandbox runner. The
// tool location is resolved once and cached for the process lifetime.
type ToolAnalyzer struct {
	runner sandbox.Runner

	mu       sync.Mutex
	resolved bool
	tool     []string
}

// NewToolAnalyzer builds an analyzer over the given runner.
func NewToolAnalyzer(runner sandbox.Runner) *ToolAnalyzer {
	return &ToolAnalyzer{runner: runner}
}

// detect resolves the analysis tool: the RAVEL_STRUCTURE_TOOL override
// first, then codemap on PATH, then npx. A nil result means unavailable;
// the outcome is cached either way.
func (a *ToolAnalyzer) detect(ctx context.Context) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.resolved {
		return a.tool
	}
	a.resolved = true

	if override := os.Getenv("RAVEL_STRUCTURE_TOOL"); override != "" {
		if info, err := os.Stat(override); err == nil && !info.IsDir() {
			a.tool = []string{override}
			return a.tool
		}
		return nil
	}

	probe := func(name string, args ...string) bool {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		cmd := exec.CommandContext(pctx, name, args...)
		cmd.Stdout = nil
		cmd.Stderr = nil
		return cmd.Run() == nil
	}

	if probe("codemap", "--version") {
		a.tool = []string{"codemap"}
		return a.tool
	}
	if probe("npx", "--yes", "codemap", "--version") {
		a.tool = []string{"npx", "--yes", "codemap"}
		return a.tool
	}
	return nil
}

// Analyze runs the tool against one file and returns its symbols sorted by
// start line. Any tool failure maps to ErrUnavailable.
func (a *ToolAnalyzer) Analyze(ctx context.Context, path string) ([]Symbol, error) {
	tool := a.detect(ctx)
	if tool == nil {
		return nil, ErrUnavailable
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, ErrUnavailable
	}
	if _, err := os.Stat(absPath); err != nil {
		return nil, ErrUnavailable
	}

	args := append(append([]string{}, tool[1:]...), "--json", filepath.Base(absPath))
	res, err := a.runner.Run(ctx, sandbox.Spec{
		Dir:     filepath.Dir(absPath),
		Name:    tool[0],
		Args:    args,
		Timeout: 30 * time.Second,
	})
	if err != nil || res.Code != 0 {
		return nil, ErrUnavailable
	}

	symbols := ParseSymbols(res.Stdout, path)
	if len(symbols) == 0 {
		return nil, ErrUnavailable
	}
	return symbols, nil
}

// codemap emits either {"files": [...]} or a bare file array.
type toolFile struct {
	Path    string       `json:"path"`
	Symbols []toolSymbol `json:"symbols"`
}

type toolSymbol struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Lines     []int  `json:"lines"`
	Signature string `json:"signature"`
	Exported  bool   `json:"exported"`
}

// ParseSymbols extracts symbols for one file from tool output, matching by
// exact path first and basename second. Unparseable output yields nil.
func ParseSymbols(output, path string) []Symbol {
	var files []toolFile

	var wrapped struct {
		Files []toolFile `json:"files"`
	}
	if err := json.Unmarshal([]byte(output), &wrapped); err == nil && wrapped.Files != nil {
		files = wrapped.Files
	} else if err := json.Unmarshal([]byte(output), &files); err != nil {
		return nil
	}

	var match *toolFile
	base := filepath.Base(path)
	for i := range files {
		if files[i].Path == path {
			match = &files[i]
			break
		}
	}
	if match == nil {
		for i := range files {
			if filepath.Base(files[i].Path) == base {
				match = &files[i]
				break
			}
		}
	}
	if match == nil {
		return nil
	}

	symbols := make([]Symbol, 0, len(match.Symbols))
	for _, s := range match.Symbols {
		if len(s.Lines) < 2 {
			continue
		}
		symbols = append(symbols, Symbol{
			Name:      s.Name,
			Kind:      s.Kind,
			Signature: s.Signature,
			StartLine: s.Lines[0],
			EndLine:   s.Lines[1],
			Exported:  s.Exported,
		})
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i].StartLine < symbols[j].StartLine })
	return symbols
}

// LineToChar converts a 1-based line number to a character offset.
func LineToChar(content string, line int) int {
	if line <= 1 {
		return 0
	}
	pos := 0
	for n := 1; n < line; n++ {
		idx := strings.IndexByte(content[pos:], '\n')
		if idx < 0 {
			return len(content)
		}
		pos += idx + 1
	}
	return pos
}
