// Package chunker splits session content at boundaries that preserve
// meaning: headings for markdown, symbols for code, elements and keys for
// JSON, paragraphs for plain text. Every run writes chunk files plus a
// manifest describing each chunk's span and split rationale.
package chunker

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// Format classifies content for strategy selection.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatCode     Format = "code"
	FormatJSON     Format = "json"
	FormatText     Format = "text"
)

var markdownExts = map[string]bool{
	".md": true, ".markdown": true, ".mdx": true,
}

var codeExts = map[string]bool{
	".py": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".rs": true, ".go": true, ".java": true, ".rb": true, ".php": true,
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".cc": true,
	".cs": true, ".swift": true, ".kt": true, ".scala": true,
}

// DetectFormat picks the chunking format: extension first, then content
// heuristics, defaulting to plain text.
func DetectFormat(content, path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case markdownExts[ext]:
		return FormatMarkdown
	case codeExts[ext]:
		return FormatCode
	case ext == ".json":
		return FormatJSON
	case ext == ".txt":
		return FormatText
	}

	// No recognized extension: look at the content itself.
	headerLines := 0
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && len(trimmed) > 1 {
			headerLines++
		}
	}
	if headerLines >= 5 {
		return FormatMarkdown
	}

	trimmed := strings.TrimSpace(content)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid([]byte(trimmed)) {
		return FormatJSON
	}

	return FormatText
}
