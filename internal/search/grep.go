// Package search finds content inside a session: direct regex scans over
// the loaded source, and an indexed keyword search over chunk files.
package search

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultMaxMatches bounds how many matches one scan returns.
	DefaultMaxMatches = 20
	// DefaultWindow is how many characters of context surround a match.
	DefaultWindow = 120
)

// Grep scans content with a regular expression and returns one item per
// match: the matched text, its character span, its 1-based line number, and
// a context snippet of window characters on each side. Items are map-shaped
// so they can live in a handle and round-trip through the session snapshot.
func Grep(content, pattern string, maxMatches, window int, caseInsensitive bool) ([]any, error) {
	if maxMatches <= 0 {
		maxMatches = DefaultMaxMatches
	}
	if window < 0 {
		window = DefaultWindow
	}
	if caseInsensitive && !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid search pattern: %w", err)
	}

	out := []any{}
	line := 1
	scanned := 0
	for _, span := range re.FindAllStringIndex(content, maxMatches) {
		start, end := span[0], span[1]
		snippetStart := start - window
		if snippetStart < 0 {
			snippetStart = 0
		}
		snippetEnd := end + window
		if snippetEnd > len(content) {
			snippetEnd = len(content)
		}
		// Line numbers advance incrementally since matches come in order.
		line += strings.Count(content[scanned:start], "\n")
		scanned = start

		out = append(out, map[string]any{
			"match":    content[start:end],
			"span":     []any{float64(start), float64(end)},
			"line_num": float64(line),
			"snippet":  content[snippetStart:snippetEnd],
		})
	}
	return out, nil
}
