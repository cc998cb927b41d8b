package chunker

import "strings"

// PreviewLines is how many leading lines a manifest preview keeps.
const PreviewLines = 5

// Preview returns the first few lines of a chunk, with an ellipsis marker
// when content was cut off.
func Preview(chunkText string) string {
	lines := strings.Split(chunkText, "\n")
	if len(lines) <= PreviewLines {
		return chunkText
	}
	return strings.Join(lines[:PreviewLines], "\n") + "\n..."
}

// Hints derives cheap content signals for a chunk: headings, code blocks,
// code likelihood, JSON shape, and line density. An empty map means nothing
// noteworthy was found.
func Hints(chunkText string) map[string]any {
	hints := map[string]any{}
	lines := strings.Split(chunkText, "\n")

	var headers []string
	scan := lines
	if len(scan) > 100 {
		scan = scan[:100]
	}
	for _, line := range scan {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "#") && len(stripped) > 1 {
			if len(stripped) > 80 {
				stripped = stripped[:80]
			}
			headers = append(headers, stripped)
		}
	}
	if len(headers) > 0 {
		if len(headers) > 5 {
			headers = headers[:5]
		}
		hints["section_headers"] = headers
	}

	if fences := strings.Count(chunkText, "```"); fences >= 2 {
		hints["has_code_blocks"] = true
		hints["code_block_count"] = fences / 2
	}

	if len(chunkText) > 0 {
		codeChars := 0
		for _, c := range chunkText {
			if strings.ContainsRune("{}();[]<>=", c) {
				codeChars++
			}
		}
		if float64(codeChars)/float64(len(chunkText)) > 0.02 {
			hints["likely_code"] = true
		}
	}

	stripped := strings.TrimSpace(chunkText)
	if (strings.HasPrefix(stripped, "{") && strings.HasSuffix(stripped, "}")) ||
		(strings.HasPrefix(stripped, "[") && strings.HasSuffix(stripped, "]")) {
		hints["likely_json"] = true
	}

	if len(lines) > 0 {
		nonEmpty := 0
		for _, line := range lines {
			if strings.TrimSpace(line) != "" {
				nonEmpty++
			}
		}
		density := float64(nonEmpty) / float64(len(lines))
		switch {
		case density > 0.8:
			hints["density"] = "dense"
		case density < 0.4:
			hints["density"] = "sparse"
		default:
			hints["density"] = "normal"
		}
	}

	if len(hints) == 0 {
		return nil
	}
	return hints
}

// countLinesInRange returns the 1-based start and end line numbers covering
// content[start:end).
func countLinesInRange(content string, start, end int) (int, int) {
	if content == "" {
		return 1, 1
	}
	startLine := strings.Count(content[:start], "\n") + 1
	endLine := strings.Count(content[:end], "\n") + 1
	return startLine, endLine
}
