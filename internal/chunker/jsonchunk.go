package chunker

import (
	"bytes"
	"encoding/json"
	"strings"
)

// JSONChunk is one independently parseable slice of a JSON document. Array
// chunks carry an element range; object chunks carry their keys. Content is
// re-serialized, so SourceStart/SourceEnd track where the covered elements
// sat in the original document.
type JSONChunk struct {
	Content      string
	Reason       string
	ElementRange []int
	Keys         []string
	KeyRange     []int
	SourceStart  int
	SourceEnd    int
}

// ChunkJSON splits a JSON document at structural boundaries: arrays into
// contiguous element groups, objects by whole top-level keys. The second
// return is false when the content is not a JSON container, in which case
// the caller should fall back to text chunking.
func ChunkJSON(content string, target, min, max int) ([]JSONChunk, bool) {
	target, min, max = clampSizes(target, min, max)
	trimmed := strings.TrimSpace(content)
	if len(trimmed) == 0 {
		return nil, false
	}

	switch trimmed[0] {
	case '[':
		return chunkJSONArray(content, target, max)
	case '{':
		return chunkJSONObject(content, target, max)
	default:
		return nil, false
	}
}

type jsonElement struct {
	raw   json.RawMessage
	key   string
	start int
	end   int
}

// decodeElements walks a top-level array or object with a streaming decoder,
// keeping each value's raw bytes and its approximate span in the source.
func decodeElements(content string, object bool) ([]jsonElement, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(content)))

	open, err := dec.Token()
	if err != nil {
		return nil, false
	}
	delim, ok := open.(json.Delim)
	if !ok || (object && delim != '{') || (!object && delim != '[') {
		return nil, false
	}

	elements := []jsonElement{}
	for dec.More() {
		var el jsonElement
		if object {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, false
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, false
			}
			el.key = key
		}
		el.start = int(dec.InputOffset())
		if err := dec.Decode(&el.raw); err != nil {
			return nil, false
		}
		el.end = int(dec.InputOffset())
		elements = append(elements, el)
	}
	if _, err := dec.Token(); err != nil {
		return nil, false
	}
	return elements, true
}

func chunkJSONArray(content string, target, max int) ([]JSONChunk, bool) {
	elements, ok := decodeElements(content, false)
	if !ok {
		return nil, false
	}

	if len(elements) == 0 {
		return []JSONChunk{{
			Content:      "[]",
			Reason:       "single_chunk",
			ElementRange: []int{0, 0},
		}}, true
	}

	groups := groupBySize(elements, target)
	chunks := make([]JSONChunk, 0, len(groups))
	elemIdx := 0
	for gi, g := range groups {
		parts := make([]string, len(g))
		for i, el := range g {
			parts[i] = string(el.raw)
		}
		chunks = append(chunks, JSONChunk{
			Content:      "[" + strings.Join(parts, ", ") + "]",
			Reason:       groupReason(gi, len(groups)),
			ElementRange: []int{elemIdx, elemIdx + len(g)},
			SourceStart:  g[0].start,
			SourceEnd:    g[len(g)-1].end,
		})
		elemIdx += len(g)
	}
	return chunks, true
}

func chunkJSONObject(content string, target, max int) ([]JSONChunk, bool) {
	elements, ok := decodeElements(content, true)
	if !ok {
		return nil, false
	}

	if len(elements) == 0 {
		return []JSONChunk{{
			Content:  "{}",
			Reason:   "single_chunk",
			Keys:     []string{},
			KeyRange: []int{0, 0},
		}}, true
	}

	groups := groupBySize(elements, target)
	chunks := make([]JSONChunk, 0, len(groups))
	keyIdx := 0
	for gi, g := range groups {
		parts := make([]string, len(g))
		keys := make([]string, len(g))
		for i, el := range g {
			keyJSON, _ := json.Marshal(el.key)
			parts[i] = string(keyJSON) + ": " + string(el.raw)
			keys[i] = el.key
		}
		reason := groupReason(gi, len(groups))
		if reason == "element_boundary" {
			reason = "key_boundary"
		}
		chunks = append(chunks, JSONChunk{
			Content:     "{" + strings.Join(parts, ", ") + "}",
			Reason:      reason,
			Keys:        keys,
			KeyRange:    []int{keyIdx, keyIdx + len(g)},
			SourceStart: g[0].start,
			SourceEnd:   g[len(g)-1].end,
		})
		keyIdx += len(g)
	}
	return chunks, true
}

// groupBySize packs consecutive elements until the serialized chunk would
// pass the target size. Every group holds at least one element, so a single
// oversized value still lands somewhere.
func groupBySize(elements []jsonElement, target int) [][]jsonElement {
	var groups [][]jsonElement
	var current []jsonElement
	size := 2 // brackets
	for _, el := range elements {
		elSize := len(el.raw) + len(el.key) + 4
		if len(current) > 0 && size+elSize > target {
			groups = append(groups, current)
			current = nil
			size = 2
		}
		current = append(current, el)
		size += elSize
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func groupReason(i, total int) string {
	switch {
	case total == 1:
		return "single_chunk"
	case i == 0:
		return "start"
	case i == total-1:
		return "end"
	default:
		return "element_boundary"
	}
}
