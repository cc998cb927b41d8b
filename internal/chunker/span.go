package chunker

// Size defaults for smart chunking, in characters.
const (
	DefaultTargetSize = 20000
	DefaultMinSize    = 1000
	DefaultMaxSize    = 40000
)

// Boundary marks a structural feature found inside a chunk.
type Boundary struct {
	Type  string `json:"type"`
	Level int    `json:"level,omitempty"`
	Name  string `json:"name,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Text  string `json:"text,omitempty"`
	Line  int    `json:"line,omitempty"`
}

// Span is one raw-slice chunk covering content[Start:End). Spans from one
// run are contiguous and ordered; their union reconstructs the input.
type Span struct {
	Start      int
	End        int
	Reason     string
	Boundaries []Boundary
}

// clampSizes normalizes target/min/max so min <= target <= max.
func clampSizes(target, min, max int) (int, int, int) {
	if target <= 0 {
		target = DefaultTargetSize
	}
	if min <= 0 {
		min = DefaultMinSize
	}
	if max <= 0 {
		max = DefaultMaxSize
	}
	if min > target {
		min = target
	}
	if max < target {
		max = target
	}
	return target, min, max
}
