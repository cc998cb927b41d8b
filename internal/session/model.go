package session

import (
	"time"
)

// CurrentVersion is the snapshot schema version written by this build.
// Older snapshots are migrated forward on load; newer ones are rejected.
const CurrentVersion = 3

// DefaultMaxDepth is the recursion budget given to fresh sessions.
const DefaultMaxDepth = 3

// Context holds the source content a session explores. Content is immutable
// once loaded; a new session is created to pick up changed content.
type Context struct {
	Path     string    `json:"path"`
	LoadedAt time.Time `json:"loaded_at"`
	Content  string    `json:"content"`
}

// HandleRecord is one server-held result set. Items are JSON-shaped values
// (maps, slices, primitives) so the record round-trips through the snapshot.
type HandleRecord struct {
	Kind  string `json:"kind"`
	Seq   int    `json:"seq"`
	Items []any  `json:"items"`
}

// FinalAnswer is the single answer slot captured by finalize.
type FinalAnswer struct {
	Value any       `json:"value"`
	SetAt time.Time `json:"set_at"`
}

// Session is the root aggregate persisted between invocations.
type Session struct {
	Version                int                     `json:"version"`
	ID                     string                  `json:"id"`
	MaxDepth               int                     `json:"max_depth"`
	RemainingDepth         int                     `json:"remaining_depth"`
	PreserveRecursiveState bool                    `json:"preserve_recursive_state"`
	Context                Context                 `json:"context"`
	Buffers                []string                `json:"buffers"`
	Handles                map[string]HandleRecord `json:"handles"`
	HandleCounter          int                     `json:"handle_counter"`
	FinalAnswer            *FinalAnswer            `json:"final_answer"`
	CreatedAt              time.Time               `json:"created_at"`
	UpdatedAt              time.Time               `json:"updated_at"`
}

// Peek returns a slice of the source content, clamped to its bounds.
func (s *Session) Peek(start, end int) string {
	content := s.Context.Content
	if start < 0 {
		start = 0
	}
	if end > len(content) {
		end = len(content)
	}
	if start >= end {
		return ""
	}
	return content[start:end]
}

// AddBuffer appends one accumulated text result.
func (s *Session) AddBuffer(text string) {
	s.Buffers = append(s.Buffers, text)
}

// CanDispatch reports whether the session still has recursion budget.
func (s *Session) CanDispatch() bool {
	return s.RemainingDepth > 0
}
