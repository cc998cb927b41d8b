package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// QueryLogFileName is the append-only log written into the session
// directory, one JSON record per line.
const QueryLogFileName = "llm_queries.jsonl"

// LogEntry records one worker invocation. Entries are append-only, ordered
// by completion time.
type LogEntry struct {
	Timestamp       string `json:"timestamp"`
	QueryID         string `json:"query_id"`
	DepthLevel      int    `json:"depth_level"`
	RemainingDepth  int    `json:"remaining_depth"`
	PromptPreview   string `json:"prompt_preview"`
	PromptChars     int    `json:"prompt_chars"`
	SubStateDir     string `json:"sub_state_dir"`
	ResponsePreview string `json:"response_preview"`
	ResponseChars   int    `json:"response_chars"`
	DurationMS      int64  `json:"duration_ms"`
	Status          string `json:"status"`
	Cleanup         bool   `json:"cleanup"`
	BatchID         string `json:"batch_id,omitempty"`
	BatchIndex      *int   `json:"batch_index,omitempty"`
	Attempt         int    `json:"attempt,omitempty"`
}

// QueryLog appends entries to llm_queries.jsonl in a session directory.
// Safe for concurrent use; batch workers log from multiple goroutines.
type QueryLog struct {
	mu   sync.Mutex
	path string
}

// NewQueryLog returns a log writing into sessionDir.
func NewQueryLog(sessionDir string) *QueryLog {
	return &QueryLog{path: filepath.Join(sessionDir, QueryLogFileName)}
}

// Append writes one entry, stamping the time if unset.
func (q *QueryLog) Append(entry LogEntry) error {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal query log entry: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open query log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write query log entry: %w", err)
	}
	return nil
}

// Read returns all entries in append order. Used by status reporting and
// tests; a malformed record ends the read at the last good entry.
func (q *QueryLog) Read() ([]LogEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read query log: %w", err)
	}

	var entries []LogEntry
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e LogEntry
		if err := dec.Decode(&e); err != nil {
			break
		}
		entries = append(entries, e)
	}
	return entries, nil
}
