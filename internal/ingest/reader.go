// Package ingest loads source content into sessions: single files with a
// byte cap and lossy decoding, whole directories concatenated into one
// corpus, and a watcher that flags stale sessions when sources change.
package ingest

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// DefaultMaxOutputChars clamps text surfaced back to the caller.
const DefaultMaxOutputChars = 8000

// ReadTextFile reads at most maxBytes from a file (the whole file when
// maxBytes <= 0) and decodes it as UTF-8, replacing invalid sequences
// instead of failing. Binary-ish context files still produce a usable
// string.
func ReadTextFile(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("context file does not exist: %s", path)
		}
		return "", fmt.Errorf("failed to open context file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read context file: %w", err)
	}

	if utf8.Valid(data) {
		return string(data), nil
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// Truncate clamps text for display, appending a marker naming the cut.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if len(s) <= maxChars {
		return s
	}
	return s[:maxChars] + fmt.Sprintf("\n... [truncated to %d chars] ...\n", maxChars)
}
