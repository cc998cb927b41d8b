package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrorPrefix tags every failure response. Callers branch on this prefix
// instead of handling raised errors; a worker failure is a recoverable
// outcome, not a crash.
const ErrorPrefix = "[ERROR:"

// IsError reports whether a dispatch response is an error-tagged string.
func IsError(response string) bool {
	return strings.HasPrefix(response, ErrorPrefix)
}

// Terminal statuses recorded in the query log.
const (
	StatusSuccess       = "success"
	StatusFailed        = "failed"
	StatusParseError    = "parse_error"
	StatusTimeout       = "timeout"
	StatusException     = "exception"
	StatusDepthExceeded = "depth_exceeded"
)

// Dispatcher runs single sub-queries: one isolated worker invocation per
// call, gated on the remaining depth budget and the shared limiter, with
// every outcome appended to the query log.
type Dispatcher struct {
	Worker     Worker
	Limiter    *Limiter
	Log        *QueryLog
	SessionDir string
	Timeout    time.Duration
	// Preserve keeps each sub-query's state directory after completion
	// instead of deleting it.
	Preserve bool
}

// NewDispatcher wires a dispatcher for a session directory. limiter is
// shared with any batch scheduler in the process.
func NewDispatcher(worker Worker, limiter *Limiter, sessionDir string) *Dispatcher {
	return &Dispatcher{
		Worker:     worker,
		Limiter:    limiter,
		Log:        NewQueryLog(sessionDir),
		SessionDir: sessionDir,
		Timeout:    DefaultWorkerTimeout,
	}
}

// batchRef correlates a dispatch with the batch attempt that issued it.
// Zero value means a standalone call.
type batchRef struct {
	id      string
	index   int
	attempt int
}

// Dispatch sends one prompt to a worker and returns its answer text. All
// failures come back as error-tagged strings; the returned error is
// reserved for log-write problems.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt string, remainingDepth int) string {
	return d.dispatch(ctx, prompt, remainingDepth, batchRef{})
}

func (d *Dispatcher) dispatch(ctx context.Context, prompt string, remainingDepth int, ref batchRef) string {
	queryID := newQueryID()
	start := time.Now()

	// remaining_depth doubles as the directory level so nested calls
	// land in distinct depth-N trees.
	depthLevel := remainingDepth
	subDir := filepath.Join(d.SessionDir, fmt.Sprintf("depth-%d", depthLevel), queryID)
	if err := os.MkdirAll(subDir, 0755); err != nil {
		response := fmt.Sprintf("%s Sub-agent exception: %s]", ErrorPrefix, truncate(err.Error(), 200))
		d.logOutcome(queryID, depthLevel, remainingDepth, prompt, subDir, response, StatusException, start, ref)
		return response
	}

	// Depth gate: refuse before spawning anything.
	if remainingDepth <= 0 {
		response := "[ERROR: Recursion depth limit reached. Process without sub-queries.]"
		d.logOutcome(queryID, depthLevel, remainingDepth, prompt, subDir, response, StatusDepthExceeded, start, ref)
		d.cleanup(subDir)
		return response
	}

	var response string
	status := StatusSuccess

	if _, err := WritePrompt(subDir, prompt); err != nil {
		response = fmt.Sprintf("%s Sub-agent exception: %s]", ErrorPrefix, truncate(err.Error(), 200))
		status = StatusException
	} else if err := d.Limiter.Acquire(ctx); err != nil {
		response = fmt.Sprintf("%s Sub-agent exception: %s]", ErrorPrefix, truncate(err.Error(), 200))
		status = StatusException
	} else {
		timeout := d.Timeout
		if timeout <= 0 {
			timeout = DefaultWorkerTimeout
		}
		text, err := d.Worker.Query(ctx, subDir, prompt, remainingDepth, timeout)
		d.Limiter.Release()
		response, status = classify(text, err, timeout)
	}

	d.logOutcome(queryID, depthLevel, remainingDepth, prompt, subDir, response, status, start, ref)
	d.cleanup(subDir)
	return response
}

// classify maps a worker result onto the error-string protocol.
func classify(text string, err error, timeout time.Duration) (string, string) {
	if err == nil {
		return text, StatusSuccess
	}

	var timeoutErr *TimeoutError
	var exitErr *ExitError
	switch {
	case errors.As(err, &timeoutErr):
		return fmt.Sprintf("%s Sub-agent timed out after %ds]", ErrorPrefix, int(timeout.Seconds())), StatusTimeout
	case errors.As(err, &exitErr):
		stderr := exitErr.Stderr
		if stderr == "" {
			stderr = "Unknown error"
		}
		return fmt.Sprintf("%s Sub-agent failed with exit code %d: %s]",
			ErrorPrefix, exitErr.Code, truncate(stderr, 500)), StatusFailed
	case errors.Is(err, ErrParse):
		return "[ERROR: Failed to parse sub-agent response]", StatusParseError
	default:
		return fmt.Sprintf("%s Sub-agent exception: %s]", ErrorPrefix, truncate(err.Error(), 200)), StatusException
	}
}

func (d *Dispatcher) logOutcome(queryID string, depthLevel, remainingDepth int, prompt, subDir, response, status string, start time.Time, ref batchRef) {
	entry := LogEntry{
		QueryID:         queryID,
		DepthLevel:      depthLevel,
		RemainingDepth:  remainingDepth,
		PromptPreview:   truncate(prompt, 200),
		PromptChars:     len(prompt),
		SubStateDir:     subDir,
		ResponsePreview: truncate(response, 200),
		ResponseChars:   len(response),
		DurationMS:      time.Since(start).Milliseconds(),
		Status:          status,
		Cleanup:         !d.Preserve,
	}
	if ref.id != "" {
		entry.BatchID = ref.id
		idx := ref.index
		entry.BatchIndex = &idx
		entry.Attempt = ref.attempt
	}
	// Log failures are not worth failing the dispatch over.
	_ = d.Log.Append(entry)
}

// cleanup removes the sub-query directory, and its depth directory when
// that became empty.
func (d *Dispatcher) cleanup(subDir string) {
	if d.Preserve {
		return
	}
	_ = os.RemoveAll(subDir)

	depthDir := filepath.Dir(subDir)
	entries, err := os.ReadDir(depthDir)
	if err == nil && len(entries) == 0 {
		_ = os.Remove(depthDir)
	}
}

func newQueryID() string {
	return "q_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
