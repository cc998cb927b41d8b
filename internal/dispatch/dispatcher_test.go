package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeWorker scripts responses per prompt and tracks how many queries run
// at once.
type fakeWorker struct {
	mu        sync.Mutex
	calls     map[string]int
	active    int32
	maxActive int32
	delay     time.Duration
	respond   func(prompt string, call int) (string, error)
}

func newFakeWorker(respond func(prompt string, call int) (string, error)) *fakeWorker {
	return &fakeWorker{calls: map[string]int{}, respond: respond}
}

func (w *fakeWorker) Query(ctx context.Context, dir, prompt string, remainingDepth int, timeout time.Duration) (string, error) {
	n := atomic.AddInt32(&w.active, 1)
	for {
		max := atomic.LoadInt32(&w.maxActive)
		if n <= max || atomic.CompareAndSwapInt32(&w.maxActive, max, n) {
			break
		}
	}
	if w.delay > 0 {
		time.Sleep(w.delay)
	}
	atomic.AddInt32(&w.active, -1)

	w.mu.Lock()
	w.calls[prompt]++
	call := w.calls[prompt]
	w.mu.Unlock()
	return w.respond(prompt, call)
}

func (w *fakeWorker) totalCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := 0
	for _, n := range w.calls {
		total += n
	}
	return total
}

func newTestDispatcher(t *testing.T, worker Worker) *Dispatcher {
	t.Helper()
	return NewDispatcher(worker, NewLimiter(GlobalConcurrencyCap), t.TempDir())
}

func TestDispatchSuccess(t *testing.T) {
	worker := newFakeWorker(func(string, int) (string, error) {
		return "the answer", nil
	})
	d := newTestDispatcher(t, worker)

	got := d.Dispatch(context.Background(), "what is it?", 3)
	if got != "the answer" {
		t.Fatalf("response = %q", got)
	}
	if IsError(got) {
		t.Errorf("success should not be error-tagged")
	}

	entries, err := d.Log.Read()
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Status != StatusSuccess {
		t.Errorf("status = %s", e.Status)
	}
	if !strings.HasPrefix(e.QueryID, "q_") || len(e.QueryID) != 10 {
		t.Errorf("query id = %q", e.QueryID)
	}
	if e.PromptChars != len("what is it?") || e.ResponseChars != len("the answer") {
		t.Errorf("char counts wrong: %+v", e)
	}
	if e.RemainingDepth != 3 {
		t.Errorf("remaining depth = %d", e.RemainingDepth)
	}
	if e.Timestamp == "" {
		t.Errorf("timestamp missing")
	}

	// Sub-query state is deleted after extraction by default.
	if _, err := os.Stat(filepath.Join(d.SessionDir, "depth-3")); !os.IsNotExist(err) {
		t.Errorf("depth directory should be cleaned up")
	}
}

func TestDispatchDepthExceeded(t *testing.T) {
	worker := newFakeWorker(func(string, int) (string, error) {
		t.Error("worker must not be spawned at depth 0")
		return "", nil
	})
	d := newTestDispatcher(t, worker)

	got := d.Dispatch(context.Background(), "too deep", 0)
	want := "[ERROR: Recursion depth limit reached. Process without sub-queries.]"
	if got != want {
		t.Fatalf("response = %q", got)
	}
	if !IsError(got) {
		t.Errorf("depth refusal must be error-tagged")
	}

	entries, _ := d.Log.Read()
	if len(entries) != 1 || entries[0].Status != StatusDepthExceeded {
		t.Errorf("log entries = %+v", entries)
	}
}

func TestDispatchFailedExit(t *testing.T) {
	worker := newFakeWorker(func(string, int) (string, error) {
		return "", &ExitError{Code: 2, Stderr: "boom"}
	})
	d := newTestDispatcher(t, worker)

	got := d.Dispatch(context.Background(), "p", 3)
	if got != "[ERROR: Sub-agent failed with exit code 2: boom]" {
		t.Fatalf("response = %q", got)
	}
	entries, _ := d.Log.Read()
	if len(entries) != 1 || entries[0].Status != StatusFailed {
		t.Errorf("log entries = %+v", entries)
	}
}

func TestDispatchTimeout(t *testing.T) {
	worker := newFakeWorker(func(string, int) (string, error) {
		return "", &TimeoutError{Timeout: 120 * time.Second}
	})
	d := newTestDispatcher(t, worker)

	got := d.Dispatch(context.Background(), "p", 3)
	if got != "[ERROR: Sub-agent timed out after 120s]" {
		t.Fatalf("response = %q", got)
	}
	entries, _ := d.Log.Read()
	if len(entries) != 1 || entries[0].Status != StatusTimeout {
		t.Errorf("log entries = %+v", entries)
	}
}

func TestDispatchParseError(t *testing.T) {
	worker := newFakeWorker(func(string, int) (string, error) {
		return "", ErrParse
	})
	d := newTestDispatcher(t, worker)

	got := d.Dispatch(context.Background(), "p", 3)
	if got != "[ERROR: Failed to parse sub-agent response]" {
		t.Fatalf("response = %q", got)
	}
	entries, _ := d.Log.Read()
	if len(entries) != 1 || entries[0].Status != StatusParseError {
		t.Errorf("log entries = %+v", entries)
	}
}

func TestDispatchStderrTruncated(t *testing.T) {
	long := strings.Repeat("x", 1000)
	worker := newFakeWorker(func(string, int) (string, error) {
		return "", &ExitError{Code: 1, Stderr: long}
	})
	d := newTestDispatcher(t, worker)

	got := d.Dispatch(context.Background(), "p", 3)
	if !strings.Contains(got, long[:500]) || strings.Contains(got, long[:501]) {
		t.Errorf("stderr should be truncated to 500 chars: len=%d", len(got))
	}
}

func TestDispatchPreserveKeepsState(t *testing.T) {
	worker := newFakeWorker(func(string, int) (string, error) {
		return "ok", nil
	})
	d := newTestDispatcher(t, worker)
	d.Preserve = true

	d.Dispatch(context.Background(), "keep my state", 2)

	depthDir := filepath.Join(d.SessionDir, "depth-2")
	subDirs, err := os.ReadDir(depthDir)
	if err != nil || len(subDirs) != 1 {
		t.Fatalf("preserved sub-query directory missing: %v", err)
	}
	promptFile := filepath.Join(depthDir, subDirs[0].Name(), PromptFileName)
	data, err := os.ReadFile(promptFile)
	if err != nil || string(data) != "keep my state" {
		t.Errorf("prompt file = %q, %v", data, err)
	}
}

func TestParseWorkerOutput(t *testing.T) {
	output := `{"type":"turn_start"}
not json at all
{"type":"message_end","message":{"role":"user","content":[{"type":"text","text":"ignored"}]}}
{"type":"message_end","message":{"role":"assistant","content":[{"type":"text","text":"first"},{"type":"thinking","text":"skip"},{"type":"text","text":"second"}]}}
{"type":"turn_end"}`

	if got := ParseWorkerOutput(output); got != "first\nsecond" {
		t.Errorf("parsed = %q", got)
	}
	if got := ParseWorkerOutput(`{"type":"turn_start"}`); got != "" {
		t.Errorf("no assistant message should yield empty, got %q", got)
	}
	if got := ParseWorkerOutput(""); got != "" {
		t.Errorf("empty output should yield empty, got %q", got)
	}
}

func TestIsError(t *testing.T) {
	if !IsError("[ERROR: something]") {
		t.Errorf("error-tagged string not detected")
	}
	if IsError("plain response mentioning [ERROR: later]") {
		t.Errorf("prefix check must anchor at the start")
	}
}
