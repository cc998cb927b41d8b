package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T, worker Worker, limiterCap int) *Scheduler {
	t.Helper()
	d := NewDispatcher(worker, NewLimiter(limiterCap), t.TempDir())
	s := NewScheduler(d)
	s.Backoff = time.Millisecond
	return s
}

func TestRunBatchPreservesInputOrder(t *testing.T) {
	// Earlier prompts finish last; ordering must not depend on timing.
	worker := newFakeWorker(func(prompt string, _ int) (string, error) {
		if prompt == "p0" {
			time.Sleep(50 * time.Millisecond)
		}
		return "answer to " + prompt, nil
	})
	s := newTestScheduler(t, worker, GlobalConcurrencyCap)

	prompts := []string{"p0", "p1", "p2", "p3"}
	results, failures := s.RunBatch(context.Background(), prompts, 3, 4, 0)

	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	for i, p := range prompts {
		if results[i] != "answer to "+p {
			t.Errorf("results[%d] = %q", i, results[i])
		}
	}
}

func TestRunBatchRespectsGlobalCap(t *testing.T) {
	worker := newFakeWorker(func(string, int) (string, error) {
		return "ok", nil
	})
	worker.delay = 10 * time.Millisecond
	s := newTestScheduler(t, worker, 3)

	prompts := make([]string, 20)
	for i := range prompts {
		prompts[i] = fmt.Sprintf("prompt-%d", i)
	}
	// Requested concurrency above the cap must be clamped.
	s.RunBatch(context.Background(), prompts, 3, 10, 0)

	if worker.maxActive > 3 {
		t.Errorf("observed %d concurrent workers, cap is 3", worker.maxActive)
	}
	if worker.totalCalls() != 20 {
		t.Errorf("every prompt must run once, got %d calls", worker.totalCalls())
	}
}

func TestBatchAndSingleDispatchShareCap(t *testing.T) {
	// One limiter backs both paths: a batch run and single dispatches fired
	// alongside it must never exceed the cap combined.
	worker := newFakeWorker(func(string, int) (string, error) {
		return "ok", nil
	})
	worker.delay = 10 * time.Millisecond
	s := newTestScheduler(t, worker, 2)

	prompts := make([]string, 10)
	for i := range prompts {
		prompts[i] = fmt.Sprintf("batch-%d", i)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.RunBatch(context.Background(), prompts, 3, 10, 0)
	}()
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Dispatcher.Dispatch(context.Background(), fmt.Sprintf("single-%d", i), 3)
		}(i)
	}
	wg.Wait()

	if worker.maxActive > 2 {
		t.Errorf("observed %d concurrent workers across batch and single paths, cap is 2", worker.maxActive)
	}
	if worker.totalCalls() != 15 {
		t.Errorf("expected 15 calls total, got %d", worker.totalCalls())
	}
}

func TestRunBatchRetryThenSuccess(t *testing.T) {
	worker := newFakeWorker(func(prompt string, call int) (string, error) {
		if prompt == "flaky" && call <= 2 {
			return "", &ExitError{Code: 1, Stderr: "transient"}
		}
		return "recovered", nil
	})
	s := newTestScheduler(t, worker, GlobalConcurrencyCap)

	results, failures := s.RunBatch(context.Background(), []string{"flaky"}, 3, 1, 3)

	if results[0] != "recovered" {
		t.Errorf("results[0] = %q", results[0])
	}
	if len(failures) != 0 {
		t.Errorf("recovered prompt must not appear in failures: %+v", failures)
	}

	entries, _ := s.Dispatcher.Log.Read()
	if len(entries) != 3 {
		t.Fatalf("every attempt must be logged, got %d entries", len(entries))
	}
	batchID := entries[0].BatchID
	if batchID == "" || !strings.HasPrefix(batchID, "b_") {
		t.Errorf("batch id = %q", batchID)
	}
	for i, e := range entries {
		if e.BatchID != batchID {
			t.Errorf("attempts must share one batch id")
		}
		if e.Attempt != i+1 {
			t.Errorf("entry %d attempt = %d", i, e.Attempt)
		}
		if e.BatchIndex == nil || *e.BatchIndex != 0 {
			t.Errorf("entry %d batch index = %v", i, e.BatchIndex)
		}
	}
}

func TestRunBatchExhaustedRetries(t *testing.T) {
	worker := newFakeWorker(func(prompt string, _ int) (string, error) {
		if prompt == "doomed" {
			return "", &ExitError{Code: 1, Stderr: "always"}
		}
		return "fine", nil
	})
	s := newTestScheduler(t, worker, GlobalConcurrencyCap)

	prompts := []string{"a", "doomed", "c"}
	results, failures := s.RunBatch(context.Background(), prompts, 3, 3, 1)

	if results[0] != "fine" || results[2] != "fine" {
		t.Errorf("healthy prompts affected: %v", results)
	}
	if !IsError(results[1]) {
		t.Errorf("failed prompt must keep its error-tagged response: %q", results[1])
	}

	f, ok := failures[1]
	if !ok {
		t.Fatalf("failures missing index 1: %+v", failures)
	}
	if f.Reason != "max_retries_exhausted" {
		t.Errorf("reason = %q", f.Reason)
	}
	if f.Attempts != 2 {
		t.Errorf("attempts = %d, want initial call plus one retry", f.Attempts)
	}
	if !IsError(f.LastError) {
		t.Errorf("last error = %q", f.LastError)
	}
	if len(failures) != 1 {
		t.Errorf("only the doomed prompt may fail: %+v", failures)
	}
}

func TestRunBatchDepthExceededIsRecoverable(t *testing.T) {
	worker := newFakeWorker(func(string, int) (string, error) {
		t.Error("no worker may spawn at depth 0")
		return "", nil
	})
	s := newTestScheduler(t, worker, GlobalConcurrencyCap)

	results, failures := s.RunBatch(context.Background(), []string{"p"}, 0, 1, 0)

	if !IsError(results[0]) {
		t.Errorf("results[0] = %q", results[0])
	}
	if _, ok := failures[0]; !ok {
		t.Errorf("depth refusal without retries should land in failures")
	}
}

func TestRunBatchEmpty(t *testing.T) {
	worker := newFakeWorker(func(string, int) (string, error) { return "x", nil })
	s := newTestScheduler(t, worker, GlobalConcurrencyCap)

	results, failures := s.RunBatch(context.Background(), nil, 3, 5, 2)
	if len(results) != 0 || len(failures) != 0 {
		t.Errorf("empty batch must be a no-op: %v %v", results, failures)
	}
}
