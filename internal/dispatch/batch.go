package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBackoff is the delay before the first retry; it doubles on each
// subsequent retry (1s, 2s, 4s, ...).
const DefaultBackoff = time.Second

// Failure describes one prompt that never produced a non-error response.
type Failure struct {
	Reason    string `json:"reason"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error"`
}

// Scheduler runs batches of independent prompts through a Dispatcher with
// bounded parallelism and retry. The dispatcher's limiter is the hard
// process-wide cap; the per-batch concurrency argument can only narrow it.
type Scheduler struct {
	Dispatcher *Dispatcher
	Backoff    time.Duration
}

// NewScheduler wraps a dispatcher with the default backoff.
func NewScheduler(d *Dispatcher) *Scheduler {
	return &Scheduler{Dispatcher: d, Backoff: DefaultBackoff}
}

// RunBatch dispatches every prompt and returns results in input order:
// results[i] always answers prompts[i], no matter the completion order.
// An error-tagged response is retried up to maxRetries times with doubling
// delay; prompts that never succeed keep their last error-tagged response
// in results and gain a failures entry keyed by input index. Every attempt
// is logged with a shared batch id.
func (s *Scheduler) RunBatch(ctx context.Context, prompts []string, remainingDepth, concurrency, maxRetries int) ([]string, map[int]Failure) {
	results := make([]string, len(prompts))
	failures := make(map[int]Failure)
	if len(prompts) == 0 {
		return results, failures
	}

	globalCap := s.Dispatcher.Limiter.Cap()
	if concurrency < 1 || concurrency > globalCap {
		concurrency = globalCap
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	batchID := "b_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for i, prompt := range prompts {
		wg.Add(1)
		go func(index int, prompt string) {
			defer wg.Done()

			var response string
			attempts := 0
			delay := backoff
			for attempt := 1; attempt <= maxRetries+1; attempt++ {
				sem <- struct{}{}
				response = s.Dispatcher.dispatch(ctx, prompt, remainingDepth, batchRef{
					id:      batchID,
					index:   index,
					attempt: attempt,
				})
				<-sem
				attempts = attempt

				if !IsError(response) {
					break
				}
				if attempt > maxRetries {
					break
				}
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					attempt = maxRetries + 1
				}
				delay *= 2
			}

			mu.Lock()
			results[index] = response
			if IsError(response) {
				failures[index] = Failure{
					Reason:    "max_retries_exhausted",
					Attempts:  attempts,
					LastError: response,
				}
			}
			mu.Unlock()
		}(i, prompt)
	}

	wg.Wait()
	return results, failures
}
