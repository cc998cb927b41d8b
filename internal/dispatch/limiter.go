// Package dispatch spawns external reasoning workers for sub-queries,
// enforcing the recursion depth budget and a process-wide concurrency cap,
// and logging every invocation to the session's query log.
package dispatch

import "context"

// GlobalConcurrencyCap bounds concurrent worker spawns across every caller
// in the process, single dispatches and batches combined.
const GlobalConcurrencyCap = 5

// Limiter is a counting semaphore shared by all dispatch paths. Construct
// one per process and inject it; batches and single calls drawing from the
// same Limiter can never together exceed its capacity.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter builds a limiter with the given capacity. Capacity values
// below 1 fall back to GlobalConcurrencyCap.
func NewLimiter(capacity int) *Limiter {
	if capacity < 1 {
		capacity = GlobalConcurrencyCap
	}
	return &Limiter{slots: make(chan struct{}, capacity)}
}

// Cap returns the limiter's capacity.
func (l *Limiter) Cap() int {
	return cap(l.slots)
}

// Acquire blocks until a slot is free or the context ends.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	<-l.slots
}
