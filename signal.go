package growpipe

import (
	"context"
	"math"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// availability is a counting signal: one permit per byte written and not yet
// claimed by a reader. It is independent of the pipe's mutex.
type availability struct {
	sem   *semaphore.Weighted
	count atomic.Int64
}

func newAvailability() *availability {
	sem := semaphore.NewWeighted(math.MaxInt64)
	// hold every permit so that the free count starts at zero
	sem.TryAcquire(math.MaxInt64)
	return &availability{sem: sem}
}

// signal announces one more available byte and wakes at most one waiter.
func (a *availability) signal() {
	a.count.Add(1)
	a.sem.Release(1)
}

// wait blocks until a byte is available and claims it. If ctx is done first
// the count is left untouched and the context error is returned.
func (a *availability) wait(ctx context.Context) error {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	a.count.Add(-1)
	return nil
}

// tryWait claims a byte without blocking.
func (a *availability) tryWait() bool {
	if !a.sem.TryAcquire(1) {
		return false
	}
	a.count.Add(-1)
	return true
}

func (a *availability) pending() int64 {
	return a.count.Load()
}
