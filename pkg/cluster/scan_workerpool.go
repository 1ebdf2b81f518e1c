package cluster

import (
	"context"
	"math"

	"golang.org/x/sync/semaphore"
)

// scanWorkerPool bounds how many per-node scan workers run at once. It is
// grounded on the semaphore-gated worker pattern used elsewhere in the
// example pack for bounding concurrent outstanding operations
// (golang.org/x/sync/semaphore); here it gates scan fan-out instead of
// connection acquisition.
type scanWorkerPool struct {
	sem *semaphore.Weighted
}

func newScanWorkerPool(size int) *scanWorkerPool {
	if size <= 0 {
		size = math.MaxInt32
	}
	return &scanWorkerPool{sem: semaphore.NewWeighted(int64(size))}
}

// run blocks until a slot is free, runs fn, then frees the slot. The caller
// is expected to invoke run from within its own goroutine (e.g. one an
// errgroup.Group launched), so run itself does not spawn anything.
func (p *scanWorkerPool) run(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
