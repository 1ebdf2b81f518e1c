package cluster

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestScanWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := newScanWorkerPool(2)

	var active atomic.Int32
	var maxActive atomic.Int32
	release := make(chan struct{})
	errs := make(chan error, 5)

	for i := 0; i < 5; i++ {
		go func() {
			errs <- pool.run(context.Background(), func() error {
				n := active.Add(1)
				for {
					old := maxActive.Load()
					if n <= old || maxActive.CompareAndSwap(old, n) {
						break
					}
				}
				<-release
				active.Add(-1)
				return nil
			})
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	for i := 0; i < 5; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("run: %v", err)
		}
	}

	if got := maxActive.Load(); got > 2 {
		t.Fatalf("max concurrent workers = %d, want <= 2", got)
	}
}
