// Package shutdown coordinates graceful shutdown of the metrics relay:
// signal handling, in-flight request tracking and ordered cleanup.
package shutdown

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrWaitTimeout is returned when Wait times out before all operations complete.
var ErrWaitTimeout = errors.New("wait timeout: operations did not complete in time")

// OperationTracker counts in-flight operations and lets shutdown wait for
// them once new ones are refused.
type OperationTracker struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	active atomic.Int64
	closed bool
}

// NewOperationTracker creates an open tracker.
func NewOperationTracker() *OperationTracker {
	return &OperationTracker{}
}

// Start registers an operation. It returns false once the tracker is closed;
// otherwise the caller must call Done.
func (t *OperationTracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	t.wg.Add(1)
	t.active.Add(1)
	return true
}

// Done marks an operation as complete.
func (t *OperationTracker) Done() {
	t.active.Add(-1)
	t.wg.Done()
}

// Wait blocks until every operation is done or timeout passes.
func (t *OperationTracker) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrWaitTimeout
	}
}

// Close refuses new operations; running ones continue.
func (t *OperationTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// ActiveCount returns the current number of active operations.
func (t *OperationTracker) ActiveCount() int64 {
	return t.active.Load()
}
