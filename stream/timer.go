package stream

import (
	"sync"
	"time"
)

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Cancel prevents the callback from running. It returns false if the
	// callback already started or the timer was already cancelled.
	Cancel() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// RealScheduler schedules on the runtime timer.
type RealScheduler struct{}

// AfterFunc schedules fn to run in its own goroutine after d.
func (RealScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	t := &realTimer{}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = time.AfterFunc(d, func() {
		if t.claim() {
			fn()
		}
	})
	return t
}

type realTimer struct {
	mu        sync.Mutex
	timer     *time.Timer
	fired     bool
	cancelled bool
}

// claim marks the timer fired unless it was cancelled first.
func (t *realTimer) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	t.fired = true
	return true
}

func (t *realTimer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.cancelled {
		return false
	}
	t.cancelled = true
	t.timer.Stop()
	return true
}
