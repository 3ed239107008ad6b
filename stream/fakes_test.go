package stream

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"ragmetrics/metrics"
)

// fakeScheduler records timers; tests fire them by hand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	s         *fakeScheduler
	delay     time.Duration
	fn        func()
	fired     bool
	cancelled bool
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, delay: d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (t *fakeTimer) Cancel() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.fired || t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

func (t *fakeTimer) isCancelled() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.cancelled
}

func (s *fakeScheduler) pending() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.fired && !t.cancelled {
			out = append(out, t)
		}
	}
	return out
}

func (s *fakeScheduler) all() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeTimer(nil), s.timers...)
}

// fireNext runs the oldest pending timer and reports whether there was one.
func (s *fakeScheduler) fireNext() bool {
	s.mu.Lock()
	var next *fakeTimer
	for _, t := range s.timers {
		if !t.fired && !t.cancelled {
			next = t
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	s.mu.Unlock()

	if next == nil {
		return false
	}
	next.fn()
	return true
}

// fakeConn delivers queued frames until closed or failed.
type fakeConn struct {
	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
	failErr   chan error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames:  make(chan []byte, 16),
		done:    make(chan struct{}),
		failErr: make(chan error, 1),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.frames:
		return 1, data, nil
	case err := <-c.failErr:
		return 0, nil, err
	case <-c.done:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) send(t *testing.T, msg metrics.Message) {
	t.Helper()
	data, err := metrics.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage() error = %v", err)
	}
	c.frames <- data
}

// fakeDialer answers each dial with the next scripted result; once the
// script runs out it repeats the last entry.
type fakeDialer struct {
	mu      sync.Mutex
	script  []dialResult
	dials   int
	urls    []string
	headers []http.Header
}

type dialResult struct {
	conn *fakeConn
	err  error
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	d.urls = append(d.urls, url)
	d.headers = append(d.headers, header.Clone())

	if len(d.script) == 0 {
		return nil, errors.New("connection refused")
	}
	result := d.script[0]
	if len(d.script) > 1 {
		d.script = d.script[1:]
	}
	if result.err != nil {
		return nil, result.err
	}
	return result.conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func snapshotAt(sec int, cpu float64) metrics.MetricsSnapshot {
	return metrics.MetricsSnapshot{
		Timestamp: time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC),
		System:    metrics.SystemMetrics{CPUPercent: cpu},
	}
}
