package db

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultChannelCapacity is the default buffer size for async write channels.
const DefaultChannelCapacity = 100

// DefaultDrainTimeout is the maximum time to wait for pending writes during shutdown.
const DefaultDrainTimeout = 30 * time.Second

// WriteHandler persists one queued item. Its error goes to the writer's
// OnError hook; the item is not retried.
type WriteHandler[T any] func(ctx context.Context, item T) error

// AsyncWriter moves writes off the caller's goroutine through a buffered
// channel drained by one background goroutine. When the buffer is full the
// write is dropped and counted.
type AsyncWriter[T any] struct {
	writeChan chan T
	handler   WriteHandler[T]
	onError   func(item T, err error)
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	mu        sync.Mutex

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// AsyncWriterConfig holds configuration for the async writer.
type AsyncWriterConfig[T any] struct {
	// ChannelCapacity is the buffer size for pending writes
	ChannelCapacity int
	// OnError is called for each failed handler call (optional)
	OnError func(item T, err error)
}

// NewAsyncWriter creates a writer; call Start before writing.
func NewAsyncWriter[T any](handler WriteHandler[T], config AsyncWriterConfig[T]) *AsyncWriter[T] {
	if config.ChannelCapacity <= 0 {
		config.ChannelCapacity = DefaultChannelCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncWriter[T]{
		writeChan: make(chan T, config.ChannelCapacity),
		handler:   handler,
		onError:   config.OnError,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the background goroutine. Calling it again is a no-op.
func (w *AsyncWriter[T]) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.processWrites()
}

func (w *AsyncWriter[T]) processWrites() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			w.drainChannel()
			return
		case item := <-w.writeChan:
			w.handle(item)
		}
	}
}

// drainChannel processes what is still buffered at shutdown.
func (w *AsyncWriter[T]) drainChannel() {
	for {
		select {
		case item := <-w.writeChan:
			w.handle(item)
		default:
			return
		}
	}
}

func (w *AsyncWriter[T]) handle(item T) {
	// The writer's own context is already cancelled while draining
	if err := w.handler(context.Background(), item); err != nil {
		w.failed.Add(1)
		if w.onError != nil {
			w.onError(item, err)
		}
		return
	}
	w.written.Add(1)
}

// Write queues item without blocking. It returns false, and counts a drop,
// when the buffer is full or the writer is stopping.
func (w *AsyncWriter[T]) Write(item T) bool {
	if w.ctx.Err() != nil {
		w.dropped.Add(1)
		return false
	}
	select {
	case w.writeChan <- item:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Pending returns the number of queued items.
func (w *AsyncWriter[T]) Pending() int {
	return len(w.writeChan)
}

// Stats returns the written, dropped and failed counters.
func (w *AsyncWriter[T]) Stats() (written, dropped, failed int64) {
	return w.written.Load(), w.dropped.Load(), w.failed.Load()
}

// Stop drains the buffer and waits for the background goroutine, up to
// timeout. It returns false if the drain did not finish in time.
func (w *AsyncWriter[T]) Stop(timeout time.Duration) bool {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// IsStarted returns whether the background processor is running.
func (w *AsyncWriter[T]) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}
