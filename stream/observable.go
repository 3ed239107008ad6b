package stream

import "sync"

// Readable is the subscriber side of a Value.
type Readable[T any] interface {
	Get() T
	Subscribe(fn func(T)) (unsubscribe func())
}

// Value is a thread-safe value that notifies subscribers on every Set.
// Subscribers run in subscription order, outside the lock. Updates are
// delivered in the order they were stored; an update made while another
// goroutine is delivering is handed to that goroutine.
type Value[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64
	subs    []subscription[T]
	nextID  int
	closed  bool

	// Updates waiting for delivery, drained by one goroutine at a time so
	// subscribers see them in the order they were stored.
	pending   []T
	notifying bool
}

type subscription[T any] struct {
	id int
	fn func(T)
}

// NewValue creates a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{value: initial}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set stores value and notifies subscribers. Set after Close only stores.
func (v *Value[T]) Set(value T) {
	v.mu.Lock()
	v.update(v.version+1, value)
}

// Publish is Set for values stamped by their producer. A version that is not
// newer than the stored one is dropped and Publish returns false.
func (v *Value[T]) Publish(version uint64, value T) bool {
	v.mu.Lock()
	if version <= v.version {
		v.mu.Unlock()
		return false
	}
	v.update(version, value)
	return true
}

// update is called with mu held and returns with it released.
func (v *Value[T]) update(version uint64, value T) {
	v.version = version
	v.value = value
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.pending = append(v.pending, value)
	if v.notifying {
		v.mu.Unlock()
		return
	}

	v.notifying = true
	for len(v.pending) > 0 {
		next := v.pending[0]
		v.pending = v.pending[1:]
		subs := make([]subscription[T], len(v.subs))
		copy(subs, v.subs)
		v.mu.Unlock()

		for _, sub := range subs {
			sub.fn(next)
		}
		v.mu.Lock()
	}
	v.pending = nil
	v.notifying = false
	v.mu.Unlock()
}

// Subscribe registers fn for future updates. The current value is not
// replayed; call Get for it. Subscribing to a closed Value is a no-op.
func (v *Value[T]) Subscribe(fn func(T)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed || fn == nil {
		return func() {}
	}
	id := v.nextID
	v.nextID++
	v.subs = append(v.subs, subscription[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { v.unsubscribe(id) })
	}
}

func (v *Value[T]) unsubscribe(id int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, sub := range v.subs {
		if sub.id == id {
			v.subs = append(v.subs[:i:i], v.subs[i+1:]...)
			return
		}
	}
}

// Close drops every subscriber.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.subs = nil
	v.pending = nil
	v.closed = true
}
