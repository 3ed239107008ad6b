package stream

import "sync"

// RollingSeries is a thread-safe, fixed-size ring buffer. Once full, each Push
// evicts the oldest value.
type RollingSeries[T any] struct {
	mu       sync.RWMutex
	data     []T
	capacity int
	size     int
	head     int // next write position
	tail     int // oldest value
}

// NewRollingSeries creates a series holding at most capacity values.
// Panics if capacity is less than 1.
func NewRollingSeries[T any](capacity int) *RollingSeries[T] {
	if capacity < 1 {
		panic("RollingSeries capacity must be at least 1")
	}
	return &RollingSeries[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends v, evicting the oldest value when the series is full.
func (s *RollingSeries[T]) Push(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[s.head] = v
	s.head = (s.head + 1) % s.capacity

	if s.size < s.capacity {
		s.size++
	} else {
		s.tail = (s.tail + 1) % s.capacity
	}
}

// Values returns a copy of every value, oldest first.
func (s *RollingSeries[T]) Values() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastLocked(s.size)
}

// LastN returns up to n of the most recent values, oldest first.
func (s *RollingSeries[T]) LastN(n int) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > s.size {
		n = s.size
	}
	return s.lastLocked(n)
}

func (s *RollingSeries[T]) lastLocked(n int) []T {
	if n <= 0 {
		return []T{}
	}
	out := make([]T, n)
	start := s.size - n
	for i := 0; i < n; i++ {
		out[i] = s.data[(s.tail+start+i)%s.capacity]
	}
	return out
}

// Latest returns the most recent value.
func (s *RollingSeries[T]) Latest() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero T
	if s.size == 0 {
		return zero, false
	}
	return s.data[(s.head-1+s.capacity)%s.capacity], true
}

// Len returns the number of values held.
func (s *RollingSeries[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Cap returns the maximum number of values held.
func (s *RollingSeries[T]) Cap() int {
	return s.capacity
}

// Clear removes every value.
func (s *RollingSeries[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	for i := range s.data {
		s.data[i] = zero
	}
	s.size = 0
	s.head = 0
	s.tail = 0
}
