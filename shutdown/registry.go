package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ragmetrics/core"
)

// Cleanup priorities used by the relay. Lower runs first.
const (
	PriorityHTTP      = 10 // stop accepting requests, close streams
	PriorityCollector = 20 // stop background samplers
	PriorityArchive   = 30 // drain queued writes, close the database
	PriorityLogger    = 90 // flush logs last
)

type shutdownEntry struct {
	name     string
	fn       core.ShutdownFunc
	priority int
}

// ShutdownRegistry is an ordered, thread-safe set of cleanup handlers.
type ShutdownRegistry struct {
	mu      sync.Mutex
	entries []shutdownEntry
	closed  bool
}

// NewShutdownRegistry creates an empty registry.
func NewShutdownRegistry() *ShutdownRegistry {
	return &ShutdownRegistry{}
}

// Register adds fn. Handlers with equal priority run in registration order.
// Registering after Shutdown is a no-op.
func (r *ShutdownRegistry) Register(name string, priority int, fn core.ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.entries = append(r.entries, shutdownEntry{name: name, fn: fn, priority: priority})
}

// sortedLocked returns a priority-ordered copy of the entries.
func (r *ShutdownRegistry) sortedLocked() []shutdownEntry {
	sorted := make([]shutdownEntry, len(r.entries))
	copy(sorted, r.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})
	return sorted
}

// Shutdown runs every handler in priority order, even after failures, and
// returns their errors prefixed with the handler name. Only the first call
// runs anything.
func (r *ShutdownRegistry) Shutdown(ctx context.Context) []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := r.sortedLocked()
	r.mu.Unlock()

	var errs []error
	for _, entry := range sorted {
		if err := entry.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
		}
	}
	return errs
}

// Names returns handler names in execution order.
func (r *ShutdownRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := r.sortedLocked()
	names := make([]string, len(sorted))
	for i, entry := range sorted {
		names[i] = entry.name
	}
	return names
}

// Count returns the number of registered handlers.
func (r *ShutdownRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
