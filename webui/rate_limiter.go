package webui

import (
	"context"
	"sync"
	"time"
)

// RateLimiter tracks failed access-token attempts per client address and
// blocks an address after too many failures inside a window.
type RateLimiter struct {
	mu            sync.RWMutex
	attempts      map[string]attemptRecord
	maxAttempts   int
	window        time.Duration
	blockDuration time.Duration
	now           func() time.Time
}

// attemptRecord counts failures until resetAt.
type attemptRecord struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a RateLimiter allowing maxAttempts failures per
// window, then blocking for blockDuration.
func NewRateLimiter(maxAttempts int, window, blockDuration time.Duration) *RateLimiter {
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	return &RateLimiter{
		attempts:      make(map[string]attemptRecord),
		maxAttempts:   maxAttempts,
		window:        window,
		blockDuration: blockDuration,
		now:           time.Now,
	}
}

// Allow reports whether key may attempt authentication, and if not, how long
// until the block expires.
func (r *RateLimiter) Allow(key string) (bool, time.Duration) {
	r.mu.RLock()
	record, exists := r.attempts[key]
	r.mu.RUnlock()

	now := r.now()
	if !exists || !now.Before(record.resetAt) {
		return true, 0
	}
	if record.count >= r.maxAttempts {
		return false, record.resetAt.Sub(now)
	}
	return true, 0
}

// RecordFailure counts one failed attempt for key. Reaching the limit
// extends the record to the block duration.
func (r *RateLimiter) RecordFailure(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	record, exists := r.attempts[key]
	if !exists || !now.Before(record.resetAt) {
		record = attemptRecord{resetAt: now.Add(r.window)}
	}

	record.count++
	if record.count == r.maxAttempts {
		record.resetAt = now.Add(r.blockDuration)
	}
	r.attempts[key] = record
}

// Reset clears the record for key after a successful attempt.
func (r *RateLimiter) Reset(key string) {
	r.mu.Lock()
	delete(r.attempts, key)
	r.mu.Unlock()
}

// Cleanup removes expired records and returns how many were removed.
func (r *RateLimiter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for key, record := range r.attempts {
		if !now.Before(record.resetAt) {
			delete(r.attempts, key)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker runs Cleanup every interval until ctx is cancelled.
func (r *RateLimiter) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}

// Count returns the number of tracked keys.
func (r *RateLimiter) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.attempts)
}
