package stream

import "time"

const (
	// MaxAttempts is the default number of automatic reconnects after a
	// connection is lost.
	MaxAttempts = 5

	// BaseDelay is the delay before the first reconnect.
	BaseDelay = time.Second

	// MaxDelay caps the reconnect delay.
	MaxDelay = 10 * time.Second
)

// Backoff returns the delay before reconnect attempt k (0-indexed):
// min(BaseDelay * 2^k, MaxDelay).
func Backoff(k int) time.Duration {
	if k < 0 {
		k = 0
	}
	delay := BaseDelay
	for i := 0; i < k; i++ {
		delay *= 2
		if delay >= MaxDelay {
			return MaxDelay
		}
	}
	return delay
}
