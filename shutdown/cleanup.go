package shutdown

import (
	"context"
	"errors"
	"io"
	"syscall"

	"ragmetrics/core"
)

// Closer adapts an io.Closer to a cleanup handler.
func Closer(c io.Closer) core.ShutdownFunc {
	return func(ctx context.Context) error {
		return c.Close()
	}
}

// Syncer is implemented by loggers that buffer output.
type Syncer interface {
	Sync() error
}

// SyncLogger flushes a logger. Sync on a terminal's stdout or stderr fails
// with EINVAL or ENOTTY on some platforms; those errors are ignored.
func SyncLogger(s Syncer) core.ShutdownFunc {
	return func(ctx context.Context) error {
		err := s.Sync()
		if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
			return nil
		}
		return err
	}
}
