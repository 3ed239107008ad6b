package shutdown

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
)

type fakeCloser struct{ closed int }

func (f *fakeCloser) Close() error {
	f.closed++
	return nil
}

type fakeSyncer struct{ err error }

func (f fakeSyncer) Sync() error { return f.err }

func TestCloser(t *testing.T) {
	c := &fakeCloser{}
	if err := Closer(c)(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.closed != 1 {
		t.Errorf("expected Close once, got %d", c.closed)
	}
}

func TestSyncLogger(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"ok", nil, false},
		{"einval ignored", fmt.Errorf("sync /dev/stderr: %w", syscall.EINVAL), false},
		{"enotty ignored", syscall.ENOTTY, false},
		{"real failure", errors.New("disk gone"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SyncLogger(fakeSyncer{err: tt.err})(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("wantErr=%v, got %v", tt.wantErr, err)
			}
		})
	}
}
