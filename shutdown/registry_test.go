package shutdown

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestShutdownRegistry_StablePriorityOrder(t *testing.T) {
	r := NewShutdownRegistry()
	var order []string
	add := func(name string, priority int) {
		r.Register(name, priority, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	add("c", 20)
	add("a", 10)
	add("b", 10)

	if errs := r.Shutdown(context.Background()); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	want := "a,b,c"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestShutdownRegistry_ErrorsNameTheHandler(t *testing.T) {
	r := NewShutdownRegistry()
	sentinel := errors.New("disk full")
	r.Register("archive", PriorityArchive, func(ctx context.Context) error { return sentinel })

	errs := r.Shutdown(context.Background())
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if !errors.Is(errs[0], sentinel) {
		t.Errorf("error should wrap the handler error: %v", errs[0])
	}
	if !strings.HasPrefix(errs[0].Error(), "archive: ") {
		t.Errorf("error should be prefixed with the handler name: %v", errs[0])
	}
}

func TestShutdownRegistry_OnlyOnce(t *testing.T) {
	r := NewShutdownRegistry()
	calls := 0
	r.Register("once", 1, func(ctx context.Context) error { calls++; return nil })

	r.Shutdown(context.Background())
	r.Shutdown(context.Background())
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}

	r.Register("late", 1, func(ctx context.Context) error { return nil })
	if r.Count() != 1 {
		t.Errorf("registration after shutdown should be ignored, count=%d", r.Count())
	}
}
