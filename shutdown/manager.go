package shutdown

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ragmetrics/core"
)

// Manager coordinates graceful shutdown of the relay: it cancels a root
// context on SIGINT/SIGTERM, tracks in-flight HTTP requests and runs the
// registered cleanup handlers in priority order. A second signal forces
// the process to exit.
type Manager struct {
	logger   *zap.Logger
	timeout  time.Duration
	mu       sync.Mutex
	started  bool
	shutdown bool
	signal   os.Signal

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *ShutdownRegistry
	signals  *SignalCounter

	sigChan   chan os.Signal
	forceExit func()
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets the shutdown timeout duration. Default is 30 seconds.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// WithForceExit replaces the second-signal action, os.Exit(1) by default.
func WithForceExit(fn func()) ManagerOption {
	return func(m *Manager) {
		m.forceExit = fn
	}
}

// NewManager creates a Manager. The logger may be nil.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:    logger,
		timeout:   30 * time.Second,
		ctx:       ctx,
		cancel:    cancel,
		tracker:   NewOperationTracker(),
		registry:  NewShutdownRegistry(),
		sigChan:   make(chan os.Signal, 1),
		forceExit: func() { os.Exit(core.ExitCodeError) },
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("received second signal, forcing exit")
		m.forceExit()
	})
	return m
}

// Context is cancelled when shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup handler; lower priorities run first.
func (m *Manager) Register(name string, priority int, fn core.ShutdownFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority),
	)
}

// Start listens for SIGINT and SIGTERM. Calling it again is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			m.handleSignal(sig)
		}
	}()
}

func (m *Manager) handleSignal(sig os.Signal) {
	if m.signals.Increment() == 1 {
		m.mu.Lock()
		m.signal = sig
		m.mu.Unlock()

		m.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		m.cancel()
	}
}

// Trigger begins shutdown without a signal, e.g. when a component fails or
// the service manager asks the relay to stop.
func (m *Manager) Trigger(reason string) {
	if m.ctx.Err() == nil {
		m.logger.Info("shutdown requested", zap.String("reason", reason))
	}
	m.cancel()
}

// Signal returns the signal that started shutdown, or nil.
func (m *Manager) Signal() os.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signal
}

// ExitCode maps the shutdown cause to a process exit code.
func (m *Manager) ExitCode() int {
	return core.ExitCodeForSignal(m.Signal())
}

// Shutdown stops accepting tracked operations, waits for the ones in flight
// and then runs every cleanup handler. It is idempotent.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	started := m.started
	m.mu.Unlock()

	m.cancel()
	startTime := time.Now()
	m.logger.Info("graceful shutdown started",
		zap.Duration("timeout", m.timeout),
		zap.Int("registered_handlers", m.registry.Count()),
	)

	m.tracker.Close()
	if active := m.tracker.ActiveCount(); active > 0 {
		m.logger.Info("waiting for in-flight requests", zap.Int64("active", active))
	}
	if err := m.tracker.Wait(m.timeout); err != nil {
		m.logger.Warn("timed out waiting for in-flight requests",
			zap.Int64("remaining", m.tracker.ActiveCount()),
		)
	}

	remaining := m.timeout - time.Since(startTime)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	errs := m.registry.Shutdown(ctx)
	for _, err := range errs {
		m.logger.Error("cleanup handler failed", zap.Error(err))
	}

	if started {
		signal.Stop(m.sigChan)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown had %d errors", len(errs))
	}
	m.logger.Info("graceful shutdown completed", zap.Duration("duration", time.Since(startTime)))
	return nil
}

// Middleware tracks each request as an in-flight operation and answers 503
// once shutdown has begun.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.tracker.Start() {
			w.Header().Set("Connection", "close")
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		}
		defer m.tracker.Done()
		next.ServeHTTP(w, r)
	})
}

// IsShuttingDown reports whether shutdown has begun.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown || m.ctx.Err() != nil
}

// RegisteredHandlers returns handler names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}
