package webui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AuthProvider wraps handlers with caller identification. auth.IdentityMiddleware
// implements it; the interface keeps this package free of the auth import.
type AuthProvider interface {
	Middleware(next http.Handler) http.Handler
}

// Server is the metrics relay HTTP server. It wires together:
//   - SnapshotBroadcaster on /metrics/stream
//   - SnapshotAPI on /health, /metrics/snapshot, /metrics/history and
//     /metrics/events
//   - the Prometheus handler on /metrics/prometheus
//   - LoggingMiddleware and the optional AuthProvider
type Server struct {
	httpServer   *http.Server
	mux          *http.ServeMux
	config       ServerConfig
	logger       *zap.Logger
	authProvider AuthProvider
	loggingMw    *LoggingMiddleware
	api          *SnapshotAPI
	broadcaster  *SnapshotBroadcaster
	prometheus   http.Handler
	wrap         func(http.Handler) http.Handler

	shutdownOnce sync.Once
	shutdownErr  error
}

// ServerConfig configures the Server.
type ServerConfig struct {
	// Port to listen on (default: 8090)
	Port int

	// Host to bind to (default: "0.0.0.0")
	Host string

	// ReadTimeout for HTTP requests (default: 30s)
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses (default: 30s). Hijacked WebSocket
	// connections use the broadcaster's write deadline instead.
	WriteTimeout time.Duration

	// IdleTimeout for keep-alive connections (default: 120s)
	IdleTimeout time.Duration

	// ShutdownTimeout for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration

	// LogSkipPaths are paths to skip logging
	LogSkipPaths []string
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:            8090,
		Host:            "0.0.0.0",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		LogSkipPaths:    []string{"/health"},
	}
}

// ServerDeps are the handlers the server routes to. Prometheus,
// AuthProvider and Wrap may be nil.
type ServerDeps struct {
	Broadcaster  *SnapshotBroadcaster
	API          *SnapshotAPI
	Prometheus   http.Handler
	AuthProvider AuthProvider

	// Wrap is applied outside the logging middleware, e.g. the shutdown
	// manager's in-flight tracker.
	Wrap func(http.Handler) http.Handler
}

// NewServer creates a Server and registers its routes.
func NewServer(config ServerConfig, deps ServerDeps, logger *zap.Logger) (*Server, error) {
	if deps.Broadcaster == nil || deps.API == nil {
		return nil, errors.New("webui: broadcaster and snapshot API are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	server := &Server{
		mux:          http.NewServeMux(),
		config:       config,
		logger:       logger,
		authProvider: deps.AuthProvider,
		loggingMw:    NewLoggingMiddleware(logger.Named("http"), LoggingMiddlewareConfig{SkipPaths: config.LogSkipPaths}),
		api:          deps.API,
		broadcaster:  deps.Broadcaster,
		prometheus:   deps.Prometheus,
		wrap:         deps.Wrap,
	}
	server.setupRoutes()

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server.httpServer = &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	logger.Info("metrics server created",
		zap.String("addr", addr),
		zap.Bool("auth_enabled", deps.AuthProvider != nil),
		zap.Bool("prometheus_enabled", deps.Prometheus != nil),
	)
	return server, nil
}

// setupRoutes configures all the HTTP routes.
func (s *Server) setupRoutes() {
	// Health check endpoint (no auth required)
	s.mux.HandleFunc("/health", s.api.HandleHealth)

	s.mux.Handle("/metrics/stream", s.protect(http.HandlerFunc(s.broadcaster.HandleConnection)))
	s.mux.Handle("/metrics/snapshot", s.protect(http.HandlerFunc(s.api.HandleSnapshot)))
	s.mux.Handle("/metrics/history", s.protect(http.HandlerFunc(s.api.HandleHistory)))
	s.mux.Handle("/metrics/events", s.protect(http.HandlerFunc(s.api.HandleEvents)))
	if s.prometheus != nil {
		s.mux.Handle("/metrics/prometheus", s.protect(s.prometheus))
	}

	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "no such endpoint")
	})
}

func (s *Server) protect(handler http.Handler) http.Handler {
	if s.authProvider != nil {
		return s.authProvider.Middleware(handler)
	}
	return handler
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	handler := s.loggingMw.Handler(s.mux)
	if s.wrap != nil {
		handler = s.wrap(handler)
	}
	return handler
}

// Start runs the broadcaster and serves HTTP until Shutdown is called.
// The broadcaster stops when ctx is cancelled or serving ends, and Start
// returns only after it has.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.broadcaster.Start(ctx)
	}()

	s.logger.Info("metrics server starting", zap.String("addr", s.httpServer.Addr))

	err := s.httpServer.ListenAndServe()
	cancel()
	wg.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server and closes stream clients.
// Only the first call does anything; later calls return its result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server
	s.broadcaster.Close()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}

	s.logger.Info("metrics server stopped")
	return nil
}

// Broadcaster returns the snapshot broadcaster.
func (s *Server) Broadcaster() *SnapshotBroadcaster {
	return s.broadcaster
}

// Addr returns the server's address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
