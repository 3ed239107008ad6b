// Package stream is the client side of the metrics/stream feed. A Manager
// keeps one WebSocket connection open, reconnects with capped exponential
// backoff and feeds received snapshots into a rolling History.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ragmetrics/metrics"
)

// ErrManagerDisposed is returned by operations on a disposed Manager.
var ErrManagerDisposed = errors.New("stream: manager disposed")

const (
	DefaultIdentityHeader = "X-User-Email"
	DefaultTokenHeader    = "X-Metrics-Token"
)

// Config configures a Manager.
type Config struct {
	// BaseURL of the metrics server, e.g. http://localhost:8090.
	// ws:// and wss:// are accepted too.
	BaseURL string

	// Identity is sent in IdentityHeader on the handshake and on fetches.
	Identity       string
	IdentityHeader string

	// Token is sent in TokenHeader when non-empty.
	Token       string
	TokenHeader string

	// MaxAttempts is the number of automatic reconnects (default 5).
	MaxAttempts int

	// HistorySize is the per-series capacity (default 60).
	HistorySize int

	// HandshakeTimeout bounds each dial (default 10s).
	HandshakeTimeout time.Duration

	// ReadTimeout is the longest silence tolerated from the server (default 90s).
	ReadTimeout time.Duration

	// FetchTimeout bounds FetchSnapshot when ctx has no deadline (default 10s).
	FetchTimeout time.Duration

	// RetryAuthFailures keeps retrying handshakes rejected with 401 or 403.
	// By default they stop reconnection immediately.
	RetryAuthFailures bool
}

func (c Config) withDefaults() Config {
	if c.IdentityHeader == "" {
		c.IdentityHeader = DefaultIdentityHeader
	}
	if c.TokenHeader == "" {
		c.TokenHeader = DefaultTokenHeader
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = MaxAttempts
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 90 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	return c
}

// header builds the identity headers sent with every request.
func (c Config) header() http.Header {
	h := http.Header{}
	if c.Identity != "" {
		h.Set(c.IdentityHeader, c.Identity)
	}
	if c.Token != "" {
		h.Set(c.TokenHeader, c.Token)
	}
	return h
}

// endpoints derives the stream and snapshot URLs from BaseURL.
func endpoints(base string) (streamURL, snapshotURL string, err error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("invalid base URL %q: missing host", base)
	}

	var wsScheme, httpScheme string
	switch u.Scheme {
	case "http", "ws":
		wsScheme, httpScheme = "ws", "http"
	case "https", "wss":
		wsScheme, httpScheme = "wss", "https"
	default:
		return "", "", fmt.Errorf("invalid base URL %q: unsupported scheme %q", base, u.Scheme)
	}

	prefix := strings.TrimSuffix(u.Path, "/")
	ws := *u
	ws.Scheme, ws.Path, ws.RawQuery = wsScheme, prefix+"/metrics/stream", ""
	plain := *u
	plain.Scheme, plain.Path, plain.RawQuery = httpScheme, prefix+"/metrics/snapshot", ""
	return ws.String(), plain.String(), nil
}

// Option customizes a Manager.
type Option func(*Manager)

// WithDialer replaces the gorilla/websocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithScheduler replaces the runtime timer used for reconnect delays.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.scheduler = s }
}

// WithHTTPClient sets the client used by FetchSnapshot.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager owns one stream connection and its derived state. Create it with
// New, start it with Connect and release it with Dispose.
type Manager struct {
	config      Config
	streamURL   string
	snapshotURL string
	dialer      Dialer
	scheduler   Scheduler
	client      *http.Client
	logger      *zap.Logger

	mu         sync.Mutex
	st         ConnectionState
	attempts   int
	generation uint64
	conn       Conn
	timer      Timer
	cancelDial context.CancelFunc
	disposed   bool

	// version stamps each captured state so a delayed publish cannot
	// overwrite a newer one.
	version       uint64
	beforePublish func(ConnectionState)

	state   *Value[ConnectionState]
	current *Value[*metrics.MetricsSnapshot]
	history *History
}

// New creates a disconnected Manager.
func New(config Config, opts ...Option) (*Manager, error) {
	config = config.withDefaults()
	streamURL, snapshotURL, err := endpoints(config.BaseURL)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		config:      config,
		streamURL:   streamURL,
		snapshotURL: snapshotURL,
		scheduler:   RealScheduler{},
		client:      &http.Client{},
		logger:      zap.NewNop(),
		state:       NewValue(ConnectionState{Status: StatusDisconnected}),
		current:     NewValue[*metrics.MetricsSnapshot](nil),
		history:     NewHistory(config.HistorySize),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = NewWebSocketDialer(config.HandshakeTimeout, config.ReadTimeout)
	}
	return m, nil
}

// State is the subscribable connection state.
func (m *Manager) State() Readable[ConnectionState] { return m.state }

// Current is the subscribable latest snapshot, nil until one arrives.
func (m *Manager) Current() Readable[*metrics.MetricsSnapshot] { return m.current }

// History is the rolling history fed by every applied snapshot.
func (m *Manager) History() *History { return m.history }

// StreamURL returns the WebSocket endpoint the manager dials.
func (m *Manager) StreamURL() string { return m.streamURL }

// Connect starts connecting and resets the reconnect counter. It is a no-op
// while already connecting or connected. The dial runs in the background;
// observe State for the outcome.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrManagerDisposed
	}
	if m.st.Status != StatusDisconnected {
		m.mu.Unlock()
		return nil
	}

	m.cancelTimerLocked()
	m.attempts = 0
	update, attempt := m.startAttemptLocked()
	m.mu.Unlock()

	m.publish(update)
	attempt.launch(m)
	return nil
}

// Disconnect closes the connection, cancels any pending reconnect and stops
// automatic reconnection until the next Connect. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}

	idle := m.st.Status == StatusDisconnected && m.st.Terminal && m.conn == nil && m.timer == nil
	m.generation++
	m.cancelTimerLocked()
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	conn := m.conn
	m.conn = nil

	// Pin above the limit so nothing scheduled earlier can qualify for a retry
	m.attempts = m.config.MaxAttempts + 1
	m.st.Status = StatusDisconnected
	m.st.Connected = false
	m.st.Attempts = m.attempts
	m.st.Terminal = true
	update := m.stampLocked()
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if !idle {
		m.logger.Info("metrics stream disconnected by caller")
		m.publish(update)
	}
}

// Dispose disconnects and drops every subscriber. Later calls are no-ops;
// other operations return ErrManagerDisposed.
func (m *Manager) Dispose() {
	m.Disconnect()

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	m.mu.Unlock()

	m.state.Close()
	m.current.Close()
	m.history.Close()
}

func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Cancel()
		m.timer = nil
	}
}

// dialAttempt is a dial prepared under the lock and launched after the
// connecting state has been published.
type dialAttempt struct {
	ctx    context.Context
	cancel context.CancelFunc
	gen    uint64
}

func (a dialAttempt) launch(m *Manager) {
	go m.dial(a.ctx, a.cancel, a.gen)
}

// stateUpdate is a state captured under the lock, published after it.
type stateUpdate struct {
	st      ConnectionState
	version uint64
}

func (m *Manager) stampLocked() stateUpdate {
	m.version++
	return stateUpdate{st: m.st, version: m.version}
}

// publish hands a captured state to subscribers unless a newer one has
// already been published.
func (m *Manager) publish(update stateUpdate) {
	if m.beforePublish != nil {
		m.beforePublish(update.st)
	}
	m.state.Publish(update.version, update.st)
}

// startAttemptLocked prepares a dial under a new generation.
func (m *Manager) startAttemptLocked() (stateUpdate, dialAttempt) {
	m.generation++
	ctx, cancel := context.WithTimeout(context.Background(), m.config.HandshakeTimeout)
	m.cancelDial = cancel

	m.st.Status = StatusConnecting
	m.st.Connected = false
	m.st.Terminal = false
	m.st.Attempts = m.attempts
	return m.stampLocked(), dialAttempt{ctx: ctx, cancel: cancel, gen: m.generation}
}

func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	conn, err := m.dialer.Dial(ctx, m.streamURL, m.config.header())
	cancel()

	m.mu.Lock()
	if gen != m.generation || m.disposed {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	m.cancelDial = nil

	if err != nil {
		update := m.failLocked(err)
		m.mu.Unlock()
		m.publish(update)
		return
	}

	m.conn = conn
	m.attempts = 0
	m.st.Status = StatusConnected
	m.st.Connected = true
	m.st.LastError = ""
	m.st.Attempts = 0
	m.st.Terminal = false
	update := m.stampLocked()
	m.mu.Unlock()

	m.logger.Info("metrics stream connected", zap.String("url", m.streamURL))
	m.publish(update)

	m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.connectionLost(gen, err)
			return
		}
		m.handleMessage(gen, data)
	}
}

func (m *Manager) handleMessage(gen uint64, data []byte) {
	msg, err := metrics.DecodeMessage(data)
	if err != nil {
		m.logger.Warn("dropping malformed stream message", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}

	switch msg := msg.(type) {
	case metrics.SnapshotMessage:
		m.mu.Lock()
		stale := gen != m.generation
		m.mu.Unlock()
		if stale {
			return
		}
		m.applySnapshot(msg.Snapshot)
	case metrics.PingMessage:
		m.logger.Debug("stream ping", zap.Time("sent_at", msg.Timestamp))
	case metrics.ErrorMessage:
		m.logger.Warn("server reported stream error",
			zap.String("code", msg.Code),
			zap.String("message", msg.Message),
		)
	}
}

// applySnapshot makes snapshot current and appends one history row.
func (m *Manager) applySnapshot(snapshot metrics.MetricsSnapshot) {
	snapshot = snapshot.Clone()
	m.history.Append(snapshot)
	m.current.Set(&snapshot)

	m.mu.Lock()
	m.st.LastUpdated = time.Now()
	update := m.stampLocked()
	disposed := m.disposed
	m.mu.Unlock()

	if !disposed {
		m.publish(update)
	}
}

func (m *Manager) connectionLost(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.generation || m.disposed {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	update := m.failLocked(err)
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	m.publish(update)
}

// failLocked records a failed dial or lost connection and schedules the next
// reconnect when one is allowed.
func (m *Manager) failLocked(err error) stateUpdate {
	m.st.Status = StatusDisconnected
	m.st.Connected = false
	m.st.LastError = err.Error()

	var dialErr *DialError
	if !m.config.RetryAuthFailures && errors.As(err, &dialErr) && dialErr.Rejected() {
		m.st.Terminal = true
		m.logger.Warn("metrics stream rejected by server, not retrying",
			zap.Int("status", dialErr.StatusCode),
			zap.Error(err),
		)
		return m.stampLocked()
	}

	if m.attempts >= m.config.MaxAttempts {
		m.st.Terminal = true
		m.logger.Warn("metrics stream reconnect attempts exhausted",
			zap.Int("attempts", m.attempts),
			zap.Error(err),
		)
		return m.stampLocked()
	}

	delay := Backoff(m.attempts)
	m.attempts++
	m.st.Attempts = m.attempts
	gen := m.generation
	m.timer = m.scheduler.AfterFunc(delay, func() { m.reconnect(gen) })

	m.logger.Info("metrics stream lost, reconnecting",
		zap.Int("attempt", m.attempts),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
	return m.stampLocked()
}

// reconnect is the timer callback. A timer from a superseded generation
// does nothing.
func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if m.disposed || gen != m.generation || m.timer == nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	update, attempt := m.startAttemptLocked()
	m.mu.Unlock()

	m.publish(update)
	attempt.launch(m)
}
