// Package webui serves the metrics relay over HTTP: the metrics/stream
// WebSocket broadcaster, the snapshot and history endpoints, request logging
// and the Prometheus exposition.
package webui

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ragmetrics/metrics"
)

// streamConn is the part of *websocket.Conn the broadcaster uses.
type streamConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// ConnectionGauge counts open stream connections. metrics.Store implements it.
type ConnectionGauge interface {
	ConnectionOpened(kind metrics.ConnectionKind)
	ConnectionClosed(kind metrics.ConnectionKind)
}

// SnapshotBroadcaster accepts metrics/stream connections and pushes one
// metrics_snapshot message to every open connection on each tick.
//
// Writes happen outside the connection set lock. A connection whose write
// fails is removed after the fan-out loop finishes, so a failing client never
// stops delivery to the others.
type SnapshotBroadcaster struct {
	clients   map[string]*streamClient
	clientsMu sync.RWMutex

	source   metrics.SnapshotSource
	gauge    ConnectionGauge
	upgrader websocket.Upgrader

	interval       time.Duration
	pingInterval   time.Duration
	pongWait       time.Duration
	writeWait      time.Duration
	maxMessageSize int64

	logger *zap.Logger
}

// streamClient is one accepted connection.
type streamClient struct {
	id          string
	conn        streamConn
	remoteAddr  string
	identity    string
	connectedAt time.Time

	// writeMu serializes pings and snapshots on the socket
	writeMu sync.Mutex
}

func (c *streamClient) write(messageType int, data []byte, wait time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(wait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// BroadcasterConfig holds configuration for the SnapshotBroadcaster
type BroadcasterConfig struct {
	// Interval between snapshot broadcasts (default: 5s)
	Interval time.Duration

	// PingInterval is how often to send ping frames (default: 30s)
	PingInterval time.Duration

	// PongWait is how long to wait for a pong before the read pump gives up (default: 60s)
	PongWait time.Duration

	// WriteWait is time allowed to write a message (default: 10s)
	WriteWait time.Duration

	// MaxMessageSize is max message size from client (default: 512 bytes)
	MaxMessageSize int64

	// CheckOrigin overrides the upgrader origin check (default: allow all)
	CheckOrigin func(r *http.Request) bool
}

// DefaultBroadcasterConfig returns the default configuration
func DefaultBroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		Interval:       5 * time.Second,
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 512,
	}
}

// NewSnapshotBroadcaster creates a broadcaster that pulls snapshots from
// source. gauge and logger may be nil.
func NewSnapshotBroadcaster(config BroadcasterConfig, source metrics.SnapshotSource, gauge ConnectionGauge, logger *zap.Logger) *SnapshotBroadcaster {
	defaults := DefaultBroadcasterConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PongWait <= 0 {
		config.PongWait = defaults.PongWait
	}
	if config.WriteWait <= 0 {
		config.WriteWait = defaults.WriteWait
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	if config.CheckOrigin == nil {
		// Dashboards are served from other origins behind the same proxy
		config.CheckOrigin = func(r *http.Request) bool { return true }
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SnapshotBroadcaster{
		clients:        make(map[string]*streamClient),
		source:         source,
		gauge:          gauge,
		interval:       config.Interval,
		pingInterval:   config.PingInterval,
		pongWait:       config.PongWait,
		writeWait:      config.WriteWait,
		maxMessageSize: config.MaxMessageSize,
		logger:         logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     config.CheckOrigin,
		},
	}
}

// Start runs the broadcast and ping loop until ctx is cancelled, then closes
// every connection.
func (b *SnapshotBroadcaster) Start(ctx context.Context) {
	tick := time.NewTicker(b.interval)
	defer tick.Stop()
	pingTicker := time.NewTicker(b.pingInterval)
	defer pingTicker.Stop()

	b.logger.Info("snapshot broadcaster started",
		zap.Duration("interval", b.interval),
		zap.Duration("ping_interval", b.pingInterval),
	)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("snapshot broadcaster stopping", zap.Int("clients", b.ClientCount()))
			b.closeAllClients()
			return

		case now := <-tick.C:
			if b.ClientCount() == 0 {
				continue
			}
			b.Broadcast(b.source.Snapshot(now))

		case <-pingTicker.C:
			b.sendPingToAll()
		}
	}
}

// HandleConnection upgrades a metrics/stream request and registers the
// connection. The first snapshot is sent immediately.
func (b *SnapshotBroadcaster) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error
		b.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", ClientIP(r)),
			zap.Error(err),
		)
		return
	}

	conn.SetReadLimit(b.maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(b.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(b.pongWait))
	})

	client := b.addClient(conn, ClientIP(r), IdentityFromContext(r.Context()))
	go b.readPump(client)

	if b.source != nil {
		b.sendSnapshot(client, b.source.Snapshot(time.Now()))
	}
}

// Broadcast sends snapshot to every open connection and returns the number of
// successful deliveries. Connections whose write failed are removed once the
// fan-out is complete.
func (b *SnapshotBroadcaster) Broadcast(snapshot metrics.MetricsSnapshot) int {
	data, err := metrics.EncodeMessage(metrics.NewSnapshotMessage(snapshot))
	if err != nil {
		b.logger.Error("failed to encode snapshot", zap.Error(err))
		return 0
	}

	delivered := 0
	var failed []*streamClient
	for _, client := range b.snapshotClients() {
		if err := client.write(websocket.TextMessage, data, b.writeWait); err != nil {
			b.logger.Debug("snapshot write failed",
				zap.String("client_id", client.id),
				zap.Error(err),
			)
			failed = append(failed, client)
			continue
		}
		delivered++
	}

	for _, client := range failed {
		b.removeClient(client, "write failed")
	}
	return delivered
}

// ClientCount returns the current number of connected clients.
func (b *SnapshotBroadcaster) ClientCount() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}

// Close closes all client connections.
func (b *SnapshotBroadcaster) Close() {
	b.closeAllClients()
}

func (b *SnapshotBroadcaster) sendSnapshot(client *streamClient, snapshot metrics.MetricsSnapshot) {
	data, err := metrics.EncodeMessage(metrics.NewSnapshotMessage(snapshot))
	if err != nil {
		b.logger.Error("failed to encode snapshot", zap.Error(err))
		return
	}
	if err := client.write(websocket.TextMessage, data, b.writeWait); err != nil {
		b.removeClient(client, "initial write failed")
	}
}

// snapshotClients copies the connection set so writes happen without the lock.
func (b *SnapshotBroadcaster) snapshotClients() []*streamClient {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()

	clients := make([]*streamClient, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	return clients
}

func (b *SnapshotBroadcaster) addClient(conn streamConn, remoteAddr, identity string) *streamClient {
	client := &streamClient{
		id:          uuid.NewString(),
		conn:        conn,
		remoteAddr:  remoteAddr,
		identity:    identity,
		connectedAt: time.Now(),
	}

	b.clientsMu.Lock()
	b.clients[client.id] = client
	total := len(b.clients)
	b.clientsMu.Unlock()

	if b.gauge != nil {
		b.gauge.ConnectionOpened(metrics.ConnectionMetrics)
	}

	b.logger.Info("stream client connected",
		zap.String("client_id", client.id),
		zap.String("remote_addr", remoteAddr),
		zap.String("identity", identity),
		zap.Int("total", total),
	)
	return client
}

// removeClient drops a client and closes its socket. Safe to call more than
// once for the same client.
func (b *SnapshotBroadcaster) removeClient(client *streamClient, reason string) {
	b.clientsMu.Lock()
	_, ok := b.clients[client.id]
	if ok {
		delete(b.clients, client.id)
	}
	total := len(b.clients)
	b.clientsMu.Unlock()

	if !ok {
		return
	}

	client.conn.Close()
	if b.gauge != nil {
		b.gauge.ConnectionClosed(metrics.ConnectionMetrics)
	}

	b.logger.Info("stream client disconnected",
		zap.String("client_id", client.id),
		zap.String("reason", reason),
		zap.Duration("connected_for", time.Since(client.connectedAt)),
		zap.Int("total", total),
	)
}

func (b *SnapshotBroadcaster) sendPingToAll() {
	var failed []*streamClient
	for _, client := range b.snapshotClients() {
		if err := client.write(websocket.PingMessage, nil, b.writeWait); err != nil {
			failed = append(failed, client)
		}
	}
	for _, client := range failed {
		b.removeClient(client, "ping failed")
	}
}

func (b *SnapshotBroadcaster) closeAllClients() {
	for _, client := range b.snapshotClients() {
		client.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), b.writeWait)
		b.removeClient(client, "shutdown")
	}
}

// readPump discards client frames and removes the client once the socket
// errors or closes. Pongs are handled by the pong handler during reads.
func (b *SnapshotBroadcaster) readPump(client *streamClient) {
	defer b.removeClient(client, "read closed")

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Debug("unexpected close", zap.String("client_id", client.id), zap.Error(err))
			}
			return
		}
	}
}
