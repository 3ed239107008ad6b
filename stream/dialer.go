package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is an open stream connection. Only reads are needed; the stream is
// receive-only from the client's side.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens stream connections.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// DialError is a failed handshake. StatusCode is the HTTP status the server
// answered with, or 0 when no response was received.
type DialError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DialError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("dial %s: %v (HTTP %d)", e.URL, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("dial %s: %v", e.URL, e.Err)
}

func (e *DialError) Unwrap() error {
	return e.Err
}

// Rejected reports whether the server refused the caller's identity.
func (e *DialError) Rejected() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	dialer      *websocket.Dialer
	readTimeout time.Duration
	readLimit   int64
	writeWait   time.Duration
}

// NewWebSocketDialer creates a dialer. readTimeout bounds the silence allowed
// between server frames (snapshots or pings) before the connection is
// considered dead.
func NewWebSocketDialer(handshakeTimeout, readTimeout time.Duration) *WebSocketDialer {
	return &WebSocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		readTimeout: readTimeout,
		readLimit:   1 << 20,
		writeWait:   10 * time.Second,
	}
}

// Dial opens a connection to url. A rejected handshake returns a *DialError
// carrying the HTTP status.
func (d *WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		dialErr := &DialError{URL: url, Err: err}
		if resp != nil {
			dialErr.StatusCode = resp.StatusCode
		}
		return nil, dialErr
	}

	conn.SetReadLimit(d.readLimit)
	wc := &wsConn{Conn: conn, readTimeout: d.readTimeout, writeWait: d.writeWait}
	conn.SetPingHandler(wc.answerPing)
	return wc, nil
}

type wsConn struct {
	*websocket.Conn
	readTimeout time.Duration
	writeWait   time.Duration
}

// answerPing counts a server ping as liveness and replies with a pong.
func (c *wsConn) answerPing(appData string) error {
	c.extendDeadline()
	return ignoreCloseSent(c.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeWait)))
}

// ignoreCloseSent drops the error of a pong that lost the race with our
// own close frame.
func ignoreCloseSent(err error) error {
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

func (c *wsConn) extendDeadline() {
	if c.readTimeout > 0 {
		c.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	c.extendDeadline()
	return c.Conn.ReadMessage()
}
