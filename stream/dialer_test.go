package stream

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ragmetrics/metrics"
)

func TestWebSocketDialer_RejectedHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	d := NewWebSocketDialer(time.Second, time.Second)
	_, err := d.Dial(t.Context(), "ws"+strings.TrimPrefix(srv.URL, "http"), nil)

	var dialErr *DialError
	if !errors.As(err, &dialErr) {
		t.Fatalf("Dial() error = %v, want *DialError", err)
	}
	if dialErr.StatusCode != http.StatusForbidden || !dialErr.Rejected() {
		t.Errorf("DialError = %+v", dialErr)
	}
}

func TestManager_EndToEndOverWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(DefaultIdentityHeader) == "" {
			http.Error(w, "identity required", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 3; i++ {
			data, _ := metrics.EncodeMessage(metrics.NewSnapshotMessage(snapshotAt(i, float64(i*10))))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
		// Hold the socket open until the client leaves
		conn.ReadMessage()
	}))
	defer srv.Close()

	t.Run("streams snapshots", func(t *testing.T) {
		m, err := New(Config{BaseURL: srv.URL, Identity: "ops@example.com"})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer m.Dispose()

		m.Connect()
		waitFor(t, "three snapshots", func() bool { return m.History().Len() == 3 })

		cpu := m.History().Values(SeriesCPUPercent)
		if cpu[0] != 0 || cpu[1] != 10 || cpu[2] != 20 {
			t.Errorf("cpu series = %v", cpu)
		}
		if !m.State().Get().Connected {
			t.Error("not connected")
		}
	})

	t.Run("missing identity is terminal", func(t *testing.T) {
		m, err := New(Config{BaseURL: srv.URL})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer m.Dispose()

		m.Connect()
		waitFor(t, "terminal", func() bool { return m.State().Get().Terminal })
		if st := m.State().Get(); st.Attempts != 0 || !strings.Contains(st.LastError, "401") {
			t.Errorf("state = %+v", st)
		}
	})
}

func TestIgnoreCloseSent(t *testing.T) {
	other := errors.New("broken pipe")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"close sent", websocket.ErrCloseSent, nil},
		{"wrapped close sent", fmt.Errorf("write pong: %w", websocket.ErrCloseSent), nil},
		{"other error", other, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ignoreCloseSent(tt.err); got != tt.want {
				t.Errorf("ignoreCloseSent(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWebSocketDialer_PingAfterCloseIsQuiet(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	d := NewWebSocketDialer(time.Second, time.Second)
	conn, err := d.Dial(t.Context(), "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	wc := conn.(*wsConn)
	defer wc.Close()

	if err := wc.answerPing("before"); err != nil {
		t.Fatalf("answerPing() on open connection = %v", err)
	}
	closeFrame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := wc.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("WriteControl(close) error = %v", err)
	}
	if err := wc.answerPing("after"); err != nil {
		t.Errorf("answerPing() after close frame = %v, want nil", err)
	}
}
