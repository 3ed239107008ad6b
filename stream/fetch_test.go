package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFetchSnapshot_AppliesLikeStream(t *testing.T) {
	want := snapshotAt(5, 42)
	want.RAG.LatencyMS.P95 = 310

	var gotIdentity, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = r.Header.Get(DefaultIdentityHeader)
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	m, err := New(Config{BaseURL: srv.URL, Identity: "ops@example.com"}, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Dispose()

	var rows []Row
	m.History().Subscribe(func(r Row) { rows = append(rows, r) })

	got, err := m.FetchSnapshot(t.Context())
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}

	if gotIdentity != "ops@example.com" || gotPath != "/metrics/snapshot" {
		t.Errorf("request identity=%q path=%q", gotIdentity, gotPath)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if current := m.Current().Get(); current == nil || !current.Timestamp.Equal(want.Timestamp) {
		t.Errorf("Current() = %+v", current)
	}

	if len(rows) != 1 {
		t.Fatalf("appended %d rows, want 1", len(rows))
	}
	for _, name := range m.History().Names() {
		if n := len(m.History().Series(name)); n != 1 {
			t.Errorf("series %s len = %d, want 1", name, n)
		}
	}
	if p95 := m.History().Values(SeriesRAGP95); p95[0] != 310 {
		t.Errorf("rag_p95 = %v, want 310", p95[0])
	}
}

func TestFetchSnapshot_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "identity required", http.StatusUnauthorized)
			},
		},
		{
			name: "bad body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			m, err := New(Config{BaseURL: srv.URL})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer m.Dispose()

			if _, err := m.FetchSnapshot(t.Context()); err == nil {
				t.Fatal("FetchSnapshot() expected error")
			}
			if m.State().Get().LastError == "" {
				t.Error("LastError not set")
			}
			if m.History().Len() != 0 || m.Current().Get() != nil {
				t.Error("failed fetch changed history or current")
			}
		})
	}
}
