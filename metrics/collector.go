package metrics

import "time"

// SnapshotSource produces the current aggregate. The broadcaster and the
// snapshot endpoint consume metrics only through this interface.
type SnapshotSource interface {
	// Snapshot builds a snapshot stamped with now.
	Snapshot(now time.Time) MetricsSnapshot
}

// Recorder is the write side used by the RAG pipeline and the WebSocket
// handlers. Implementations must be safe for concurrent use.
type Recorder interface {
	RecordRAGQuery(duration time.Duration, err error)
	RecordCacheLookup(cache string, hit bool)
	RecordLLMUsage(model string, usage Usage)
	ConnectionOpened(kind ConnectionKind)
	ConnectionClosed(kind ConnectionKind)
	UpdateSystem(system SystemMetrics)
}

// ConnectionKind distinguishes chat sockets from metrics stream sockets.
type ConnectionKind string

const (
	ConnectionChat    ConnectionKind = "chat"
	ConnectionMetrics ConnectionKind = "metrics"
)

var (
	_ SnapshotSource = (*Store)(nil)
	_ Recorder       = (*Store)(nil)
)
