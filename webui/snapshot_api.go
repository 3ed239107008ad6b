package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"ragmetrics/core"
	"ragmetrics/metrics"
)

// SnapshotArchive returns persisted snapshots, newest first.
type SnapshotArchive interface {
	Recent(ctx context.Context, limit int) ([]metrics.MetricsSnapshot, error)
}

// WriterStatser is implemented by archives that write asynchronously.
type WriterStatser interface {
	WriterStats() (written, dropped, failed int64)
}

// CollectorStatus reports whether host sampling is working.
type CollectorStatus interface {
	IsAvailable() bool
	GetLastError() error
}

// SnapshotAPI serves the HTTP side of the metrics relay:
//   - GET /health            - liveness and version, no auth
//   - GET /metrics/snapshot  - the current snapshot
//   - GET /metrics/history   - archived snapshots (with limit param)
//   - POST /metrics/events   - RAG pipeline events fed to the Recorder
type SnapshotAPI struct {
	source       metrics.SnapshotSource
	archive      SnapshotArchive
	recorder     metrics.Recorder
	collector    CollectorStatus
	shuttingDown func() bool
	defaultLimit int
	maxLimit     int
	versionInfo  core.VersionInfo
	startTime    time.Time
	logger       *zap.Logger
}

// SnapshotAPIConfig configures the SnapshotAPI behavior.
type SnapshotAPIConfig struct {
	// DefaultLimit is the number of history entries returned without a limit param
	DefaultLimit int

	// MaxLimit caps the limit param
	MaxLimit int

	// VersionInfo is reported by /health
	VersionInfo core.VersionInfo

	// Recorder receives POST /metrics/events. Nil disables the endpoint.
	Recorder metrics.Recorder

	// Collector is reported by /health when set
	Collector CollectorStatus

	// ShuttingDown makes /health answer 503 once it returns true
	ShuttingDown func() bool
}

// DefaultSnapshotAPIConfig returns a default configuration.
func DefaultSnapshotAPIConfig() SnapshotAPIConfig {
	return SnapshotAPIConfig{
		DefaultLimit: 60,
		MaxLimit:     1000,
		VersionInfo:  core.GetVersionInfo(),
	}
}

// NewSnapshotAPI creates a SnapshotAPI. archive may be nil, in which case
// /metrics/history answers 404.
func NewSnapshotAPI(source metrics.SnapshotSource, archive SnapshotArchive, config SnapshotAPIConfig, logger *zap.Logger) *SnapshotAPI {
	if config.DefaultLimit < 1 {
		config.DefaultLimit = 60
	}
	if config.MaxLimit < 1 {
		config.MaxLimit = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SnapshotAPI{
		source:       source,
		archive:      archive,
		recorder:     config.Recorder,
		collector:    config.Collector,
		shuttingDown: config.ShuttingDown,
		defaultLimit: config.DefaultLimit,
		maxLimit:     config.MaxLimit,
		versionInfo:  config.VersionInfo,
		startTime:    time.Now(),
		logger:       logger,
	}
}

// HealthResponse is the JSON body of /health.
type HealthResponse struct {
	Status     string           `json:"status"`
	Version    string           `json:"version"`
	GitCommit  string           `json:"git_commit,omitempty"`
	Uptime     string           `json:"uptime"`
	UptimeSecs float64          `json:"uptime_secs"`
	Collector  *CollectorHealth `json:"collector,omitempty"`
	Archive    *ArchiveHealth   `json:"archive,omitempty"`
}

// CollectorHealth is the host sampler's state.
type CollectorHealth struct {
	Available bool   `json:"available"`
	LastError string `json:"last_error,omitempty"`
}

// ArchiveHealth holds the archive writer counters.
type ArchiveHealth struct {
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

// HandleHealth handles GET /health.
func (api *SnapshotAPI) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	uptime := time.Since(api.startTime)
	resp := HealthResponse{
		Status:     "ok",
		Version:    api.versionInfo.Version,
		GitCommit:  api.versionInfo.GitCommit,
		Uptime:     FormatDuration(uptime),
		UptimeSecs: uptime.Seconds(),
	}

	if api.collector != nil {
		resp.Collector = &CollectorHealth{Available: api.collector.IsAvailable()}
		if err := api.collector.GetLastError(); err != nil {
			resp.Collector.LastError = err.Error()
		}
		if !resp.Collector.Available {
			resp.Status = "degraded"
		}
	}
	if stats, ok := api.archive.(WriterStatser); ok {
		written, dropped, failed := stats.WriterStats()
		resp.Archive = &ArchiveHealth{Written: written, Dropped: dropped, Failed: failed}
	}

	status := http.StatusOK
	if api.shuttingDown != nil && api.shuttingDown() {
		resp.Status = "shutting_down"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// HandleSnapshot handles GET /metrics/snapshot.
func (api *SnapshotAPI) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, api.source.Snapshot(time.Now()))
}

// HistoryResponse is the JSON body of /metrics/history.
type HistoryResponse struct {
	Snapshots []metrics.MetricsSnapshot `json:"snapshots"`
	Count     int                       `json:"count"`
	Limit     int                       `json:"limit"`
}

// HandleHistory handles GET /metrics/history.
// Query parameters:
// - limit: number of snapshots to return (default: 60, max: 1000)
func (api *SnapshotAPI) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if api.archive == nil {
		WriteError(w, http.StatusNotFound, "archive disabled")
		return
	}

	limit := api.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > api.maxLimit {
		limit = api.maxLimit
	}

	snapshots, err := api.archive.Recent(r.Context(), limit)
	if err != nil {
		api.logger.Error("failed to read snapshot archive",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		WriteError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}
	if snapshots == nil {
		snapshots = []metrics.MetricsSnapshot{}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Snapshots: snapshots,
		Count:     len(snapshots),
		Limit:     limit,
	})
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already written; an encode error can only be logged upstream
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON ErrorResponse. Middleware outside this package
// uses it so every error body has the same shape.
func WriteError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
