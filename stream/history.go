package stream

import (
	"sync"
	"time"

	"ragmetrics/metrics"
)

// DefaultHistorySize is the number of samples kept per series.
const DefaultHistorySize = 60

// Series names.
const (
	SeriesCPUPercent        = "cpu_percent"
	SeriesMemoryPercent     = "memory_percent"
	SeriesDiskPercent       = "disk_percent"
	SeriesActiveConnections = "active_connections"
	SeriesRAGP50            = "rag_p50_ms"
	SeriesRAGP95            = "rag_p95_ms"
	SeriesCacheHitRate      = "cache_hit_rate"
	SeriesLLMTotalTokens    = "llm_total_tokens"
	SeriesLLMCostUSD        = "llm_cost_usd"
)

var seriesNames = []string{
	SeriesCPUPercent,
	SeriesMemoryPercent,
	SeriesDiskPercent,
	SeriesActiveConnections,
	SeriesRAGP50,
	SeriesRAGP95,
	SeriesCacheHitRate,
	SeriesLLMTotalTokens,
	SeriesLLMCostUSD,
}

// Point is one sample of one series.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Row is the set of samples derived from a single snapshot.
type Row struct {
	Timestamp time.Time
	Values    map[string]float64
}

// RowFromSnapshot derives the scalar samples charted from a snapshot.
func RowFromSnapshot(s metrics.MetricsSnapshot) Row {
	return Row{
		Timestamp: s.Timestamp,
		Values: map[string]float64{
			SeriesCPUPercent:        s.System.CPUPercent,
			SeriesMemoryPercent:     s.System.MemoryPercent,
			SeriesDiskPercent:       s.System.DiskPercent,
			SeriesActiveConnections: float64(s.WebSocket.ActiveConnections),
			SeriesRAGP50:            s.RAG.LatencyMS.P50,
			SeriesRAGP95:            s.RAG.LatencyMS.P95,
			SeriesCacheHitRate:      s.Cache.HitRate,
			SeriesLLMTotalTokens:    float64(s.LLM.TotalTokens),
			SeriesLLMCostUSD:        s.LLM.CostUSD,
		},
	}
}

// History is a set of rolling series fed one row per snapshot. Every series
// always holds the same number of points.
type History struct {
	mu       sync.RWMutex
	capacity int
	series   map[string]*RollingSeries[Point]
	appended *Value[Row]
}

// NewHistory creates a History keeping capacity points per series.
// A capacity below 1 uses DefaultHistorySize.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistorySize
	}
	h := &History{
		capacity: capacity,
		series:   make(map[string]*RollingSeries[Point], len(seriesNames)),
		appended: NewValue(Row{}),
	}
	for _, name := range seriesNames {
		h.series[name] = NewRollingSeries[Point](capacity)
	}
	return h
}

// Append adds one point to every series and notifies subscribers.
func (h *History) Append(s metrics.MetricsSnapshot) Row {
	row := RowFromSnapshot(s)

	h.mu.Lock()
	for name, series := range h.series {
		series.Push(Point{Timestamp: row.Timestamp, Value: row.Values[name]})
	}
	h.mu.Unlock()

	h.appended.Set(row)
	return row
}

// Series returns the points of one series, oldest first, or nil for an
// unknown name.
func (h *History) Series(name string) []Point {
	h.mu.RLock()
	defer h.mu.RUnlock()

	series, ok := h.series[name]
	if !ok {
		return nil
	}
	return series.Values()
}

// Recent returns up to n of the newest points of one series, oldest first,
// or nil for an unknown name.
func (h *History) Recent(name string, n int) []Point {
	h.mu.RLock()
	defer h.mu.RUnlock()

	series, ok := h.series[name]
	if !ok {
		return nil
	}
	return series.LastN(n)
}

// Latest returns the newest point of one series.
func (h *History) Latest(name string) (Point, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	series, ok := h.series[name]
	if !ok {
		return Point{}, false
	}
	return series.Latest()
}

// Values returns the bare values of one series, oldest first.
func (h *History) Values(name string) []float64 {
	points := h.Series(name)
	if points == nil {
		return nil
	}
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// Names returns the series names in display order.
func (h *History) Names() []string {
	out := make([]string, len(seriesNames))
	copy(out, seriesNames)
	return out
}

// Len returns the number of rows held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.series[SeriesCPUPercent].Len()
}

// Cap returns the per-series capacity.
func (h *History) Cap() int {
	return h.capacity
}

// Subscribe calls fn with each appended row.
func (h *History) Subscribe(fn func(Row)) func() {
	return h.appended.Subscribe(fn)
}

// Clear empties every series.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, series := range h.series {
		series.Clear()
	}
}

// Close drops every subscriber.
func (h *History) Close() {
	h.appended.Close()
}
