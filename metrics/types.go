// Package metrics holds the snapshot data model of the RAG platform metrics
// feed, the in-process aggregator that produces snapshots, and the wire
// envelope shared by the relay server and its stream clients.
package metrics

import "time"

// MetricsSnapshot is a point-in-time aggregate of system, WebSocket, RAG,
// cache and LLM metrics. A snapshot is not modified after it is built;
// use Clone before handing it to code that might.
type MetricsSnapshot struct {
	Timestamp     time.Time        `json:"timestamp"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	System        SystemMetrics    `json:"system"`
	WebSocket     WebSocketMetrics `json:"websocket"`
	RAG           RAGMetrics       `json:"rag"`
	Cache         CacheMetrics     `json:"cache"`
	LLM           LLMMetrics       `json:"llm"`
}

// SystemMetrics are host resource gauges, each a percentage (0-100).
type SystemMetrics struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
}

// WebSocketMetrics counts open WebSocket connections by kind.
type WebSocketMetrics struct {
	ActiveConnections  int64 `json:"active_connections"`
	TotalConnections   int64 `json:"total_connections"`
	ChatConnections    int64 `json:"chat_connections"`
	MetricsConnections int64 `json:"metrics_connections"`
}

// RAGMetrics summarizes retrieval pipeline requests.
type RAGMetrics struct {
	Requests  int64              `json:"requests"`
	Errors    int64              `json:"errors"`
	LatencyMS LatencyPercentiles `json:"latency_ms"`
}

// LatencyPercentiles are in milliseconds.
type LatencyPercentiles struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Avg float64 `json:"avg"`
}

// CacheStats are hit/miss counters for one cache. HitRate is a percentage.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// CacheMetrics is the overall cache total plus a per-cache breakdown.
type CacheMetrics struct {
	CacheStats
	ByCache map[string]CacheStats `json:"by_cache,omitempty"`
}

// TokenUsage counts LLM tokens and their cost.
type TokenUsage struct {
	Requests         int64   `json:"requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// LLMMetrics is the LLM usage total plus a per-model breakdown.
type LLMMetrics struct {
	TokenUsage
	ByModel map[string]TokenUsage `json:"by_model,omitempty"`
}

// Cache names recorded by the RAG pipeline.
const (
	CacheEmbedding = "embedding"
	CacheRetrieval = "retrieval"
	CacheResponse  = "response"
)

// Clone returns a deep copy of the snapshot.
func (s MetricsSnapshot) Clone() MetricsSnapshot {
	out := s
	if s.Cache.ByCache != nil {
		out.Cache.ByCache = make(map[string]CacheStats, len(s.Cache.ByCache))
		for k, v := range s.Cache.ByCache {
			out.Cache.ByCache[k] = v
		}
	}
	if s.LLM.ByModel != nil {
		out.LLM.ByModel = make(map[string]TokenUsage, len(s.LLM.ByModel))
		for k, v := range s.LLM.ByModel {
			out.LLM.ByModel[k] = v
		}
	}
	return out
}

// hitRate returns hits/(hits+misses) as a percentage, 0 with no lookups.
func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}
