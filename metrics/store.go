package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Store is the in-memory aggregate behind every snapshot. It is safe for
// concurrent use by the RAG pipeline, the WebSocket handlers and the system
// collector.
//
//	store := NewStore(DefaultStoreConfig(), time.Now())
//	store.RecordRAGQuery(120*time.Millisecond, nil)
//	snapshot := store.Snapshot(time.Now())
type Store struct {
	mu sync.RWMutex

	// RAG latency window (ring buffer of milliseconds)
	latencies []float64
	latHead   int
	latSize   int

	ragRequests int64
	ragErrors   int64

	cache map[string]*CacheStats
	llm   map[string]*TokenUsage

	chatConns    int64
	metricsConns int64
	totalConns   int64

	system SystemMetrics

	prices    PriceTable
	startTime time.Time
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// LatencyWindow is the number of recent RAG latencies used for percentiles.
	LatencyWindow int
	// Prices converts LLM token usage to cost.
	Prices PriceTable
}

// DefaultStoreConfig returns a 1000-sample latency window and the default prices.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		LatencyWindow: 1000,
		Prices:        DefaultPriceTable(),
	}
}

// NewStore creates a Store. startTime is used to compute uptime.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	window := config.LatencyWindow
	if window < 1 {
		window = 1000
	}
	prices := config.Prices
	if prices == nil {
		prices = PriceTable{}
	}

	return &Store{
		latencies: make([]float64, window),
		cache:     make(map[string]*CacheStats),
		llm:       make(map[string]*TokenUsage),
		prices:    prices,
		startTime: startTime,
	}
}

// RecordRAGQuery records one pipeline request. Failed requests count as
// errors but their latency is still sampled.
func (s *Store) RecordRAGQuery(duration time.Duration, err error) {
	ms := float64(duration) / float64(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.latencies[s.latHead] = ms
	s.latHead = (s.latHead + 1) % len(s.latencies)
	if s.latSize < len(s.latencies) {
		s.latSize++
	}

	s.ragRequests++
	if err != nil {
		s.ragErrors++
	}
}

// RecordCacheLookup records a hit or miss on the named cache.
func (s *Store) RecordCacheLookup(cache string, hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.cache[cache]
	if !ok {
		stats = &CacheStats{}
		s.cache[cache] = stats
	}
	if hit {
		stats.Hits++
	} else {
		stats.Misses++
	}
}

// RecordLLMUsage adds one completion's token usage. Cost comes from the
// price table.
func (s *Store) RecordLLMUsage(model string, usage Usage) {
	cost := s.prices.Cost(model, usage)

	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.llm[model]
	if !ok {
		stats = &TokenUsage{}
		s.llm[model] = stats
	}
	stats.Requests++
	stats.PromptTokens += int64(usage.PromptTokens)
	stats.CompletionTokens += int64(usage.CompletionTokens)
	total := usage.TotalTokens
	if total == 0 {
		total = usage.PromptTokens + usage.CompletionTokens
	}
	stats.TotalTokens += int64(total)
	stats.CostUSD += cost
}

// ConnectionOpened increments the gauge for kind.
func (s *Store) ConnectionOpened(kind ConnectionKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalConns++
	switch kind {
	case ConnectionChat:
		s.chatConns++
	case ConnectionMetrics:
		s.metricsConns++
	}
}

// ConnectionClosed decrements the gauge for kind, never below zero.
func (s *Store) ConnectionClosed(kind ConnectionKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case ConnectionChat:
		if s.chatConns > 0 {
			s.chatConns--
		}
	case ConnectionMetrics:
		if s.metricsConns > 0 {
			s.metricsConns--
		}
	}
}

// UpdateSystem replaces the host resource gauges.
func (s *Store) UpdateSystem(system SystemMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.system = system
}

// Snapshot builds an independent MetricsSnapshot of the current state.
func (s *Store) Snapshot(now time.Time) MetricsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := MetricsSnapshot{
		Timestamp:     now,
		UptimeSeconds: now.Sub(s.startTime).Seconds(),
		System:        s.system,
		WebSocket: WebSocketMetrics{
			ActiveConnections:  s.chatConns + s.metricsConns,
			TotalConnections:   s.totalConns,
			ChatConnections:    s.chatConns,
			MetricsConnections: s.metricsConns,
		},
		RAG: RAGMetrics{
			Requests:  s.ragRequests,
			Errors:    s.ragErrors,
			LatencyMS: latencyPercentiles(s.latencies[:s.latSize]),
		},
	}

	if len(s.cache) > 0 {
		snapshot.Cache.ByCache = make(map[string]CacheStats, len(s.cache))
	}
	for name, stats := range s.cache {
		entry := *stats
		entry.HitRate = hitRate(entry.Hits, entry.Misses)
		snapshot.Cache.ByCache[name] = entry
		snapshot.Cache.Hits += entry.Hits
		snapshot.Cache.Misses += entry.Misses
	}
	snapshot.Cache.HitRate = hitRate(snapshot.Cache.Hits, snapshot.Cache.Misses)

	if len(s.llm) > 0 {
		snapshot.LLM.ByModel = make(map[string]TokenUsage, len(s.llm))
	}
	for model, stats := range s.llm {
		snapshot.LLM.ByModel[model] = *stats
		snapshot.LLM.Requests += stats.Requests
		snapshot.LLM.PromptTokens += stats.PromptTokens
		snapshot.LLM.CompletionTokens += stats.CompletionTokens
		snapshot.LLM.TotalTokens += stats.TotalTokens
		snapshot.LLM.CostUSD += stats.CostUSD
	}

	return snapshot
}

// latencyPercentiles computes nearest-rank percentiles over samples.
// The ring order does not matter since the samples are sorted.
func latencyPercentiles(samples []float64) LatencyPercentiles {
	if len(samples) == 0 {
		return LatencyPercentiles{}
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return LatencyPercentiles{
		P50: nearestRank(sorted, 50),
		P95: nearestRank(sorted, 95),
		P99: nearestRank(sorted, 99),
		Avg: sum / float64(len(sorted)),
	}
}

// nearestRank returns the p-th percentile of an ascending slice.
func nearestRank(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
