package metrics

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var storeStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewStore_Defaults(t *testing.T) {
	store := NewStore(StoreConfig{}, storeStart)

	if len(store.latencies) != 1000 {
		t.Errorf("latency window = %d, want 1000", len(store.latencies))
	}

	snapshot := store.Snapshot(storeStart.Add(90 * time.Second))
	if snapshot.UptimeSeconds != 90 {
		t.Errorf("UptimeSeconds = %v, want 90", snapshot.UptimeSeconds)
	}
	if snapshot.Cache.HitRate != 0 {
		t.Errorf("HitRate with no lookups = %v, want 0", snapshot.Cache.HitRate)
	}
	if snapshot.RAG.LatencyMS != (LatencyPercentiles{}) {
		t.Errorf("LatencyMS with no samples = %+v, want zero", snapshot.RAG.LatencyMS)
	}
}

func TestStore_RAGPercentiles_NearestRank(t *testing.T) {
	store := NewStore(DefaultStoreConfig(), storeStart)

	// 1..100 ms, recorded out of order
	for i := 100; i >= 1; i-- {
		var err error
		if i%10 == 0 {
			err = errors.New("retrieval timeout")
		}
		store.RecordRAGQuery(time.Duration(i)*time.Millisecond, err)
	}

	rag := store.Snapshot(storeStart).RAG
	want := RAGMetrics{
		Requests:  100,
		Errors:    10,
		LatencyMS: LatencyPercentiles{P50: 50, P95: 95, P99: 99, Avg: 50.5},
	}
	if diff := cmp.Diff(want, rag); diff != "" {
		t.Errorf("RAG mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_LatencyWindowEvictsOldest(t *testing.T) {
	store := NewStore(StoreConfig{LatencyWindow: 3}, storeStart)

	for _, ms := range []int{1000, 1000, 10, 20, 30} {
		store.RecordRAGQuery(time.Duration(ms)*time.Millisecond, nil)
	}

	rag := store.Snapshot(storeStart).RAG
	if rag.Requests != 5 {
		t.Errorf("Requests = %d, want 5", rag.Requests)
	}
	if rag.LatencyMS.P99 != 30 {
		t.Errorf("P99 = %v, want 30 (old samples evicted)", rag.LatencyMS.P99)
	}
	if rag.LatencyMS.Avg != 20 {
		t.Errorf("Avg = %v, want 20", rag.LatencyMS.Avg)
	}
}

func TestStore_CacheHitRates(t *testing.T) {
	store := NewStore(DefaultStoreConfig(), storeStart)

	store.RecordCacheLookup(CacheEmbedding, true)
	store.RecordCacheLookup(CacheEmbedding, true)
	store.RecordCacheLookup(CacheEmbedding, true)
	store.RecordCacheLookup(CacheEmbedding, false)
	store.RecordCacheLookup(CacheResponse, false)

	cache := store.Snapshot(storeStart).Cache
	want := CacheMetrics{
		CacheStats: CacheStats{Hits: 3, Misses: 2, HitRate: 60},
		ByCache: map[string]CacheStats{
			CacheEmbedding: {Hits: 3, Misses: 1, HitRate: 75},
			CacheResponse:  {Hits: 0, Misses: 1, HitRate: 0},
		},
	}
	if diff := cmp.Diff(want, cache); diff != "" {
		t.Errorf("Cache mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_LLMUsageAndCost(t *testing.T) {
	store := NewStore(StoreConfig{
		Prices: PriceTable{"gpt-4o": {PromptPer1K: 0.002, CompletionPer1K: 0.01}},
	}, storeStart)

	store.RecordLLMUsage("gpt-4o-2024-08-06", Usage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500})
	store.RecordLLMUsage("local-llama", Usage{PromptTokens: 10, CompletionTokens: 5})

	llm := store.Snapshot(storeStart).LLM

	if llm.Requests != 2 {
		t.Errorf("Requests = %d, want 2", llm.Requests)
	}
	if llm.TotalTokens != 1515 {
		t.Errorf("TotalTokens = %d, want 1515 (missing total derived from parts)", llm.TotalTokens)
	}
	if math.Abs(llm.CostUSD-0.007) > 1e-9 {
		t.Errorf("CostUSD = %v, want 0.007", llm.CostUSD)
	}
	if got := llm.ByModel["local-llama"].CostUSD; got != 0 {
		t.Errorf("unknown model cost = %v, want 0", got)
	}
}

func TestStore_Connections(t *testing.T) {
	store := NewStore(DefaultStoreConfig(), storeStart)

	store.ConnectionOpened(ConnectionChat)
	store.ConnectionOpened(ConnectionChat)
	store.ConnectionOpened(ConnectionMetrics)
	store.ConnectionClosed(ConnectionChat)
	store.ConnectionClosed(ConnectionMetrics)
	store.ConnectionClosed(ConnectionMetrics) // extra close must not go negative

	ws := store.Snapshot(storeStart).WebSocket
	want := WebSocketMetrics{ActiveConnections: 1, TotalConnections: 3, ChatConnections: 1, MetricsConnections: 0}
	if diff := cmp.Diff(want, ws); diff != "" {
		t.Errorf("WebSocket mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_SnapshotIsIndependent(t *testing.T) {
	store := NewStore(DefaultStoreConfig(), storeStart)
	store.RecordCacheLookup(CacheRetrieval, true)

	first := store.Snapshot(storeStart)
	store.RecordCacheLookup(CacheRetrieval, false)

	if first.Cache.ByCache[CacheRetrieval].Misses != 0 {
		t.Error("earlier snapshot changed after a later record")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore(DefaultStoreConfig(), storeStart)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.RecordRAGQuery(time.Millisecond, nil)
				store.RecordCacheLookup(CacheRetrieval, j%2 == 0)
				store.UpdateSystem(SystemMetrics{CPUPercent: float64(i)})
				_ = store.Snapshot(time.Now())
			}
		}(i)
	}
	wg.Wait()

	if got := store.Snapshot(time.Now()).RAG.Requests; got != 800 {
		t.Errorf("Requests = %d, want 800", got)
	}
}

func TestPriceTable_Lookup(t *testing.T) {
	table := PriceTable{
		"gpt-4o":      {PromptPer1K: 1},
		"gpt-4o-mini": {PromptPer1K: 2},
	}

	tests := []struct {
		model string
		want  float64
		found bool
	}{
		{"gpt-4o", 1, true},
		{"gpt-4o-mini-2024-07-18", 2, true},
		{"gpt-4o-2024-05-13", 1, true},
		{"claude", 0, false},
	}
	for _, tt := range tests {
		price, ok := table.Lookup(tt.model)
		if ok != tt.found || price.PromptPer1K != tt.want {
			t.Errorf("Lookup(%q) = %v, %v; want %v, %v", tt.model, price.PromptPer1K, ok, tt.want, tt.found)
		}
	}
}
