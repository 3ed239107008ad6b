package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ragmetrics"

// Exporter exposes the current snapshot in Prometheus format. It takes one
// snapshot per scrape so every gauge in a scrape is consistent.
type Exporter struct {
	source   SnapshotSource
	now      func() time.Time
	registry *prometheus.Registry

	cpuPercent    *prometheus.Desc
	memoryPercent *prometheus.Desc
	diskPercent   *prometheus.Desc
	connections   *prometheus.Desc
	ragRequests   *prometheus.Desc
	ragErrors     *prometheus.Desc
	ragLatency    *prometheus.Desc
	cacheHitRate  *prometheus.Desc
	llmTokens     *prometheus.Desc
	llmCost       *prometheus.Desc
	uptimeSeconds *prometheus.Desc
}

// NewExporter creates an Exporter registered on its own registry.
func NewExporter(source SnapshotSource) *Exporter {
	e := &Exporter{
		source: source,
		now:    time.Now,

		cpuPercent:    newDesc("system", "cpu_percent", "Host CPU usage percent.", nil),
		memoryPercent: newDesc("system", "memory_percent", "Host memory usage percent.", nil),
		diskPercent:   newDesc("system", "disk_percent", "Disk usage percent of the monitored mount.", nil),
		connections:   newDesc("websocket", "connections", "Open WebSocket connections by kind.", []string{"kind"}),
		ragRequests:   newDesc("rag", "requests_total", "RAG pipeline requests.", nil),
		ragErrors:     newDesc("rag", "errors_total", "Failed RAG pipeline requests.", nil),
		ragLatency:    newDesc("rag", "latency_ms", "RAG latency over the sample window.", []string{"quantile"}),
		cacheHitRate:  newDesc("cache", "hit_rate_percent", "Cache hit rate by cache.", []string{"cache"}),
		llmTokens:     newDesc("llm", "tokens_total", "LLM tokens by model and kind.", []string{"model", "kind"}),
		llmCost:       newDesc("llm", "cost_usd_total", "LLM spend in USD by model.", []string{"model"}),
		uptimeSeconds: newDesc("", "uptime_seconds", "Seconds since the relay started.", nil),
	}

	e.registry = prometheus.NewRegistry()
	e.registry.MustRegister(e)
	return e
}

func newDesc(subsystem, name, help string, labels []string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
}

// Handler serves the registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the exporter's registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		e.cpuPercent, e.memoryPercent, e.diskPercent, e.connections,
		e.ragRequests, e.ragErrors, e.ragLatency, e.cacheHitRate,
		e.llmTokens, e.llmCost, e.uptimeSeconds,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.source.Snapshot(e.now())

	gauge := func(desc *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, labels...)
	}
	counter := func(desc *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, v, labels...)
	}

	gauge(e.uptimeSeconds, s.UptimeSeconds)
	gauge(e.cpuPercent, s.System.CPUPercent)
	gauge(e.memoryPercent, s.System.MemoryPercent)
	gauge(e.diskPercent, s.System.DiskPercent)

	gauge(e.connections, float64(s.WebSocket.ChatConnections), string(ConnectionChat))
	gauge(e.connections, float64(s.WebSocket.MetricsConnections), string(ConnectionMetrics))

	counter(e.ragRequests, float64(s.RAG.Requests))
	counter(e.ragErrors, float64(s.RAG.Errors))
	gauge(e.ragLatency, s.RAG.LatencyMS.P50, "0.5")
	gauge(e.ragLatency, s.RAG.LatencyMS.P95, "0.95")
	gauge(e.ragLatency, s.RAG.LatencyMS.P99, "0.99")

	gauge(e.cacheHitRate, s.Cache.HitRate, "all")
	for name, stats := range s.Cache.ByCache {
		if name == "all" {
			continue
		}
		gauge(e.cacheHitRate, stats.HitRate, name)
	}

	for model, usage := range s.LLM.ByModel {
		counter(e.llmTokens, float64(usage.PromptTokens), model, "prompt")
		counter(e.llmTokens, float64(usage.CompletionTokens), model, "completion")
		counter(e.llmCost, usage.CostUSD, model)
	}
}
