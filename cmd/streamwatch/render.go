package main

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/guptarohit/asciigraph"

	"ragmetrics/metrics"
	"ragmetrics/stream"
)

const chartHeight = 5

// watcher prints state transitions and redraws charts as rows arrive.
// Callbacks come from the manager's goroutines, so output is serialized.
type watcher struct {
	mu      sync.Mutex
	out     io.Writer
	history *stream.History
	width   int
	last    stream.Status
	started bool
}

func newWatcher(out io.Writer, history *stream.History, width int) *watcher {
	return &watcher{out: out, history: history, width: width}
}

func (w *watcher) stateChanged(s stream.ConnectionState) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started && s.Status == w.last && !s.Terminal {
		return
	}
	w.started = true
	w.last = s.Status
	printState(w.out, s)

	if s.Status == stream.StatusDisconnected {
		if p, ok := w.history.Latest(stream.SeriesCPUPercent); ok {
			color.New(color.FgHiBlack).Fprintf(w.out, "  last sample %s\n", p.Timestamp.Local().Format(time.TimeOnly))
		}
	}
}

func (w *watcher) rowAppended(row stream.Row) {
	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Fprintln(w.out)
	color.New(color.FgCyan, color.Bold).Fprintf(w.out, "━━━ %s ━━━\n", row.Timestamp.Local().Format(time.TimeOnly))
	fmt.Fprintln(w.out, renderChart("CPU", w.recent(stream.SeriesCPUPercent), w.width, "%"))
	fmt.Fprintln(w.out, renderChart("RAG p95", w.recent(stream.SeriesRAGP95), w.width, "ms"))
	fmt.Fprintf(w.out, "  connections: %.0f  cache hit rate: %.1f%%  llm cost: $%.4f\n",
		row.Values[stream.SeriesActiveConnections],
		row.Values[stream.SeriesCacheHitRate],
		row.Values[stream.SeriesLLMCostUSD],
	)
}

// recent returns as many of the newest values of a series as fit the plot.
func (w *watcher) recent(name string) []float64 {
	points := w.history.Recent(name, plotWidth(w.width))
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// plotWidth is the chart width left after the Y-axis labels, which take
// about nine columns.
func plotWidth(width int) int {
	return max(width-9, 10)
}

// printState writes one colored line for a connection state.
func printState(out io.Writer, s stream.ConnectionState) {
	var icon string
	var clr *color.Color

	switch {
	case s.Status == stream.StatusConnected:
		icon = "●"
		clr = color.New(color.FgGreen)
	case s.Status == stream.StatusConnecting:
		icon = "◌"
		clr = color.New(color.FgYellow)
	case s.Terminal && s.LastError != "":
		icon = "✗"
		clr = color.New(color.FgRed)
	default:
		icon = "○"
		clr = color.New(color.FgHiBlack)
	}

	clr.Fprintf(out, "%s %s", icon, s.Status)
	if s.Attempts > 0 && !s.Terminal {
		color.New(color.FgHiBlack).Fprintf(out, " (attempt %d)", s.Attempts)
	}
	if s.LastError != "" {
		color.New(color.FgHiBlack).Fprintf(out, " - %s", s.LastError)
	}
	fmt.Fprintln(out)
}

// renderChart draws a single-series sparkline with a summary line.
func renderChart(label string, data []float64, width int, suffix string) string {
	if len(data) == 0 {
		return label + ": no data"
	}

	chart := asciigraph.Plot(data,
		asciigraph.Height(chartHeight),
		asciigraph.Width(plotWidth(width)),
		asciigraph.Precision(1),
		asciigraph.Caption(label),
	)

	lo, hi := minMax(data)
	return fmt.Sprintf("%s\n  cur: %.1f%s  min: %.1f%s  max: %.1f%s",
		chart, data[len(data)-1], suffix, lo, suffix, hi, suffix)
}

func minMax(data []float64) (lo, hi float64) {
	lo, hi = data[0], data[0]
	for _, v := range data[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

// printSummary writes a one-shot snapshot as text.
func printSummary(out io.Writer, s metrics.MetricsSnapshot) {
	header := color.New(color.FgCyan, color.Bold)
	header.Fprintf(out, "━━━ snapshot %s ━━━\n", s.Timestamp.Local().Format(time.RFC3339))

	fmt.Fprintf(out, "uptime      %s\n", (time.Duration(s.UptimeSeconds) * time.Second).String())
	fmt.Fprintf(out, "system      cpu %.1f%%  mem %.1f%%  disk %.1f%%\n",
		s.System.CPUPercent, s.System.MemoryPercent, s.System.DiskPercent)
	fmt.Fprintf(out, "websocket   active %d  chat %d  metrics %d  total %d\n",
		s.WebSocket.ActiveConnections, s.WebSocket.ChatConnections,
		s.WebSocket.MetricsConnections, s.WebSocket.TotalConnections)
	fmt.Fprintf(out, "rag         requests %d  errors %d  p50 %.1fms  p95 %.1fms  p99 %.1fms\n",
		s.RAG.Requests, s.RAG.Errors, s.RAG.LatencyMS.P50, s.RAG.LatencyMS.P95, s.RAG.LatencyMS.P99)
	fmt.Fprintf(out, "cache       hits %d  misses %d  hit rate %.1f%%\n",
		s.Cache.Hits, s.Cache.Misses, s.Cache.HitRate)
	fmt.Fprintf(out, "llm         requests %d  tokens %d  cost $%.4f\n",
		s.LLM.Requests, s.LLM.TotalTokens, s.LLM.CostUSD)

	models := make([]string, 0, len(s.LLM.ByModel))
	for model := range s.LLM.ByModel {
		models = append(models, model)
	}
	sort.Strings(models)
	for _, model := range models {
		usage := s.LLM.ByModel[model]
		fmt.Fprintf(out, "  %-22s tokens %d  cost $%.4f\n", model, usage.TotalTokens, usage.CostUSD)
	}
}
