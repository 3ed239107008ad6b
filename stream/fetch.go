package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"ragmetrics/metrics"
)

// maxSnapshotBody bounds the fallback response body.
const maxSnapshotBody = 4 << 20

// FetchSnapshot performs one GET of metrics/snapshot with the identity
// headers and applies the result exactly like a streamed snapshot. It does
// not retry. A failure is recorded in the state's LastError and returned.
func (m *Manager) FetchSnapshot(ctx context.Context) (metrics.MetricsSnapshot, error) {
	m.mu.Lock()
	disposed := m.disposed
	m.mu.Unlock()
	if disposed {
		return metrics.MetricsSnapshot{}, ErrManagerDisposed
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.FetchTimeout)
		defer cancel()
	}

	snapshot, err := m.fetch(ctx)
	if err != nil {
		m.logger.Warn("snapshot fetch failed", zap.String("url", m.snapshotURL), zap.Error(err))
		m.recordError(err)
		return metrics.MetricsSnapshot{}, err
	}

	m.applySnapshot(snapshot)
	return snapshot, nil
}

func (m *Manager) fetch(ctx context.Context) (metrics.MetricsSnapshot, error) {
	var snapshot metrics.MetricsSnapshot

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.snapshotURL, nil)
	if err != nil {
		return snapshot, fmt.Errorf("fetch snapshot: %w", err)
	}
	for key, values := range m.config.header() {
		req.Header[key] = values
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return snapshot, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return snapshot, fmt.Errorf("fetch snapshot: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSnapshotBody)).Decode(&snapshot); err != nil {
		return snapshot, fmt.Errorf("fetch snapshot: decode: %w", err)
	}
	return snapshot, nil
}

func (m *Manager) recordError(err error) {
	m.mu.Lock()
	m.st.LastError = err.Error()
	update := m.stampLocked()
	disposed := m.disposed
	m.mu.Unlock()

	if !disposed {
		m.publish(update)
	}
}
