package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDefaultSystemCollectorConfig(t *testing.T) {
	config := DefaultSystemCollectorConfig()

	if config.CollectionInterval != 5*time.Second {
		t.Errorf("expected CollectionInterval 5s, got %v", config.CollectionInterval)
	}
	if config.DiskPath != "/" {
		t.Errorf("expected DiskPath '/', got %s", config.DiskPath)
	}
}

func TestNewSystemCollector_NormalizesConfig(t *testing.T) {
	collector := NewSystemCollector(SystemCollectorConfig{CollectionInterval: 10 * time.Millisecond}, nil, nil)

	if collector.config.CollectionInterval != 5*time.Second {
		t.Errorf("expected CollectionInterval 5s, got %v", collector.config.CollectionInterval)
	}
	if collector.config.DiskPath != "/" {
		t.Errorf("expected DiskPath '/', got %s", collector.config.DiskPath)
	}
	if _, ok := collector.reader.(*HostReader); !ok {
		t.Errorf("default reader = %T, want *HostReader", collector.reader)
	}
}

func TestSystemCollector_WithMockReader(t *testing.T) {
	expected := SystemMetrics{CPUPercent: 37.5, MemoryPercent: 61, DiskPercent: 44}
	reader := NewMockSystemReader(expected)

	var mu sync.Mutex
	var received []SystemMetrics
	collector := NewSystemCollector(SystemCollectorConfig{CollectionInterval: time.Second}, reader, func(m SystemMetrics) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, m)
	})

	collector.Start(context.Background())
	defer collector.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for reader.CallCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	collector.Stop()

	if !collector.IsAvailable() {
		t.Error("IsAvailable() = false after successful read")
	}
	if err := collector.GetLastError(); err != nil {
		t.Errorf("GetLastError() = %v, want nil", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) == 0 || received[0] != expected {
		t.Errorf("callback received %+v, want first sample %+v", received, expected)
	}
}

func TestSystemCollector_ErrorThenRecovery(t *testing.T) {
	good := SystemMetrics{CPUPercent: 10}
	reader := NewMockSystemReader(good)
	calls := 0
	collector := NewSystemCollector(DefaultSystemCollectorConfig(), reader, func(SystemMetrics) { calls++ })

	ctx := context.Background()
	collector.collectOnce(ctx)

	reader.SetError(errors.New("proc unavailable"))
	collector.collectOnce(ctx)

	if collector.IsAvailable() {
		t.Error("IsAvailable() = true after failed read")
	}
	if collector.GetLastError() == nil {
		t.Error("GetLastError() = nil after failed read")
	}
	if calls != 1 {
		t.Errorf("callback calls = %d, want 1 (not invoked on error)", calls)
	}

	reader.SetError(nil)
	collector.collectOnce(ctx)
	if !collector.IsAvailable() || collector.GetLastError() != nil {
		t.Errorf("after recovery available=%v err=%v, want true and nil", collector.IsAvailable(), collector.GetLastError())
	}
	if calls != 2 {
		t.Errorf("callback calls = %d, want 2", calls)
	}
}

func TestSystemCollector_StopWithoutStart(t *testing.T) {
	collector := NewSystemCollector(DefaultSystemCollectorConfig(), NewMockSystemReader(SystemMetrics{}), nil)
	collector.Stop()
}
