package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemReader reads host resource gauges.
type SystemReader interface {
	ReadSystemMetrics(ctx context.Context) (SystemMetrics, error)
}

// SystemCollectorConfig configures the SystemCollector behavior.
type SystemCollectorConfig struct {
	// CollectionInterval is how often to sample
	CollectionInterval time.Duration

	// DiskPath is the mount point whose usage is reported
	DiskPath string
}

// DefaultSystemCollectorConfig returns a default configuration.
func DefaultSystemCollectorConfig() SystemCollectorConfig {
	return SystemCollectorConfig{
		CollectionInterval: 5 * time.Second,
		DiskPath:           "/",
	}
}

// SystemCollector periodically samples CPU, memory and disk usage and hands
// each sample to a callback, normally Store.UpdateSystem.
type SystemCollector struct {
	mu sync.RWMutex

	config SystemCollectorConfig
	reader SystemReader

	available bool
	lastError error

	onSample func(SystemMetrics)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSystemCollector creates a collector. A nil reader uses gopsutil.
func NewSystemCollector(config SystemCollectorConfig, reader SystemReader, onSample func(SystemMetrics)) *SystemCollector {
	if config.CollectionInterval < time.Second {
		config.CollectionInterval = 5 * time.Second
	}
	if config.DiskPath == "" {
		config.DiskPath = "/"
	}
	if reader == nil {
		reader = NewHostReader(config.DiskPath)
	}

	return &SystemCollector{
		config:   config,
		reader:   reader,
		onSample: onSample,
	}
}

// Start begins sampling in a background goroutine until ctx is cancelled or
// Stop is called.
func (c *SystemCollector) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.collectLoop(ctx)
}

// Stop halts sampling and blocks until the goroutine has exited.
func (c *SystemCollector) Stop() {
	c.mu.RLock()
	cancel := c.cancel
	c.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// IsAvailable returns true if the last sample succeeded.
func (c *SystemCollector) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// GetLastError returns the most recent sampling error, or nil.
func (c *SystemCollector) GetLastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *SystemCollector) collectLoop(ctx context.Context) {
	defer c.wg.Done()

	// Collect immediately on start
	c.collectOnce(ctx)

	ticker := time.NewTicker(c.config.CollectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collectOnce(ctx)
		}
	}
}

func (c *SystemCollector) collectOnce(ctx context.Context) {
	sample, err := c.reader.ReadSystemMetrics(ctx)

	c.mu.Lock()
	c.available = err == nil
	c.lastError = err
	c.mu.Unlock()

	// Invoke callback outside of lock
	if c.onSample != nil && err == nil {
		c.onSample(sample)
	}
}

// HostReader reads gauges of the local machine through gopsutil.
type HostReader struct {
	diskPath string
}

// NewHostReader creates a reader reporting disk usage for diskPath.
func NewHostReader(diskPath string) *HostReader {
	return &HostReader{diskPath: diskPath}
}

// ReadSystemMetrics samples CPU usage since the previous call, memory usage
// and disk usage. A failure on any gauge fails the whole sample.
func (r *HostReader) ReadSystemMetrics(ctx context.Context) (SystemMetrics, error) {
	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return SystemMetrics{}, fmt.Errorf("read cpu: %w", err)
	}
	var cpuPercent float64
	if len(cpuPercents) > 0 {
		cpuPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return SystemMetrics{}, fmt.Errorf("read memory: %w", err)
	}

	usage, err := disk.UsageWithContext(ctx, r.diskPath)
	if err != nil {
		return SystemMetrics{}, fmt.Errorf("read disk %s: %w", r.diskPath, err)
	}

	return SystemMetrics{
		CPUPercent:    cpuPercent,
		MemoryPercent: vm.UsedPercent,
		DiskPercent:   usage.UsedPercent,
	}, nil
}

// MockSystemReader is a SystemReader for tests.
type MockSystemReader struct {
	mu      sync.Mutex
	metrics SystemMetrics
	err     error
	calls   int
}

// NewMockSystemReader creates a mock returning metrics.
func NewMockSystemReader(metrics SystemMetrics) *MockSystemReader {
	return &MockSystemReader{metrics: metrics}
}

// SetMetrics updates the metrics returned by this mock.
func (m *MockSystemReader) SetMetrics(metrics SystemMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = metrics
}

// SetError sets an error to be returned by ReadSystemMetrics.
func (m *MockSystemReader) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// ReadSystemMetrics returns the configured metrics or error.
func (m *MockSystemReader) ReadSystemMetrics(ctx context.Context) (SystemMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return SystemMetrics{}, m.err
	}
	return m.metrics, nil
}

// CallCount returns the number of reads.
func (m *MockSystemReader) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
