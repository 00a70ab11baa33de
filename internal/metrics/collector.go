package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// SystemMetrics holds a process and engine snapshot
type SystemMetrics struct {
	CPUPercent        float64 `json:"cpuPercent"`        // System-wide CPU usage (0-100%)
	ProcessCPUPercent float64 `json:"processCpuPercent"` // This process, can exceed 100% on multi-core
	ProcessRSSMB      float64 `json:"processRssMb"`
	MemoryUsedGB      float64 `json:"memoryUsedGb"`
	MemoryTotalGB     float64 `json:"memoryTotalGb"`
	MemoryPercent     float64 `json:"memoryPercent"`
	Threads           int     `json:"threads,omitempty"`

	// Engine counters reported by the StatsFunc
	Engine map[string]any `json:"engine,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// StatsFunc reports application counters to log alongside system metrics
type StatsFunc func() map[string]any

// Collector periodically collects and logs system metrics
type Collector struct {
	interval    time.Duration
	logger      *zap.Logger
	proc        *process.Process
	stats       StatsFunc
	mu          sync.RWMutex
	lastMetrics *SystemMetrics
}

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}

	// Get handle to current process for CPU tracking
	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
	}
}

// WithStats attaches an application counter source
func (c *Collector) WithStats(fn StatsFunc) *Collector {
	c.stats = fn
	return c
}

// Interval returns the collection interval
func (c *Collector) Interval() time.Duration {
	return c.interval
}

// Start begins periodic metrics collection. Returns when context is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// GetMetrics returns the last collected metrics
func (c *Collector) GetMetrics() *SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

// Collect gathers current metrics, stores and logs them
func (c *Collector) Collect() *SystemMetrics {
	metrics := &SystemMetrics{
		Timestamp: time.Now(),
	}

	// System-wide CPU percentage
	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		metrics.CPUPercent = cpuPercent[0]
	}

	if c.proc != nil {
		if procCPU, err := c.proc.Percent(0); err == nil {
			metrics.ProcessCPUPercent = procCPU
		}
		if info, err := c.proc.MemoryInfo(); err == nil {
			metrics.ProcessRSSMB = float64(info.RSS) / (1024 * 1024)
		}
		if n, err := c.proc.NumThreads(); err == nil {
			metrics.Threads = int(n)
		}
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		metrics.MemoryPercent = vmem.UsedPercent
		metrics.MemoryUsedGB = float64(vmem.Used) / (1024 * 1024 * 1024)
		metrics.MemoryTotalGB = float64(vmem.Total) / (1024 * 1024 * 1024)
	}

	if c.stats != nil {
		metrics.Engine = c.stats()
	}

	c.mu.Lock()
	c.lastMetrics = metrics
	c.mu.Unlock()

	fields := []zap.Field{
		zap.Float64("sys_cpu", metrics.CPUPercent),
		zap.Float64("proc_cpu", metrics.ProcessCPUPercent),
		zap.String("proc_rss", formatMB(metrics.ProcessRSSMB)),
		zap.Float64("mem_pct", metrics.MemoryPercent),
		zap.String("mem_used", formatGB(metrics.MemoryUsedGB)),
	}
	if len(metrics.Engine) > 0 {
		fields = append(fields, zap.Any("engine", metrics.Engine))
	}
	c.logger.Info("System metrics", fields...)

	return metrics
}

func formatGB(gb float64) string {
	return fmt.Sprintf("%.1f GB", gb)
}

func formatMB(mb float64) string {
	return fmt.Sprintf("%.1f MB", mb)
}
