package infrastructure

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeStats is a snapshot of the Go runtime
type RuntimeStats struct {
	Goroutines    int64         `json:"goroutines"`
	HeapAlloc     int64         `json:"heap_alloc_bytes"`
	SystemMemory  int64         `json:"system_memory_bytes"`
	GCCount       uint32        `json:"gc_count"`
	LastGCPause   time.Duration `json:"last_gc_pause_ns"`
	ProcessUptime time.Duration `json:"uptime_ns"`
	Timestamp     time.Time     `json:"timestamp"`
}

// RuntimeCollector periodically records runtime gauges
type RuntimeCollector struct {
	startTime time.Time
	interval  time.Duration

	goroutines   metric.Int64Gauge
	heapAlloc    metric.Int64Gauge
	systemMemory metric.Int64Gauge
	gcPause      metric.Float64Histogram
	uptime       metric.Float64Gauge
}

// NewRuntimeCollector registers the runtime instruments on meter
func NewRuntimeCollector(meter metric.Meter, interval time.Duration) (*RuntimeCollector, error) {
	c := &RuntimeCollector{startTime: time.Now(), interval: interval}
	var err error

	if c.goroutines, err = meter.Int64Gauge("runtime_goroutines",
		metric.WithDescription("Number of active goroutines")); err != nil {
		return nil, fmt.Errorf("failed to create runtime metrics: %w", err)
	}
	if c.heapAlloc, err = meter.Int64Gauge("runtime_heap_alloc_bytes",
		metric.WithDescription("Bytes of allocated heap objects"),
		metric.WithUnit("By")); err != nil {
		return nil, fmt.Errorf("failed to create runtime metrics: %w", err)
	}
	if c.systemMemory, err = meter.Int64Gauge("runtime_system_memory_bytes",
		metric.WithDescription("Memory obtained from the OS in bytes"),
		metric.WithUnit("By")); err != nil {
		return nil, fmt.Errorf("failed to create runtime metrics: %w", err)
	}
	if c.gcPause, err = meter.Float64Histogram("runtime_gc_pause_seconds",
		metric.WithDescription("Garbage collection pause duration"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create runtime metrics: %w", err)
	}
	if c.uptime, err = meter.Float64Gauge("process_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create runtime metrics: %w", err)
	}

	return c, nil
}

// Collect takes a snapshot and records it
func (c *RuntimeCollector) Collect(ctx context.Context) RuntimeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := RuntimeStats{
		Goroutines:    int64(runtime.NumGoroutine()),
		HeapAlloc:     int64(mem.HeapAlloc),
		SystemMemory:  int64(mem.Sys),
		GCCount:       mem.NumGC,
		LastGCPause:   time.Duration(mem.PauseNs[(mem.NumGC+255)%256]),
		ProcessUptime: time.Since(c.startTime),
		Timestamp:     time.Now(),
	}

	c.goroutines.Record(ctx, stats.Goroutines)
	c.heapAlloc.Record(ctx, stats.HeapAlloc)
	c.systemMemory.Record(ctx, stats.SystemMemory)
	c.uptime.Record(ctx, stats.ProcessUptime.Seconds())
	if stats.LastGCPause > 0 {
		c.gcPause.Record(ctx, stats.LastGCPause.Seconds())
	}

	return stats
}

// Run collects every interval until ctx is done
func (c *RuntimeCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.Collect(ctx)
		case <-ctx.Done():
			return
		}
	}
}
