// Package metrics collects worker liveness counters and periodically
// reports them to Redis for centralized access.
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// redisKey is where the worker's metrics snapshot lives.
	redisKey = "metrics:alert-worker"
	// snapshotTTL is how long a snapshot stays in Redis if not refreshed.
	snapshotTTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing snapshots.
	DefaultReportInterval = 30 * time.Second
)

// Recorder is the interface the pipeline records through.
type Recorder interface {
	RecordReceived()
	RecordProcessed(latency time.Duration)
	RecordError()
	IncrementCustom(name string)
}

// NoOp is a Recorder that discards everything; used when no Redis address
// is configured.
type NoOp struct{}

func (NoOp) RecordReceived()               {}
func (NoOp) RecordProcessed(time.Duration) {}
func (NoOp) RecordError()                  {}
func (NoOp) IncrementCustom(string)        {}

// WorkerMetrics is the JSON snapshot written to Redis.
type WorkerMetrics struct {
	StartedAt              time.Time         `json:"started_at"`
	LastUpdated            time.Time         `json:"last_updated"`
	EventsReceived         uint64            `json:"events_received"`
	EventsProcessed        uint64            `json:"events_processed"`
	ProcessingErrors       uint64            `json:"processing_errors"`
	AvgProcessingLatencyNs float64           `json:"avg_processing_latency_ns"`
	CustomCounters         map[string]uint64 `json:"custom_counters,omitempty"`
}

// Collector is the Redis-reporting Recorder.
type Collector struct {
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	eventsReceived   atomic.Uint64
	eventsProcessed  atomic.Uint64
	processingErrors atomic.Uint64
	totalLatencyNs   atomic.Uint64
	latencyCount     atomic.Uint64

	customMu       sync.RWMutex
	customCounters map[string]*atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a collector that reports to the given Redis client.
func NewCollector(redisClient *redis.Client) *Collector {
	return &Collector{
		redis:          redisClient,
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		customCounters: make(map[string]*atomic.Uint64),
		stopCh:         make(chan struct{}),
	}
}

// Start begins periodic snapshot reporting until ctx is cancelled or Stop
// is called.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				c.write(context.Background())
				return
			case <-c.stopCh:
				c.write(context.Background())
				return
			case <-ticker.C:
				c.write(ctx)
			}
		}
	}()
}

// Stop stops the reporting goroutine after a final write.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) RecordReceived() {
	c.eventsReceived.Add(1)
}

func (c *Collector) RecordProcessed(latency time.Duration) {
	c.eventsProcessed.Add(1)
	c.totalLatencyNs.Add(uint64(latency.Nanoseconds()))
	c.latencyCount.Add(1)
}

func (c *Collector) RecordError() {
	c.processingErrors.Add(1)
}

func (c *Collector) IncrementCustom(name string) {
	c.customMu.RLock()
	counter, exists := c.customCounters[name]
	c.customMu.RUnlock()

	if !exists {
		c.customMu.Lock()
		if counter, exists = c.customCounters[name]; !exists {
			counter = &atomic.Uint64{}
			c.customCounters[name] = counter
		}
		c.customMu.Unlock()
	}
	counter.Add(1)
}

// Counters returns a flat view of all counters, for the heartbeat log line.
func (c *Collector) Counters() map[string]uint64 {
	counters := map[string]uint64{
		"events_received":   c.eventsReceived.Load(),
		"events_processed":  c.eventsProcessed.Load(),
		"processing_errors": c.processingErrors.Load(),
	}
	c.customMu.RLock()
	for name, counter := range c.customCounters {
		counters[name] = counter.Load()
	}
	c.customMu.RUnlock()
	return counters
}

// Snapshot returns the current metrics without writing to Redis.
func (c *Collector) Snapshot() *WorkerMetrics {
	var avgLatencyNs float64
	if n := c.latencyCount.Load(); n > 0 {
		avgLatencyNs = float64(c.totalLatencyNs.Load()) / float64(n)
	}

	c.customMu.RLock()
	custom := make(map[string]uint64, len(c.customCounters))
	for name, counter := range c.customCounters {
		custom[name] = counter.Load()
	}
	c.customMu.RUnlock()

	return &WorkerMetrics{
		StartedAt:              c.startedAt,
		LastUpdated:            time.Now().UTC(),
		EventsReceived:         c.eventsReceived.Load(),
		EventsProcessed:        c.eventsProcessed.Load(),
		ProcessingErrors:       c.processingErrors.Load(),
		AvgProcessingLatencyNs: avgLatencyNs,
		CustomCounters:         custom,
	}
}

func (c *Collector) write(ctx context.Context) {
	snapshot := c.Snapshot()
	data, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("Failed to marshal metrics snapshot", "error", err)
		return
	}
	if err := c.redis.Set(ctx, redisKey, data, snapshotTTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "error", err)
	}
}
