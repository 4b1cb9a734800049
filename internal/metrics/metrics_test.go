package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector(nil)

	c.RecordReceived()
	c.RecordReceived()
	c.RecordProcessed(10 * time.Millisecond)
	c.RecordError()
	c.IncrementCustom("triggers_delivered")
	c.IncrementCustom("triggers_delivered")
	c.IncrementCustom("delivery_failures")

	counters := c.Counters()
	want := map[string]uint64{
		"events_received":    2,
		"events_processed":   1,
		"processing_errors":  1,
		"triggers_delivered": 2,
		"delivery_failures":  1,
	}
	for name, wantCount := range want {
		if counters[name] != wantCount {
			t.Errorf("Counters()[%q] = %d, want %d", name, counters[name], wantCount)
		}
	}
}

func TestCollector_SnapshotLatency(t *testing.T) {
	c := NewCollector(nil)

	c.RecordProcessed(10 * time.Millisecond)
	c.RecordProcessed(30 * time.Millisecond)

	snapshot := c.Snapshot()
	if snapshot.EventsProcessed != 2 {
		t.Errorf("EventsProcessed = %d, want 2", snapshot.EventsProcessed)
	}
	wantAvg := float64(20 * time.Millisecond)
	if snapshot.AvgProcessingLatencyNs != wantAvg {
		t.Errorf("AvgProcessingLatencyNs = %f, want %f", snapshot.AvgProcessingLatencyNs, wantAvg)
	}
}

func TestCollector_SnapshotZeroLatency(t *testing.T) {
	c := NewCollector(nil)
	if avg := c.Snapshot().AvgProcessingLatencyNs; avg != 0 {
		t.Errorf("AvgProcessingLatencyNs = %f with no samples, want 0", avg)
	}
}

func TestCollector_ConcurrentIncrementCustom(t *testing.T) {
	c := NewCollector(nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.IncrementCustom("shared")
			}
		}()
	}
	wg.Wait()

	if got := c.Counters()["shared"]; got != 1600 {
		t.Errorf("Counters()[\"shared\"] = %d, want 1600", got)
	}
}
