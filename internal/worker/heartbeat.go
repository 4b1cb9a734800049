package worker

import (
	"context"
	"log/slog"
	"time"
)

// DefaultHeartbeatInterval is the liveness log cadence.
const DefaultHeartbeatInterval = 30 * time.Second

// RunHeartbeat emits a fixed-interval liveness log line, independent of
// event traffic, until ctx is cancelled. stats, when non-nil, supplies
// counters for the line. The heartbeat runs on its own timer so a hung
// external dependency cannot stall it.
func RunHeartbeat(ctx context.Context, interval time.Duration, stats func() map[string]uint64) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Heartbeat stopped")
			return
		case <-ticker.C:
			if stats != nil {
				slog.Info("Alert worker alive", "counters", stats())
			} else {
				slog.Info("Alert worker alive")
			}
		}
	}
}
