package ingest

import (
	"context"
	"log/slog"
	"time"
)

func runHeartbeat(ctx context.Context, interval time.Duration, totalUnits int, stats *runStats, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			done, persisted, skipped, bars := stats.snapshot()
			logger.Info("heartbeat", "done", done, "total", totalUnits, "persisted", persisted, "skipped", skipped, "bars", bars)
		}
	}
}
