package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"market-data/internal/ingest"
)

// Schedule is a daily UTC run time.
type Schedule struct {
	Hour, Minute int
}

// ParseSchedule parses "HH:MM"; empty returns nil (run once).
func ParseSchedule(s string) (*Schedule, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return nil, fmt.Errorf("schedule %q must be HH:MM: %w", s, err)
	}
	return &Schedule{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// NextRunTime returns the first scheduled time strictly after now.
func NextRunTime(now time.Time, s Schedule) time.Time {
	now = now.UTC()
	target := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, time.UTC)
	if now.Before(target) {
		return target
	}
	return target.AddDate(0, 0, 1)
}

// Flow describes a download invocation. Plan is called before every run
// with the current time so repeated runs can roll their window forward.
type Flow struct {
	Plan         func(now time.Time) []ingest.Job
	Resume       bool
	ProgressPath string
	Schedule     *Schedule
}

// RunFlow orchestrates the download loop: run → done → wait → run. Without a
// schedule it runs once. SIGINT/SIGTERM cancel the current run (remaining
// units are reported as cancelled) and end the loop. It returns the summary
// of the last run.
func RunFlow(ctx context.Context, orch *ingest.Orchestrator, flow Flow, logger *slog.Logger) (*ingest.Summary, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var last *ingest.Summary
	for {
		jobs := flow.Plan(time.Now())
		if flow.Resume {
			jobs = ingest.ResumeJobs(jobs, flow.ProgressPath)
		}
		if len(jobs) == 0 {
			logger.Info("nothing to download")
		} else {
			sum, err := orch.Run(ctx, jobs...)
			if err != nil {
				return last, err
			}
			last = sum
		}

		if flow.Schedule == nil || ctx.Err() != nil {
			return last, nil
		}
		nextRun := NextRunTime(time.Now(), *flow.Schedule)
		waitDur := time.Until(nextRun)
		logger.Info("done, wait until next run", "hours", waitDur.Hours(), "until", nextRun.Format("2006-01-02 15:04"))
		timer := time.NewTimer(waitDur)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.Info("received signal, stopping", "restart_at", nextRun.Format("2006-01-02 15:04"))
			return last, nil
		}
	}
}
