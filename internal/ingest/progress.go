package ingest

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"market-data/internal/model"
	"market-data/internal/storage"
)

// ProgressUpdate is sent when a per-day unit is persisted: everything before
// Through is on disk for Key.
type ProgressUpdate struct {
	Key     string
	Through time.Time
}

func progressKey(providerName, symbol string, res model.Resolution) string {
	return providerName + ":" + strings.ToUpper(symbol) + ":" + string(res)
}

func loadProgress(path string) map[string]time.Time {
	m := make(map[string]time.Time)
	data, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return make(map[string]time.Time)
	}
	return m
}

// RunProgressWriter receives updates and persists them to path; it returns
// when updates is closed. Entries only move forward. The file is replaced
// atomically on every update.
func RunProgressWriter(path string, updates <-chan ProgressUpdate) {
	m := loadProgress(path)
	for u := range updates {
		if prev, ok := m[u.Key]; ok && !u.Through.After(prev) {
			continue
		}
		m[u.Key] = u.Through.UTC()
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			slog.Warn("progress marshal error", "error", err)
			continue
		}
		if err := storage.WriteFileAtomic(path, data); err != nil {
			slog.Warn("progress write error", "error", err)
		}
	}
}

// ResumeJobs splits per-day jobs by symbol and moves each start past the
// window already recorded in the progress file. Symbols that are fully
// caught up are dropped. Range jobs pass through untouched since their
// partition is rewritten as a whole.
func ResumeJobs(jobs []Job, progressPath string) []Job {
	m := loadProgress(progressPath)
	var out []Job
	for _, j := range jobs {
		if !j.Resolution.PerDay() {
			out = append(out, j)
			continue
		}
		for _, sym := range j.Symbols {
			nj := j
			nj.Symbols = []string{sym}
			if through, ok := m[progressKey(j.Provider, sym, j.Resolution)]; ok && through.After(nj.Start) {
				nj.Start = through
			}
			if !nj.Start.Before(nj.End) {
				slog.Info("symbol up to date, skip", "provider", j.Provider, "symbol", sym)
				continue
			}
			out = append(out, nj)
		}
	}
	return out
}
