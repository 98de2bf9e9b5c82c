package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/subcommands"

	"market-data/internal/app"
	"market-data/internal/ingest"
	"market-data/internal/model"
)

type downloadCmd struct {
	provider     string
	asset        string
	symbols      symbolFlags
	resolution   string
	start, end   string
	skipExisting bool
	resume       bool
	noProgress   bool
	heartbeat    time.Duration
	repeatAt     string
}

func (*downloadCmd) Name() string     { return "download" }
func (*downloadCmd) Synopsis() string { return "download bars and write partitions" }
func (*downloadCmd) Usage() string {
	return `download [-provider name | -asset equity|crypto] -symbols A,B -resolution minute,daily -start YYYY-MM-DD [-end YYYY-MM-DD]:
  Download bars for [start, end] (both inclusive) and persist them under data_dir.
`
}

func (c *downloadCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.provider, "provider", "", "provider name (alpaca, binance, polygon); defaults to the asset class provider")
	f.StringVar(&c.asset, "asset", "equity", "asset class used when -provider is not set")
	f.StringVar(&c.symbols.list, "symbols", "", "comma separated symbols")
	f.StringVar(&c.symbols.file, "symbols-file", "", "symbol list file (.txt or .json)")
	f.StringVar(&c.resolution, "resolution", "daily", "comma separated resolutions: minute, hour, daily")
	f.StringVar(&c.start, "start", "", "first date, YYYY-MM-DD")
	f.StringVar(&c.end, "end", "", "last date, YYYY-MM-DD (default: yesterday)")
	f.BoolVar(&c.skipExisting, "skip-existing", false, "leave minute partitions already on disk untouched")
	f.BoolVar(&c.resume, "resume", false, "start each symbol after the last contiguous day in the progress file")
	f.BoolVar(&c.noProgress, "no-progress", false, "disable the progress bar")
	f.DurationVar(&c.heartbeat, "heartbeat", 0, "interval of progress log lines (0 disables)")
	f.StringVar(&c.repeatAt, "repeat-at", "", "keep running and repeat daily at HH:MM UTC, rolling the end date forward")
}

func (c *downloadCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a, cleanup, ok := initApp(args)
	if !ok {
		return subcommands.ExitFailure
	}
	defer cleanup()
	log := a.Logger

	flow, err := c.flow(a)
	if err != nil {
		log.Error("invalid download request", "error", err)
		return subcommands.ExitUsageError
	}

	orch := a.Orchestrator
	orch.SetSkipExisting(c.skipExisting)
	orch.SetHeartbeat(c.heartbeat)
	if !c.noProgress {
		orch.SetObserver(newBarObserver(os.Stderr))
	}

	sum, err := app.RunFlow(ctx, orch, flow, log)
	if err != nil {
		log.Error("download failed", "error", err)
		return subcommands.ExitFailure
	}
	if sum == nil {
		return subcommands.ExitSuccess
	}
	printSummary(os.Stdout, sum)
	if sum.Cancelled {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// flow turns the flags into a download flow.
func (c *downloadCmd) flow(a *App) (app.Flow, error) {
	name := c.provider
	if name == "" {
		ac, err := model.ParseAssetClass(c.asset)
		if err != nil {
			return app.Flow{}, err
		}
		name = a.Config.DefaultProvider(ac)
	}
	p, ok := a.Orchestrator.Provider(name)
	if !ok {
		return app.Flow{}, fmt.Errorf("provider %q is not available (unknown or missing credentials)", name)
	}
	loc, err := a.Config.Location(p.AssetClass())
	if err != nil {
		return app.Flow{}, err
	}
	symbols, err := c.symbols.resolve()
	if err != nil {
		return app.Flow{}, err
	}
	resolutions, err := parseResolutions(c.resolution)
	if err != nil {
		return app.Flow{}, err
	}
	if c.start == "" {
		return app.Flow{}, fmt.Errorf("-start is required")
	}
	start, err := parseDate(c.start, loc)
	if err != nil {
		return app.Flow{}, err
	}
	var fixedEnd time.Time
	if c.end != "" {
		last, err := parseDate(c.end, loc)
		if err != nil {
			return app.Flow{}, err
		}
		fixedEnd = last.AddDate(0, 0, 1)
	}
	schedule, err := app.ParseSchedule(c.repeatAt)
	if err != nil {
		return app.Flow{}, err
	}

	plan := func(now time.Time) []ingest.Job {
		end := fixedEnd
		if end.IsZero() || schedule != nil {
			// through yesterday
			n := now.In(loc)
			end = time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
		}
		jobs := make([]ingest.Job, 0, len(resolutions))
		for _, res := range resolutions {
			jobs = append(jobs, ingest.Job{Provider: name, Symbols: symbols, Resolution: res, Start: start, End: end})
		}
		return jobs
	}
	slog.Info("download planned", "provider", name, "symbols", len(symbols), "resolutions", resolutions, "start", c.start)
	return app.Flow{
		Plan:         plan,
		Resume:       c.resume || schedule != nil,
		ProgressPath: a.Config.ProgressPath(),
		Schedule:     schedule,
	}, nil
}

func printSummary(w io.Writer, s *ingest.Summary) {
	fmt.Fprintf(w, "run %s: persisted %d, bars %d", s.RunID, s.Persisted, s.Bars)
	reasons := make([]string, 0, len(s.Skipped))
	for r := range s.Skipped {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(w, ", skipped %s %d", r, s.Skipped[ingest.SkipReason(r)])
	}
	if s.Cancelled {
		fmt.Fprint(w, " (cancelled)")
	}
	fmt.Fprintln(w)
	for i, u := range s.Failed() {
		if i == 10 {
			fmt.Fprintf(w, "  ... %d more failures in .lastrun.json\n", len(s.Failed())-10)
			break
		}
		fmt.Fprintf(w, "  %s %s %s: %s\n", u.Symbol, u.Resolution, u.DateRange(), u.Error)
	}
}
