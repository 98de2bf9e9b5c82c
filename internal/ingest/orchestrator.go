package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"market-data/internal/calendar"
	"market-data/internal/manifest"
	"market-data/internal/model"
	"market-data/internal/provider"
	"market-data/internal/storage"
)

// Providers maps provider name to adapter.
type Providers map[string]provider.DataProvider

// Calendars maps asset class to its trading calendar.
type Calendars map[model.AssetClass]*calendar.Calendar

// Recorder receives every persisted partition (the coverage index).
// RecordExisting is used for partitions found on disk and skipped, and must
// not overwrite an entry already recorded.
type Recorder interface {
	RecordPartition(ctx context.Context, e manifest.Entry) error
	RecordExisting(ctx context.Context, e manifest.Entry) error
}

// Observer is notified as a run progresses. Calls come from a single
// goroutine.
type Observer interface {
	Planned(total int)
	UnitDone(u Unit)
}

// Options tune a run.
type Options struct {
	// SkipExisting leaves per-day partitions already on disk untouched.
	SkipExisting bool
	// ReportDir receives .lastrun.json; empty disables the report.
	ReportDir string
	// ProgressPath receives the last persisted window per symbol; empty disables it.
	ProgressPath string
	// Heartbeat is the interval of progress log lines; zero disables them.
	Heartbeat time.Duration
}

// Orchestrator plans units and drives them through fetch, validation,
// encoding and persistence. Providers run concurrently; units of one
// provider run sequentially so the provider's pacer sees one caller.
type Orchestrator struct {
	providers Providers
	calendars Calendars
	encoder   *storage.Encoder
	writer    *storage.Writer
	recorder  Recorder
	observer  Observer
	logger    *slog.Logger
	opts      Options
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithRecorder(r Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

func WithObserver(obs Observer) Option { return func(o *Orchestrator) { o.observer = obs } }

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func New(providers Providers, calendars Calendars, encoder *storage.Encoder, writer *storage.Writer, opts Options, options ...Option) *Orchestrator {
	o := &Orchestrator{
		providers: providers,
		calendars: calendars,
		encoder:   encoder,
		writer:    writer,
		logger:    slog.Default(),
		opts:      opts,
		now:       time.Now,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// SetObserver replaces the observer before a run.
func (o *Orchestrator) SetObserver(obs Observer) { o.observer = obs }

func (o *Orchestrator) SetSkipExisting(v bool) { o.opts.SkipExisting = v }

func (o *Orchestrator) SetHeartbeat(d time.Duration) { o.opts.Heartbeat = d }

// Provider returns the named adapter.
func (o *Orchestrator) Provider(name string) (provider.DataProvider, bool) {
	p, ok := o.providers[name]
	return p, ok
}

// Plan expands a job into units. An inverted range is rejected before any
// provider is contacted.
func (o *Orchestrator) Plan(job Job) ([]*Unit, error) {
	if err := model.CheckRange(job.Start, job.End); err != nil {
		return nil, err
	}
	p, ok := o.providers[job.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", job.Provider)
	}
	ac := p.AssetClass()
	cal, ok := o.calendars[ac]
	if !ok {
		return nil, fmt.Errorf("no calendar for asset class %q", ac)
	}

	var units []*Unit
	for _, symbol := range job.Symbols {
		base := Unit{Provider: job.Provider, Symbol: symbol, AssetClass: ac, Resolution: job.Resolution, State: StatePending}
		if !job.Resolution.PerDay() {
			u := base
			u.From, u.To = job.Start, job.End
			units = append(units, &u)
			continue
		}
		for _, day := range cal.Sessions(job.Start, job.End) {
			from, to := cal.DayBounds(day)
			if from.Before(job.Start) {
				from = job.Start
			}
			if to.After(job.End) {
				to = job.End
			}
			u := base
			u.Date, u.From, u.To = day, from, to
			units = append(units, &u)
		}
	}
	return units, nil
}

// Run executes every job and returns the summary. It fails only when a job
// cannot be planned; unit failures are recorded in the summary. Cancelling
// ctx marks the units not yet started as skipped.
func (o *Orchestrator) Run(ctx context.Context, jobs ...Job) (*Summary, error) {
	var (
		all        []*Unit
		byProvider = make(map[string][]*Unit)
		order      []string
	)
	for _, job := range jobs {
		units, err := o.Plan(job)
		if err != nil {
			return nil, err
		}
		if _, seen := byProvider[job.Provider]; !seen {
			order = append(order, job.Provider)
		}
		byProvider[job.Provider] = append(byProvider[job.Provider], units...)
		all = append(all, units...)
	}

	summary := &Summary{RunID: uuid.NewString(), Started: o.now().UTC(), Skipped: make(map[SkipReason]int)}
	logger := o.logger.With("run_id", summary.RunID)
	logger.Info("run planned", "units", len(all), "providers", len(order))
	if o.observer != nil {
		o.observer.Planned(len(all))
	}

	var progress chan ProgressUpdate
	var progressWg sync.WaitGroup
	if o.opts.ProgressPath != "" {
		progress = make(chan ProgressUpdate, 64)
		progressWg.Add(1)
		go func() {
			defer progressWg.Done()
			RunProgressWriter(o.opts.ProgressPath, progress)
		}()
	}

	results := make(chan Unit, len(all)+1)
	stats := newRunStats(all)
	var collectWg sync.WaitGroup
	collectWg.Add(1)
	go func() {
		defer collectWg.Done()
		o.collect(results, stats, progress, logger)
	}()

	hbCtx, stopHeartbeat := context.WithCancel(context.Background())
	if o.opts.Heartbeat > 0 {
		go runHeartbeat(hbCtx, o.opts.Heartbeat, len(all), stats, logger)
	}

	var g errgroup.Group
	for _, name := range order {
		units := byProvider[name]
		p := o.providers[name]
		g.Go(func() error {
			for _, u := range units {
				if err := ctx.Err(); err != nil {
					u.skip(ReasonCancelled, err)
				} else {
					o.process(ctx, p, u, logger)
				}
				results <- *u
			}
			return nil
		})
	}
	_ = g.Wait()
	stopHeartbeat()
	close(results)
	collectWg.Wait()
	if progress != nil {
		close(progress)
		progressWg.Wait()
	}

	summary.Finished = o.now().UTC()
	summary.Cancelled = ctx.Err() != nil
	for _, u := range all {
		summary.Units = append(summary.Units, *u)
		switch u.State {
		case StatePersisted:
			summary.Persisted++
			summary.Bars += u.Bars
		case StateSkipped:
			summary.Skipped[u.Reason]++
		}
	}

	logger.Info("run done", "persisted", summary.Persisted, "skipped", len(all)-summary.Persisted,
		"bars", summary.Bars, "cancelled", summary.Cancelled, "elapsed", summary.Finished.Sub(summary.Started).Round(time.Millisecond))
	if failed := summary.Failed(); len(failed) > 0 {
		logger.Info("summary failed", "count", len(failed), "reasons", joinFailedReasons(failed))
	}
	if o.opts.ReportDir != "" {
		if path, err := writeRunReport(o.opts.ReportDir, summary); err != nil {
			logger.Warn("could not write run report", "error", err)
		} else {
			logger.Info("run report saved", "path", path)
		}
	}
	return summary, nil
}

// process moves one unit through its states. It never returns an error;
// the outcome is recorded on the unit.
func (o *Orchestrator) process(ctx context.Context, p provider.DataProvider, u *Unit, logger *slog.Logger) {
	log := logger.With("provider", u.Provider, "symbol", u.Symbol, "resolution", u.Resolution, "date", u.DateRange())

	if o.opts.SkipExisting && u.Resolution.PerDay() && o.writer.Exists(u.Key()) {
		u.skip(ReasonExisting, nil)
		log.Debug("partition exists, skipping")
		if o.recorder != nil {
			// Row counts of partitions written before the index are unknown.
			entry := manifest.Entry{
				AssetClass: string(u.AssetClass),
				Resolution: string(u.Resolution),
				Symbol:     storage.SymbolKey(u.Symbol),
				Date:       u.Date.Format("20060102"),
				MinTime:    u.From.UnixMilli(),
				MaxTime:    u.To.UnixMilli() - 1,
				Path:       o.writer.Path(u.Key()),
			}
			if err := o.recorder.RecordExisting(ctx, entry); err != nil {
				log.Warn("coverage index update failed", "error", err)
			}
		}
		return
	}

	u.State = StateFetching
	bars, err := p.FetchBars(ctx, provider.Request{Symbol: u.Symbol, Resolution: u.Resolution, Start: u.From, End: u.To})
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			u.skip(ReasonCancelled, err)
			log.Warn("fetch cancelled")
			return
		}
		u.skip(ReasonError, err)
		log.Warn("fetch failed", "reason", err)
		return
	}

	u.State = StateValidating
	cleaned := model.Clean(bars)
	u.Dropped = cleaned.Dropped
	if cleaned.Dropped > 0 {
		log.Debug("dropped invalid bars", "dropped", cleaned.Dropped, "kept", len(cleaned.Bars))
	}
	if len(cleaned.Bars) == 0 {
		u.skip(ReasonNoData, nil)
		log.Warn("no data", "fetched", len(bars))
		return
	}

	u.State = StateEncoding
	parts, err := o.encoder.Partitions(u.AssetClass, u.Resolution, u.Symbol, cleaned.Bars)
	if err != nil {
		u.skip(ReasonError, err)
		log.Error("partitioning failed", "error", err)
		return
	}
	part, stray := pickPartition(parts, u)
	if stray > 0 {
		log.Debug("bars outside unit day ignored", "bars", stray)
	}
	if len(part.Bars) == 0 {
		u.skip(ReasonNoData, nil)
		log.Warn("no data for unit day", "fetched", len(bars))
		return
	}
	path, err := o.writer.Write(part)
	if err != nil {
		u.skip(ReasonError, err)
		log.Error("encoding failed", "error", err)
		return
	}

	u.State = StatePersisted
	u.Bars = len(part.Bars)
	u.Path = path
	log.Info("unit persisted", "bars", u.Bars, "dropped", u.Dropped, "path", path)

	if o.recorder != nil {
		entry := manifest.Entry{
			AssetClass: string(u.AssetClass),
			Resolution: string(u.Resolution),
			Symbol:     storage.SymbolKey(u.Symbol),
			MinTime:    part.Bars[0].Time.UnixMilli(),
			MaxTime:    part.Bars[len(part.Bars)-1].Time.UnixMilli(),
			Rows:       int64(len(part.Bars)),
			Path:       path,
		}
		if u.Resolution.PerDay() {
			entry.Date = u.Date.Format("20060102")
		}
		if err := o.recorder.RecordPartition(ctx, entry); err != nil {
			log.Warn("coverage index update failed", "error", err)
		}
	}
}

// pickPartition returns the partition matching the unit and how many bars
// fell into other partitions.
func pickPartition(parts []storage.Partition, u *Unit) (storage.Partition, int) {
	var (
		found storage.Partition
		stray int
	)
	for _, p := range parts {
		if !u.Resolution.PerDay() || p.Key.Date.Equal(u.Date) {
			found = p
			continue
		}
		stray += len(p.Bars)
	}
	return found, stray
}

// collect is the fan-in point: it updates counters, notifies the observer,
// feeds the progress writer and logs per-symbol completion.
func (o *Orchestrator) collect(results <-chan Unit, stats *runStats, progress chan<- ProgressUpdate, logger *slog.Logger) {
	for u := range results {
		symbolDone, contiguous := stats.add(u)
		if o.observer != nil {
			o.observer.UnitDone(u)
		}
		if progress != nil && contiguous && u.Resolution.PerDay() {
			progress <- ProgressUpdate{Key: progressKey(u.Provider, u.Symbol, u.Resolution), Through: u.To}
		}
		if symbolDone != nil {
			logger.Info("symbol complete", "provider", u.Provider, "symbol", u.Symbol, "resolution", u.Resolution,
				"persisted", symbolDone.persisted, "skipped", symbolDone.skipped, "bars", symbolDone.bars)
		}
	}
}

type symbolStats struct {
	remaining, persisted, skipped, bars int
	// gap is set once a unit of the symbol failed or was cancelled; the
	// progress file stops advancing from there.
	gap bool
}

// runStats is shared between the collector and the heartbeat.
type runStats struct {
	mu        sync.Mutex
	done      int
	persisted int
	skipped   int
	bars      int
	symbols   map[string]*symbolStats
}

func newRunStats(units []*Unit) *runStats {
	s := &runStats{symbols: make(map[string]*symbolStats)}
	for _, u := range units {
		k := u.Provider + "/" + u.Symbol + "/" + string(u.Resolution)
		if s.symbols[k] == nil {
			s.symbols[k] = &symbolStats{}
		}
		s.symbols[k].remaining++
	}
	return s
}

// add records a finished unit. The first result is non-nil when it was the
// last unit of its symbol; contiguous reports whether every unit of the
// symbol so far ended with its day on disk or known empty.
func (s *runStats) add(u Unit) (*symbolStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done++
	sym := s.symbols[u.Provider+"/"+u.Symbol+"/"+string(u.Resolution)]
	if u.State == StatePersisted {
		s.persisted++
		s.bars += u.Bars
		sym.persisted++
		sym.bars += u.Bars
	} else {
		s.skipped++
		sym.skipped++
	}
	if u.Reason == ReasonError || u.Reason == ReasonCancelled {
		sym.gap = true
	}
	contiguous := !sym.gap
	sym.remaining--
	if sym.remaining == 0 {
		snapshot := *sym
		return &snapshot, contiguous
	}
	return nil, contiguous
}

func (s *runStats) snapshot() (done, persisted, skipped, bars int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done, s.persisted, s.skipped, s.bars
}
