// Package coverage answers which date ranges are on disk for a set of
// symbols and which common window they share.
package coverage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"time"

	"market-data/internal/manifest"
	"market-data/internal/model"
	"market-data/internal/storage"
)

var (
	// ErrNoCoverage means no symbol has a known date range.
	ErrNoCoverage = errors.New("no coverage for any symbol")
	// ErrDisjointCoverage means the ranges do not overlap.
	ErrDisjointCoverage = errors.New("coverage ranges do not overlap")
)

// SourceKind names where a report's information came from.
type SourceKind string

const (
	SourceNone      SourceKind = "none"
	SourceDaily     SourceKind = "daily"
	SourceHour      SourceKind = "hour"
	SourceIndex     SourceKind = "index"
	SourceMinuteDir SourceKind = "minute_dir"
)

// Report is the coverage of one symbol. Start and End are local midnights;
// both are zero when the source only proves existence.
type Report struct {
	Symbol      string     `json:"symbol"`
	Available   bool       `json:"available"`
	Start       time.Time  `json:"start,omitempty"`
	End         time.Time  `json:"end,omitempty"`
	SampleCount int        `json:"sample_count"`
	SourceKind  SourceKind `json:"source_kind"`
	Path        string     `json:"path,omitempty"`
}

// Known reports whether the date range is known.
func (r Report) Known() bool { return r.Available && !r.Start.IsZero() && !r.End.IsZero() }

// Index is the subset of the partition index the analyzer uses. Forget
// drops entries whose file is gone.
type Index interface {
	Coverage(ctx context.Context, assetClass, resolution, symbol string) (manifest.Coverage, bool, error)
	Forget(ctx context.Context, assetClass, resolution, symbol string) (int64, error)
}

// Options tune the analysis.
type Options struct {
	// MaxScanRows bounds the rows read from a range partition; 0 reads the whole file.
	MaxScanRows int
	// ListIntradayDates derives start/end from partition file names instead
	// of reporting bare existence.
	ListIntradayDates bool
}

// Analyzer inspects persisted partitions of one asset class.
type Analyzer struct {
	reader *storage.Reader
	ac     model.AssetClass
	index  Index
	opts   Options
	logger *slog.Logger
}

// New builds an analyzer. index may be nil.
func New(reader *storage.Reader, ac model.AssetClass, index Index, opts Options, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{reader: reader, ac: ac, index: index, opts: opts, logger: logger}
}

// Analyze returns one report per symbol. Errors reading a source are logged
// and the next source is tried.
func (a *Analyzer) Analyze(ctx context.Context, symbols []string) map[string]Report {
	out := make(map[string]Report, len(symbols))
	for _, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		out[sym] = a.analyzeSymbol(ctx, sym)
	}
	return out
}

func (a *Analyzer) analyzeSymbol(ctx context.Context, symbol string) Report {
	log := a.logger.With("symbol", symbol, "asset_class", a.ac)
	for _, src := range []struct {
		res  model.Resolution
		kind SourceKind
	}{{model.Daily, SourceDaily}, {model.Hour, SourceHour}} {
		r, err := a.fromRangeFile(symbol, src.res, src.kind)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warn("could not analyze partition", "source", src.kind, "error", err)
			}
			continue
		}
		if r.Available {
			return r
		}
	}

	if a.index != nil {
		if r, ok := a.fromIndex(ctx, symbol, log); ok {
			return r
		}
	}

	if r, ok := a.fromMinuteDir(symbol, log); ok {
		return r
	}
	return Report{Symbol: symbol, SourceKind: SourceNone}
}

func (a *Analyzer) fromRangeFile(symbol string, res model.Resolution, kind SourceKind) (Report, error) {
	path := a.reader.Layout().PartitionPath(storage.Key{AssetClass: a.ac, Resolution: res, Symbol: symbol})
	f, err := a.reader.Format(a.ac)
	if err != nil {
		return Report{}, err
	}
	r := Report{Symbol: symbol, SourceKind: kind, Path: path}
	var parseErr error
	err = a.reader.ScanRows(path, func(row storage.Row) bool {
		d, err := f.RowDate(row)
		if err != nil {
			parseErr = err
			return true
		}
		if r.Start.IsZero() || d.Before(r.Start) {
			r.Start = d
		}
		if d.After(r.End) {
			r.End = d
		}
		r.SampleCount++
		return a.opts.MaxScanRows <= 0 || r.SampleCount < a.opts.MaxScanRows
	})
	if err != nil {
		return Report{}, err
	}
	if parseErr != nil {
		a.logger.Debug("unparseable rows skipped", "path", path, "error", parseErr)
	}
	r.Available = r.SampleCount > 0
	return r, nil
}

// fromIndex trusts the index only for partitions still on disk and only
// when it knows every partition in the symbol directory; otherwise the
// directory listing wins.
func (a *Analyzer) fromIndex(ctx context.Context, symbol string, log *slog.Logger) (Report, bool) {
	key := storage.SymbolKey(symbol)
	if n, err := a.index.Forget(ctx, string(a.ac), string(model.Minute), key); err != nil {
		log.Warn("coverage index cleanup failed", "error", err)
		return Report{}, false
	} else if n > 0 {
		log.Info("stale coverage index entries removed", "entries", n)
	}
	c, ok, err := a.index.Coverage(ctx, string(a.ac), string(model.Minute), key)
	if err != nil {
		log.Warn("coverage index lookup failed", "error", err)
		return Report{}, false
	}
	if !ok {
		return Report{}, false
	}
	f, err := a.reader.Format(a.ac)
	if err != nil {
		return Report{}, false
	}
	start, err1 := time.ParseInLocation("20060102", c.FirstDate, f.Location)
	end, err2 := time.ParseInLocation("20060102", c.LastDate, f.Location)
	if err1 != nil || err2 != nil {
		log.Warn("coverage index has malformed dates", "first", c.FirstDate, "last", c.LastDate)
		return Report{}, false
	}
	if dates, err := a.intradayDates(symbol); err == nil && int64(len(dates)) > c.Partitions {
		log.Info("coverage index incomplete, listing directory", "indexed", c.Partitions, "files", len(dates))
		return Report{
			Symbol:      symbol,
			Available:   true,
			Start:       dates[0],
			End:         dates[len(dates)-1],
			SampleCount: len(dates),
			SourceKind:  SourceMinuteDir,
			Path:        a.reader.Layout().SymbolDir(a.ac, model.Minute, symbol),
		}, true
	}
	return Report{
		Symbol:      symbol,
		Available:   true,
		Start:       start,
		End:         end,
		SampleCount: int(c.Partitions),
		SourceKind:  SourceIndex,
		Path:        a.reader.Layout().SymbolDir(a.ac, model.Minute, symbol),
	}, true
}

func (a *Analyzer) fromMinuteDir(symbol string, log *slog.Logger) (Report, bool) {
	dir := a.reader.Layout().SymbolDir(a.ac, model.Minute, symbol)
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return Report{}, false
	}
	r := Report{Symbol: symbol, Available: true, SourceKind: SourceMinuteDir, Path: dir}
	if !a.opts.ListIntradayDates {
		return r, true
	}
	dates, err := a.intradayDates(symbol)
	if err != nil {
		log.Warn("could not list minute partitions", "dir", dir, "error", err)
		return r, true
	}
	if len(dates) > 0 {
		r.Start, r.End, r.SampleCount = dates[0], dates[len(dates)-1], len(dates)
	}
	return r, true
}

// intradayDates lists the per-day partition dates of symbol in order.
func (a *Analyzer) intradayDates(symbol string) ([]time.Time, error) {
	f, err := a.reader.Format(a.ac)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(a.reader.Layout().SymbolDir(a.ac, model.Minute, symbol))
	if err != nil {
		return nil, err
	}
	var dates []time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if d, ok := storage.ParsePartitionDate(e.Name(), f.Location); ok {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// Window is a common date range, both ends inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// Days is the number of calendar days between Start and End.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24 + 0.5)
}

// SuggestWindow intersects the known ranges: latest start, earliest end.
// Reports without a known range are ignored.
func SuggestWindow(reports map[string]Report) (Window, error) {
	var (
		w     Window
		found bool
	)
	for _, r := range reports {
		if !r.Known() {
			continue
		}
		if !found || r.Start.After(w.Start) {
			w.Start = r.Start
		}
		if !found || r.End.Before(w.End) {
			w.End = r.End
		}
		found = true
	}
	if !found {
		return Window{}, ErrNoCoverage
	}
	if w.Start.After(w.End) {
		return w, ErrDisjointCoverage
	}
	return w, nil
}
