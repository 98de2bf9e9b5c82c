package coverage

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data/internal/manifest"
	"market-data/internal/model"
	"market-data/internal/storage"
)

type fixture struct {
	ny     *time.Location
	layout storage.Layout
	writer *storage.Writer
	reader *storage.Reader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	layout := storage.Layout{Root: t.TempDir(), Markets: map[model.AssetClass]string{model.Equity: "usa"}}
	formats := storage.Formats{model.Equity: {Location: ny, PriceMultiplier: 10000}}
	enc := storage.NewEncoder(layout, formats, nil)
	return &fixture{ny: ny, layout: enc.Layout(), writer: storage.NewWriter(enc, nil), reader: storage.NewReader(layout, formats, nil)}
}

func (f *fixture) day(s string) time.Time {
	d, err := time.ParseInLocation("2006-01-02", s, f.ny)
	if err != nil {
		panic(err)
	}
	return d
}

func (f *fixture) bar(t time.Time) model.Bar {
	return model.Bar{Time: t, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100}
}

func (f *fixture) writeRange(t *testing.T, symbol string, res model.Resolution, days ...string) {
	t.Helper()
	var bars []model.Bar
	for _, d := range days {
		bars = append(bars, f.bar(f.day(d)))
	}
	_, err := f.writer.Write(storage.Partition{Key: storage.Key{AssetClass: model.Equity, Resolution: res, Symbol: symbol}, Bars: bars})
	require.NoError(t, err)
}

func (f *fixture) writeMinute(t *testing.T, symbol string, days ...string) {
	t.Helper()
	for _, d := range days {
		day := f.day(d)
		_, err := f.writer.Write(storage.Partition{
			Key:  storage.Key{AssetClass: model.Equity, Resolution: model.Minute, Symbol: symbol, Date: day},
			Bars: []model.Bar{f.bar(day.Add(10 * time.Hour))},
		})
		require.NoError(t, err)
	}
}

func TestSuggestWindowIntersectsDailyCoverage(t *testing.T) {
	f := newFixture(t)
	f.writeRange(t, "A", model.Daily, "2020-01-01", "2020-06-15", "2021-06-30")
	f.writeRange(t, "B", model.Daily, "2020-06-01", "2021-12-31")

	a := New(f.reader, model.Equity, nil, Options{}, nil)
	reports := a.Analyze(context.Background(), []string{"A", "B", "C"})
	require.Len(t, reports, 3)

	assert.True(t, reports["A"].Available)
	assert.Equal(t, SourceDaily, reports["A"].SourceKind)
	assert.Equal(t, 3, reports["A"].SampleCount)
	assert.False(t, reports["C"].Available)
	assert.Equal(t, SourceNone, reports["C"].SourceKind)

	w, err := SuggestWindow(reports)
	require.NoError(t, err)
	assert.Equal(t, "2020-06-01", w.Start.Format("2006-01-02"))
	assert.Equal(t, "2021-06-30", w.End.Format("2006-01-02"))
	assert.Equal(t, 394, w.Days())
}

func TestSuggestWindowOnlyMissingSymbol(t *testing.T) {
	f := newFixture(t)
	a := New(f.reader, model.Equity, nil, Options{}, nil)
	reports := a.Analyze(context.Background(), []string{"C"})
	assert.False(t, reports["C"].Available)

	_, err := SuggestWindow(reports)
	assert.ErrorIs(t, err, ErrNoCoverage)
}

func TestSuggestWindowDisjoint(t *testing.T) {
	f := newFixture(t)
	f.writeRange(t, "A", model.Daily, "2020-01-01", "2020-03-01")
	f.writeRange(t, "B", model.Daily, "2021-01-01", "2021-03-01")

	reports := New(f.reader, model.Equity, nil, Options{}, nil).Analyze(context.Background(), []string{"A", "B"})
	w, err := SuggestWindow(reports)
	assert.ErrorIs(t, err, ErrDisjointCoverage)
	assert.True(t, w.Start.After(w.End))
}

func TestMaxScanRowsReadsPrefix(t *testing.T) {
	f := newFixture(t)
	f.writeRange(t, "A", model.Daily, "2020-01-01", "2020-01-02", "2020-01-03")

	reports := New(f.reader, model.Equity, nil, Options{MaxScanRows: 2}, nil).Analyze(context.Background(), []string{"A"})
	r := reports["A"]
	assert.Equal(t, 2, r.SampleCount)
	assert.Equal(t, "2020-01-02", r.End.Format("2006-01-02"))
}

func TestHourPartitionUsedWhenNoDaily(t *testing.T) {
	f := newFixture(t)
	f.writeRange(t, "A", model.Hour, "2022-03-01", "2022-03-04")

	r := New(f.reader, model.Equity, nil, Options{}, nil).Analyze(context.Background(), []string{"A"})["A"]
	assert.Equal(t, SourceHour, r.SourceKind)
	assert.Equal(t, "2022-03-01", r.Start.Format("2006-01-02"))
	assert.Equal(t, "2022-03-04", r.End.Format("2006-01-02"))
}

func TestMinuteDirectory(t *testing.T) {
	f := newFixture(t)
	f.writeMinute(t, "SPY", "2024-01-03", "2024-01-02", "2024-01-05")

	weak := New(f.reader, model.Equity, nil, Options{}, nil).Analyze(context.Background(), []string{"SPY"})["SPY"]
	assert.True(t, weak.Available)
	assert.False(t, weak.Known())
	assert.Equal(t, SourceMinuteDir, weak.SourceKind)

	_, err := SuggestWindow(map[string]Report{"SPY": weak})
	assert.ErrorIs(t, err, ErrNoCoverage)

	listed := New(f.reader, model.Equity, nil, Options{ListIntradayDates: true}, nil).Analyze(context.Background(), []string{"SPY"})["SPY"]
	require.True(t, listed.Known())
	assert.Equal(t, "2024-01-02", listed.Start.Format("2006-01-02"))
	assert.Equal(t, "2024-01-05", listed.End.Format("2006-01-02"))
	assert.Equal(t, 3, listed.SampleCount)
}

func (f *fixture) openIndex(t *testing.T) *manifest.Index {
	t.Helper()
	idx, err := manifest.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func (f *fixture) record(t *testing.T, idx *manifest.Index, symbol string, days ...string) {
	t.Helper()
	for _, d := range days {
		key := storage.Key{AssetClass: model.Equity, Resolution: model.Minute, Symbol: symbol, Date: f.day(d)}
		require.NoError(t, idx.RecordPartition(context.Background(), manifest.Entry{
			AssetClass: string(model.Equity), Resolution: string(model.Minute), Symbol: storage.SymbolKey(symbol),
			Date: f.day(d).Format("20060102"), Rows: 1, Path: f.layout.PartitionPath(key),
		}))
	}
}

func TestIndexPreferredOverMinuteDirectory(t *testing.T) {
	f := newFixture(t)
	f.writeMinute(t, "SPY", "2024-01-02", "2024-01-03")
	idx := f.openIndex(t)
	f.record(t, idx, "SPY", "2024-01-02", "2024-01-03")

	r := New(f.reader, model.Equity, idx, Options{}, nil).Analyze(context.Background(), []string{"SPY"})["SPY"]
	assert.Equal(t, SourceIndex, r.SourceKind)
	assert.Equal(t, "2024-01-02", r.Start.Format("2006-01-02"))
	assert.Equal(t, "2024-01-03", r.End.Format("2006-01-02"))
	assert.Equal(t, 2, r.SampleCount)
}

func TestIndexEntriesWithoutFilesReportNoCoverage(t *testing.T) {
	f := newFixture(t)
	f.writeMinute(t, "C", "2024-01-02", "2024-01-03")
	idx := f.openIndex(t)
	f.record(t, idx, "C", "2024-01-02", "2024-01-03")
	require.NoError(t, os.RemoveAll(f.layout.SymbolDir(model.Equity, model.Minute, "C")))

	ctx := context.Background()
	reports := New(f.reader, model.Equity, idx, Options{}, nil).Analyze(ctx, []string{"C"})
	assert.False(t, reports["C"].Available)
	assert.Equal(t, SourceNone, reports["C"].SourceKind)

	_, err := SuggestWindow(reports)
	assert.ErrorIs(t, err, ErrNoCoverage)

	_, ok, err := idx.Coverage(ctx, string(model.Equity), string(model.Minute), "c")
	require.NoError(t, err)
	assert.False(t, ok, "stale entries are dropped")
}

func TestIncompleteIndexFallsBackToDirectory(t *testing.T) {
	f := newFixture(t)
	f.writeMinute(t, "SPY", "2024-01-02", "2024-01-03", "2024-01-04")
	idx := f.openIndex(t)
	f.record(t, idx, "SPY", "2024-01-03")

	r := New(f.reader, model.Equity, idx, Options{}, nil).Analyze(context.Background(), []string{"SPY"})["SPY"]
	require.True(t, r.Known())
	assert.Equal(t, SourceMinuteDir, r.SourceKind)
	assert.Equal(t, "2024-01-02", r.Start.Format("2006-01-02"))
	assert.Equal(t, "2024-01-04", r.End.Format("2006-01-02"))
	assert.Equal(t, 3, r.SampleCount)
}

func writeRawPartition(t *testing.T, path, table string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("table.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte(table))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestAudit(t *testing.T) {
	f := newFixture(t)
	f.writeMinute(t, "SPY", "2024-01-02", "2024-01-03")
	bad := filepath.Join(f.layout.SymbolDir(model.Equity, model.Minute, "SPY"), "20240104_trade.zip")
	writeRawPartition(t, bad, strings.Join([]string{
		"60000,100,110,90,105,10",
		"0,100,99,90,105,10",
		"120000,100,110,90,105,-1",
	}, "\n")+"\n")

	a := New(f.reader, model.Equity, nil, Options{}, nil)
	rep, err := a.Audit(context.Background(), "SPY", model.Minute)
	require.NoError(t, err)
	require.Len(t, rep.Files, 3)
	assert.Equal(t, 5, rep.Rows)

	invalid := rep.Invalid()
	require.Len(t, invalid, 1)
	assert.Equal(t, bad, invalid[0].Path)
	assert.Equal(t, 1, invalid[0].InvalidOHLC)
	assert.Equal(t, 1, invalid[0].NegativeVolume)
	assert.Equal(t, 1, invalid[0].NonMonotonic)

	var out bytes.Buffer
	require.NoError(t, WriteAuditReport(&out, []AuditReport{rep}))
	assert.Contains(t, out.String(), "SPY minute: 2/3 files valid, 5 rows")
	assert.Contains(t, out.String(), "20240104_trade.zip")

	empty, err := a.Audit(context.Background(), "NONE", model.Daily)
	require.NoError(t, err)
	assert.Empty(t, empty.Files)
}
