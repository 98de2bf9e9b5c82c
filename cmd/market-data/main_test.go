package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data/internal/coverage"
	"market-data/internal/ingest"
	"market-data/internal/model"
)

func TestSymbolFlagsResolve(t *testing.T) {
	file := filepath.Join(t.TempDir(), "s.txt")
	require.NoError(t, os.WriteFile(file, []byte("msft\nspy\n"), 0o644))

	s := symbolFlags{list: "aapl,MSFT", file: file}
	got, err := s.resolve()
	require.NoError(t, err)
	assert.Equal(t, []string{"MSFT", "SPY", "AAPL"}, got)

	_, err = (&symbolFlags{}).resolve()
	assert.Error(t, err)
}

func TestParseResolutions(t *testing.T) {
	all, err := parseResolutions("")
	require.NoError(t, err)
	assert.Equal(t, model.Resolutions, all)

	got, err := parseResolutions("1m, daily")
	require.NoError(t, err)
	assert.Equal(t, []model.Resolution{model.Minute, model.Daily}, got)

	_, err = parseResolutions("weekly")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-01-02", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), d)
	_, err = parseDate("01/02/2024", time.UTC)
	assert.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &ingest.Summary{
		RunID:     "r1",
		Persisted: 4,
		Bars:      1560,
		Skipped:   map[ingest.SkipReason]int{ingest.ReasonError: 1, ingest.ReasonNoData: 2},
		Units: []ingest.Unit{{
			Symbol: "AAPL", Resolution: model.Minute, Date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			State: ingest.StateSkipped, Reason: ingest.ReasonError, Error: "boom",
		}},
	})
	out := buf.String()
	assert.Contains(t, out, "run r1: persisted 4, bars 1560, skipped error 1, skipped no_data 2")
	assert.Contains(t, out, "AAPL minute 2024-01-10: boom")
}

func TestPrintCoverage(t *testing.T) {
	start := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 6, 30, 0, 0, 0, 0, time.UTC)
	out := coverageOutput{
		Reports: []coverage.Report{
			{Symbol: "A", Available: true, Start: start, End: end, SampleCount: 200, SourceKind: coverage.SourceDaily},
			{Symbol: "M", Available: true, SourceKind: coverage.SourceMinuteDir},
			{Symbol: "C", SourceKind: coverage.SourceNone},
		},
		Start: "2020-06-01",
		End:   "2021-06-30",
	}
	var buf bytes.Buffer
	printCoverage(&buf, out, coverage.Window{Start: start, End: end}, nil)
	s := buf.String()
	assert.Contains(t, s, "2020-06-01 to 2021-06-30 | 200 samples | daily")
	assert.Contains(t, s, "available, date range unknown | minute_dir")
	assert.Contains(t, s, "C          no data found")
	assert.Contains(t, s, "suggested window: 2020-06-01 to 2021-06-30 (394 days)")

	buf.Reset()
	printCoverage(&buf, coverageOutput{}, coverage.Window{}, coverage.ErrNoCoverage)
	assert.Contains(t, buf.String(), "no common window: no coverage for any symbol")
}
