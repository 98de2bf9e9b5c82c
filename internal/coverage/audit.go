package coverage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"market-data/internal/model"
	"market-data/internal/storage"
)

// FileAudit is the check result of one partition file.
type FileAudit struct {
	Path           string `json:"path"`
	Rows           int    `json:"rows"`
	InvalidOHLC    int    `json:"invalid_ohlc"`
	NegativeVolume int    `json:"negative_volume"`
	NonMonotonic   int    `json:"non_monotonic"`
	Err            string `json:"error,omitempty"`
}

// Valid reports whether the file decoded and every row passed.
func (f FileAudit) Valid() bool {
	return f.Err == "" && f.Rows > 0 && f.InvalidOHLC == 0 && f.NegativeVolume == 0 && f.NonMonotonic == 0
}

// AuditReport covers every partition of one symbol at one resolution.
type AuditReport struct {
	Symbol     string           `json:"symbol"`
	Resolution model.Resolution `json:"resolution"`
	Files      []FileAudit      `json:"files"`
	Rows       int              `json:"rows"`
}

// Invalid returns the files that failed.
func (r AuditReport) Invalid() []FileAudit {
	var out []FileAudit
	for _, f := range r.Files {
		if !f.Valid() {
			out = append(out, f)
		}
	}
	return out
}

// Audit re-reads the partitions of symbol at res. A symbol with nothing on
// disk yields a report with no files.
func (a *Analyzer) Audit(ctx context.Context, symbol string, res model.Resolution) (AuditReport, error) {
	rep := AuditReport{Symbol: symbol, Resolution: res}
	layout := a.reader.Layout()

	var paths []string
	if res.PerDay() {
		dir := layout.SymbolDir(a.ac, res, symbol)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return rep, nil
			}
			return rep, err
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".zip") {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
		sort.Strings(paths)
	} else {
		p := layout.PartitionPath(storage.Key{AssetClass: a.ac, Resolution: res, Symbol: symbol})
		if !storage.Exists(p) {
			return rep, nil
		}
		paths = []string{p}
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		fa := a.auditFile(p, res)
		rep.Rows += fa.Rows
		rep.Files = append(rep.Files, fa)
	}
	return rep, nil
}

func (a *Analyzer) auditFile(path string, res model.Resolution) FileAudit {
	fa := FileAudit{Path: path}
	var (
		prevMs  int64 = -1
		prevTok string
	)
	err := a.reader.ScanRows(path, func(r storage.Row) bool {
		fa.Rows++
		if r.Low > r.Open || r.Low > r.Close || r.Low > r.High || r.High < r.Open || r.High < r.Close {
			fa.InvalidOHLC++
		}
		if r.Volume < 0 {
			fa.NegativeVolume++
		}
		if res.PerDay() {
			ms, err := strconv.ParseInt(r.Time, 10, 64)
			if err != nil || ms <= prevMs {
				fa.NonMonotonic++
			}
			prevMs = ms
		} else {
			// "YYYYMMDD HH:MM" orders lexicographically
			if prevTok != "" && r.Time <= prevTok {
				fa.NonMonotonic++
			}
			prevTok = r.Time
		}
		return true
	})
	if err != nil {
		fa.Err = err.Error()
	} else if fa.Rows == 0 {
		fa.Err = "no data rows"
	}
	return fa
}

// WriteAuditReport prints a human-readable summary of reports to w.
func WriteAuditReport(w io.Writer, reports []AuditReport) error {
	var files, rows, validSymbols int
	for _, r := range reports {
		files += len(r.Files)
		rows += r.Rows
		if len(r.Files) > 0 && len(r.Invalid()) == 0 {
			validSymbols++
		}
	}
	if _, err := fmt.Fprintf(w, "symbols: %d (valid %d)  files: %d  rows: %d\n", len(reports), validSymbols, files, rows); err != nil {
		return err
	}
	for _, r := range reports {
		bad := r.Invalid()
		fmt.Fprintf(w, "%s %s: %d/%d files valid, %d rows\n", r.Symbol, r.Resolution, len(r.Files)-len(bad), len(r.Files), r.Rows)
		for i, f := range bad {
			if i == 5 {
				fmt.Fprintf(w, "  ... %d more\n", len(bad)-5)
				break
			}
			fmt.Fprintf(w, "  %s: rows=%d invalid_ohlc=%d negative_volume=%d non_monotonic=%d %s\n",
				filepath.Base(f.Path), f.Rows, f.InvalidOHLC, f.NegativeVolume, f.NonMonotonic, f.Err)
		}
	}
	return nil
}
