package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"market-data/internal/coverage"
	"market-data/internal/model"
)

type coverageCmd struct {
	asset   string
	symbols symbolFlags
	asJSON  bool
}

func (*coverageCmd) Name() string     { return "coverage" }
func (*coverageCmd) Synopsis() string { return "report persisted date ranges and the common window" }
func (*coverageCmd) Usage() string {
	return `coverage [-asset equity|crypto] -symbols A,B [-json]:
  Report which dates are on disk for each symbol and suggest a backtest window.
`
}

func (c *coverageCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.asset, "asset", "equity", "asset class")
	f.StringVar(&c.symbols.list, "symbols", "", "comma separated symbols")
	f.StringVar(&c.symbols.file, "symbols-file", "", "symbol list file (.txt or .json)")
	f.BoolVar(&c.asJSON, "json", false, "print JSON instead of text")
}

type coverageOutput struct {
	Reports []coverage.Report `json:"reports"`
	Start   string            `json:"suggested_start,omitempty"`
	End     string            `json:"suggested_end,omitempty"`
	Problem string            `json:"problem,omitempty"`
}

func (c *coverageCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a, cleanup, ok := initApp(args)
	if !ok {
		return subcommands.ExitFailure
	}
	defer cleanup()

	ac, err := model.ParseAssetClass(c.asset)
	if err != nil {
		a.Logger.Error("invalid asset class", "error", err)
		return subcommands.ExitUsageError
	}
	analyzer, ok := a.Analyzers[ac]
	if !ok {
		a.Logger.Error("asset class is not configured", "asset_class", ac)
		return subcommands.ExitUsageError
	}
	symbols, err := c.symbols.resolve()
	if err != nil {
		a.Logger.Error("invalid coverage request", "error", err)
		return subcommands.ExitUsageError
	}

	reports := analyzer.Analyze(ctx, symbols)
	out := coverageOutput{}
	for _, s := range symbols {
		out.Reports = append(out.Reports, reports[s])
	}
	w, werr := coverage.SuggestWindow(reports)
	if werr == nil {
		out.Start, out.End = w.Start.Format(dateLayout), w.End.Format(dateLayout)
	} else {
		out.Problem = werr.Error()
	}

	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			a.Logger.Error("write output", "error", err)
			return subcommands.ExitFailure
		}
	} else {
		printCoverage(os.Stdout, out, w, werr)
	}
	if werr != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printCoverage(wr io.Writer, out coverageOutput, w coverage.Window, werr error) {
	for _, r := range out.Reports {
		switch {
		case r.Known():
			fmt.Fprintf(wr, "%-10s %s to %s | %d samples | %s\n", r.Symbol, r.Start.Format(dateLayout), r.End.Format(dateLayout), r.SampleCount, r.SourceKind)
		case r.Available:
			fmt.Fprintf(wr, "%-10s available, date range unknown | %s\n", r.Symbol, r.SourceKind)
		default:
			fmt.Fprintf(wr, "%-10s no data found\n", r.Symbol)
		}
	}
	switch {
	case werr == nil:
		fmt.Fprintf(wr, "suggested window: %s to %s (%d days)\n", out.Start, out.End, w.Days())
	case errors.Is(werr, coverage.ErrDisjointCoverage):
		fmt.Fprintf(wr, "no common window: latest start %s is after earliest end %s\n", w.Start.Format(dateLayout), w.End.Format(dateLayout))
	default:
		fmt.Fprintf(wr, "no common window: %v\n", werr)
	}
}
