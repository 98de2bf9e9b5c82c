package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"market-data/internal/coverage"
	"market-data/internal/model"
)

type validateCmd struct {
	asset      string
	symbols    symbolFlags
	resolution string
}

func (*validateCmd) Name() string     { return "validate" }
func (*validateCmd) Synopsis() string { return "re-read partitions and check rows" }
func (*validateCmd) Usage() string {
	return `validate [-asset equity|crypto] -symbols A,B [-resolution minute,hour,daily]:
  Check row counts, OHLC consistency, volume sign and time order of persisted partitions.
`
}

func (c *validateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.asset, "asset", "equity", "asset class")
	f.StringVar(&c.symbols.list, "symbols", "", "comma separated symbols")
	f.StringVar(&c.symbols.file, "symbols-file", "", "symbol list file (.txt or .json)")
	f.StringVar(&c.resolution, "resolution", "", "comma separated resolutions (default: all)")
}

func (c *validateCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a, cleanup, ok := initApp(args)
	if !ok {
		return subcommands.ExitFailure
	}
	defer cleanup()
	log := a.Logger

	ac, err := model.ParseAssetClass(c.asset)
	if err != nil {
		log.Error("invalid asset class", "error", err)
		return subcommands.ExitUsageError
	}
	analyzer, ok := a.Analyzers[ac]
	if !ok {
		log.Error("asset class is not configured", "asset_class", ac)
		return subcommands.ExitUsageError
	}
	symbols, err := c.symbols.resolve()
	if err != nil {
		log.Error("invalid validate request", "error", err)
		return subcommands.ExitUsageError
	}
	resolutions, err := parseResolutions(c.resolution)
	if err != nil {
		log.Error("invalid validate request", "error", err)
		return subcommands.ExitUsageError
	}

	var (
		reports []coverage.AuditReport
		bad     int
	)
	for _, sym := range symbols {
		for _, res := range resolutions {
			rep, err := analyzer.Audit(ctx, sym, res)
			if err != nil {
				log.Error("audit failed", "symbol", sym, "resolution", res, "error", err)
				return subcommands.ExitFailure
			}
			if len(rep.Files) == 0 {
				continue
			}
			bad += len(rep.Invalid())
			reports = append(reports, rep)
		}
	}
	if err := coverage.WriteAuditReport(os.Stdout, reports); err != nil {
		return subcommands.ExitFailure
	}
	if bad > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
