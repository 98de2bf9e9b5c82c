package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	_ "time/tzdata"

	"github.com/google/subcommands"

	"market-data/internal/app"
	"market-data/internal/slogx"
)

func init() {
	slog.SetDefault(slogx.NewDefault("info"))
}

func main() {
	configPath := flag.String("config", "", "YAML config file (optional; env and .env are always read)")

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&downloadCmd{}, "")
	subcommands.Register(&coverageCmd{}, "")
	subcommands.Register(&validateCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background(), *configPath)))
}

// initApp builds the app from the -config value passed through Execute.
func initApp(args []interface{}) (*App, func(), bool) {
	path := ""
	if len(args) > 0 {
		path, _ = args[0].(string)
	}
	a, cleanup, err := InitializeApp(app.ConfigPath(path))
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		return nil, nil, false
	}
	return a, cleanup, true
}
