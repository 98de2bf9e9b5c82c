package main

import (
	"log/slog"

	"market-data/internal/app"
	"market-data/internal/ingest"
)

// App holds application dependencies built by Wire.
type App struct {
	Config       *app.Config
	Logger       *slog.Logger
	Orchestrator *ingest.Orchestrator
	Analyzers    app.Analyzers
}
