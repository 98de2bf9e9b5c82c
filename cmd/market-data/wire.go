//go:build wireinject
// +build wireinject

package main

import (
	"market-data/internal/app"

	"github.com/google/wire"
)

// InitializeApp builds App from the config file via Wire.
// Caller must call the returned cleanup when done.
func InitializeApp(path app.ConfigPath) (*App, func(), error) {
	wire.Build(
		app.ProvideConfig,
		app.ProvideLogger,
		app.ProvideProviders,
		app.CreateCalendars,
		app.CreateFormats,
		app.ProvideCodec,
		app.ProvideEncoder,
		app.ProvideWriter,
		app.ProvideReader,
		app.ProvideIndex,
		app.ProvideOrchestrator,
		app.ProvideAnalyzers,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}
