package app

import (
	"fmt"
	"log/slog"

	"market-data/internal/coverage"
	"market-data/internal/ingest"
	"market-data/internal/manifest"
	"market-data/internal/model"
	"market-data/internal/slogx"
	"market-data/internal/storage"
)

// ConfigPath is the YAML file given on the command line; empty means env only.
type ConfigPath string

// Analyzers holds one coverage analyzer per asset class.
type Analyzers map[model.AssetClass]*coverage.Analyzer

// ProvideConfig loads config (for Wire).
func ProvideConfig(path ConfigPath) (*Config, error) {
	LoadDotenv()
	return Load(string(path))
}

// ProvideLogger installs the default logger at the configured level (for Wire).
func ProvideLogger(cfg *Config) *slog.Logger {
	l := slogx.NewDefault(cfg.LogLevel)
	slog.SetDefault(l)
	return l
}

// ProvideCodec returns the table codec for table_format (for Wire).
func ProvideCodec(cfg *Config) (storage.TableCodec, error) {
	c := storage.NewTableCodec(cfg.TableFormat)
	if c == nil {
		return nil, fmt.Errorf("unsupported table_format %q (use: csv, parquet, json)", cfg.TableFormat)
	}
	return c, nil
}

func ProvideEncoder(cfg *Config, formats storage.Formats, codec storage.TableCodec) *storage.Encoder {
	return storage.NewEncoder(CreateLayout(cfg), formats, codec)
}

func ProvideWriter(enc *storage.Encoder, logger *slog.Logger) *storage.Writer {
	return storage.NewWriter(enc, logger)
}

func ProvideReader(cfg *Config, formats storage.Formats, codec storage.TableCodec) *storage.Reader {
	return storage.NewReader(CreateLayout(cfg), formats, codec)
}

// ProvideProviders builds every usable provider; cleanup closes them (for Wire).
func ProvideProviders(cfg *Config, logger *slog.Logger) (ingest.Providers, func(), error) {
	ps, err := CreateProviders(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return ps, func() {
		for name, p := range ps {
			if err := p.Close(); err != nil {
				logger.Warn("close provider", "provider", name, "error", err)
			}
		}
	}, nil
}

// ProvideIndex opens the coverage index when enabled; nil otherwise (for Wire).
func ProvideIndex(cfg *Config) (*manifest.Index, func(), error) {
	if !cfg.Index.Enabled {
		return nil, func() {}, nil
	}
	idx, err := manifest.Open(cfg.Index.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open coverage index: %w", err)
	}
	return idx, func() { _ = idx.Close() }, nil
}

// ProvideOrchestrator wires the ingestion pipeline (for Wire).
func ProvideOrchestrator(cfg *Config, providers ingest.Providers, cals ingest.Calendars, enc *storage.Encoder,
	w *storage.Writer, idx *manifest.Index, logger *slog.Logger) *ingest.Orchestrator {
	opts := ingest.Options{
		ReportDir:    cfg.ReportDir(),
		ProgressPath: cfg.ProgressPath(),
	}
	options := []ingest.Option{ingest.WithLogger(logger)}
	if idx != nil {
		options = append(options, ingest.WithRecorder(idx))
	}
	return ingest.New(providers, cals, enc, w, opts, options...)
}

// ProvideAnalyzers builds a coverage analyzer per asset class (for Wire).
func ProvideAnalyzers(cfg *Config, reader *storage.Reader, idx *manifest.Index, logger *slog.Logger) Analyzers {
	opts := coverage.Options{MaxScanRows: cfg.Coverage.MaxScanRows, ListIntradayDates: cfg.Coverage.ListIntradayDates}
	out := make(Analyzers)
	for key := range cfg.Assets {
		ac := model.AssetClass(key)
		var index coverage.Index
		if idx != nil {
			index = idx
		}
		out[ac] = coverage.New(reader, ac, index, opts, logger.With("component", "coverage"))
	}
	return out
}
