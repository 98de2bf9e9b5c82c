package app

import (
	"fmt"
	"log/slog"
	"sort"

	"market-data/internal/calendar"
	"market-data/internal/ingest"
	"market-data/internal/model"
	"market-data/internal/provider"
	"market-data/internal/provider/alpaca"
	"market-data/internal/provider/binance"
	"market-data/internal/provider/polygon"
	"market-data/internal/ratelimit"
	"market-data/internal/storage"
)

// newGate composes the pacer, retry policy and call timeout of one provider.
func newGate(name string, pc ProviderConfig, logger *slog.Logger) *ratelimit.Gate {
	policy := ratelimit.DefaultRetryPolicy()
	if pc.MaxRetries != nil {
		policy.MaxRetries = *pc.MaxRetries
	}
	timeout := pc.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	pacer := ratelimit.NewPacer(name, pc.CallsPerMinute, ratelimit.WithPacerLogger(logger))
	return ratelimit.NewGate(pacer, policy, timeout, provider.IsRetryable, logger)
}

// CreateProvider builds the named provider from config.
func CreateProvider(cfg *Config, name string, logger *slog.Logger) (provider.DataProvider, error) {
	pc, ok := cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unsupported data provider: %s. Options: alpaca, binance, polygon", name)
	}
	log := logger.With("provider", name)
	gate := newGate(name, pc, log)
	client := provider.NewHTTPClient(pc.Timeout)

	switch name {
	case ProviderAlpaca:
		tokens, err := provider.NewTokenTable(name, alpaca.DefaultTokens, pc.Tokens, log)
		if err != nil {
			return nil, err
		}
		return alpaca.New(pc.APIKey, pc.SecretKey,
			alpaca.WithBaseURL(pc.BaseURL), alpaca.WithHTTPClient(client), alpaca.WithGate(gate),
			alpaca.WithTokens(tokens), alpaca.WithFeed(pc.Feed), alpaca.WithLogger(log))
	case ProviderBinance:
		tokens, err := provider.NewTokenTable(name, binance.DefaultTokens, pc.Tokens, log)
		if err != nil {
			return nil, err
		}
		return binance.New(pc.APIKey, pc.SecretKey,
			binance.WithBaseURL(pc.BaseURL), binance.WithHTTPClient(client), binance.WithGate(gate),
			binance.WithTokens(tokens), binance.WithLogger(log)), nil
	case ProviderPolygon:
		if len(pc.APIKeys) == 0 {
			return nil, fmt.Errorf("POLYGON_API_KEY or POLYGON_API_KEYS not set")
		}
		strategy, err := polygon.ParseKeyStrategy(pc.KeyStrategy)
		if err != nil {
			return nil, err
		}
		tokens, err := provider.NewTokenTable(name, polygon.DefaultTokens, pc.Tokens, log)
		if err != nil {
			return nil, err
		}
		return polygon.NewCrawler(pc.APIKeys, strategy,
			polygon.WithBaseURL(pc.BaseURL), polygon.WithHTTPClient(client), polygon.WithGate(gate),
			polygon.WithTokens(tokens), polygon.WithLogger(log))
	}
	return nil, fmt.Errorf("unsupported data provider: %s. Options: alpaca, binance, polygon", name)
}

// hasCredentials reports whether a provider can be built. Binance klines are
// public and need no key.
func hasCredentials(name string, pc ProviderConfig) bool {
	switch name {
	case ProviderAlpaca:
		return pc.APIKey != "" && pc.SecretKey != ""
	case ProviderPolygon:
		return len(pc.APIKeys) > 0
	}
	return true
}

// CreateProviders builds every provider that has credentials.
func CreateProviders(cfg *Config, logger *slog.Logger) (ingest.Providers, error) {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(ingest.Providers, len(names))
	for _, name := range names {
		pc := cfg.Providers[name]
		if !hasCredentials(name, pc) {
			logger.Info("provider disabled, missing credentials", "provider", name)
			continue
		}
		dp, err := CreateProvider(cfg, name, logger)
		if err != nil {
			for _, p := range out {
				_ = p.Close()
			}
			return nil, err
		}
		logger.Info("wire", "provider", name, "calls_per_minute", pc.CallsPerMinute, "timeout", pc.Timeout)
		out[name] = dp
	}
	return out, nil
}

// CreateCalendars builds the trading calendar of every configured asset class.
func CreateCalendars(cfg *Config) (ingest.Calendars, error) {
	out := make(ingest.Calendars)
	for key, a := range cfg.Assets {
		ac, err := model.ParseAssetClass(key)
		if err != nil {
			return nil, err
		}
		loc, err := cfg.Location(ac)
		if err != nil {
			return nil, err
		}
		cal, err := calendar.New(ac, loc, a.Holidays)
		if err != nil {
			return nil, fmt.Errorf("assets.%s: %w", key, err)
		}
		out[ac] = cal
	}
	return out, nil
}

// CreateFormats returns the storage encoding of every asset class.
func CreateFormats(cfg *Config) (storage.Formats, error) {
	out := make(storage.Formats)
	for key, a := range cfg.Assets {
		ac, err := model.ParseAssetClass(key)
		if err != nil {
			return nil, err
		}
		loc, err := cfg.Location(ac)
		if err != nil {
			return nil, err
		}
		out[ac] = storage.Format{Location: loc, PriceMultiplier: a.PriceMultiplier}
	}
	return out, nil
}

// CreateLayout maps config to the on-disk layout.
func CreateLayout(cfg *Config) storage.Layout {
	markets := make(map[model.AssetClass]string)
	for key, a := range cfg.Assets {
		if a.Market != "" {
			markets[model.AssetClass(key)] = a.Market
		}
	}
	return storage.Layout{Root: cfg.DataDir, Markets: markets}
}
