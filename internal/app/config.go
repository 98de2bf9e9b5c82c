package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"market-data/internal/model"
)

// Config is the application configuration: a YAML file with ${ENV}
// expansion, then env overrides for the top-level keys.
type Config struct {
	DataDir     string                    `yaml:"data_dir"`
	LogLevel    string                    `yaml:"log_level"` // debug | info | warn | error
	TableFormat string                    `yaml:"table_format"`
	Assets      map[string]AssetConfig    `yaml:"assets"`
	Providers   map[string]ProviderConfig `yaml:"providers"`
	Coverage    CoverageConfig            `yaml:"coverage"`
	Index       IndexConfig               `yaml:"index"`
}

// AssetConfig is the storage and calendar setup of one asset class.
type AssetConfig struct {
	Timezone        string   `yaml:"timezone"`
	PriceMultiplier int64    `yaml:"price_multiplier"`
	Market          string   `yaml:"market"`
	Provider        string   `yaml:"provider"`
	Holidays        []string `yaml:"holidays"`
}

// ProviderConfig holds credentials, pacing and token overrides of one provider.
type ProviderConfig struct {
	BaseURL        string            `yaml:"base_url"`
	CallsPerMinute int               `yaml:"calls_per_minute"`
	TimeoutRaw     string            `yaml:"timeout"`
	Timeout        time.Duration     `yaml:"-"`
	MaxRetries     *int              `yaml:"max_retries"`
	Tokens         map[string]string `yaml:"tokens"`

	APIKey      string   `yaml:"api_key"`
	SecretKey   string   `yaml:"secret_key"`
	APIKeys     []string `yaml:"api_keys"`
	KeyStrategy string   `yaml:"key_strategy"`
	Feed        string   `yaml:"feed"`
}

type CoverageConfig struct {
	MaxScanRows       int  `yaml:"max_scan_rows"`
	ListIntradayDates bool `yaml:"list_intraday_dates"`
}

type IndexConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

const (
	ProviderAlpaca  = "alpaca"
	ProviderBinance = "binance"
	ProviderPolygon = "polygon"

	DefaultDataDir     = "data"
	DefaultLogLevel    = "info"
	DefaultTableFormat = "csv"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
)

// defaultCallsPerMinute are the free-tier budgets of each vendor.
var defaultCallsPerMinute = map[string]int{
	ProviderAlpaca:  200,
	ProviderBinance: 1200,
	ProviderPolygon: 5,
}

// LoadDotenv loads .env from the working directory (or ENV_FILE) without
// overriding variables already set. Skipped when NO_DOTENV=1.
func LoadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}
	if f := os.Getenv("ENV_FILE"); f != "" {
		_ = godotenv.Load(f)
		return
	}
	_ = godotenv.Load(".env")
}

// Load reads path (optional: empty means env and defaults only), applies
// env overrides and defaults, and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.canonicalAssets(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (c *Config) provider(name string) ProviderConfig {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	return c.Providers[name]
}

func (c *Config) applyEnv() {
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.TableFormat = getEnv("TABLE_FORMAT", c.TableFormat)

	a := c.provider(ProviderAlpaca)
	a.APIKey = getEnv("ALPACA_API_KEY", a.APIKey)
	a.SecretKey = getEnv("ALPACA_SECRET_KEY", a.SecretKey)
	c.Providers[ProviderAlpaca] = a

	b := c.provider(ProviderBinance)
	b.APIKey = getEnv("BINANCE_API_KEY", b.APIKey)
	b.SecretKey = getEnv("BINANCE_SECRET_KEY", b.SecretKey)
	c.Providers[ProviderBinance] = b

	p := c.provider(ProviderPolygon)
	if keys := parsePolygonAPIKeys(); len(keys) > 0 {
		p.APIKeys = keys
	}
	p.KeyStrategy = getEnv("KEY_STRATEGY", p.KeyStrategy)
	c.Providers[ProviderPolygon] = p
}

func parsePolygonAPIKeys() []string {
	s := os.Getenv("POLYGON_API_KEYS")
	if s == "" {
		s = os.Getenv("POLYGON_API_KEY")
	}
	if s == "" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// canonicalAssets re-keys asset entries written under an alias (stocks,
// equities) to their asset class. Unknown keys are kept for Validate.
func (c *Config) canonicalAssets() error {
	out := make(map[string]AssetConfig, len(c.Assets))
	from := make(map[string]string, len(c.Assets))
	for key, a := range c.Assets {
		name := key
		if ac, err := model.ParseAssetClass(key); err == nil {
			name = string(ac)
		}
		if prev, dup := from[name]; dup {
			return fmt.Errorf("assets.%s and assets.%s both configure %s", prev, key, name)
		}
		from[name] = key
		out[name] = a
	}
	c.Assets = out
	return nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.TableFormat == "" {
		c.TableFormat = DefaultTableFormat
	}
	c.TableFormat = strings.ToLower(c.TableFormat)

	if c.Assets == nil {
		c.Assets = make(map[string]AssetConfig)
	}
	eq := c.Assets[string(model.Equity)]
	if eq.Timezone == "" {
		eq.Timezone = "America/New_York"
	}
	if eq.PriceMultiplier == 0 {
		eq.PriceMultiplier = 10000
	}
	if eq.Provider == "" {
		eq.Provider = ProviderAlpaca
	}
	c.Assets[string(model.Equity)] = eq

	cr := c.Assets[string(model.Crypto)]
	if cr.Timezone == "" {
		cr.Timezone = "UTC"
	}
	if cr.Provider == "" {
		cr.Provider = ProviderBinance
	}
	c.Assets[string(model.Crypto)] = cr

	for name, p := range c.Providers {
		if p.CallsPerMinute == 0 {
			p.CallsPerMinute = defaultCallsPerMinute[name]
		}
		if p.MaxRetries == nil {
			n := DefaultMaxRetries
			p.MaxRetries = &n
		}
		c.Providers[name] = p
	}

	if c.Index.Path == "" {
		c.Index.Path = filepath.Join(c.DataDir, ".index.db")
	}
}

// Validate checks values and parses durations.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	switch c.TableFormat {
	case "csv", "parquet", "json":
	default:
		return fmt.Errorf("table_format must be one of csv, parquet, json, got %q", c.TableFormat)
	}

	for name, p := range c.Providers {
		if _, ok := defaultCallsPerMinute[name]; !ok {
			return fmt.Errorf("unknown provider %q", name)
		}
		if p.CallsPerMinute < 0 {
			return fmt.Errorf("providers.%s.calls_per_minute must be >= 0", name)
		}
		if p.MaxRetries != nil && *p.MaxRetries < 0 {
			return fmt.Errorf("providers.%s.max_retries must be >= 0", name)
		}
		p.Timeout = DefaultTimeout
		if p.TimeoutRaw != "" {
			d, err := time.ParseDuration(p.TimeoutRaw)
			if err != nil {
				return fmt.Errorf("providers.%s.timeout %q: %w", name, p.TimeoutRaw, err)
			}
			if d <= 0 {
				return fmt.Errorf("providers.%s.timeout must be > 0", name)
			}
			p.Timeout = d
		}
		for key := range p.Tokens {
			if _, err := model.ParseResolution(key); err != nil {
				return fmt.Errorf("providers.%s.tokens: %w", name, err)
			}
		}
		c.Providers[name] = p
	}

	for key, a := range c.Assets {
		if _, err := model.ParseAssetClass(key); err != nil {
			return fmt.Errorf("assets: %w", err)
		}
		if _, err := time.LoadLocation(a.Timezone); err != nil {
			return fmt.Errorf("assets.%s.timezone %q: %w", key, a.Timezone, err)
		}
		if a.PriceMultiplier < 0 {
			return fmt.Errorf("assets.%s.price_multiplier must be >= 0", key)
		}
		for _, h := range a.Holidays {
			if _, err := time.Parse("2006-01-02", h); err != nil {
				return fmt.Errorf("assets.%s.holidays: %q is not YYYY-MM-DD", key, h)
			}
		}
		if _, ok := defaultCallsPerMinute[a.Provider]; !ok {
			return fmt.Errorf("assets.%s.provider %q is not a known provider", key, a.Provider)
		}
	}

	if c.Coverage.MaxScanRows < 0 {
		return fmt.Errorf("coverage.max_scan_rows must be >= 0")
	}
	return nil
}

// Location returns the timezone of an asset class.
func (c *Config) Location(ac model.AssetClass) (*time.Location, error) {
	a, ok := c.Assets[string(ac)]
	if !ok {
		return nil, fmt.Errorf("asset class %q is not configured", ac)
	}
	return time.LoadLocation(a.Timezone)
}

// DefaultProvider returns the provider used for an asset class when none is given.
func (c *Config) DefaultProvider(ac model.AssetClass) string {
	return c.Assets[string(ac)].Provider
}

// ReportDir is where .lastrun.json is written.
func (c *Config) ReportDir() string {
	return c.DataDir
}

// ProgressPath returns path to .progress.json
func (c *Config) ProgressPath() string {
	return filepath.Join(c.DataDir, ".progress.json")
}
