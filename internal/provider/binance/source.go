package binance

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"market-data/internal/model"
	"market-data/internal/provider"
	"market-data/internal/ratelimit"
)

const (
	// Name is the provider name used in config and logs.
	Name = "binance"

	// klines endpoint caps a page at 1000 rows
	pageLimit = 1000
)

// DefaultTokens maps resolutions to Binance kline intervals.
var DefaultTokens = map[model.Resolution]string{
	model.Minute: "1m",
	model.Hour:   "1h",
	model.Daily:  "1d",
}

// Binance error codes worth retrying: disconnected, too many requests, too many orders.
var retryableCodes = map[int64]bool{-1001: true, -1003: true, -1015: true}

// Source reads spot klines through the go-binance SDK.
type Source struct {
	client *gobinance.Client
	gate   *ratelimit.Gate
	tokens *provider.TokenTable
	logger *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

func WithBaseURL(u string) Option {
	return func(s *Source) {
		if u = strings.TrimSpace(u); u != "" {
			s.client.BaseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(s *Source) {
		if hc != nil {
			s.client.HTTPClient = hc
		}
	}
}

func WithGate(g *ratelimit.Gate) Option { return func(s *Source) { s.gate = g } }

func WithTokens(t *provider.TokenTable) Option {
	return func(s *Source) {
		if t != nil {
			s.tokens = t
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a spot kline source. Klines are public, so the key pair may be empty.
func New(apiKey, secret string, opts ...Option) *Source {
	client := gobinance.NewClient(apiKey, secret)
	client.HTTPClient = provider.NewHTTPClient(0)
	s := &Source{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.tokens == nil {
		s.tokens, _ = provider.NewTokenTable(Name, DefaultTokens, nil, s.logger)
	}
	return s
}

func (s *Source) GetName() string { return Name }

func (s *Source) AssetClass() model.AssetClass { return model.Crypto }

func (s *Source) Close() error {
	if s.client.HTTPClient != nil {
		s.client.HTTPClient.CloseIdleConnections()
	}
	return nil
}

// exchangeSymbol strips separators: "BTC/USDT" and "btc-usdt" become "BTCUSDT".
func exchangeSymbol(symbol string) string {
	r := strings.NewReplacer("/", "", "-", "", "_", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(symbol)))
}

// FetchBars walks klines forward from req.Start, one page per paced call.
func (s *Source) FetchBars(ctx context.Context, req provider.Request) ([]model.Bar, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	symbol := exchangeSymbol(req.Symbol)
	interval := s.tokens.Token(req.Resolution)
	endMs := req.End.UnixMilli() - 1 // Binance endTime is inclusive

	var bars []model.Bar
	for cursor := req.Start.UnixMilli(); cursor <= endMs; {
		var page []*gobinance.Kline
		err := s.gate.Call(ctx, Name+" klines "+symbol, func(ctx context.Context) error {
			kls, err := s.client.NewKlinesService().
				Symbol(symbol).
				Interval(interval).
				StartTime(cursor).
				EndTime(endMs).
				Limit(pageLimit).
				Do(ctx)
			if err != nil {
				return classify(symbol, err)
			}
			page = kls
			return nil
		})
		if err != nil {
			return nil, err
		}

		last := cursor
		for _, kl := range page {
			if kl == nil {
				continue
			}
			bar, err := toBar(kl)
			if err != nil {
				return nil, &provider.ProviderError{Provider: Name, Symbol: symbol, Err: err}
			}
			bars = append(bars, bar)
			if kl.OpenTime > last {
				last = kl.OpenTime
			}
		}
		if len(page) < pageLimit || last < cursor {
			break
		}
		cursor = last + 1
	}
	s.logger.Debug("binance fetch", "symbol", symbol, "interval", interval, "bars", len(bars))
	return req.InWindow(bars), nil
}

func toBar(kl *gobinance.Kline) (model.Bar, error) {
	var (
		b   = model.Bar{Time: time.UnixMilli(kl.OpenTime).UTC()}
		err error
	)
	fields := []struct {
		raw string
		dst *float64
	}{
		{kl.Open, &b.Open}, {kl.High, &b.High}, {kl.Low, &b.Low}, {kl.Close, &b.Close}, {kl.Volume, &b.Volume},
	}
	for _, f := range fields {
		if *f.dst, err = strconv.ParseFloat(f.raw, 64); err != nil {
			return model.Bar{}, err
		}
	}
	return b, nil
}

func classify(symbol string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		// code 0 means the body was not a Binance error document (gateway/proxy failure)
		retry := apiErr.Code == 0 || retryableCodes[apiErr.Code]
		return &provider.ProviderError{Provider: Name, Symbol: symbol, Retryable: retry, Err: err}
	}
	return &provider.ProviderError{Provider: Name, Symbol: symbol, Retryable: provider.IsRetryable(err), Err: err}
}
