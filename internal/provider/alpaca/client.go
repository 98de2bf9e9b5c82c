package alpaca

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"market-data/internal/model"
	"market-data/internal/provider"
	"market-data/internal/ratelimit"
)

const (
	// Name is the provider name used in config and logs.
	Name = "alpaca"

	defaultBaseURL = "https://data.alpaca.markets"
	pageLimit      = 10000
)

// DefaultTokens maps resolutions to Alpaca timeframes.
var DefaultTokens = map[model.Resolution]string{
	model.Minute: "1Min",
	model.Hour:   "1Hour",
	model.Daily:  "1Day",
}

// Client reads historical stock bars from the Alpaca market data API.
type Client struct {
	baseURL string
	keyID   string
	secret  string
	feed    string
	client  *http.Client
	gate    *ratelimit.Gate
	tokens  *provider.TokenTable
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

func WithGate(g *ratelimit.Gate) Option { return func(c *Client) { c.gate = g } }

func WithTokens(t *provider.TokenTable) Option {
	return func(c *Client) {
		if t != nil {
			c.tokens = t
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFeed selects the data feed (iex, sip). Empty leaves the account default.
func WithFeed(feed string) Option { return func(c *Client) { c.feed = feed } }

// New creates a client authenticated with an API key pair.
func New(keyID, secret string, opts ...Option) (*Client, error) {
	if keyID == "" || secret == "" {
		return nil, fmt.Errorf("alpaca: api key and secret are required")
	}
	c := &Client{
		baseURL: defaultBaseURL,
		keyID:   keyID,
		secret:  secret,
		client:  provider.NewHTTPClient(0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		c.tokens, _ = provider.NewTokenTable(Name, DefaultTokens, nil, c.logger)
	}
	return c, nil
}

func (c *Client) GetName() string { return Name }

func (c *Client) AssetClass() model.AssetClass { return model.Equity }

func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// FetchBars pages through /v2/stocks/{symbol}/bars until next_page_token is empty.
func (c *Client) FetchBars(ctx context.Context, req provider.Request) ([]model.Bar, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	symbol := strings.ToUpper(req.Symbol)
	timeframe := c.tokens.Token(req.Resolution)

	var (
		bars      []model.Bar
		pageToken string
		pages     int
	)
	for {
		var page barsResponse
		err := c.gate.Call(ctx, Name+" bars "+symbol, func(ctx context.Context) error {
			httpReq, err := c.barsRequest(ctx, symbol, timeframe, req.Start, req.End, pageToken)
			if err != nil {
				return err
			}
			page = barsResponse{}
			return provider.DoJSON(c.client, httpReq, Name, symbol, &page)
		})
		if err != nil {
			return nil, err
		}
		pages++
		for _, raw := range page.Bars {
			bars = append(bars, raw.toBar())
		}
		if page.NextPageToken == nil || *page.NextPageToken == "" {
			break
		}
		pageToken = *page.NextPageToken
	}
	c.logger.Debug("alpaca fetch", "symbol", symbol, "timeframe", timeframe, "pages", pages, "bars", len(bars))
	return req.InWindow(bars), nil
}

func (c *Client) barsRequest(ctx context.Context, symbol, timeframe string, start, end time.Time, pageToken string) (*http.Request, error) {
	u, err := url.Parse(fmt.Sprintf("%s/v2/stocks/%s/bars", c.baseURL, url.PathEscape(symbol)))
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}
	q := u.Query()
	q.Set("timeframe", timeframe)
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	q.Set("adjustment", "raw")
	q.Set("limit", strconv.Itoa(pageLimit))
	if c.feed != "" {
		q.Set("feed", c.feed)
	}
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("APCA-API-KEY-ID", c.keyID)
	httpReq.Header.Set("APCA-API-SECRET-KEY", c.secret)
	httpReq.Header.Set("Accept", "application/json")
	return httpReq, nil
}
