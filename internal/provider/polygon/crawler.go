package polygon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"market-data/internal/model"
	"market-data/internal/provider"
	"market-data/internal/ratelimit"
)

const (
	// Name is the provider name used in config and logs.
	Name = "polygon"

	defaultBaseURL = "https://api.polygon.io"

	// Max 50k results per request
	maxLimit = 50000

	// Max days per 1-minute aggregates request (~50k bars / ~960 min/day ≈ 52 days; use 50 for safety)
	maxDaysPerRequest = 50

	// Minutes per trading day (max, extended hours)
	minPerDay = 960
)

// DefaultTokens maps resolutions to Polygon timespans.
var DefaultTokens = map[model.Resolution]string{
	model.Minute: "minute",
	model.Hour:   "hour",
	model.Daily:  "day",
}

// estimatedBars returns pre-alloc capacity for [from, to). days * 960 + 10% buffer.
func estimatedBars(from, to time.Time, res model.Resolution) int {
	if !from.Before(to) {
		return 0
	}
	days := int(to.Sub(from).Hours()/24) + 1
	var n int
	switch res {
	case model.Minute:
		n = days * minPerDay
	case model.Hour:
		n = days * (minPerDay / 60)
	default:
		n = days
	}
	n = n + n/10
	if n > maxLimit*10 {
		n = maxLimit * 10
	}
	return n
}

// Crawler fetches aggregates from the Polygon REST API. Each chunk and
// next_url page is one call through the gate, signed with a key from the pool.
type Crawler struct {
	baseURL string
	client  *http.Client
	keys    *APIKeyPool
	gate    *ratelimit.Gate
	tokens  *provider.TokenTable
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Crawler.
type Option func(*Crawler)

func WithBaseURL(u string) Option {
	return func(c *Crawler) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Crawler) {
		if hc != nil {
			c.client = hc
		}
	}
}

func WithGate(g *ratelimit.Gate) Option { return func(c *Crawler) { c.gate = g } }

func WithTokens(t *provider.TokenTable) Option {
	return func(c *Crawler) {
		if t != nil {
			c.tokens = t
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithNow overrides the clock used to avoid DELAYED chunks.
func WithNow(now func() time.Time) Option {
	return func(c *Crawler) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCrawler constructs a Crawler over a pool of API keys.
func NewCrawler(apiKeys []string, strategy KeySelectionStrategy, opts ...Option) (*Crawler, error) {
	pool, err := NewAPIKeyPool(apiKeys, strategy)
	if err != nil {
		return nil, err
	}
	c := &Crawler{
		baseURL: defaultBaseURL,
		client:  provider.NewHTTPClient(0),
		keys:    pool,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		c.tokens, _ = provider.NewTokenTable(Name, DefaultTokens, nil, c.logger)
	}
	return c, nil
}

// GetName returns provider name
func (c *Crawler) GetName() string { return Name }

// AssetClass reports that Polygon serves US equities.
func (c *Crawler) AssetClass() model.AssetClass { return model.Equity }

// KeyStats exposes key-pool usage.
func (c *Crawler) KeyStats() []APIKeyInfo { return c.keys.Stats() }

// Close closes connections
func (c *Crawler) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// splitDateRangeIntoChunks splits [from, to) into windows of at most maxDays
// days so each minute request stays under maxLimit bars.
func splitDateRangeIntoChunks(from, to time.Time, maxDays int) [][2]time.Time {
	var chunks [][2]time.Time
	for start := from; start.Before(to); {
		end := start.AddDate(0, 0, maxDays)
		if end.After(to) {
			end = to
		}
		chunks = append(chunks, [2]time.Time{start, end})
		start = end
	}
	return chunks
}

// adjustLastChunkToAvoidDelayed caps the end of the final chunk at the start
// of the current UTC day; Polygon answers DELAYED for same-day data on
// non-realtime plans.
func adjustLastChunkToAvoidDelayed(chunkTo time.Time, isLastChunk bool, now time.Time) time.Time {
	if !isLastChunk {
		return chunkTo
	}
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if chunkTo.After(today) {
		return today
	}
	return chunkTo
}

// buildAggregatesRequest builds the GET request for one chunk. Polygon treats
// the upper bound as inclusive, so the half-open end is pulled back by 1ms.
// Prices are requested unadjusted, the same basis as the Alpaca adapter.
func (c *Crawler) buildAggregatesRequest(ctx context.Context, ticker, timespan string, from, to time.Time) (*http.Request, error) {
	rawURL := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/%s/%d/%d",
		c.baseURL, url.PathEscape(ticker), timespan, from.UnixMilli(), to.UnixMilli()-1)
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}
	q := u.Query()
	q.Set("adjusted", "false")
	q.Set("limit", strconv.Itoa(maxLimit))
	q.Set("sort", "asc")
	u.RawQuery = q.Encode()
	return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
}

// signed builds a GET for rawURL carrying apiKey, replacing any key already present
// (next_url pages come back without one).
func signed(ctx context.Context, rawURL, apiKey string) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}
	q := u.Query()
	q.Set("apiKey", apiKey)
	u.RawQuery = q.Encode()
	return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
}

// doAggregatesRequest runs one paced GET. Returns (nil, nil) when status is
// DELAYED (caller should skip chunk).
func (c *Crawler) doAggregatesRequest(ctx context.Context, ticker, rawURL string) (*AggregatesResponse, error) {
	var result *AggregatesResponse
	err := c.gate.Call(ctx, Name+" aggregates "+ticker, func(ctx context.Context) error {
		req, err := signed(ctx, rawURL, c.keys.Next())
		if err != nil {
			return err
		}
		var resp AggregatesResponse
		if err := provider.DoJSON(c.client, req, Name, ticker, &resp); err != nil {
			return err
		}
		switch resp.Status {
		case "OK":
			result = &resp
		case "DELAYED":
			result = nil
		default:
			return &provider.ProviderError{Provider: Name, Symbol: ticker, Err: fmt.Errorf("API status not OK: %s", resp.Status)}
		}
		return nil
	})
	return result, err
}

// FetchBars fetches aggregates for req, walking chunks and next_url pages.
func (c *Crawler) FetchBars(ctx context.Context, req provider.Request) ([]model.Bar, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ticker := strings.ToUpper(req.Symbol)
	timespan := c.tokens.Token(req.Resolution)

	maxDays := maxDaysPerRequest
	if req.Resolution != model.Minute {
		maxDays = maxDaysPerRequest * 60
	}
	chunks := splitDateRangeIntoChunks(req.Start, req.End, maxDays)
	allBars := make([]model.Bar, 0, estimatedBars(req.Start, req.End, req.Resolution))
	c.logger.Debug("polygon fetch", "symbol", ticker, "timespan", timespan, "chunks", len(chunks))

	for i, ch := range chunks {
		chunkFrom := ch[0]
		chunkTo := adjustLastChunkToAvoidDelayed(ch[1], i == len(chunks)-1, c.now())
		if !chunkFrom.Before(chunkTo) {
			continue
		}
		first, err := c.buildAggregatesRequest(ctx, ticker, timespan, chunkFrom, chunkTo)
		if err != nil {
			return nil, err
		}
		next := first.URL.String()
		for next != "" {
			resp, err := c.doAggregatesRequest(ctx, ticker, next)
			if err != nil {
				return nil, err
			}
			if resp == nil {
				c.logger.Warn("polygon chunk delayed, skipping", "symbol", ticker, "from", chunkFrom, "to", chunkTo)
				break
			}
			for _, raw := range resp.Results {
				allBars = append(allBars, raw.ToBar())
			}
			next = resp.NextURL
		}
	}

	sort.SliceStable(allBars, func(i, j int) bool { return allBars[i].Time.Before(allBars[j].Time) })
	return req.InWindow(allBars), nil
}
