package polygon

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data/internal/model"
	"market-data/internal/provider"
	"market-data/internal/ratelimit"
)

var farFuture = func() time.Time { return time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestSplitDateRangeIntoChunks(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 120)

	chunks := splitDateRangeIntoChunks(from, to, 50)
	require.Len(t, chunks, 3)
	assert.Equal(t, from, chunks[0][0])
	assert.Equal(t, from.AddDate(0, 0, 50), chunks[0][1])
	assert.Equal(t, chunks[0][1], chunks[1][0], "chunks are contiguous")
	assert.Equal(t, to, chunks[2][1])

	assert.Empty(t, splitDateRangeIntoChunks(to, from, 50))
}

func TestAdjustLastChunkToAvoidDelayed(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	today := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	end := now.Add(48 * time.Hour)

	assert.Equal(t, today, adjustLastChunkToAvoidDelayed(end, true, now))
	assert.Equal(t, end, adjustLastChunkToAvoidDelayed(end, false, now))
	past := today.AddDate(0, 0, -3)
	assert.Equal(t, past, adjustLastChunkToAvoidDelayed(past, true, now))
}

func TestKeyPoolRoundRobinAndLeastUsed(t *testing.T) {
	_, err := NewAPIKeyPool([]string{" ", ""}, RoundRobin)
	require.Error(t, err)

	rr, err := NewAPIKeyPool([]string{"k1", "k2", "k3"}, RoundRobin)
	require.NoError(t, err)
	var got []string
	for i := 0; i < 4; i++ {
		got = append(got, rr.Next())
	}
	assert.Equal(t, []string{"k1", "k2", "k3", "k1"}, got)

	lu, err := NewAPIKeyPool([]string{"a", "b"}, LeastUsed)
	require.NoError(t, err)
	assert.Equal(t, "a", lu.Next())
	assert.Equal(t, "b", lu.Next())
	assert.Equal(t, "a", lu.Next())
	stats := lu.Stats()
	assert.EqualValues(t, 2, stats[0].RequestCount)

	s, err := ParseKeyStrategy("least-used")
	require.NoError(t, err)
	assert.Equal(t, LeastUsed, s)
	_, err = ParseKeyStrategy("random")
	assert.Error(t, err)
}

func TestFetchBarsChunksPagesAndRotatesKeys(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
		hits int
	)
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.URL.Query().Get("apiKey"))
		hits++
		mu.Unlock()

		assert.True(t, strings.HasPrefix(r.URL.Path, "/v2/aggs/ticker/AAPL/range/1/day/"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("cursor") == "" {
			assert.Equal(t, "false", r.URL.Query().Get("adjusted"))
			fmt.Fprintf(w, `{"status":"OK","ticker":"AAPL","results":[{"t":1704205800000,"o":10,"h":11,"l":9,"c":10.5,"v":"1.5e3"}],"next_url":"%s/v2/aggs/ticker/AAPL/range/1/day/x/y?cursor=abc"}`, srv.URL)
			return
		}
		fmt.Fprint(w, `{"status":"OK","ticker":"AAPL","results":[{"t":1704292200000,"o":10.5,"h":12,"l":10,"c":11,"v":2000}]}`)
	}))
	defer srv.Close()

	c, err := NewCrawler([]string{"key-one", "key-two"}, RoundRobin, WithBaseURL(srv.URL), WithNow(farFuture))
	require.NoError(t, err)

	bars, err := c.FetchBars(context.Background(), provider.Request{
		Symbol:     "aapl",
		Resolution: model.Daily,
		Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 1500.0, bars[0].Volume)
	assert.Equal(t, time.UnixMilli(1704205800000).UTC(), bars[0].Time)
	assert.Equal(t, 2, hits)
	assert.Equal(t, []string{"key-one", "key-two"}, keys)
}

func TestFetchBarsMinuteSplitsIntoChunks(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Contains(t, r.URL.Path, "/range/1/minute/")
		fmt.Fprint(w, `{"status":"OK","results":[]}`)
	}))
	defer srv.Close()

	c, err := NewCrawler([]string{"k"}, RoundRobin, WithBaseURL(srv.URL), WithNow(farFuture))
	require.NoError(t, err)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars, err := c.FetchBars(context.Background(), provider.Request{Symbol: "SPY", Resolution: model.Minute, Start: start, End: start.AddDate(0, 0, 120)})
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.Equal(t, 3, hits)
}

func TestFetchBarsDelayedChunkSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"DELAYED","results":[{"t":1704205800000,"o":1,"h":1,"l":1,"c":1,"v":1}]}`)
	}))
	defer srv.Close()

	c, err := NewCrawler([]string{"k"}, RoundRobin, WithBaseURL(srv.URL), WithNow(farFuture))
	require.NoError(t, err)
	bars, err := c.FetchBars(context.Background(), provider.Request{
		Symbol: "SPY", Resolution: model.Daily,
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestFetchBarsRetriesRateLimit(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"status":"ERROR","error":"too many requests"}`)
			return
		}
		fmt.Fprint(w, `{"status":"OK","results":[{"t":1704205800000,"o":1,"h":1,"l":1,"c":1,"v":1}]}`)
	}))
	defer srv.Close()

	policy := ratelimit.RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	gate := ratelimit.NewGate(ratelimit.NewPacer(Name, 0), policy, time.Second, provider.IsRetryable, nil)
	c, err := NewCrawler([]string{"k"}, RoundRobin, WithBaseURL(srv.URL), WithGate(gate), WithNow(farFuture))
	require.NoError(t, err)

	bars, err := c.FetchBars(context.Background(), provider.Request{
		Symbol: "SPY", Resolution: model.Daily,
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, 2, hits)
}

func TestFetchBarsPermanentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"status":"NOT_AUTHORIZED"}`)
	}))
	defer srv.Close()

	gate := ratelimit.NewGate(nil, ratelimit.RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond}, 0, provider.IsRetryable, nil)
	c, err := NewCrawler([]string{"k"}, RoundRobin, WithBaseURL(srv.URL), WithGate(gate), WithNow(farFuture))
	require.NoError(t, err)
	_, err = c.FetchBars(context.Background(), provider.Request{
		Symbol: "SPY", Resolution: model.Daily,
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	})
	var pe *provider.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusForbidden, pe.StatusCode)
	assert.False(t, pe.Retryable)
}

func TestFetchBarsRejectsInvalidRange(t *testing.T) {
	c, err := NewCrawler([]string{"k"}, RoundRobin)
	require.NoError(t, err)
	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	_, err = c.FetchBars(context.Background(), provider.Request{Symbol: "SPY", Resolution: model.Daily, Start: start, End: start})
	assert.ErrorIs(t, err, model.ErrInvalidRange)
}
