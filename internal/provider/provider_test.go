package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data/internal/model"
)

var testTokens = map[model.Resolution]string{model.Minute: "1Min", model.Daily: "1Day"}

func TestTokenTable(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	tt, err := NewTokenTable("alpaca", testTokens, map[string]string{"daily": "1D"}, logger)
	require.NoError(t, err)
	assert.Equal(t, "1Min", tt.Token(model.Minute))
	assert.Equal(t, "1D", tt.Token(model.Daily))

	assert.Equal(t, "1Min", tt.Token(model.Hour), "unmapped resolution falls back to minute")
	assert.Contains(t, buf.String(), "unmapped resolution")

	_, err = NewTokenTable("alpaca", testTokens, map[string]string{"weekly": "1W"}, nil)
	assert.Error(t, err)
	_, err = NewTokenTable("alpaca", map[model.Resolution]string{model.Daily: "1Day"}, nil, nil)
	assert.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(&ProviderError{Provider: "x", StatusCode: 429, Retryable: true, Err: errors.New("slow down")}))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", &ProviderError{Provider: "x", StatusCode: 404, Err: errors.New("nope")})))
	assert.False(t, IsRetryable(errors.New("plain")))

	assert.True(t, StatusRetryable(http.StatusTooManyRequests))
	assert.True(t, StatusRetryable(http.StatusBadGateway))
	assert.False(t, StatusRetryable(http.StatusUnauthorized))
}

func TestDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			fmt.Fprint(w, `{"value":42}`)
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "try later")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(5 * time.Second)
	var out struct {
		Value int `json:"value"`
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/ok", nil)
	require.NoError(t, DoJSON(client, req, "test", "SYM", &out))
	assert.Equal(t, 42, out.Value)

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/busy", nil)
	err := DoJSON(client, req, "test", "SYM", &out)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusServiceUnavailable, pe.StatusCode)
	assert.True(t, pe.Retryable)
	assert.Contains(t, err.Error(), "try later")

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/missing", nil)
	err = DoJSON(client, req, "test", "SYM", &out)
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Retryable)
}

func TestRequestInWindow(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	req := Request{Symbol: "X", Resolution: model.Minute, Start: start, End: start.Add(time.Hour)}
	bars := []model.Bar{
		{Time: start.Add(-time.Minute)},
		{Time: start},
		{Time: start.Add(59 * time.Minute)},
		{Time: start.Add(time.Hour)},
	}
	got := req.InWindow(bars)
	require.Len(t, got, 2)
	assert.Equal(t, start, got[0].Time)
	assert.NoError(t, req.Validate())
}
