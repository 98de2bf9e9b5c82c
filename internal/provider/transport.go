package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// baseTransportConfig returns the shared HTTP transport configuration used by REST adapters.
func baseTransportConfig() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: 2 * time.Minute,
		TLSHandshakeTimeout:   10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   4,
	}
}

// NewHTTPClient creates an HTTP client for vendor requests. timeout bounds
// the whole exchange; per-attempt deadlines come from the request context.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &http.Client{
		Transport: baseTransportConfig(),
		Timeout:   timeout,
	}
}

// maxErrorBody caps how much of an error response is kept for diagnostics.
const maxErrorBody = 512

// DoJSON sends req and decodes a 2xx JSON body into out. Non-2xx responses
// and transport failures come back as *ProviderError.
func DoJSON(client *http.Client, req *http.Request, providerName, symbol string, out any) error {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return &ProviderError{Provider: providerName, Symbol: symbol, Retryable: IsRetryable(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ProviderError{
			Provider:   providerName,
			Symbol:     symbol,
			StatusCode: resp.StatusCode,
			Retryable:  StatusRetryable(resp.StatusCode),
			Err:        fmt.Errorf("unexpected response: %s", string(body)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Provider: providerName, Symbol: symbol, Retryable: true, Err: fmt.Errorf("parse JSON: %w", err)}
	}
	return nil
}
