package provider

import (
	"context"
	"time"

	"market-data/internal/model"
)

// DataProvider is the abstraction used by the orchestrator when accessing a data source.
// Implementations translate requests to the vendor API, page through results and
// normalize records to model.Bar. Resource cleanup happens in Close.
type DataProvider interface {
	GetName() string
	AssetClass() model.AssetClass
	// FetchBars returns bars with Start <= Time < End. An empty result with a
	// nil error means the provider has no data for the window.
	FetchBars(ctx context.Context, req Request) ([]model.Bar, error)
	Close() error
}

// Request is one fetch: a symbol at a resolution over [Start, End).
type Request struct {
	Symbol     string
	Resolution model.Resolution
	Start      time.Time
	End        time.Time
}

// Validate rejects windows that are empty or inverted.
func (r Request) Validate() error {
	return model.CheckRange(r.Start, r.End)
}

// InWindow keeps bars inside [Start, End). Vendors treat end bounds
// inconsistently, so adapters trim their results with it.
func (r Request) InWindow(bars []model.Bar) []model.Bar {
	out := bars[:0]
	for _, b := range bars {
		if !b.Time.Before(r.Start) && b.Time.Before(r.End) {
			out = append(out, b)
		}
	}
	return out
}
