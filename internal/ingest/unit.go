package ingest

import (
	"time"

	"market-data/internal/model"
	"market-data/internal/storage"
)

// Job asks for symbols from one provider at one resolution over [Start, End).
type Job struct {
	Provider   string
	Symbols    []string
	Resolution model.Resolution
	Start      time.Time
	End        time.Time
}

// State is the lifecycle position of a unit.
type State string

const (
	StatePending    State = "pending"
	StateFetching   State = "fetching"
	StateValidating State = "validating"
	StateEncoding   State = "encoding"
	StatePersisted  State = "persisted"
	StateSkipped    State = "skipped"
)

// SkipReason tells why a unit ended without a partition.
type SkipReason string

const (
	ReasonNoData    SkipReason = "no_data"
	ReasonError     SkipReason = "error"
	ReasonCancelled SkipReason = "cancelled"
	ReasonExisting  SkipReason = "existing"
)

// Unit is one fetch-validate-encode-persist step: a single local day for
// per-day resolutions, the whole window otherwise.
type Unit struct {
	Provider   string           `json:"provider"`
	Symbol     string           `json:"symbol"`
	AssetClass model.AssetClass `json:"asset_class"`
	Resolution model.Resolution `json:"resolution"`
	Date       time.Time        `json:"-"`
	From       time.Time        `json:"from"`
	To         time.Time        `json:"to"`
	State      State            `json:"state"`
	Reason     SkipReason       `json:"reason,omitempty"`
	Error      string           `json:"error,omitempty"`
	Bars       int              `json:"bars"`
	Dropped    int              `json:"dropped"`
	Path       string           `json:"path,omitempty"`
}

// Key is the storage key the unit writes.
func (u Unit) Key() storage.Key {
	return storage.Key{AssetClass: u.AssetClass, Resolution: u.Resolution, Symbol: u.Symbol, Date: u.Date}
}

// DateRange renders the unit window for logs and reports.
func (u Unit) DateRange() string {
	if u.Resolution.PerDay() {
		return u.Date.Format("2006-01-02")
	}
	return u.From.Format("2006-01-02") + ".." + u.To.Format("2006-01-02")
}

func (u *Unit) skip(reason SkipReason, err error) {
	u.State = StateSkipped
	u.Reason = reason
	if err != nil {
		u.Error = err.Error()
	}
}

// Summary is the outcome of one run.
type Summary struct {
	RunID     string             `json:"run_id"`
	Started   time.Time          `json:"started"`
	Finished  time.Time          `json:"finished"`
	Cancelled bool               `json:"cancelled"`
	Persisted int                `json:"persisted"`
	Skipped   map[SkipReason]int `json:"skipped"`
	Bars      int                `json:"bars"`
	Units     []Unit             `json:"units"`
}

// Failed returns the units skipped because of an error.
func (s *Summary) Failed() []Unit {
	var out []Unit
	for _, u := range s.Units {
		if u.Reason == ReasonError {
			out = append(out, u)
		}
	}
	return out
}
