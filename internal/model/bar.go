package model

import (
	"math"
	"time"
)

// Bar represents one OHLCV bar (minute/hour/daily).
// Dùng chung cho provider adapters, validator và storage encoder.
type Bar struct {
	Time   time.Time `json:"t"` // start of the bar interval, absolute instant
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

// Valid reports whether the bar satisfies the OHLC consistency rules:
// every value finite and non-negative, low <= min(open, close) and
// high >= max(open, close).
func (b Bar) Valid() bool {
	if b.Time.IsZero() {
		return false
	}
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	if b.Low > math.Min(b.Open, b.Close) {
		return false
	}
	if b.High < math.Max(b.Open, b.Close) {
		return false
	}
	return true
}

// Series is the bar sequence returned for one symbol over a requested window.
type Series struct {
	Symbol     string
	Resolution Resolution
	Bars       []Bar
}
