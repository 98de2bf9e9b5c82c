package model

import (
	"fmt"
	"strings"
)

// Resolution is the bar interval.
type Resolution string

const (
	Minute Resolution = "minute"
	Hour   Resolution = "hour"
	Daily  Resolution = "daily"
)

// Resolutions lists every supported resolution, finest first.
var Resolutions = []Resolution{Minute, Hour, Daily}

// ParseResolution accepts the canonical names plus a few common aliases.
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minute", "min", "1m":
		return Minute, nil
	case "hour", "1h":
		return Hour, nil
	case "daily", "day", "1d":
		return Daily, nil
	}
	return "", fmt.Errorf("unknown resolution %q", s)
}

// PerDay reports whether data at this resolution is partitioned one file per
// local calendar day. Hour and daily data live in one range-spanning file.
func (r Resolution) PerDay() bool { return r == Minute }

func (r Resolution) String() string { return string(r) }

// AssetClass selects timezone, calendar and price encoding.
type AssetClass string

const (
	Equity AssetClass = "equity"
	Crypto AssetClass = "crypto"
)

func ParseAssetClass(s string) (AssetClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equity", "equities", "stock", "stocks":
		return Equity, nil
	case "crypto":
		return Crypto, nil
	}
	return "", fmt.Errorf("unknown asset class %q", s)
}

func (a AssetClass) String() string { return string(a) }
