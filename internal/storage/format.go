package storage

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"market-data/internal/model"
)

const rangeTimeLayout = "20060102 15:04"

// Format is the per asset class encoding: timezone for time tokens and an
// optional price multiplier. A positive multiplier stores prices as
// round(price*multiplier) and volume as a whole number; zero keeps raw floats.
type Format struct {
	Location        *time.Location
	PriceMultiplier int64
}

// Formats holds the format of every configured asset class.
type Formats map[model.AssetClass]Format

func (fs Formats) lookup(ac model.AssetClass) (Format, error) {
	f, ok := fs[ac]
	if !ok {
		return Format{}, fmt.Errorf("no storage format for asset class %q", ac)
	}
	if f.Location == nil {
		f.Location = time.UTC
	}
	return f, nil
}

func (f Format) scale(v float64) float64 {
	if f.PriceMultiplier <= 0 {
		return v
	}
	return math.Round(v * float64(f.PriceMultiplier))
}

func (f Format) unscale(v float64) float64 {
	if f.PriceMultiplier <= 0 {
		return v
	}
	return v / float64(f.PriceMultiplier)
}

// msSinceMidnight is the wall-clock offset within the local day, so a 09:30
// bar is 34200000 even on DST transition days.
func msSinceMidnight(t time.Time) int64 {
	return int64(t.Hour())*3_600_000 + int64(t.Minute())*60_000 + int64(t.Second())*1000 + int64(t.Nanosecond())/1_000_000
}

// encodeRow renders b for res. Per-day rows carry milliseconds since local
// midnight; range rows carry the absolute local "YYYYMMDD HH:MM" token.
func (f Format) encodeRow(b model.Bar, res model.Resolution) (Row, error) {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Row{}, fmt.Errorf("non-finite value at %s", b.Time.Format(time.RFC3339))
		}
	}
	local := b.Time.In(f.Location)
	var token string
	if res.PerDay() {
		token = strconv.FormatInt(msSinceMidnight(local), 10)
	} else {
		token = local.Format(rangeTimeLayout)
	}
	volume := b.Volume
	if f.PriceMultiplier > 0 {
		volume = math.Round(volume)
	}
	return Row{
		Time:   token,
		Open:   f.scale(b.Open),
		High:   f.scale(b.High),
		Low:    f.scale(b.Low),
		Close:  f.scale(b.Close),
		Volume: volume,
	}, nil
}

// decodeRow is the inverse of encodeRow. day is the partition date for
// per-day resolutions and ignored otherwise.
func (f Format) decodeRow(r Row, res model.Resolution, day time.Time) (model.Bar, error) {
	t, err := f.parseTime(r.Time, res, day)
	if err != nil {
		return model.Bar{}, err
	}
	return model.Bar{
		Time:   t,
		Open:   f.unscale(r.Open),
		High:   f.unscale(r.High),
		Low:    f.unscale(r.Low),
		Close:  f.unscale(r.Close),
		Volume: r.Volume,
	}, nil
}

func (f Format) parseTime(token string, res model.Resolution, day time.Time) (time.Time, error) {
	if !res.PerDay() {
		t, err := time.ParseInLocation(rangeTimeLayout, token, f.Location)
		if err != nil {
			return time.Time{}, fmt.Errorf("time token %q: %w", token, err)
		}
		return t, nil
	}
	ms, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("time token %q: %w", token, err)
	}
	d := day.In(f.Location)
	return time.Date(d.Year(), d.Month(), d.Day(),
		int(ms/3_600_000), int(ms/60_000%60), int(ms/1000%60), int(ms%1000)*1_000_000, f.Location), nil
}

// RowDate returns the local calendar date of a range-file row as midnight in
// the format's location.
func (f Format) RowDate(r Row) (time.Time, error) {
	t, err := f.parseTime(r.Time, model.Daily, time.Time{})
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, f.Location), nil
}
