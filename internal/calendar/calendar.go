// Package calendar enumerates the session dates an asset class trades on.
package calendar

import (
	"fmt"
	"time"

	"market-data/internal/model"
)

const dateLayout = "2006-01-02"

// Calendar enumerates local calendar dates in one timezone. Equities trade
// on weekdays minus configured holidays; crypto trades every day.
type Calendar struct {
	loc          *time.Location
	weekdaysOnly bool
	holidays     map[string]struct{}
}

// New builds the calendar for an asset class. holidays are YYYY-MM-DD dates
// in loc and only apply to weekday calendars.
func New(asset model.AssetClass, loc *time.Location, holidays []string) (*Calendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := &Calendar{
		loc:          loc,
		weekdaysOnly: asset == model.Equity,
		holidays:     make(map[string]struct{}, len(holidays)),
	}
	for _, h := range holidays {
		d, err := time.ParseInLocation(dateLayout, h, loc)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h, err)
		}
		c.holidays[d.Format(dateLayout)] = struct{}{}
	}
	return c, nil
}

// Location returns the calendar timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Midnight returns local midnight of the date t falls on.
func (c *Calendar) Midnight(t time.Time) time.Time {
	l := t.In(c.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, c.loc)
}

// DayBounds returns [midnight, next midnight) of the local date of d.
// On DST transition days the window is 23 or 25 hours long.
func (c *Calendar) DayBounds(d time.Time) (time.Time, time.Time) {
	start := c.Midnight(d)
	return start, start.AddDate(0, 0, 1)
}

// IsSession reports whether the local date of d is a trading day.
func (c *Calendar) IsSession(d time.Time) bool {
	l := d.In(c.loc)
	if c.weekdaysOnly {
		if wd := l.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	_, holiday := c.holidays[l.Format(dateLayout)]
	return !(holiday && c.weekdaysOnly)
}

// Sessions returns the local midnights of every trading day overlapping the
// half-open window [start, end).
func (c *Calendar) Sessions(start, end time.Time) []time.Time {
	var out []time.Time
	for d := c.Midnight(start); d.Before(end); d = d.AddDate(0, 0, 1) {
		if c.IsSession(d) {
			out = append(out, d)
		}
	}
	return out
}
