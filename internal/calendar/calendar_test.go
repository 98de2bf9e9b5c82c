package calendar

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data/internal/model"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestEquitySessionsSkipWeekendsAndHolidays(t *testing.T) {
	loc := newYork(t)
	cal, err := New(model.Equity, loc, []string{"2024-01-15"})
	require.NoError(t, err)

	// Fri 2024-01-12 through Tue 2024-01-16 inclusive
	start := time.Date(2024, 1, 12, 0, 0, 0, 0, loc)
	end := time.Date(2024, 1, 17, 0, 0, 0, 0, loc)
	days := cal.Sessions(start, end)

	var got []string
	for _, d := range days {
		got = append(got, d.Format(dateLayout))
	}
	assert.Equal(t, []string{"2024-01-12", "2024-01-16"}, got)
}

func TestCryptoSessionsEveryDay(t *testing.T) {
	cal, err := New(model.Crypto, time.UTC, []string{"2024-01-15"})
	require.NoError(t, err)
	start := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
	days := cal.Sessions(start, start.AddDate(0, 0, 5))
	assert.Len(t, days, 5)
	assert.True(t, cal.IsSession(time.Date(2024, 1, 13, 12, 0, 0, 0, time.UTC)))
}

func TestSessionsUseLocalDates(t *testing.T) {
	loc := newYork(t)
	cal, err := New(model.Equity, loc, nil)
	require.NoError(t, err)

	// 2024-01-09 02:00 UTC is still Jan 8 in New York.
	start := time.Date(2024, 1, 9, 2, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	days := cal.Sessions(start, end)
	require.Len(t, days, 3)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, loc), days[0])
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, loc), days[2])
}

func TestDayBoundsAcrossDST(t *testing.T) {
	loc := newYork(t)
	cal, err := New(model.Equity, loc, nil)
	require.NoError(t, err)

	start, end := cal.DayBounds(time.Date(2024, 3, 10, 15, 0, 0, 0, loc))
	assert.Equal(t, 23*time.Hour, end.Sub(start))
	start, end = cal.DayBounds(time.Date(2024, 11, 3, 15, 0, 0, 0, loc))
	assert.Equal(t, 25*time.Hour, end.Sub(start))
}

func TestInvalidHoliday(t *testing.T) {
	_, err := New(model.Equity, time.UTC, []string{"01/15/2024"})
	assert.Error(t, err)
}
