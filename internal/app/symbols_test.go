package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSymbolsFromFile(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "symbols.txt")
	require.NoError(t, os.WriteFile(txt, []byte("# index\naapl\n\nMSFT\n aapl \n"), 0o644))
	got, err := LoadSymbolsFromFile(txt)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, got)

	js := filepath.Join(dir, "symbols.json")
	require.NoError(t, os.WriteFile(js, []byte(`["btc/usdt","ETH/USDT"]`), 0o644))
	got, err = LoadSymbolsFromFile(js)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, got)

	_, err = LoadSymbolsFromFile(filepath.Join(dir, "symbols.csv"))
	assert.Error(t, err)
}

func TestParseSymbolList(t *testing.T) {
	assert.Equal(t, []string{"SPY", "QQQ"}, ParseSymbolList("spy, qqq,,SPY"))
	assert.Empty(t, ParseSymbolList(""))
}

func TestScheduleNextRunTime(t *testing.T) {
	s, err := ParseSchedule("00:30")
	require.NoError(t, err)
	require.NotNil(t, s)

	before := time.Date(2024, 3, 1, 0, 10, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC), NextRunTime(before, *s))
	after := time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 30, 0, 0, time.UTC), NextRunTime(after, *s))

	none, err := ParseSchedule("")
	require.NoError(t, err)
	assert.Nil(t, none)
	_, err = ParseSchedule("25:00")
	assert.Error(t, err)
}
