package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data/internal/model"
)

func TestCreateProvidersSkipsMissingCredentials(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	ps, err := CreateProviders(cfg, slog.Default())
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, model.Crypto, ps[ProviderBinance].AssetClass())

	t.Setenv("ALPACA_API_KEY", "id")
	t.Setenv("ALPACA_SECRET_KEY", "secret")
	t.Setenv("POLYGON_API_KEY", "pk")
	cfg, err = Load("")
	require.NoError(t, err)
	ps, err = CreateProviders(cfg, slog.Default())
	require.NoError(t, err)
	assert.Len(t, ps, 3)
	assert.Equal(t, "polygon", ps[ProviderPolygon].GetName())
	assert.Equal(t, model.Equity, ps[ProviderAlpaca].AssetClass())
}

func TestCreateProviderRejectsBadKeyStrategy(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLYGON_API_KEY", "pk")
	t.Setenv("KEY_STRATEGY", "random")
	cfg, err := Load("")
	require.NoError(t, err)
	_, err = CreateProvider(cfg, ProviderPolygon, slog.Default())
	assert.ErrorContains(t, err, "unknown key strategy")
}

func TestCreateCalendarsFormatsLayout(t *testing.T) {
	clearEnv(t)
	path := writeTempFile(t, "assets:\n  equity:\n    market: usa\n    holidays: [\"2024-01-15\"]\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	cals, err := CreateCalendars(cfg)
	require.NoError(t, err)
	eq := cals[model.Equity]
	require.NotNil(t, eq)
	ny := eq.Location()
	assert.False(t, eq.IsSession(time.Date(2024, 1, 15, 0, 0, 0, 0, ny)), "configured holiday")
	assert.True(t, eq.IsSession(time.Date(2024, 1, 16, 0, 0, 0, 0, ny)))
	assert.True(t, cals[model.Crypto].IsSession(time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC)))

	formats, err := CreateFormats(cfg)
	require.NoError(t, err)
	assert.EqualValues(t, 10000, formats[model.Equity].PriceMultiplier)
	assert.Equal(t, "UTC", formats[model.Crypto].Location.String())

	layout := CreateLayout(cfg)
	assert.Equal(t, "usa", layout.Markets[model.Equity])
	assert.Empty(t, layout.Markets[model.Crypto])
}
