package config

import (
	"os"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedropmedina/trailgrid/orders"
)

const examplePath = "../configs/example.yaml"

func exampleViper(t *testing.T, edit func(string) string) *viper.Viper {
	t.Helper()
	raw, err := os.ReadFile(examplePath)
	require.NoError(t, err)
	content := string(raw)
	if edit != nil {
		content = edit(content)
	}
	v := NewViper()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(content)))
	return v
}

func TestLoadExample(t *testing.T) {
	cfg, err := Load(examplePath)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, cfg.Backtest.Symbols)
	assert.Equal(t, 1000.0, cfg.Backtest.StartingBalance)
	assert.Equal(t, 1440, cfg.Backtest.StepsPerDay)
	assert.Equal(t, 2, cfg.Bot.Long.NPositions)
	assert.Equal(t, 0, cfg.Bot.Short.NPositions)
	assert.Equal(t, 0.5, cfg.Bot.Long.EntryTrailingGridRatio)
	assert.Equal(t, 500.0, cfg.Bot.Short.EMASpan0)

	require.Len(t, cfg.ExchangeParams, 3)
	assert.Equal(t, orders.ExchangeParams{QtyStep: 1, PriceStep: 0.001, MinQty: 1, MinCost: 5, CMult: 1}, cfg.ExchangeParams[2])

	assert.Equal(t, 60, cfg.Ranking.Window)
	assert.Equal(t, "csv", cfg.Data.Source)
	assert.Equal(t, [2]string{"adg", "sharpe_ratio"}, cfg.Optimize.ScoringPair())
	assert.Equal(t, 0.6, cfg.Optimize.Limits.LowerBoundLossProfitRatio)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRAILGRID_BACKTEST_STARTING_BALANCE", "5000")
	t.Setenv("TRAILGRID_BOT_LONG_N_POSITIONS", "3.4")
	t.Setenv("TRAILGRID_LOG_LEVEL", "debug")

	cfg, err := FromViper(exampleViper(t, nil))
	require.NoError(t, err)
	assert.Equal(t, 5000.0, cfg.Backtest.StartingBalance)
	assert.Equal(t, 3, cfg.Bot.Long.NPositions)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestMissingBotKey(t *testing.T) {
	v := exampleViper(t, func(s string) string {
		// drops the long side's key, the short side keeps its own
		return strings.Replace(s, "    ema_span_0: 500\n", "", 1)
	})
	_, err := FromViper(v)
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.Contains(t, err.Error(), "bot.long.ema_span_0")
	assert.NotContains(t, err.Error(), "bot.short")
}

func TestMissingExchange(t *testing.T) {
	v := exampleViper(t, nil)
	v.Set("backtest.symbols", []string{"BTCUSDT", "XRPUSDT"})
	_, err := FromViper(v)
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.Contains(t, err.Error(), "exchange.XRPUSDT")
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"out of range", "bot.long.close_grid_qty_pct", 2},
		{"wrong type", "bot.short.ema_span_1", "slow"},
		{"n_positions not a number", "bot.long.n_positions", "many"},
		{"no balance", "backtest.starting_balance", 0},
		{"unknown source", "data.source", "ftp"},
		{"bad scoring", "optimize.scoring", []string{"adg"}},
		{"bad log level", "log.level", "loud"},
		{"bad exchange", "exchange.ethusdt.qty_step", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := exampleViper(t, nil)
			v.Set(tt.key, tt.value)
			_, err := FromViper(v)
			assert.ErrorIs(t, err, ErrInvalidValue)
		})
	}
}

func TestInvalidBotKeepsCause(t *testing.T) {
	v := exampleViper(t, nil)
	v.Set("bot.long.unstuck_threshold", 3)
	_, err := FromViper(v)
	assert.ErrorIs(t, err, orders.ErrInvalidParams)
	assert.Contains(t, err.Error(), "bot.long")
}

func TestDataPeriod(t *testing.T) {
	d := DataConfig{Start: "2024-02-10T09:30:00Z", End: "2024-02-21T16:30:00Z"}
	start, end, err := d.Period()
	require.NoError(t, err)
	assert.True(t, end.After(start))

	_, _, err = DataConfig{Start: "yesterday", End: d.End}.Period()
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, _, err = DataConfig{Start: d.End, End: d.Start}.Period()
	assert.ErrorIs(t, err, ErrInvalidValue)
}
