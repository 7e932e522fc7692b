package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedropmedina/trailgrid/backtest"
	"github.com/pedropmedina/trailgrid/orders"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testResult() *backtest.Result {
	return &backtest.Result{
		RunID: uuid.New(),
		Fills: []backtest.Fill{
			{Index: 1, Symbol: "BTC", FeePaid: -0.02, Balance: 999.98, FillQty: 1, FillPrice: 100, PositionSize: 1, PositionPrice: 100, OrderType: orders.EntryInitialNormalLong},
			{Index: 2, Symbol: "BTC", Pnl: 1, FeePaid: -0.0202, Balance: 1000.9598, FillQty: -1, FillPrice: 101, OrderType: orders.CloseGridLong},
		},
		Equities: []float64{1000, 999.98, 1000.9598},
		Balances: []float64{1000, 999.98, 1000.9598},
		Analysis: backtest.Analysis{ADG: 0.0009598, DrawdownWorst: 0.00002, LossProfitRatio: 0},
	}
}

func TestSaveAndLoadRun(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	res := testResult()
	bot := orders.BotParamsPair{
		Long:  orders.BotParams{NPositions: 3, TotalWalletExposureLimit: 1.5, EMASpan0: 10, EMASpan1: 60},
		Short: orders.BotParams{EMASpan0: 10, EMASpan1: 60},
	}
	require.NoError(t, s.SaveRun(ctx, res, []string{"BTC"}, bot))

	run, err := s.LoadRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, run.ID)
	assert.Equal(t, []string{"BTC"}, run.Symbols)
	assert.Equal(t, bot, run.Bot)
	assert.Equal(t, res.Analysis, run.Analysis)
	assert.Equal(t, 2, run.Fills)
	assert.Equal(t, 1000.9598, run.FinalBalance)
	assert.False(t, run.CreatedAt.IsZero())

	fills, err := s.LoadFills(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Fills, fills)

	equities, balances, err := s.LoadEquities(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Equities, equities)
	assert.Equal(t, res.Balances, balances)
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	var ids []uuid.UUID
	for n := 0; n < 3; n++ {
		res := testResult()
		ids = append(ids, res.RunID)
		require.NoError(t, s.SaveRun(ctx, res, []string{"BTC"}, orders.BotParamsPair{}))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}

func TestSaveRunTwiceFails(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	res := testResult()
	require.NoError(t, s.SaveRun(ctx, res, []string{"BTC"}, orders.BotParamsPair{}))
	assert.Error(t, s.SaveRun(ctx, res, []string{"BTC"}, orders.BotParamsPair{}))

	// the failed transaction left nothing behind
	fills, err := s.LoadFills(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, fills, 2)
}

func TestDeleteRun(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	res := testResult()
	require.NoError(t, s.SaveRun(ctx, res, []string{"BTC"}, orders.BotParamsPair{}))

	require.NoError(t, s.DeleteRun(ctx, res.RunID))
	_, err := s.LoadRun(ctx, res.RunID)
	assert.ErrorIs(t, err, ErrNotFound)

	fills, err := s.LoadFills(ctx, res.RunID)
	require.NoError(t, err)
	assert.Empty(t, fills)

	assert.ErrorIs(t, s.DeleteRun(ctx, res.RunID), ErrNotFound)
}
