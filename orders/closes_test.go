package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalcGridCloseLong(t *testing.T) {
	ex := testExchangeParams()

	tests := []struct {
		name     string
		balance  float64
		pos      Position
		mutate   func(*BotParams)
		expected Order
	}{
		// WE = 0.1 puts the rung near the far end of the markup range
		{"low exposure closes all", 1000, Position{Size: 1, Price: 100}, nil, Order{-1, 102.8, CloseGridLong}},
		{"full exposure", 100, Position{Size: 1, Price: 100}, nil, Order{-0.25, 101, CloseGridLong}},
		{"no markup range", 100, Position{Size: 1, Price: 100}, func(bp *BotParams) { bp.CloseGridMarkupRange = 0 }, Order{-1, 101, CloseGridLong}},
		{"qty pct out of range", 100, Position{Size: 1, Price: 100}, func(bp *BotParams) { bp.CloseGridQtyPct = 1 }, Order{-1, 101, CloseGridLong}},
		{"oversized position", 100, Position{Size: 2, Price: 100}, nil, Order{-1.25, 101, CloseGridLong}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp := testBotParams()
			if tt.mutate != nil {
				tt.mutate(bp)
			}
			assertOrder(t, tt.expected, CalcGridCloseLong(ex, testState(tt.balance, 100), bp, tt.pos))
		})
	}
}

func TestCalcGridCloseShort(t *testing.T) {
	ex := testExchangeParams()
	bp := testBotParams()
	assertOrder(t, Order{0.25, 99, CloseGridShort}, CalcGridCloseShort(ex, testState(100, 100), bp, Position{Size: -1, Price: 100}))
}

func TestCloseOnFlatPosition(t *testing.T) {
	ex := testExchangeParams()
	bp := testBotParams()
	st := testState(1000, 100)
	b := TrailingPriceBundle{MinSinceOpen: 90, MaxSinceMin: 95, MaxSinceOpen: 110, MinSinceMax: 105}
	flat := Position{}

	assert.True(t, CalcGridCloseLong(ex, st, bp, flat).IsEmpty())
	assert.True(t, CalcGridCloseShort(ex, st, bp, flat).IsEmpty())
	assert.True(t, CalcTrailingCloseLong(ex, st, bp, flat, &b).IsEmpty())
	assert.True(t, CalcTrailingCloseShort(ex, st, bp, flat, &b).IsEmpty())
	assert.True(t, CalcNextCloseLong(ex, st, bp, flat, &b).IsEmpty())
	assert.True(t, CalcNextCloseShort(ex, st, bp, flat, &b).IsEmpty())
	assert.True(t, CalcUnstuckCloseLong(ex, st, bp, flat, 100).IsEmpty())
	assert.True(t, CalcUnstuckCloseShort(ex, st, bp, flat, 100).IsEmpty())

	closes, err := CalcClosesLong(ex, st, bp, flat, &b)
	require.NoError(t, err)
	assert.Empty(t, closes)
	closes, err = CalcClosesShort(ex, st, bp, flat, &b)
	require.NoError(t, err)
	assert.Empty(t, closes)
}

func TestCalcTrailingCloseLong(t *testing.T) {
	ex := testExchangeParams()
	bp := testBotParams()
	bp.CloseTrailingThresholdPct = 0.01
	bp.CloseTrailingRetracementPct = 0.005
	st := testState(1000, 101.4)
	pos := Position{Size: 1, Price: 100}

	b := TrailingPriceBundle{MinSinceOpen: 99, MaxSinceMin: 102, MaxSinceOpen: 102, MinSinceMax: 101.8}
	assert.Equal(t, TrailingArmed, TrailingClosePhaseLong(bp, pos, &b))
	assert.True(t, CalcTrailingCloseLong(ex, st, bp, pos, &b).IsEmpty())

	b.MinSinceMax = 101.4
	assertOrder(t, Order{-1, 101.4, CloseTrailingLong}, CalcTrailingCloseLong(ex, st, bp, pos, &b))

	// a partial trailing close keeps the rest open
	bp.CloseTrailingQtyPct = 0.05
	assertOrder(t, Order{-0.5, 101.4, CloseTrailingLong}, CalcTrailingCloseLong(ex, st, bp, pos, &b))
}

func TestCalcTrailingCloseShort(t *testing.T) {
	ex := testExchangeParams()
	bp := testBotParams()
	bp.CloseTrailingThresholdPct = 0.01
	bp.CloseTrailingRetracementPct = 0.005
	st := testState(1000, 98.6)
	pos := Position{Size: -1, Price: 100}

	b := TrailingPriceBundle{MinSinceOpen: 98, MaxSinceMin: 98.6, MaxSinceOpen: 100, MinSinceMax: 98}
	assert.Equal(t, TrailingFired, TrailingClosePhaseShort(bp, pos, &b))
	assertOrder(t, Order{1, 98.6, CloseTrailingShort}, CalcTrailingCloseShort(ex, st, bp, pos, &b))
}

func TestCalcNextCloseLongRatio(t *testing.T) {
	ex := testExchangeParams()
	pos := Position{Size: 1, Price: 100}
	idle := NewTrailingPriceBundle()

	tests := []struct {
		name     string
		ratio    float64
		expected OrderType
	}{
		{"grid only", 0, CloseGridLong},
		{"trailing only", 1, Empty},
		{"position within trailing allocation", 0.5, Empty},
		{"grid owns the position", -0.5, CloseGridLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp := testBotParams()
			bp.CloseTrailingGridRatio = tt.ratio
			bp.CloseTrailingThresholdPct = 0.01
			bp.CloseTrailingRetracementPct = 0.005
			o := CalcNextCloseLong(ex, testState(1000, 100), bp, pos, &idle)
			assert.Equal(t, tt.expected, o.OrderType)
		})
	}
}

func TestCalcNextCloseLongLeavesTrailingAllocation(t *testing.T) {
	ex := testExchangeParams()
	bp := testBotParams()
	bp.CloseTrailingGridRatio = 0.5
	bp.CloseTrailingThresholdPct = 0.01
	bp.CloseTrailingRetracementPct = 0.005
	idle := NewTrailingPriceBundle()

	// WE/WEL = 1: the grid works on the half above the trailing allocation
	o := CalcNextCloseLong(ex, testState(100, 100), bp, Position{Size: 1, Price: 100}, &idle)
	assertOrder(t, Order{-0.125, 101, CloseGridLong}, o)
}

func TestCalcClosesLong(t *testing.T) {
	ex := testExchangeParams()
	bp := testBotParams()
	b := NewTrailingPriceBundle()

	closes, err := CalcClosesLong(ex, testState(100, 100), bp, Position{Size: 1, Price: 100}, &b)
	require.NoError(t, err)
	require.Len(t, closes, 4)

	prices := []float64{101, 101.5, 102, 102.5}
	var total float64
	for i, c := range closes {
		assert.Equal(t, CloseGridLong, c.OrderType)
		assert.InDelta(t, prices[i], c.Price, 1e-9)
		assert.InDelta(t, -0.25, c.Qty, 1e-9)
		total += c.Qty
	}
	assert.InDelta(t, -1.0, total, 1e-9)
}

func TestCalcClosesShort(t *testing.T) {
	ex := testExchangeParams()
	bp := testBotParams()
	b := NewTrailingPriceBundle()

	closes, err := CalcClosesShort(ex, testState(100, 100), bp, Position{Size: -1, Price: 100}, &b)
	require.NoError(t, err)
	require.Len(t, closes, 4)
	for i, c := range closes {
		assert.Greater(t, c.Qty, 0.0)
		if i > 0 {
			assert.Less(t, c.Price, closes[i-1].Price)
		}
	}
}

func TestCalcClosesMergesEqualPrices(t *testing.T) {
	ex := testExchangeParams()
	bp := testBotParams()
	b := NewTrailingPriceBundle()

	// the ask is above the whole markup range so every rung lands on it
	st := testState(100, 110)
	closes, err := CalcClosesLong(ex, st, bp, Position{Size: 1, Price: 100}, &b)
	require.NoError(t, err)
	require.Len(t, closes, 1)
	assertOrder(t, Order{-1, 110, CloseGridLong}, closes[0])
}

func TestLadderOverflow(t *testing.T) {
	defer func(n int) { MaxLadderRungs = n }(MaxLadderRungs)
	MaxLadderRungs = 1

	ex := testExchangeParams()
	bp := testBotParams()
	b := NewTrailingPriceBundle()

	// four close rungs, see TestCalcClosesLong
	_, err := CalcClosesLong(ex, testState(100, 100), bp, Position{Size: 1, Price: 100}, &b)
	assert.ErrorIs(t, err, ErrLadderOverflow)
	_, err = CalcClosesShort(ex, testState(100, 100), bp, Position{Size: -1, Price: 100}, &b)
	assert.ErrorIs(t, err, ErrLadderOverflow)

	bp.WalletExposureLimit = 0.5
	_, err = CalcEntriesLong(ex, testState(1000, 100), bp, Position{}, &b)
	assert.ErrorIs(t, err, ErrLadderOverflow)
	_, err = CalcEntriesShort(ex, testState(1000, 100), bp, Position{}, &b)
	assert.ErrorIs(t, err, ErrLadderOverflow)

	// a single rung still fits
	bp.WalletExposureLimit = 1
	closes, err := CalcClosesLong(ex, testState(1000, 100), bp, Position{Size: 0.1, Price: 100}, &b)
	require.NoError(t, err)
	assert.Len(t, closes, 1)
}
