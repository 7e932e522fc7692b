package orders

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalcAutoUnstuckAllowance(t *testing.T) {
	tests := []struct {
		name                   string
		balance, pct, max, last float64
		expected               float64
	}{
		{"at peak", 1000, 0.01, 0, 0, 10},
		{"small drawdown", 990, 0.05, 10, 0, 40},
		{"drawdown exceeds allowance", 900, 0.01, 100, 0, 0},
		{"no balance", 0, 0.01, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CalcAutoUnstuckAllowance(tt.balance, tt.pct, tt.max, tt.last), 1e-9)
		})
	}
}

func TestCalcUnstuckCloseLong(t *testing.T) {
	ex := testExchangeParams()
	pos := Position{Size: 10, Price: 100}

	tests := []struct {
		name      string
		threshold float64
		price     float64
		allowance float64
		expected  Order
	}{
		{"full size", 0.5, 80, 100, Order{-1.25, 80, CloseUnstuckLong}},
		{"capped by allowance", 0.5, 80, 10, Order{-0.5, 80, CloseUnstuckLong}},
		{"no allowance", 0.5, 80, 0, Order{OrderType: Empty}},
		{"not stuck", 1.5, 80, 100, Order{OrderType: Empty}},
		{"in profit", 0.5, 101, 100, Order{OrderType: Empty}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp := testBotParams()
			bp.UnstuckThreshold = tt.threshold
			o := CalcUnstuckCloseLong(ex, testState(1000, tt.price), bp, pos, tt.allowance)
			assertOrder(t, tt.expected, o)
			if !o.IsEmpty() {
				loss := -CalcPnlLong(pos.Price, o.Price, o.Qty, ex.CMult)
				assert.LessOrEqual(t, loss, tt.allowance+1e-9)
			}
		})
	}
}

func TestCalcUnstuckCloseShort(t *testing.T) {
	ex := testExchangeParams()
	bp := testBotParams()
	pos := Position{Size: -8, Price: 100}

	// WE = 0.8, price 125: 1000 * 0.1 / 125 = 0.8 contracts losing 25 each
	o := CalcUnstuckCloseShort(ex, testState(1000, 125), bp, pos, 100)
	assertOrder(t, Order{0.8, 125, CloseUnstuckShort}, o)

	o = CalcUnstuckCloseShort(ex, testState(1000, 125), bp, pos, 10)
	assertOrder(t, Order{0.4, 125, CloseUnstuckShort}, o)
	assert.True(t, IsStuck(ex, 1000, bp, pos))
}

func TestUnstuckCloseLeavesPlaceableRemainder(t *testing.T) {
	ex := &ExchangeParams{QtyStep: 0.01, PriceStep: 0.01, MinQty: 0.1, MinCost: 1, CMult: 1}

	tests := []struct {
		name      string
		pos       Position
		balance   float64
		price     float64
		closePct  float64
		allowance float64
		expected  Order
	}{
		// 1.0 of 1.05 would leave 0.05; the whole position fits the allowance
		{"long closes all", Position{Size: 1.05, Price: 100}, 100, 95, 0.95, 100, Order{-1.05, 95, CloseUnstuckLong}},
		// closing all would lose 5.25 > 5, so leave the minimum behind
		{"long keeps minimum", Position{Size: 1.05, Price: 100}, 100, 95, 0.95, 5, Order{-0.95, 95, CloseUnstuckLong}},
		{"short closes all", Position{Size: -1.05, Price: 100}, 105, 105, 1, 100, Order{1.05, 105, CloseUnstuckShort}},
		{"short keeps minimum", Position{Size: -1.05, Price: 100}, 105, 105, 1, 5, Order{0.95, 105, CloseUnstuckShort}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp := testBotParams()
			bp.UnstuckClosePct = tt.closePct
			st := testState(tt.balance, tt.price)

			var o Order
			if tt.pos.Size > 0 {
				o = CalcUnstuckCloseLong(ex, st, bp, tt.pos, tt.allowance)
			} else {
				o = CalcUnstuckCloseShort(ex, st, bp, tt.pos, tt.allowance)
			}
			assertOrder(t, tt.expected, o)

			remainder := Round(math.Abs(tt.pos.Size+o.Qty), ex.QtyStep)
			if remainder != 0 {
				assert.GreaterOrEqual(t, remainder, CalcMinEntryQty(o.Price, ex)-1e-9)
			}
		})
	}
}

func TestFitUnstuckRemainder(t *testing.T) {
	ex := &ExchangeParams{QtyStep: 0.01, PriceStep: 0.01, MinQty: 0.1, MinCost: 1, CMult: 1}

	assert.InDelta(t, 0.5, FitUnstuckRemainder(ex, 1.05, 0.5, 100, false), 1e-9)
	assert.InDelta(t, 1.05, FitUnstuckRemainder(ex, 1.05, 1.05, 100, false), 1e-9)
	assert.InDelta(t, 1.05, FitUnstuckRemainder(ex, 1.05, 1, 100, true), 1e-9)
	assert.InDelta(t, 0.95, FitUnstuckRemainder(ex, -1.05, 1, 100, false), 1e-9)
	// the close shrinks below the minimum, so callers drop it
	assert.Less(t, FitUnstuckRemainder(ex, 0.15, 0.1, 100, false), ex.MinQty)
}
