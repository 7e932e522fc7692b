package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pedropmedina/trailgrid/orders"
)

func TestCapUnstuckQty(t *testing.T) {
	ex := &orders.ExchangeParams{QtyStep: 0.01, PriceStep: 0.01, MinQty: 0.1, MinCost: 1, CMult: 1}

	tests := []struct {
		name     string
		side     Side
		pct      float64
		qty      float64
		expected float64
	}{
		{"within cap", Long, 0.1, -0.5, -0.5},
		// full close loses 5.25, within a cap of 6
		{"closes all", Long, 0.06, -1, -1.05},
		// 1 loses 5 and fits, the full 1.05 does not: leave the minimum
		{"keeps minimum", Long, 0.05, -1, -0.95},
		{"scaled to cap", Long, 0.02, -1, -0.4},
		{"no capacity", Long, 0, -1, 0},
		{"short keeps minimum", Short, 0.05, 1, 0.95},
		{"short closes all", Short, 0.06, 1, 1.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBroker(100, 0, 1, nil)
			bp := testBot()
			bp.UnstuckLossAllowancePct = tt.pct
			pos, price := orders.Position{Size: 1.05, Price: 100}, 95.0
			if tt.side == Short {
				pos, price = orders.Position{Size: -1.05, Price: 100}, 105
			}
			assert.InDelta(t, tt.expected, b.capUnstuckQty(tt.side, ex, &bp, pos, tt.qty, price), 1e-9)
		})
	}
}
