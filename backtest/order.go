package backtest

import (
	"github.com/pedropmedina/trailgrid/marketdata"
	"github.com/pedropmedina/trailgrid/orders"
)

// ladder is what one side of one symbol has resting on the book, each list
// nearest price first.
type ladder struct {
	entries []orders.Order
	closes  []orders.Order
}

// crosses reports whether the candle traded through the order's price. A
// buy needs the low strictly below it and a sell the high strictly above.
func crosses(o orders.Order, c marketdata.Candle) bool {
	if o.Qty > 0 {
		return c.Low < o.Price
	}
	return c.High > o.Price
}

// crossedPrefix returns the leading rungs the candle crossed. A deeper rung
// cannot fill before a nearer one.
func crossedPrefix(rungs []orders.Order, c marketdata.Candle) []orders.Order {
	for n, o := range rungs {
		if o.IsEmpty() || !crosses(o, c) {
			return rungs[:n]
		}
	}
	return rungs
}

// checkFills executes every order resting since step k-1 that candle k
// crossed. Sides go long then short, symbols ascending and within a symbol
// closes before entries.
func (r *runner) checkFills(k int) error {
	for _, side := range sides {
		filled := r.filled[side]
		clear(filled)
		for i, l := range r.open[side] {
			c := r.bt.hlcvs[i][k]
			for _, group := range [][]orders.Order{l.closes, l.entries} {
				for _, o := range crossedPrefix(group, c) {
					ok, err := r.broker.fill(k, i, r.bt.params.Symbols[i], side, &r.bt.exchange[i], &r.bt.bot[side], o)
					if err != nil {
						return err
					}
					filled[i] = filled[i] || ok
				}
			}
		}
	}
	return nil
}
