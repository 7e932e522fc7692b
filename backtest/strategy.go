package backtest

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/pedropmedina/trailgrid/indicators"
	"github.com/pedropmedina/trailgrid/orders"
)

// runner is the mutable state of one Run.
type runner struct {
	bt     *Backtest
	broker *broker

	open     [2][]ladder
	trailing [2][]orders.TrailingPriceBundle
	emas     [2][]*indicators.EMABands
	// symbols that had a fill on the current step
	filled [2][]bool

	equities []float64
	balances []float64
}

func newRunner(bt *Backtest) *runner {
	nSymbols, nSteps := bt.hlcvs.NSymbols(), bt.hlcvs.NSteps()
	r := &runner{
		bt:       bt,
		broker:   newBroker(bt.params.StartingBalance, bt.params.MakerFee, nSymbols, bt.opts.Observer),
		equities: make([]float64, 0, nSteps),
		balances: make([]float64, 0, nSteps),
	}
	for _, side := range sides {
		bp := &bt.bot[side]
		r.open[side] = make([]ladder, nSymbols)
		r.filled[side] = make([]bool, nSymbols)
		r.trailing[side] = make([]orders.TrailingPriceBundle, nSymbols)
		r.emas[side] = make([]*indicators.EMABands, nSymbols)
		for i := 0; i < nSymbols; i++ {
			r.trailing[side][i] = orders.NewTrailingPriceBundle()
			r.emas[side][i] = indicators.NewEMABands(bp.EMASpan0, bp.EMASpan1)
			r.emas[side][i].Update(bt.hlcvs[i][0].Close)
		}
	}
	return r
}

// state is the snapshot orders for symbol i are computed against after step
// k: bid and ask both sit at the close.
func (r *runner) state(side Side, i, k int) *orders.StateParams {
	c := r.bt.hlcvs[i][k].Close
	lower, upper := r.emas[side][i].Bands()
	return &orders.StateParams{
		Balance:   r.broker.balance,
		OrderBook: orders.OrderBook{Bid: c, Ask: c},
		EMABands:  orders.EMABands{Lower: lower, Upper: upper},
	}
}

// updateTrailing restarts the bundle of every symbol that filled on step k
// at its close and folds candle k into the bundle of every other open
// position.
func (r *runner) updateTrailing(k int) {
	for _, side := range sides {
		for i, pos := range r.broker.positions[side] {
			c := r.bt.hlcvs[i][k]
			switch {
			case r.filled[side][i]:
				r.trailing[side][i] = orders.NewTrailingPriceBundle()
				r.trailing[side][i].Update(c.Close, c.Close, c.Close)
			case !pos.IsFlat():
				r.trailing[side][i].Update(c.High, c.Low, c.Close)
			}
		}
	}
}

func (r *runner) updateEMAs(k int) {
	for _, side := range sides {
		for i, e := range r.emas[side] {
			e.Update(r.bt.hlcvs[i][k].Close)
		}
	}
}

// updateOpenOrders replaces every ladder with one built from the state after
// step k. Ladders of different symbols only read shared state, so they are
// built concurrently and then stored in symbol order. The unstuck close, if
// any, is picked last because it depends on every position of the side.
func (r *runner) updateOpenOrders(ctx context.Context, k int) error {
	for _, side := range sides {
		active := r.activeSymbols(side, k)
		ladders := make([]ladder, len(active))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.bt.opts.Concurrency)
		for j, i := range active {
			j, i := j, i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				l, err := r.calcLadder(side, i, k)
				if err != nil {
					return &RunError{Symbol: r.bt.params.Symbols[i], Step: k, Err: err}
				}
				ladders[j] = l
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		clear(r.open[side])
		for j, i := range active {
			r.open[side][i] = ladders[j]
		}
		r.placeUnstuck(side, k)
	}
	return nil
}

func (r *runner) calcLadder(side Side, i, k int) (ladder, error) {
	ex := &r.bt.exchange[i]
	bp := &r.bt.bot[side]
	st := r.state(side, i, k)
	pos := r.broker.positions[side][i]
	b := &r.trailing[side][i]

	calcEntries, calcCloses := orders.CalcEntriesLong, orders.CalcClosesLong
	if side == Short {
		calcEntries, calcCloses = orders.CalcEntriesShort, orders.CalcClosesShort
	}
	entries, err := calcEntries(ex, st, bp, pos, b)
	if err != nil {
		return ladder{}, err
	}
	closes, err := calcCloses(ex, st, bp, pos, b)
	if err != nil {
		return ladder{}, err
	}
	return ladder{entries: entries, closes: closes}, nil
}

// placeUnstuck swaps the closes of at most one stuck position for an unstuck
// close: the one whose price is nearest its position price.
func (r *runner) placeUnstuck(side Side, k int) {
	bp := &r.bt.bot[side]
	allowance := r.broker.unstuckAllowance(side, bp)
	if allowance <= 0 {
		return
	}

	best, bestDiff := -1, math.Inf(1)
	var bestOrder orders.Order
	for i, pos := range r.broker.positions[side] {
		if pos.IsFlat() {
			continue
		}
		ex := &r.bt.exchange[i]
		st := r.state(side, i, k)
		var o orders.Order
		var diff float64
		if side == Long {
			o = orders.CalcUnstuckCloseLong(ex, st, bp, pos, allowance)
			diff = orders.CalcPpriceDiffLong(pos.Price, st.OrderBook.Bid)
		} else {
			o = orders.CalcUnstuckCloseShort(ex, st, bp, pos, allowance)
			diff = orders.CalcPpriceDiffShort(pos.Price, st.OrderBook.Ask)
		}
		if o.IsEmpty() {
			continue
		}
		if diff < bestDiff {
			best, bestDiff, bestOrder = i, diff, o
		}
	}
	if best >= 0 {
		r.open[side][best].closes = []orders.Order{bestOrder}
	}
}

// record appends step k's balance and mark-to-market equity.
func (r *runner) record(k int) {
	equity := r.broker.equity(func(i int) float64 {
		return r.bt.hlcvs[i][k].Close
	}, r.bt.exchange)
	r.equities = append(r.equities, equity)
	r.balances = append(r.balances, r.broker.balance)
	if r.bt.opts.Observer != nil {
		r.bt.opts.Observer.OnStep(k, r.broker.balance, equity)
	}
}
