package backtest

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/pedropmedina/trailgrid/logger"
	"github.com/pedropmedina/trailgrid/orders"
)

// broker owns the account: balance, positions and the fill log.
type broker struct {
	fee       float64
	balance   float64
	positions [2][]orders.Position

	// realized pnl running total and its high-water mark
	pnlCumsumRunning float64
	pnlCumsumMax     float64
	// realized loss of unstuck closes per side
	unstuckLoss [2]float64

	fills    []Fill
	observer Observer
}

func newBroker(balance, fee float64, nSymbols int, observer Observer) *broker {
	b := &broker{
		fee:      fee,
		balance:  balance,
		observer: observer,
	}
	for _, side := range sides {
		b.positions[side] = make([]orders.Position, nSymbols)
	}
	return b
}

// unstuckAllowance is the loss an unstuck close on side may still realize:
// the drawdown based allowance bounded by loss_allowance_pct of the balance
// minus what unstuck closes already lost.
func (b *broker) unstuckAllowance(side Side, bp *orders.BotParams) float64 {
	auto := orders.CalcAutoUnstuckAllowance(
		b.balance,
		bp.UnstuckLossAllowancePct*bp.TotalWalletExposureLimit,
		b.pnlCumsumMax,
		b.pnlCumsumRunning,
	)
	return math.Max(0, math.Min(auto, b.unstuckCap(side, bp)))
}

func (b *broker) unstuckCap(side Side, bp *orders.BotParams) float64 {
	return bp.UnstuckLossAllowancePct*b.balance - b.unstuckLoss[side]
}

// fill executes o on symbol i of side at step k. It reports false when the
// order turned out to be a no-op: a close against a flat position or an
// unstuck close with no loss allowance left.
func (b *broker) fill(k, i int, symbol string, side Side, ex *orders.ExchangeParams, bp *orders.BotParams, o orders.Order) (bool, error) {
	pos := b.positions[side][i]
	qty := o.Qty
	isClose := (side == Long) == (qty < 0)

	var pnl float64
	if isClose {
		if pos.IsFlat() {
			return false, nil
		}
		if math.Abs(qty) > math.Abs(pos.Size) {
			logger.WithFields(logrus.Fields{
				"symbol": symbol,
				"step":   k,
				"qty":    qty,
				"size":   pos.Size,
			}).Warn("close larger than position, clamping")
			qty = -pos.Size
		}
		if o.OrderType == orders.CloseUnstuckLong || o.OrderType == orders.CloseUnstuckShort {
			qty = b.capUnstuckQty(side, ex, bp, pos, qty, o.Price)
			if qty == 0 {
				return false, nil
			}
		}
		if side == Long {
			pnl = orders.CalcPnlLong(pos.Price, o.Price, qty, ex.CMult)
		} else {
			pnl = orders.CalcPnlShort(pos.Price, o.Price, qty, ex.CMult)
		}
		if size := orders.Round(pos.Size+qty, ex.QtyStep); size == 0 {
			pos = orders.Position{}
		} else {
			pos.Size = size
		}
		if o.OrderType == orders.CloseUnstuckLong || o.OrderType == orders.CloseUnstuckShort {
			b.unstuckLoss[side] += math.Max(0, -pnl)
		}
	} else {
		pos.Size, pos.Price = orders.CalcNewPsizePprice(pos.Size, pos.Price, qty, o.Price, ex.QtyStep)
	}

	feePaid := -orders.QtyToCost(qty, o.Price, ex.CMult) * b.fee
	b.balance += pnl + feePaid
	b.positions[side][i] = pos
	if pnl != 0 {
		b.pnlCumsumRunning += pnl
		b.pnlCumsumMax = math.Max(b.pnlCumsumMax, b.pnlCumsumRunning)
	}

	f := Fill{
		Index:         k,
		Symbol:        symbol,
		Pnl:           pnl,
		FeePaid:       feePaid,
		Balance:       b.balance,
		FillQty:       qty,
		FillPrice:     o.Price,
		PositionSize:  pos.Size,
		PositionPrice: pos.Price,
		OrderType:     o.OrderType,
	}
	b.fills = append(b.fills, f)
	if b.observer != nil {
		b.observer.OnFill(f)
	}

	if b.balance <= 0 {
		return true, &RunError{Symbol: symbol, Step: k, Err: ErrNegativeBalance}
	}
	return true, nil
}

// capUnstuckQty shrinks an unstuck close so the side's cumulative unstuck
// loss stays within loss_allowance_pct of the current balance, and so the
// position is left either flat or at least the venue minimum. It returns 0
// when the close itself would fall below the minimum.
func (b *broker) capUnstuckQty(side Side, ex *orders.ExchangeParams, bp *orders.BotParams, pos orders.Position, qty, price float64) float64 {
	lossOf := func(qty float64) float64 {
		if side == Long {
			return -orders.CalcPnlLong(pos.Price, price, qty, ex.CMult)
		}
		return -orders.CalcPnlShort(pos.Price, price, qty, ex.CMult)
	}
	capacity := b.unstuckCap(side, bp)
	capped := math.Abs(qty)
	if loss := lossOf(capped); loss > capacity {
		if capacity <= 0 {
			return 0
		}
		capped = orders.RoundDn(capped*capacity/loss, ex.QtyStep)
	}
	capped = orders.FitUnstuckRemainder(ex, pos.Size, capped, price, lossOf(pos.Size) <= capacity)
	if capped < orders.CalcMinEntryQty(price, ex) {
		return 0
	}
	return math.Copysign(capped, qty)
}

// equity marks every open position to closes and adds the balance.
func (b *broker) equity(closes func(i int) float64, exchange []orders.ExchangeParams) float64 {
	equity := b.balance
	for _, side := range sides {
		for i, pos := range b.positions[side] {
			if pos.IsFlat() {
				continue
			}
			if side == Long {
				equity += orders.CalcPnlLong(pos.Price, closes(i), pos.Size, exchange[i].CMult)
			} else {
				equity += orders.CalcPnlShort(pos.Price, closes(i), pos.Size, exchange[i].CMult)
			}
		}
	}
	return equity
}
