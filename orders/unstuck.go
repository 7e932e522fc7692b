package orders

import "math"

// IsStuck reports whether a position has used more of its wallet exposure
// limit than UnstuckThreshold allows.
func IsStuck(ex *ExchangeParams, balance float64, bp *BotParams, pos Position) bool {
	if pos.IsFlat() || bp.WalletExposureLimit <= 0 {
		return false
	}
	we := CalcWalletExposure(ex.CMult, balance, pos.Size, pos.Price)
	return we/bp.WalletExposureLimit > bp.UnstuckThreshold
}

// CalcAutoUnstuckAllowance is how much more loss unstuck closes may realize.
// It is the loss allowance of the peak balance minus what has already been
// given back since that peak.
func CalcAutoUnstuckAllowance(balance, lossAllowancePct, pnlCumsumMax, pnlCumsumLast float64) float64 {
	balancePeak := balance + (pnlCumsumMax - pnlCumsumLast)
	if balancePeak <= 0 {
		return 0
	}
	dropSincePeakPct := balance/balancePeak - 1
	return math.Max(0, balancePeak*(lossAllowancePct+dropSincePeakPct))
}

// CalcUnstuckCloseLong returns a loss-taking close for a stuck long, sized by
// UnstuckClosePct and shrunk so its realized loss fits in allowance. It is
// empty when the position is not stuck, is in profit at the unstuck price, or
// the allowed size drops below the minimum.
func CalcUnstuckCloseLong(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, allowance float64) Order {
	if pos.Size <= 0 || !IsStuck(ex, st.Balance, bp, pos) {
		return emptyOrder()
	}
	price := math.Max(
		st.OrderBook.Ask,
		RoundUp(st.EMABands.Upper*(1+bp.UnstuckEMADist), ex.PriceStep),
	)
	if price >= pos.Price {
		// a regular close will take it
		return emptyOrder()
	}
	minQty := CalcMinEntryQty(price, ex)
	qty := math.Min(
		pos.Size,
		math.Max(minQty, RoundDn(CostToQty(st.Balance*bp.WalletExposureLimit*bp.UnstuckClosePct, price, ex.CMult), ex.QtyStep)),
	)
	qty = capUnstuckQty(ex, qty, -CalcPnlLong(pos.Price, price, qty, ex.CMult), allowance)
	qty = FitUnstuckRemainder(ex, pos.Size, qty, price, -CalcPnlLong(pos.Price, price, pos.Size, ex.CMult) <= allowance)
	if qty < minQty {
		return emptyOrder()
	}
	return Order{Qty: -qty, Price: price, OrderType: CloseUnstuckLong}
}

// CalcUnstuckCloseShort is the short mirror of CalcUnstuckCloseLong.
func CalcUnstuckCloseShort(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, allowance float64) Order {
	if pos.Size >= 0 || !IsStuck(ex, st.Balance, bp, pos) {
		return emptyOrder()
	}
	price := math.Min(
		st.OrderBook.Bid,
		RoundDn(st.EMABands.Lower*(1-bp.UnstuckEMADist), ex.PriceStep),
	)
	if price <= pos.Price || price <= 0 {
		return emptyOrder()
	}
	psize := math.Abs(pos.Size)
	minQty := CalcMinEntryQty(price, ex)
	qty := math.Min(
		psize,
		math.Max(minQty, RoundDn(CostToQty(st.Balance*bp.WalletExposureLimit*bp.UnstuckClosePct, price, ex.CMult), ex.QtyStep)),
	)
	qty = capUnstuckQty(ex, qty, -CalcPnlShort(pos.Price, price, qty, ex.CMult), allowance)
	qty = FitUnstuckRemainder(ex, psize, qty, price, -CalcPnlShort(pos.Price, price, psize, ex.CMult) <= allowance)
	if qty < minQty {
		return emptyOrder()
	}
	return Order{Qty: qty, Price: price, OrderType: CloseUnstuckShort}
}

func capUnstuckQty(ex *ExchangeParams, qty, loss, allowance float64) float64 {
	if loss <= allowance {
		return qty
	}
	if allowance <= 0 {
		return 0
	}
	return RoundDn(qty*allowance/loss, ex.QtyStep)
}

// FitUnstuckRemainder makes sure an unstuck close of qty out of psize leaves
// either nothing or at least the venue minimum at price behind. When
// canCloseAll is set the whole position is closed instead of leaving a dust
// remainder, otherwise qty shrinks until the remainder is placeable. psize and
// qty are absolute.
func FitUnstuckRemainder(ex *ExchangeParams, psize, qty, price float64, canCloseAll bool) float64 {
	psize = Round(math.Abs(psize), ex.QtyStep)
	minQty := CalcMinEntryQty(price, ex)
	if qty >= psize || Round(psize-qty, ex.QtyStep) >= minQty {
		return qty
	}
	if canCloseAll {
		return psize
	}
	return math.Max(0, RoundDn(roundDynamic(psize-minQty, 10), ex.QtyStep))
}
