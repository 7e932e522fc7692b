package orders

import "math"

// closeGridRatio is how much of the wallet exposure limit the position uses,
// capped at 1. A position without a limit counts as full.
func closeGridRatio(ex *ExchangeParams, st *StateParams, bp *BotParams, psize, pprice float64) float64 {
	if bp.WalletExposureLimit <= 0 {
		return 1
	}
	return math.Min(1, CalcWalletExposure(ex.CMult, st.Balance, psize, pprice)/bp.WalletExposureLimit)
}

// calcGridCloseQty sizes one take-profit rung. psize is absolute. Any size
// above the full allocation is added to the rung so oversized positions
// shrink back first.
func calcGridCloseQty(ex *ExchangeParams, st *StateParams, bp *BotParams, psize, pprice, price, qtyPct float64) float64 {
	fullPsize := CostToQty(st.Balance*bp.WalletExposureLimit, pprice, ex.CMult)
	leftover := math.Max(0, psize-fullPsize)
	minQty := CalcMinEntryQty(price, ex)
	qty := math.Min(
		Round(psize, ex.QtyStep),
		math.Max(minQty, RoundUp(fullPsize*qtyPct+leftover, ex.QtyStep)),
	)
	if psize-qty < minQty {
		// the remainder would be unplaceable
		return Round(psize, ex.QtyStep)
	}
	return qty
}

// CalcGridCloseLong returns the nearest long take-profit rung. The markup
// range above the min markup is walked from the far end while exposure is
// low and reaches the near end once the position hits its limit.
func CalcGridCloseLong(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position) Order {
	if pos.Size <= 0 {
		return emptyOrder()
	}
	psize := pos.Size
	if bp.CloseGridMarkupRange <= 0 || bp.CloseGridQtyPct < 0 || bp.CloseGridQtyPct >= 1 {
		price := math.Max(st.OrderBook.Ask, RoundUp(pos.Price*(1+bp.CloseGridMinMarkup), ex.PriceStep))
		return Order{Qty: -Round(psize, ex.QtyStep), Price: price, OrderType: CloseGridLong}
	}
	start := RoundUp(pos.Price*(1+bp.CloseGridMinMarkup), ex.PriceStep)
	end := RoundUp(pos.Price*(1+bp.CloseGridMinMarkup+bp.CloseGridMarkupRange), ex.PriceStep)
	if start == end {
		price := math.Max(st.OrderBook.Ask, start)
		return Order{Qty: -Round(psize, ex.QtyStep), Price: price, OrderType: CloseGridLong}
	}
	nSteps := math.Ceil((end - start) / ex.PriceStep)
	qtyPct := math.Max(bp.CloseGridQtyPct, 1/nSteps)
	ratio := closeGridRatio(ex, st, bp, psize, pos.Price)
	price := math.Max(
		RoundUp(start+(end-start)*(1-ratio), ex.PriceStep),
		st.OrderBook.Ask,
	)
	qty := calcGridCloseQty(ex, st, bp, psize, pos.Price, price, qtyPct)
	return Order{Qty: -qty, Price: price, OrderType: CloseGridLong}
}

// CalcGridCloseShort returns the nearest short take-profit rung.
func CalcGridCloseShort(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position) Order {
	if pos.Size >= 0 {
		return emptyOrder()
	}
	psize := math.Abs(pos.Size)
	if bp.CloseGridMarkupRange <= 0 || bp.CloseGridQtyPct < 0 || bp.CloseGridQtyPct >= 1 {
		price := math.Min(st.OrderBook.Bid, RoundDn(pos.Price*(1-bp.CloseGridMinMarkup), ex.PriceStep))
		return Order{Qty: Round(psize, ex.QtyStep), Price: price, OrderType: CloseGridShort}
	}
	start := RoundDn(pos.Price*(1-bp.CloseGridMinMarkup), ex.PriceStep)
	end := RoundDn(pos.Price*(1-bp.CloseGridMinMarkup-bp.CloseGridMarkupRange), ex.PriceStep)
	if start == end {
		price := math.Min(st.OrderBook.Bid, start)
		return Order{Qty: Round(psize, ex.QtyStep), Price: price, OrderType: CloseGridShort}
	}
	nSteps := math.Ceil((start - end) / ex.PriceStep)
	qtyPct := math.Max(bp.CloseGridQtyPct, 1/nSteps)
	ratio := closeGridRatio(ex, st, bp, psize, pos.Price)
	price := math.Min(
		RoundDn(start-(start-end)*(1-ratio), ex.PriceStep),
		st.OrderBook.Bid,
	)
	if price <= 0 {
		return emptyOrder()
	}
	qty := calcGridCloseQty(ex, st, bp, psize, pos.Price, price, qtyPct)
	return Order{Qty: qty, Price: price, OrderType: CloseGridShort}
}

// calcTrailingCloseQty sizes a trailing close as a share of the full
// allocation. A remainder below the minimum closes the whole position.
func calcTrailingCloseQty(ex *ExchangeParams, st *StateParams, bp *BotParams, psize, pprice, price float64) float64 {
	all := Round(psize, ex.QtyStep)
	if bp.CloseTrailingQtyPct <= 0 || bp.CloseTrailingQtyPct >= 1 {
		return all
	}
	fullPsize := CostToQty(st.Balance*bp.WalletExposureLimit, pprice, ex.CMult)
	minQty := CalcMinEntryQty(price, ex)
	qty := math.Min(all, math.Max(minQty, RoundUp(fullPsize*bp.CloseTrailingQtyPct, ex.QtyStep)))
	if psize-qty < minQty {
		return all
	}
	return qty
}

// CalcTrailingCloseLong closes once price has risen past the threshold and
// pulled back by the retracement.
func CalcTrailingCloseLong(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, b *TrailingPriceBundle) Order {
	if pos.Size <= 0 {
		return emptyOrder()
	}
	rule := closeRuleLong(bp)
	if rule.phase(b, pos.Price) != TrailingFired {
		return emptyOrder()
	}
	price := rule.price(ex, st.OrderBook, pos.Price)
	qty := calcTrailingCloseQty(ex, st, bp, pos.Size, pos.Price, price)
	return Order{Qty: -qty, Price: price, OrderType: CloseTrailingLong}
}

// CalcTrailingCloseShort closes once price has fallen past the threshold and
// bounced by the retracement.
func CalcTrailingCloseShort(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, b *TrailingPriceBundle) Order {
	if pos.Size >= 0 {
		return emptyOrder()
	}
	rule := closeRuleShort(bp)
	if rule.phase(b, pos.Price) != TrailingFired {
		return emptyOrder()
	}
	price := rule.price(ex, st.OrderBook, pos.Price)
	if price <= 0 {
		return emptyOrder()
	}
	qty := calcTrailingCloseQty(ex, st, bp, math.Abs(pos.Size), pos.Price, price)
	return Order{Qty: qty, Price: price, OrderType: CloseTrailingShort}
}

type gridCloseFunc func(*ExchangeParams, *StateParams, *BotParams, Position) Order
type trailingCloseFunc func(*ExchangeParams, *StateParams, *BotParams, Position, *TrailingPriceBundle) Order

// CalcNextCloseLong blends the grid and trailing closes.
//
// With CloseTrailingGridRatio > 0 trailing closes own the first ratio of the
// allocation: a position with WE/WEL at or below the ratio is trailed in
// full, a bigger one is grid-closed down to the trailing allocation. With a
// negative ratio the grid owns the first 1+ratio of the allocation and only
// the size above it is trailed.
func CalcNextCloseLong(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, b *TrailingPriceBundle) Order {
	if pos.Size <= 0 {
		return emptyOrder()
	}
	return calcNextClose(ex, st, bp, pos, b, CalcGridCloseLong, CalcTrailingCloseLong)
}

// CalcNextCloseShort is the short mirror of CalcNextCloseLong.
func CalcNextCloseShort(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, b *TrailingPriceBundle) Order {
	if pos.Size >= 0 {
		return emptyOrder()
	}
	return calcNextClose(ex, st, bp, pos, b, CalcGridCloseShort, CalcTrailingCloseShort)
}

func calcNextClose(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, b *TrailingPriceBundle, grid gridCloseFunc, trailing trailingCloseFunc) Order {
	ratio := bp.CloseTrailingGridRatio
	if ratio >= 1 || ratio <= -1 {
		return trailing(ex, st, bp, pos, b)
	}
	if ratio == 0 || bp.WalletExposureLimit <= 0 {
		return grid(ex, st, bp, pos)
	}

	sign := math.Copysign(1, pos.Size)
	psize := math.Abs(pos.Size)
	weRatio := CalcWalletExposure(ex.CMult, st.Balance, psize, pos.Price) / bp.WalletExposureLimit
	minQty := CalcMinEntryQty(pos.Price, ex)
	if ratio > 0 {
		if weRatio <= ratio {
			return trailing(ex, st, bp, pos, b)
		}
		trailingAllocation := CostToQty(st.Balance*bp.WalletExposureLimit*ratio, pos.Price, ex.CMult)
		gridAllocation := Round(psize-trailingAllocation, ex.QtyStep)
		if gridAllocation < minQty {
			return trailing(ex, st, bp, pos, b)
		}
		modified := *bp
		modified.WalletExposureLimit = bp.WalletExposureLimit * (1 - ratio)
		return grid(ex, st, &modified, Position{Size: sign * gridAllocation, Price: pos.Price})
	}

	gridRatio := 1 + ratio
	if weRatio <= gridRatio {
		modified := *bp
		modified.WalletExposureLimit = bp.WalletExposureLimit * gridRatio * 1.01
		return grid(ex, st, &modified, pos)
	}
	gridAllocation := CostToQty(st.Balance*bp.WalletExposureLimit*gridRatio, pos.Price, ex.CMult)
	trailingAllocation := Round(psize-gridAllocation, ex.QtyStep)
	if trailingAllocation < minQty {
		return grid(ex, st, bp, pos)
	}
	return trailing(ex, st, bp, Position{Size: sign * trailingAllocation, Price: pos.Price}, b)
}

// CalcClosesLong builds the resting long close ladder, nearest price first.
// Rungs landing on the same price are merged.
func CalcClosesLong(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, b *TrailingPriceBundle) ([]Order, error) {
	var closes []Order
	psize := pos.Size
	state := *st
	for i := 0; ; i++ {
		if psize <= 0 {
			break
		}
		next := CalcNextCloseLong(ex, &state, bp, Position{Size: psize, Price: pos.Price}, b)
		if next.IsEmpty() {
			break
		}
		// merged rungs count too
		if i >= MaxLadderRungs {
			return nil, ErrLadderOverflow
		}
		if len(closes) > 0 {
			last := &closes[len(closes)-1]
			if next.OrderType.IsTrailing() {
				break
			}
			if last.Price == next.Price {
				last.Qty = Round(last.Qty+next.Qty, ex.QtyStep)
				psize = Round(psize+next.Qty, ex.QtyStep)
				continue
			}
		}
		psize = Round(psize+next.Qty, ex.QtyStep)
		state.OrderBook.Ask = math.Max(state.OrderBook.Ask, next.Price)
		closes = append(closes, next)
	}
	return closes, nil
}

// CalcClosesShort builds the resting short close ladder, nearest price first.
func CalcClosesShort(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, b *TrailingPriceBundle) ([]Order, error) {
	var closes []Order
	psize := pos.Size
	state := *st
	for i := 0; ; i++ {
		if psize >= 0 {
			break
		}
		next := CalcNextCloseShort(ex, &state, bp, Position{Size: psize, Price: pos.Price}, b)
		if next.IsEmpty() {
			break
		}
		// merged rungs count too
		if i >= MaxLadderRungs {
			return nil, ErrLadderOverflow
		}
		if len(closes) > 0 {
			last := &closes[len(closes)-1]
			if next.OrderType.IsTrailing() {
				break
			}
			if last.Price == next.Price {
				last.Qty = Round(last.Qty+next.Qty, ex.QtyStep)
				psize = Round(psize+next.Qty, ex.QtyStep)
				continue
			}
		}
		psize = Round(psize+next.Qty, ex.QtyStep)
		state.OrderBook.Bid = math.Min(state.OrderBook.Bid, next.Price)
		closes = append(closes, next)
	}
	return closes, nil
}
