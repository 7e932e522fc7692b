package orders

import (
	"errors"
	"math"
)

// MaxLadderRungs bounds the ladder builders. A ladder that would need more
// rungs means the generators stopped converging.
var MaxLadderRungs = 500

var ErrLadderOverflow = errors.New("ladder exceeded max rungs")

func calcInitialEntryQty(ex *ExchangeParams, bp *BotParams, balance, price float64) float64 {
	return math.Max(
		CalcMinEntryQty(price, ex),
		Round(CostToQty(balance*bp.WalletExposureLimit*bp.EntryInitialQtyPct, price, ex.CMult), ex.QtyStep),
	)
}

func calcReentryQty(ex *ExchangeParams, bp *BotParams, balance, psize, price float64) float64 {
	return math.Max(
		CalcMinEntryQty(price, ex),
		Round(math.Max(
			math.Abs(psize)*bp.EntryGridDoubleDownFactor,
			CostToQty(balance, price, ex.CMult)*bp.WalletExposureLimit*bp.EntryInitialQtyPct,
		), ex.QtyStep),
	)
}

func calcReentryPriceBid(ex *ExchangeParams, bp *BotParams, pprice, walletExposure, bid float64) float64 {
	multiplier := walletExposure / bp.WalletExposureLimit * bp.EntryGridSpacingWeight
	price := math.Min(
		RoundDn(pprice*(1-bp.EntryGridSpacingPct*(1+multiplier)), ex.PriceStep),
		bid,
	)
	if price <= ex.PriceStep {
		return 0
	}
	return price
}

func calcReentryPriceAsk(ex *ExchangeParams, bp *BotParams, pprice, walletExposure, ask float64) float64 {
	multiplier := walletExposure / bp.WalletExposureLimit * bp.EntryGridSpacingWeight
	price := math.Max(
		RoundUp(pprice*(1+bp.EntryGridSpacingPct*(1+multiplier)), ex.PriceStep),
		ask,
	)
	if price <= ex.PriceStep {
		return 0
	}
	return price
}

// calcCroppedReentryQty shrinks an entry so the position lands on the wallet
// exposure limit. psize and qty are absolute. It returns the exposure after
// the (possibly cropped) entry and the quantity to use.
func calcCroppedReentryQty(ex *ExchangeParams, bp *BotParams, balance, psize, pprice, walletExposure, qty, price float64) (float64, float64) {
	weIfFilled := calcWalletExposureIfFilled(balance, psize, pprice, qty, price, ex)
	if weIfFilled <= bp.WalletExposureLimit*1.01 {
		return weIfFilled, qty
	}
	cropped := interpolate(
		bp.WalletExposureLimit,
		[2]float64{walletExposure, weIfFilled},
		[2]float64{psize, psize + qty},
	) - psize
	cropped = Round(math.Max(cropped, CalcMinEntryQty(price, ex)), ex.QtyStep)
	return calcWalletExposureIfFilled(balance, psize, pprice, cropped, price, ex), cropped
}

// calcInflatedReentryQty grows an entry so the position lands on the wallet
// exposure limit.
func calcInflatedReentryQty(ex *ExchangeParams, bp *BotParams, psize, walletExposure, weIfFilled, qty, price float64) float64 {
	inflated := interpolate(
		bp.WalletExposureLimit,
		[2]float64{walletExposure, weIfFilled},
		[2]float64{psize, psize + qty},
	) - psize
	return Round(math.Max(inflated, CalcMinEntryQty(price, ex)), ex.QtyStep)
}

// calcInitialEntryLong handles the flat and partially filled cases shared by
// the grid and trailing generators. ok is false once the position is past its
// initial entry.
func calcInitialEntryLong(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position) (o Order, ok bool) {
	price := CalcEMAPriceBid(ex.PriceStep, st.OrderBook.Bid, st.EMABands.Lower, bp.EntryInitialEMADist)
	if price <= ex.PriceStep {
		return emptyOrder(), true
	}
	initialQty := calcInitialEntryQty(ex, bp, st.Balance, price)
	if pos.Size == 0 {
		return Order{Qty: initialQty, Price: price, OrderType: EntryInitialNormalLong}, true
	}
	if pos.Size < initialQty*0.8 {
		// initialQty grows as price falls, so a full position can still look partial
		we := CalcWalletExposure(ex.CMult, st.Balance, pos.Size, pos.Price)
		if we >= bp.WalletExposureLimit*0.999 {
			return Order{}, false
		}
		qty := math.Max(CalcMinEntryQty(price, ex), RoundDn(initialQty-pos.Size, ex.QtyStep))
		_, qty = calcCroppedReentryQty(ex, bp, st.Balance, pos.Size, pos.Price, we, qty, price)
		return Order{Qty: qty, Price: price, OrderType: EntryInitialPartialLong}, true
	}
	return Order{}, false
}

func calcInitialEntryShort(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position) (o Order, ok bool) {
	price := CalcEMAPriceAsk(ex.PriceStep, st.OrderBook.Ask, st.EMABands.Upper, bp.EntryInitialEMADist)
	if price <= ex.PriceStep {
		return emptyOrder(), true
	}
	initialQty := calcInitialEntryQty(ex, bp, st.Balance, price)
	psize := math.Abs(pos.Size)
	if psize == 0 {
		return Order{Qty: -initialQty, Price: price, OrderType: EntryInitialNormalShort}, true
	}
	if psize < initialQty*0.8 {
		we := CalcWalletExposure(ex.CMult, st.Balance, psize, pos.Price)
		if we >= bp.WalletExposureLimit*0.999 {
			return Order{}, false
		}
		qty := math.Max(CalcMinEntryQty(price, ex), RoundDn(initialQty-psize, ex.QtyStep))
		_, qty = calcCroppedReentryQty(ex, bp, st.Balance, psize, pos.Price, we, qty, price)
		return Order{Qty: -qty, Price: price, OrderType: EntryInitialPartialShort}, true
	}
	return Order{}, false
}

// CalcGridEntryLong returns the next long grid entry.
func CalcGridEntryLong(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position) Order {
	if bp.WalletExposureLimit == 0 || st.Balance <= 0 {
		return emptyOrder()
	}
	if o, ok := calcInitialEntryLong(ex, st, bp, pos); ok {
		return o
	}
	we := CalcWalletExposure(ex.CMult, st.Balance, pos.Size, pos.Price)
	if we >= bp.WalletExposureLimit*0.999 {
		return emptyOrder()
	}

	price := calcReentryPriceBid(ex, bp, pos.Price, we, st.OrderBook.Bid)
	if price <= 0 {
		return emptyOrder()
	}
	qty := calcReentryQty(ex, bp, st.Balance, pos.Size, price)
	weIfFilled, croppedQty := calcCroppedReentryQty(ex, bp, st.Balance, pos.Size, pos.Price, we, qty, price)
	if croppedQty < qty {
		return Order{Qty: croppedQty, Price: price, OrderType: EntryGridCroppedLong}
	}

	// look one rung ahead: if the next entry would be cropped down to a
	// fraction of its normal size, fill up to the limit now instead
	psizeNext, ppriceNext := CalcNewPsizePprice(pos.Size, pos.Price, qty, price, ex.QtyStep)
	priceNext := calcReentryPriceBid(ex, bp, ppriceNext, weIfFilled, price)
	if priceNext > 0 {
		qtyNext := calcReentryQty(ex, bp, st.Balance, psizeNext, priceNext)
		_, croppedNext := calcCroppedReentryQty(ex, bp, st.Balance, psizeNext, ppriceNext, weIfFilled, qtyNext, priceNext)
		if croppedNext/psizeNext < bp.EntryGridDoubleDownFactor*0.25 {
			qty = calcInflatedReentryQty(ex, bp, pos.Size, we, weIfFilled, qty, price)
			return Order{Qty: qty, Price: price, OrderType: EntryGridInflatedLong}
		}
	}
	return Order{Qty: qty, Price: price, OrderType: EntryGridNormalLong}
}

// CalcGridEntryShort returns the next short grid entry.
func CalcGridEntryShort(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position) Order {
	if bp.WalletExposureLimit == 0 || st.Balance <= 0 {
		return emptyOrder()
	}
	if o, ok := calcInitialEntryShort(ex, st, bp, pos); ok {
		return o
	}
	psize := math.Abs(pos.Size)
	we := CalcWalletExposure(ex.CMult, st.Balance, psize, pos.Price)
	if we >= bp.WalletExposureLimit*0.999 {
		return emptyOrder()
	}

	price := calcReentryPriceAsk(ex, bp, pos.Price, we, st.OrderBook.Ask)
	if price <= 0 {
		return emptyOrder()
	}
	qty := calcReentryQty(ex, bp, st.Balance, psize, price)
	weIfFilled, croppedQty := calcCroppedReentryQty(ex, bp, st.Balance, psize, pos.Price, we, qty, price)
	if croppedQty < qty {
		return Order{Qty: -croppedQty, Price: price, OrderType: EntryGridCroppedShort}
	}

	psizeNext, ppriceNext := CalcNewPsizePprice(psize, pos.Price, qty, price, ex.QtyStep)
	priceNext := calcReentryPriceAsk(ex, bp, ppriceNext, weIfFilled, price)
	if priceNext > 0 {
		qtyNext := calcReentryQty(ex, bp, st.Balance, psizeNext, priceNext)
		_, croppedNext := calcCroppedReentryQty(ex, bp, st.Balance, psizeNext, ppriceNext, weIfFilled, qtyNext, priceNext)
		if croppedNext/psizeNext < bp.EntryGridDoubleDownFactor*0.25 {
			qty = calcInflatedReentryQty(ex, bp, psize, we, weIfFilled, qty, price)
			return Order{Qty: -qty, Price: price, OrderType: EntryGridInflatedShort}
		}
	}
	return Order{Qty: -qty, Price: price, OrderType: EntryGridNormalShort}
}

// CalcTrailingEntryLong returns a long entry once price has dropped past the
// threshold and bounced by the retracement. Before that it is empty.
func CalcTrailingEntryLong(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, b *TrailingPriceBundle) Order {
	if bp.WalletExposureLimit == 0 || st.Balance <= 0 {
		return emptyOrder()
	}
	if o, ok := calcInitialEntryLong(ex, st, bp, pos); ok {
		return o
	}
	we := CalcWalletExposure(ex.CMult, st.Balance, pos.Size, pos.Price)
	if we > bp.WalletExposureLimit*0.999 {
		return emptyOrder()
	}
	rule := entryRuleLong(bp)
	if rule.phase(b, pos.Price) != TrailingFired {
		return emptyOrder()
	}
	price := rule.price(ex, st.OrderBook, pos.Price)
	if price <= ex.PriceStep {
		return emptyOrder()
	}
	qty := math.Max(
		calcReentryQty(ex, bp, st.Balance, pos.Size, price),
		calcInitialEntryQty(ex, bp, st.Balance, price),
	)
	_, croppedQty := calcCroppedReentryQty(ex, bp, st.Balance, pos.Size, pos.Price, we, qty, price)
	if croppedQty < qty {
		return Order{Qty: croppedQty, Price: price, OrderType: EntryTrailingCroppedLong}
	}
	return Order{Qty: qty, Price: price, OrderType: EntryTrailingNormalLong}
}

// CalcTrailingEntryShort returns a short entry once price has risen past the
// threshold and pulled back by the retracement.
func CalcTrailingEntryShort(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, b *TrailingPriceBundle) Order {
	if bp.WalletExposureLimit == 0 || st.Balance <= 0 {
		return emptyOrder()
	}
	if o, ok := calcInitialEntryShort(ex, st, bp, pos); ok {
		return o
	}
	psize := math.Abs(pos.Size)
	we := CalcWalletExposure(ex.CMult, st.Balance, psize, pos.Price)
	if we > bp.WalletExposureLimit*0.999 {
		return emptyOrder()
	}
	rule := entryRuleShort(bp)
	if rule.phase(b, pos.Price) != TrailingFired {
		return emptyOrder()
	}
	price := rule.price(ex, st.OrderBook, pos.Price)
	if price <= ex.PriceStep {
		return emptyOrder()
	}
	qty := math.Max(
		calcReentryQty(ex, bp, st.Balance, psize, price),
		calcInitialEntryQty(ex, bp, st.Balance, price),
	)
	_, croppedQty := calcCroppedReentryQty(ex, bp, st.Balance, psize, pos.Price, we, qty, price)
	if croppedQty < qty {
		return Order{Qty: -croppedQty, Price: price, OrderType: EntryTrailingCroppedShort}
	}
	return Order{Qty: -qty, Price: price, OrderType: EntryTrailingNormalShort}
}

// CalcNextEntryLong blends the grid and trailing generators.
//
// EntryTrailingGridRatio decides which one owns which slice of the wallet
// exposure limit: 0 is grid only and ±1 trailing only. A positive ratio lets
// trailing entries build the position until WE/WEL reaches the ratio, after
// which the grid takes over. A negative ratio runs the grid first until WE/WEL
// reaches 1+ratio, then trailing. While the first generator is in charge its
// limit is cropped to its allocation (+1%).
func CalcNextEntryLong(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, b *TrailingPriceBundle) Order {
	return calcNextEntry(ex, st, bp, pos, b, CalcGridEntryLong, CalcTrailingEntryLong)
}

// CalcNextEntryShort is the short mirror of CalcNextEntryLong.
func CalcNextEntryShort(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, b *TrailingPriceBundle) Order {
	return calcNextEntry(ex, st, bp, pos, b, CalcGridEntryShort, CalcTrailingEntryShort)
}

type gridEntryFunc func(*ExchangeParams, *StateParams, *BotParams, Position) Order
type trailingEntryFunc func(*ExchangeParams, *StateParams, *BotParams, Position, *TrailingPriceBundle) Order

func calcNextEntry(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, b *TrailingPriceBundle, grid gridEntryFunc, trailing trailingEntryFunc) Order {
	if bp.WalletExposureLimit == 0 || st.Balance <= 0 {
		return emptyOrder()
	}
	ratio := bp.EntryTrailingGridRatio
	if ratio >= 1 || ratio <= -1 {
		return trailing(ex, st, bp, pos, b)
	}
	if ratio == 0 {
		return grid(ex, st, bp, pos)
	}

	we := CalcWalletExposure(ex.CMult, st.Balance, pos.Size, pos.Price)
	weRatio := we / bp.WalletExposureLimit
	if ratio > 0 {
		if weRatio >= ratio {
			return grid(ex, st, bp, pos)
		}
		if we == 0 {
			return trailing(ex, st, bp, pos, b)
		}
		cropped := *bp
		cropped.WalletExposureLimit = bp.WalletExposureLimit * ratio * 1.01
		return trailing(ex, st, &cropped, pos, b)
	}
	if weRatio >= 1+ratio {
		return trailing(ex, st, bp, pos, b)
	}
	if we == 0 {
		return grid(ex, st, bp, pos)
	}
	cropped := *bp
	cropped.WalletExposureLimit = bp.WalletExposureLimit * (1 + ratio) * 1.01
	return grid(ex, st, &cropped, pos)
}

// CalcEntriesLong builds the resting long entry ladder, nearest price first.
// The ladder is simulated on a scratch copy of pos; pos itself is untouched.
func CalcEntriesLong(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, b *TrailingPriceBundle) ([]Order, error) {
	var entries []Order
	scratch := pos
	state := *st
	for {
		entry := CalcNextEntryLong(ex, &state, bp, scratch, b)
		if entry.IsEmpty() {
			break
		}
		if len(entries) > 0 {
			if entry.OrderType.IsTrailing() || entries[len(entries)-1].Price == entry.Price {
				break
			}
		}
		if len(entries) >= MaxLadderRungs {
			return nil, ErrLadderOverflow
		}
		scratch.Size, scratch.Price = CalcNewPsizePprice(scratch.Size, scratch.Price, entry.Qty, entry.Price, ex.QtyStep)
		state.OrderBook.Bid = math.Min(state.OrderBook.Bid, entry.Price)
		entries = append(entries, entry)
	}
	return entries, nil
}

// CalcEntriesShort builds the resting short entry ladder, nearest price first.
func CalcEntriesShort(ex *ExchangeParams, st *StateParams, bp *BotParams, pos Position, b *TrailingPriceBundle) ([]Order, error) {
	var entries []Order
	scratch := pos
	state := *st
	for {
		entry := CalcNextEntryShort(ex, &state, bp, scratch, b)
		if entry.IsEmpty() {
			break
		}
		if len(entries) > 0 {
			if entry.OrderType.IsTrailing() || entries[len(entries)-1].Price == entry.Price {
				break
			}
		}
		if len(entries) >= MaxLadderRungs {
			return nil, ErrLadderOverflow
		}
		scratch.Size, scratch.Price = CalcNewPsizePprice(scratch.Size, scratch.Price, entry.Qty, entry.Price, ex.QtyStep)
		state.OrderBook.Ask = math.Max(state.OrderBook.Ask, entry.Price)
		entries = append(entries, entry)
	}
	return entries, nil
}
