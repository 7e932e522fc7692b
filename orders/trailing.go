package orders

import "math"

// TrailingPhase is the observable state of a trailing order. It is derived
// from a TrailingPriceBundle on every call and never stored.
type TrailingPhase int

const (
	// TrailingIdle: the threshold has not been crossed yet.
	TrailingIdle TrailingPhase = iota
	// TrailingArmed: the threshold was crossed, waiting for the retracement.
	TrailingArmed
	// TrailingFired: an order should rest at the trailing price.
	TrailingFired
)

func (p TrailingPhase) String() string {
	switch p {
	case TrailingArmed:
		return "armed"
	case TrailingFired:
		return "fired"
	default:
		return "idle"
	}
}

// trailingRule is a threshold/retracement pair for one direction of travel.
// Down rules arm when price falls below the anchor and fire on a bounce (long
// entries, short closes). Up rules are the mirror (short entries, long closes).
type trailingRule struct {
	threshold   float64
	retracement float64
	down        bool
}

// phase evaluates the rule against the bundle with pprice as anchor.
func (r trailingRule) phase(b *TrailingPriceBundle, pprice float64) TrailingPhase {
	if r.threshold <= 0 {
		// no threshold: armed from the start
		if r.retracement <= 0 || r.retraced(b) {
			return TrailingFired
		}
		return TrailingArmed
	}
	if r.retracement <= 0 {
		// the order simply rests at the threshold price
		return TrailingFired
	}
	if !r.crossed(b, pprice) {
		return TrailingIdle
	}
	if r.retraced(b) {
		return TrailingFired
	}
	return TrailingArmed
}

func (r trailingRule) crossed(b *TrailingPriceBundle, pprice float64) bool {
	if r.down {
		return b.MinSinceOpen < pprice*(1-r.threshold)
	}
	return b.MaxSinceOpen > pprice*(1+r.threshold)
}

func (r trailingRule) retraced(b *TrailingPriceBundle) bool {
	if r.down {
		return b.MaxSinceMin > b.MinSinceOpen*(1+r.retracement)
	}
	return b.MinSinceMax < b.MaxSinceOpen*(1-r.retracement)
}

// price is where a fired order rests. Buys are never above the bid and sells
// never below the ask.
func (r trailingRule) price(ex *ExchangeParams, book OrderBook, pprice float64) float64 {
	if r.down {
		if r.threshold <= 0 {
			return book.Bid
		}
		if r.retracement <= 0 {
			return math.Min(book.Bid, RoundDn(pprice*(1-r.threshold), ex.PriceStep))
		}
		return math.Min(book.Bid, RoundDn(pprice*(1-r.threshold+r.retracement), ex.PriceStep))
	}
	if r.threshold <= 0 {
		return book.Ask
	}
	if r.retracement <= 0 {
		return math.Max(book.Ask, RoundUp(pprice*(1+r.threshold), ex.PriceStep))
	}
	return math.Max(book.Ask, RoundUp(pprice*(1+r.threshold-r.retracement), ex.PriceStep))
}

// TrailingEntryPhaseLong reports where the long trailing entry stands.
func TrailingEntryPhaseLong(bp *BotParams, pos Position, b *TrailingPriceBundle) TrailingPhase {
	return entryRuleLong(bp).phase(b, pos.Price)
}

// TrailingEntryPhaseShort reports where the short trailing entry stands.
func TrailingEntryPhaseShort(bp *BotParams, pos Position, b *TrailingPriceBundle) TrailingPhase {
	return entryRuleShort(bp).phase(b, pos.Price)
}

// TrailingClosePhaseLong reports where the long trailing close stands.
func TrailingClosePhaseLong(bp *BotParams, pos Position, b *TrailingPriceBundle) TrailingPhase {
	return closeRuleLong(bp).phase(b, pos.Price)
}

// TrailingClosePhaseShort reports where the short trailing close stands.
func TrailingClosePhaseShort(bp *BotParams, pos Position, b *TrailingPriceBundle) TrailingPhase {
	return closeRuleShort(bp).phase(b, pos.Price)
}

func entryRuleLong(bp *BotParams) trailingRule {
	return trailingRule{bp.EntryTrailingThresholdPct, bp.EntryTrailingRetracementPct, true}
}

func entryRuleShort(bp *BotParams) trailingRule {
	return trailingRule{bp.EntryTrailingThresholdPct, bp.EntryTrailingRetracementPct, false}
}

func closeRuleLong(bp *BotParams) trailingRule {
	return trailingRule{bp.CloseTrailingThresholdPct, bp.CloseTrailingRetracementPct, false}
}

func closeRuleShort(bp *BotParams) trailingRule {
	return trailingRule{bp.CloseTrailingThresholdPct, bp.CloseTrailingRetracementPct, true}
}
