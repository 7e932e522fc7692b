package orders

import "math"

// roundDynamic rounds n to d significant digits. It strips the float noise
// left behind by step arithmetic so that step multiples compare equal.
func roundDynamic(n float64, d int) float64 {
	if n == 0 {
		return n
	}
	shift := d - int(math.Floor(math.Log10(math.Abs(n)))) - 1
	multiplier := math.Pow10(shift)
	return math.Round(n*multiplier) / multiplier
}

// Round rounds n to the nearest multiple of step.
func Round(n, step float64) float64 {
	return roundDynamic(math.Round(n/step)*step, 10)
}

// RoundUp rounds n up to a multiple of step.
func RoundUp(n, step float64) float64 {
	return roundDynamic(math.Ceil(n/step)*step, 10)
}

// RoundDn rounds n down to a multiple of step.
func RoundDn(n, step float64) float64 {
	return roundDynamic(math.Floor(n/step)*step, 10)
}

// CostToQty converts a notional cost into a contract quantity.
func CostToQty(cost, price, cMult float64) float64 {
	if price <= 0 {
		return 0
	}
	return (math.Abs(cost) / price) / cMult
}

// QtyToCost converts a quantity into its (unsigned) notional cost.
func QtyToCost(qty, price, cMult float64) float64 {
	return math.Abs(qty) * price * cMult
}

// CalcWalletExposure is the notional of a position as a fraction of balance.
func CalcWalletExposure(cMult, balance, positionSize, positionPrice float64) float64 {
	if balance <= 0 || positionSize == 0 {
		return 0
	}
	return QtyToCost(positionSize, positionPrice, cMult) / balance
}

// CalcNewPsizePprice returns the position after adding qty at price.
func CalcNewPsizePprice(psize, pprice, qty, price, qtyStep float64) (float64, float64) {
	if qty == 0 {
		return psize, pprice
	}
	if psize == 0 {
		return qty, price
	}
	newPsize := Round(psize+qty, qtyStep)
	if newPsize == 0 {
		return 0, 0
	}
	return newPsize, nanToZero(pprice)*(psize/newPsize) + price*(qty/newPsize)
}

func calcWalletExposureIfFilled(balance, psize, pprice, qty, price float64, ex *ExchangeParams) float64 {
	psize = Round(math.Abs(psize), ex.QtyStep)
	qty = Round(math.Abs(qty), ex.QtyStep)
	newPsize, newPprice := CalcNewPsizePprice(psize, pprice, qty, price, ex.QtyStep)
	return CalcWalletExposure(ex.CMult, balance, newPsize, newPprice)
}

// CalcMinEntryQty is the smallest quantity the venue accepts at price.
func CalcMinEntryQty(price float64, ex *ExchangeParams) float64 {
	return math.Max(ex.MinQty, RoundUp(CostToQty(ex.MinCost, price, ex.CMult), ex.QtyStep))
}

// CalcPnlLong is the realized pnl of closing qty of a long entered at entryPrice.
func CalcPnlLong(entryPrice, closePrice, qty, cMult float64) float64 {
	return math.Abs(qty) * cMult * (closePrice - entryPrice)
}

// CalcPnlShort is the realized pnl of closing qty of a short entered at entryPrice.
func CalcPnlShort(entryPrice, closePrice, qty, cMult float64) float64 {
	return math.Abs(qty) * cMult * (entryPrice - closePrice)
}

// CalcPpriceDiffLong is how far price sits below the long entry, as a fraction.
func CalcPpriceDiffLong(positionPrice, price float64) float64 {
	if positionPrice == 0 {
		return 0
	}
	return 1 - price/positionPrice
}

// CalcPpriceDiffShort is how far price sits above the short entry, as a fraction.
func CalcPpriceDiffShort(positionPrice, price float64) float64 {
	if positionPrice == 0 {
		return 0
	}
	return price/positionPrice - 1
}

// CalcEMAPriceBid is the initial long entry price: the lower EMA band pushed
// down by emaDist, never above the bid.
func CalcEMAPriceBid(priceStep, bid, emaLower, emaDist float64) float64 {
	return math.Min(bid, RoundDn(emaLower*(1-emaDist), priceStep))
}

// CalcEMAPriceAsk is the initial short entry price: the upper EMA band pushed
// up by emaDist, never below the ask.
func CalcEMAPriceAsk(priceStep, ask, emaUpper, emaDist float64) float64 {
	return math.Max(ask, RoundUp(emaUpper*(1+emaDist), priceStep))
}

// interpolate linearly maps x from the segment xs onto ys.
func interpolate(x float64, xs, ys [2]float64) float64 {
	if xs[1] == xs[0] {
		return ys[0]
	}
	return ys[0] + (x-xs[0])*(ys[1]-ys[0])/(xs[1]-xs[0])
}

func nanToZero(n float64) float64 {
	if math.IsNaN(n) {
		return 0
	}
	return n
}
