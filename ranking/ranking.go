// Package ranking scores symbols by liquidity and volatility so a backtest
// can decide which of them may open new positions at each step.
package ranking

import (
	"cmp"
	"math"
	"slices"

	"github.com/pedropmedina/trailgrid/indicators"
	"github.com/pedropmedina/trailgrid/marketdata"
)

// CalcVolumes returns, per symbol per step, the volume summed over the last
// window steps. Warm-up steps sum the partial window.
func CalcVolumes(hlcvs marketdata.HLCVs, window int) [][]float64 {
	out := make([][]float64, hlcvs.NSymbols())
	for i := range hlcvs {
		out[i] = indicators.RollingSum(window, hlcvs.Column(i, func(c marketdata.Candle) float64 {
			return c.Volume
		}))
	}
	return out
}

// CalcNoisiness returns, per symbol per step, the mean of (high-low)/close
// over the last window steps. Warm-up steps average the partial window.
func CalcNoisiness(hlcvs marketdata.HLCVs, window int) [][]float64 {
	out := make([][]float64, hlcvs.NSymbols())
	for i := range hlcvs {
		out[i] = indicators.SMA(window, hlcvs.Column(i, func(c marketdata.Candle) float64 {
			if c.Close == 0 {
				return 0
			}
			return (c.High - c.Low) / c.Close
		}))
	}
	return out
}

// CalcPreferredCoins builds the [symbol][step] eligibility matrix. At every
// step the lowest-volume clipPct share of symbols is dropped, the rest are
// ranked by noisiness (noisiest first) and the top n get ranks 1..n. Every
// other cell is 0. Ties keep symbol order.
func CalcPreferredCoins(volumes, noisiness [][]float64, n int, clipPct float64) [][]int {
	nSymbols := len(volumes)
	out := make([][]int, nSymbols)
	if nSymbols == 0 {
		return out
	}
	nSteps := len(volumes[0])
	for i := range out {
		out[i] = make([]int, nSteps)
	}
	if n <= 0 {
		return out
	}

	nEligible := max(n, int(math.Round(float64(nSymbols)*(1-clipPct))))
	nEligible = min(nEligible, nSymbols)
	idxs := make([]int, nSymbols)
	for k := 0; k < nSteps; k++ {
		for i := range idxs {
			idxs[i] = i
		}
		slices.SortStableFunc(idxs, func(a, b int) int {
			return cmp.Compare(volumes[b][k], volumes[a][k])
		})
		eligible := idxs[:nEligible]
		slices.SortStableFunc(eligible, func(a, b int) int {
			if c := cmp.Compare(noisiness[b][k], noisiness[a][k]); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		for rank, i := range eligible[:min(n, nEligible)] {
			out[i][k] = rank + 1
		}
	}
	return out
}
