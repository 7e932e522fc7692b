package backtest

import (
	"cmp"
	"slices"
)

// activeSymbols returns, ascending, the symbols that get a ladder on side at
// step k. A symbol holding a position always keeps its slot. The remaining
// slots, up to n_positions, go to flat symbols ranked at k, best rank first
// and lower symbol index on ties.
func (r *runner) activeSymbols(side Side, k int) []int {
	positions := r.broker.positions[side]
	var active, candidates []int
	for i, pos := range positions {
		switch {
		case !pos.IsFlat():
			active = append(active, i)
		case r.bt.preferred[i][k] > 0:
			candidates = append(candidates, i)
		}
	}

	bp := &r.bt.bot[side]
	if bp.WalletExposureLimit <= 0 {
		return active
	}
	slices.SortStableFunc(candidates, func(a, b int) int {
		if c := cmp.Compare(r.bt.preferred[a][k], r.bt.preferred[b][k]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	free := bp.NPositions - len(active)
	if free > 0 {
		active = append(active, candidates[:min(free, len(candidates))]...)
	}
	slices.Sort(active)
	return active
}
