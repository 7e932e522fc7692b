package backtest

import "math"

// Limits are the lower bounds past which a metric is penalized.
type Limits struct {
	LowerBoundDrawdownWorst         float64 `mapstructure:"lower_bound_drawdown_worst" json:"lower_bound_drawdown_worst"`
	LowerBoundEquityBalanceDiffMean float64 `mapstructure:"lower_bound_equity_balance_diff_mean" json:"lower_bound_equity_balance_diff_mean"`
	LowerBoundLossProfitRatio       float64 `mapstructure:"lower_bound_loss_profit_ratio" json:"lower_bound_loss_profit_ratio"`
}

// Fitness turns an analysis into two objectives to minimize. Each objective
// is a penalty minus the scored metric. The penalty is how far drawdown_worst,
// equity_balance_diff_mean and loss_profit_ratio exceed their bounds, scaled
// by 1e4, 1e3 and 1e2. A run that lost everything or never let equity drift
// 10% from balance scores the penalty alone.
func Fitness(a Analysis, limits Limits, scoring [2]string) ([2]float64, error) {
	var modifier float64
	for _, p := range []struct {
		value, bound, scale float64
	}{
		{a.DrawdownWorst, limits.LowerBoundDrawdownWorst, 1e4},
		{a.EquityBalanceDiffMean, limits.LowerBoundEquityBalanceDiffMean, 1e3},
		{a.LossProfitRatio, limits.LowerBoundLossProfitRatio, 1e2},
	} {
		modifier += (math.Max(p.bound, p.value) - p.bound) * p.scale
	}

	var w [2]float64
	for n, key := range scoring {
		score, err := a.Metric(key)
		if err != nil {
			return w, err
		}
		if a.DrawdownWorst >= 1 || a.EquityBalanceDiffMax < 0.1 {
			w[n] = modifier
		} else {
			w[n] = modifier - score
		}
	}
	return w, nil
}
