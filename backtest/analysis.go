package backtest

import (
	"fmt"
	"math"
)

// Analysis summarizes a finished run. Gains are daily relative equity
// changes.
type Analysis struct {
	ADG                   float64 `json:"adg"`
	MDG                   float64 `json:"mdg"`
	SharpeRatio           float64 `json:"sharpe_ratio"`
	DrawdownWorst         float64 `json:"drawdown_worst"`
	EquityBalanceDiffMean float64 `json:"equity_balance_diff_mean"`
	EquityBalanceDiffMax  float64 `json:"equity_balance_diff_max"`
	LossProfitRatio       float64 `json:"loss_profit_ratio"`
}

// AnalysisKeys are the metric names Metric accepts, in field order.
var AnalysisKeys = []string{
	"adg",
	"mdg",
	"sharpe_ratio",
	"drawdown_worst",
	"equity_balance_diff_mean",
	"equity_balance_diff_max",
	"loss_profit_ratio",
}

// Metric looks a field up by its snake_case name.
func (a Analysis) Metric(name string) (float64, error) {
	switch name {
	case "adg":
		return a.ADG, nil
	case "mdg":
		return a.MDG, nil
	case "sharpe_ratio":
		return a.SharpeRatio, nil
	case "drawdown_worst":
		return a.DrawdownWorst, nil
	case "equity_balance_diff_mean":
		return a.EquityBalanceDiffMean, nil
	case "equity_balance_diff_max":
		return a.EquityBalanceDiffMax, nil
	case "loss_profit_ratio":
		return a.LossProfitRatio, nil
	}
	return 0, fmt.Errorf("unknown analysis metric %q", name)
}

// Analyze computes the run statistics.
//
// Steps are grouped into days of stepsPerDay; the last equity of every day,
// with the first equity prepended, gives the daily gains. A flat gain series
// has a Sharpe ratio of 0. Drawdown is measured per step against the running
// equity peak. The equity/balance gap is |equity-balance|/balance per step.
// LossProfitRatio is summed losses over summed profits of the fills, or 1
// when nothing was profitable.
func Analyze(fills []Fill, equities, balances []float64, stepsPerDay int) Analysis {
	var a Analysis
	if len(equities) == 0 {
		return a
	}
	if stepsPerDay <= 0 {
		stepsPerDay = DefaultStepsPerDay
	}

	daily := []float64{equities[0]}
	for end := stepsPerDay - 1; ; end += stepsPerDay {
		if end >= len(equities)-1 {
			daily = append(daily, equities[len(equities)-1])
			break
		}
		daily = append(daily, equities[end])
	}
	gains := make([]float64, 0, len(daily)-1)
	for d := 1; d < len(daily); d++ {
		if daily[d-1] == 0 {
			gains = append(gains, 0)
			continue
		}
		gains = append(gains, daily[d]/daily[d-1]-1)
	}
	a.ADG = mean(gains)
	a.MDG = median(gains)
	if sd := std(gains); sd != 0 {
		a.SharpeRatio = a.ADG / sd
	}

	peak := equities[0]
	for _, e := range equities {
		peak = math.Max(peak, e)
		if peak > 0 {
			a.DrawdownWorst = math.Max(a.DrawdownWorst, 1-e/peak)
		}
	}

	diffs := make([]float64, 0, len(equities))
	for k, e := range equities {
		if k >= len(balances) || balances[k] == 0 {
			break
		}
		diffs = append(diffs, math.Abs(e-balances[k])/balances[k])
	}
	if len(diffs) > 0 {
		a.EquityBalanceDiffMean = mean(diffs)
		for _, d := range diffs {
			a.EquityBalanceDiffMax = math.Max(a.EquityBalanceDiffMax, d)
		}
	}

	pnls := make([]float64, len(fills))
	for n, f := range fills {
		pnls[n] = f.Pnl
	}
	profit := sumFunc(pnls, func(e float64) bool { return e > 0 })
	loss := math.Abs(sumFunc(pnls, func(e float64) bool { return e < 0 }))
	a.LossProfitRatio = 1
	if profit > 0 {
		a.LossProfitRatio = loss / profit
	}
	return a
}
