// Package backtest replays a candle matrix through the grid/trailing order
// logic of the orders package and records every fill and the equity curve.
package backtest

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"math"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pedropmedina/trailgrid/logger"
	"github.com/pedropmedina/trailgrid/marketdata"
	"github.com/pedropmedina/trailgrid/orders"
)

// DefaultStepsPerDay assumes one-minute candles.
const DefaultStepsPerDay = 1440

var validate = validator.New(validator.WithRequiredStructEnabled())

type Side int

const (
	Long Side = iota
	Short
)

var sides = [2]Side{Long, Short}

func (s Side) String() string {
	if s == Long {
		return "long"
	}
	return "short"
}

// Params are the account settings of a run.
type Params struct {
	StartingBalance float64  `mapstructure:"starting_balance" json:"starting_balance" validate:"gt=0"`
	MakerFee        float64  `mapstructure:"maker_fee" json:"maker_fee" validate:"gte=0,lt=1"`
	Symbols         []string `mapstructure:"symbols" json:"symbols" validate:"required,min=1,dive,required"`
	// StepsPerDay groups steps into days for the analysis. Defaults to
	// DefaultStepsPerDay.
	StepsPerDay int `mapstructure:"steps_per_day" json:"steps_per_day" validate:"gte=0"`
}

func (p *Params) SetDefaults() {
	if p.StepsPerDay == 0 {
		p.StepsPerDay = DefaultStepsPerDay
	}
}

func (p *Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// Observer is notified as the run progresses. Calls happen on the goroutine
// running Run, in step order.
type Observer interface {
	OnFill(f Fill)
	OnStep(step int, balance, equity float64)
}

type Opts struct {
	// Observer is optional.
	Observer Observer
	// Concurrency bounds the goroutines building ladders within a step.
	// Defaults to GOMAXPROCS.
	Concurrency int
}

type Backtest struct {
	hlcvs     marketdata.HLCVs
	preferred [][]int
	bot       [2]orders.BotParams
	exchange  []orders.ExchangeParams
	params    Params
	opts      Opts
}

// Result is everything a finished run produced. Equities and Balances hold
// one value per step.
type Result struct {
	RunID    uuid.UUID
	Fills    []Fill
	Equities []float64
	Balances []float64
	Analysis Analysis
}

// New checks every input once so Run never sees a malformed one.
//
// preferred is indexed [symbol][step]: 0 keeps a flat symbol from opening a
// position at that step and k > 0 ranks it (1 is best). A nil preferred
// ranks symbols by their order. exchange holds one entry per symbol. The
// per-position wallet exposure limit of each side is derived as
// total_wallet_exposure_limit / n_positions.
func New(
	hlcvs marketdata.HLCVs,
	preferred [][]int,
	bot orders.BotParamsPair,
	exchange []orders.ExchangeParams,
	params Params,
	opts Opts,
) (*Backtest, error) {
	params.SetDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := hlcvs.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	nSymbols, nSteps := hlcvs.NSymbols(), hlcvs.NSteps()
	if len(params.Symbols) != nSymbols {
		return nil, fmt.Errorf("%w: %d symbols for %d candle series", ErrShapeMismatch, len(params.Symbols), nSymbols)
	}
	if len(exchange) != nSymbols {
		return nil, fmt.Errorf("%w: %d exchange params for %d symbols", ErrShapeMismatch, len(exchange), nSymbols)
	}
	for i := range exchange {
		if err := exchange[i].Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", params.Symbols[i], err)
		}
	}
	if preferred == nil {
		preferred = make([][]int, nSymbols)
		for i := range preferred {
			preferred[i] = make([]int, nSteps)
			for k := range preferred[i] {
				preferred[i][k] = i + 1
			}
		}
	}
	if len(preferred) != nSymbols {
		return nil, fmt.Errorf("%w: preferred coins has %d rows for %d symbols", ErrShapeMismatch, len(preferred), nSymbols)
	}
	for i, row := range preferred {
		if len(row) != nSteps {
			return nil, fmt.Errorf("%w: preferred coins row %d has %d steps, expected %d", ErrShapeMismatch, i, len(row), nSteps)
		}
	}

	bt := &Backtest{
		hlcvs:     hlcvs,
		preferred: preferred,
		bot:       [2]orders.BotParams{bot.Long, bot.Short},
		exchange:  exchange,
		params:    params,
		opts:      opts,
	}
	for _, side := range sides {
		bp := &bt.bot[side]
		if bp.NPositions > 0 {
			bp.WalletExposureLimit = bp.TotalWalletExposureLimit / float64(bp.NPositions)
		} else {
			bp.WalletExposureLimit = 0
		}
		if err := bp.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", side, err)
		}
	}
	if bt.opts.Concurrency <= 0 {
		bt.opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	return bt, nil
}

// BotParams returns the side's parameters with the derived wallet exposure
// limit.
func (bt *Backtest) BotParams(side Side) orders.BotParams {
	return bt.bot[side]
}

// Run replays every step. Step 0 only seeds the indicators and places the
// first orders. Each later step k checks the orders resting since k-1
// against candle k, updates trailing bundles and EMAs, then rebuilds the
// orders from the close of k. A run that hits an invariant violation returns
// a *RunError and no result.
func (bt *Backtest) Run(ctx context.Context) (*Result, error) {
	runID := uuid.New()
	nSteps := bt.hlcvs.NSteps()
	log := logger.WithFields(logrus.Fields{
		"run_id":  runID.String(),
		"symbols": len(bt.params.Symbols),
		"steps":   nSteps,
	})
	log.Info("backtest started")
	start := time.Now()

	r := newRunner(bt)
	if err := r.updateOpenOrders(ctx, 0); err != nil {
		return nil, err
	}
	r.record(0)

	for k := 1; k < nSteps; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.checkFills(k); err != nil {
			return nil, err
		}
		r.updateTrailing(k)
		r.updateEMAs(k)
		if err := r.updateOpenOrders(ctx, k); err != nil {
			return nil, err
		}
		r.record(k)
	}

	res := &Result{
		RunID:    runID,
		Fills:    r.broker.fills,
		Equities: r.equities,
		Balances: r.balances,
	}
	res.Analysis = Analyze(res.Fills, res.Equities, res.Balances, bt.params.StepsPerDay)
	log.WithFields(logrus.Fields{
		"fills":   len(res.Fills),
		"balance": r.broker.balance,
		"elapsed": time.Since(start).String(),
	}).Info("backtest finished")
	return res, nil
}

// Summary writes a human readable report of the run. times, when it has one
// entry per step, adds the covered period.
func (r *Result) Summary(w io.Writer, times []time.Time) error {
	equities := r.Equities
	if len(equities) == 0 {
		_, err := fmt.Fprintln(w, "no steps")
		return err
	}

	var pnls []float64
	for _, f := range r.Fills {
		if f.IsClose() {
			pnls = append(pnls, f.Pnl)
		}
	}
	var fees float64
	for _, f := range r.Fills {
		fees += f.FeePaid
	}
	wrPct := 0.0
	if len(pnls) > 0 {
		wrPct = float64(count(pnls, func(e float64) bool { return e > 0 })) / float64(len(pnls)) * 100
	}
	retPct := (equities[len(equities)-1] - equities[0]) / equities[0] * 100

	data := [][2]string{}
	if len(times) == len(equities) {
		first, last := times[0], times[len(times)-1]
		data = append(data,
			[2]string{"start", first.String()},
			[2]string{"end", last.String()},
			[2]string{"duration", last.Sub(first).String()},
		)
	}
	a := r.Analysis
	data = append(data, [][2]string{
		{"run id", r.RunID.String()},
		{"steps", strconv.Itoa(len(equities))},
		{"equity final", fmt.Sprintf("$%f", equities[len(equities)-1])},
		{"equity peak", fmt.Sprintf("$%f", slices.Max(equities))},
		{"balance final", fmt.Sprintf("$%f", r.Balances[len(r.Balances)-1])},
		{"return", fmt.Sprintf("%f%%", retPct)},
		{"# fills", strconv.Itoa(len(r.Fills))},
		{"# closes", strconv.Itoa(len(pnls))},
		{"win rate", fmt.Sprintf("%f%%", wrPct)},
		{"fees paid", fmt.Sprintf("$%f", math.Abs(fees))},
		{"adg", fmt.Sprintf("%f%%", a.ADG*100)},
		{"mdg", fmt.Sprintf("%f%%", a.MDG*100)},
		{"sharpe ratio", fmt.Sprintf("%f", a.SharpeRatio)},
		{"drawdown worst", fmt.Sprintf("%f%%", a.DrawdownWorst*100)},
		{"equity balance diff mean", fmt.Sprintf("%f%%", a.EquityBalanceDiffMean*100)},
		{"equity balance diff max", fmt.Sprintf("%f%%", a.EquityBalanceDiffMax*100)},
		{"loss profit ratio", fmt.Sprintf("%f", a.LossProfitRatio)},
	}...)

	row := slices.MaxFunc(data, func(a, b [2]string) int {
		return cmp.Compare(len(a[0]), len(b[0]))
	})
	span := len(row[0]) + 1

	title := cases.Title(language.English)
	var s strings.Builder
	for _, d := range data {
		padding := strings.Repeat(" ", span-(len(d[0])+1))
		fmt.Fprintf(&s, "%s %s: %s\n", padding, title.String(d[0]), d[1])
	}
	_, err := io.WriteString(w, s.String())
	return err
}
