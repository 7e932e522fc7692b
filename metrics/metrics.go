// Package metrics exposes backtest progress as prometheus metrics:
//
//	trailgrid_fills_total{order_type}  fills by order type
//	trailgrid_fees_paid_total          fees paid, in quote currency
//	trailgrid_realized_pnl             realized pnl of the current run
//	trailgrid_balance                  balance after the last step
//	trailgrid_equity                   equity after the last step
//	trailgrid_steps_total              steps replayed
//	trailgrid_runs_total{status}       finished runs (ok|error)
package metrics

import (
	"math"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pedropmedina/trailgrid/backtest"
)

// Recorder is a backtest.Observer.
type Recorder struct {
	fills       *prometheus.CounterVec
	fees        prometheus.Counter
	realizedPnl prometheus.Gauge
	balance     prometheus.Gauge
	equity      prometheus.Gauge
	steps       prometheus.Counter
	runs        *prometheus.CounterVec
}

var _ backtest.Observer = (*Recorder)(nil)

// NewRecorder registers the metrics with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		fills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trailgrid_fills_total",
				Help: "Simulated fills by order type",
			},
			[]string{"order_type"},
		),
		fees: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trailgrid_fees_paid_total",
			Help: "Fees paid on simulated fills",
		}),
		realizedPnl: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trailgrid_realized_pnl",
			Help: "Realized pnl of the current run",
		}),
		balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trailgrid_balance",
			Help: "Balance after the last replayed step",
		}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trailgrid_equity",
			Help: "Mark-to-market equity after the last replayed step",
		}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trailgrid_steps_total",
			Help: "Replayed steps",
		}),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trailgrid_runs_total",
				Help: "Finished backtest runs by status",
			},
			[]string{"status"},
		),
	}
	for _, c := range []prometheus.Collector{r.fills, r.fees, r.realizedPnl, r.balance, r.equity, r.steps, r.runs} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) OnFill(f backtest.Fill) {
	r.fills.WithLabelValues(f.OrderType.String()).Inc()
	r.fees.Add(math.Abs(f.FeePaid))
	r.realizedPnl.Add(f.Pnl)
}

func (r *Recorder) OnStep(step int, balance, equity float64) {
	if step == 0 {
		r.realizedPnl.Set(0)
	}
	r.steps.Inc()
	r.balance.Set(balance)
	r.equity.Set(equity)
}

// RunFinished counts a run that ended with err (nil for success).
func (r *Recorder) RunFinished(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.runs.WithLabelValues(status).Inc()
}

// Handler serves g in the prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
