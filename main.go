// Command trailgrid backtests a grid/trailing strategy over many symbols.
//
//	trailgrid -config configs/example.yaml -fills fills.csv
//	trailgrid -config configs/example.yaml -runs 10
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	alpaca "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/pedropmedina/trailgrid/backtest"
	"github.com/pedropmedina/trailgrid/config"
	"github.com/pedropmedina/trailgrid/logger"
	"github.com/pedropmedina/trailgrid/marketdata"
	"github.com/pedropmedina/trailgrid/metrics"
	"github.com/pedropmedina/trailgrid/ranking"
	"github.com/pedropmedina/trailgrid/store"
)

func main() {
	configPath := flag.String("config", "configs/example.yaml", "config file")
	fillsPath := flag.String("fills", "", "write fills as CSV to this file")
	listRuns := flag.Int("runs", 0, "list the latest N stored runs and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if err := logger.Init(&cfg.Log); err != nil {
		logger.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *listRuns > 0 {
		err = printRuns(ctx, cfg, *listRuns)
	} else {
		err = run(ctx, cfg, *fillsPath)
	}
	if err != nil {
		logger.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, fillsPath string) error {
	hlcvs, times, err := loadCandles(cfg)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"symbols": cfg.Backtest.Symbols,
		"steps":   hlcvs.NSteps(),
	}).Info("candles loaded")

	nPositions := max(cfg.Bot.Long.NPositions, cfg.Bot.Short.NPositions)
	preferred := ranking.CalcPreferredCoins(
		ranking.CalcVolumes(hlcvs, cfg.Ranking.Window),
		ranking.CalcNoisiness(hlcvs, cfg.Ranking.Window),
		nPositions,
		cfg.Ranking.RelativeVolumeFilterClipPct,
	)

	reg := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler(reg)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
		logger.Infof("serving metrics on %s", cfg.Metrics.Addr)
	}

	bt, err := backtest.New(hlcvs, preferred, cfg.Bot, cfg.ExchangeParams, cfg.Backtest, backtest.Opts{Observer: recorder})
	if err != nil {
		return err
	}
	res, err := bt.Run(ctx)
	recorder.RunFinished(err)
	if err != nil {
		return err
	}

	if err := res.Summary(os.Stdout, times); err != nil {
		return err
	}
	w, err := backtest.Fitness(res.Analysis, cfg.Optimize.Limits, cfg.Optimize.ScoringPair())
	if err != nil {
		return err
	}
	fmt.Printf("fitness (%s, %s): %f, %f\n", cfg.Optimize.Scoring[0], cfg.Optimize.Scoring[1], w[0], w[1])

	if fillsPath != "" {
		if err := writeFills(fillsPath, res.Fills); err != nil {
			return err
		}
	}
	if cfg.Store.Path != "" {
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.SaveRun(ctx, res, cfg.Backtest.Symbols, cfg.Bot); err != nil {
			return err
		}
		logger.WithField("run_id", res.RunID.String()).Info("run saved")
	}
	return nil
}

// loadCandles reads the candle matrix from CSV files or the alpaca data API.
// Alpaca credentials come from APCA_API_KEY_ID, APCA_API_SECRET_KEY and
// optionally APCA_API_DATA_URL.
func loadCandles(cfg *config.Config) (marketdata.HLCVs, []time.Time, error) {
	symbols := cfg.Backtest.Symbols
	if cfg.Data.Source == "csv" {
		return marketdata.LoadCSVDir(cfg.Data.CSVDir, symbols)
	}

	start, end, err := cfg.Data.Period()
	if err != nil {
		return nil, nil, err
	}
	c := alpaca.NewClient(alpaca.ClientOpts{
		BaseURL:   os.Getenv("APCA_API_DATA_URL"),
		APIKey:    os.Getenv("APCA_API_KEY_ID"),
		APISecret: os.Getenv("APCA_API_SECRET_KEY"),
	})
	return marketdata.FetchBars(c, symbols, alpaca.GetBarsRequest{
		TimeFrame: alpaca.NewTimeFrame(cfg.Data.TimeframeMinutes, alpaca.Min),
		Start:     start,
		End:       end,
	})
}

func writeFills(path string, fills []backtest.Fill) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := backtest.WriteFillsCSV(f, fills); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printRuns(ctx context.Context, cfg *config.Config, n int) error {
	if cfg.Store.Path == "" {
		return errors.New("store.path is not set")
	}
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.ListRuns(ctx, n)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %v  fills=%d  balance=%.2f  adg=%.6f  dd=%.4f\n",
			r.ID, r.CreatedAt.Format(time.RFC3339), r.Symbols, r.Fills, r.FinalBalance, r.Analysis.ADG, r.Analysis.DrawdownWorst)
	}
	return nil
}
