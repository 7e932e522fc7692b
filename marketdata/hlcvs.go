// Package marketdata holds the candle matrix a backtest replays and the
// loaders that build it from alpaca bars or CSV files.
package marketdata

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrShape = errors.New("hlcvs shape mismatch")

// Candle is one step of one symbol.
type Candle struct {
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// HLCVs is indexed [symbol][step]. Every symbol has the same number of steps
// and step i of every symbol covers the same interval.
type HLCVs [][]Candle

func (h HLCVs) NSymbols() int {
	return len(h)
}

func (h HLCVs) NSteps() int {
	if len(h) == 0 {
		return 0
	}
	return len(h[0])
}

// Column returns field f of every step of symbol i.
func (h HLCVs) Column(i int, f func(Candle) float64) []float64 {
	out := make([]float64, len(h[i]))
	for k, c := range h[i] {
		out[k] = f(c)
	}
	return out
}

// Validate checks the matrix is rectangular and holds usable prices.
func (h HLCVs) Validate() error {
	if len(h) == 0 || len(h[0]) == 0 {
		return fmt.Errorf("%w: empty", ErrShape)
	}
	n := len(h[0])
	for i, series := range h {
		if len(series) != n {
			return fmt.Errorf("%w: symbol %d has %d steps, expected %d", ErrShape, i, len(series), n)
		}
		for k, c := range series {
			if !(c.Close > 0) || math.IsInf(c.Close, 0) || c.High < c.Low {
				return fmt.Errorf("%w: symbol %d step %d: bad candle %+v", ErrShape, i, k, c)
			}
		}
	}
	return nil
}

// timedCandle is a candle before alignment.
type timedCandle struct {
	Time time.Time
	Candle
}

// align keeps only the timestamps every symbol has, in ascending order.
func align(series [][]timedCandle) (HLCVs, []time.Time) {
	if len(series) == 0 {
		return nil, nil
	}
	counts := map[int64]int{}
	for _, s := range series {
		seen := map[int64]bool{}
		for _, c := range s {
			ts := c.Time.UnixNano()
			if !seen[ts] {
				seen[ts] = true
				counts[ts]++
			}
		}
	}

	var times []time.Time
	for _, c := range series[0] {
		if counts[c.Time.UnixNano()] == len(series) {
			times = append(times, c.Time)
			counts[c.Time.UnixNano()] = 0
		}
	}

	index := make(map[int64]int, len(times))
	for k, t := range times {
		index[t.UnixNano()] = k
	}
	out := make(HLCVs, len(series))
	for i, s := range series {
		out[i] = make([]Candle, len(times))
		for _, c := range s {
			if k, ok := index[c.Time.UnixNano()]; ok {
				out[i][k] = c.Candle
			}
		}
	}
	return out, times
}
