package marketdata

import (
	"fmt"
	"sort"
	"time"

	alpaca "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// FromBars aligns alpaca bars into an HLCVs in symbol order and returns the
// timestamp of each step. Steps missing for any symbol are dropped for all
// of them.
func FromBars(symbols []string, bars map[string][]alpaca.Bar) (HLCVs, []time.Time, error) {
	series := make([][]timedCandle, len(symbols))
	for i, symbol := range symbols {
		bs, ok := bars[symbol]
		if !ok || len(bs) == 0 {
			return nil, nil, fmt.Errorf("no bars for %s", symbol)
		}
		s := make([]timedCandle, len(bs))
		for k, b := range bs {
			s[k] = timedCandle{
				Time: b.Timestamp,
				Candle: Candle{
					High:   b.High,
					Low:    b.Low,
					Close:  b.Close,
					Volume: float64(b.Volume),
				},
			}
		}
		sort.Slice(s, func(a, b int) bool { return s[a].Time.Before(s[b].Time) })
		series[i] = s
	}
	hlcvs, times := align(series)
	if err := hlcvs.Validate(); err != nil {
		return nil, nil, err
	}
	return hlcvs, times, nil
}

// FetchBars downloads bars for every symbol with the alpaca client and
// aligns them.
func FetchBars(c *alpaca.Client, symbols []string, req alpaca.GetBarsRequest) (HLCVs, []time.Time, error) {
	bars, err := c.GetMultiBars(symbols, req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch bars: %w", err)
	}
	return FromBars(symbols, bars)
}
