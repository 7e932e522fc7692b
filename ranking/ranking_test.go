package ranking

import (
	"testing"

	"github.com/pedropmedina/trailgrid/marketdata"
	"github.com/stretchr/testify/assert"
)

func series(closes, ranges, volumes []float64) []marketdata.Candle {
	out := make([]marketdata.Candle, len(closes))
	for k := range closes {
		out[k] = marketdata.Candle{
			High:   closes[k] + ranges[k]/2,
			Low:    closes[k] - ranges[k]/2,
			Close:  closes[k],
			Volume: volumes[k],
		}
	}
	return out
}

func TestCalcVolumes(t *testing.T) {
	hlcvs := marketdata.HLCVs{
		series([]float64{1, 1, 1, 1}, []float64{0, 0, 0, 0}, []float64{1, 2, 3, 4}),
	}
	assert.Equal(t, [][]float64{{1, 3, 5, 7}}, CalcVolumes(hlcvs, 2))
}

func TestCalcNoisiness(t *testing.T) {
	hlcvs := marketdata.HLCVs{
		series([]float64{10, 10, 10}, []float64{1, 3, 5}, []float64{0, 0, 0}),
		{{High: 1, Low: 0, Close: 0}},
	}
	noisiness := CalcNoisiness(hlcvs, 2)
	// warm-up averages what is available
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 0.4}, noisiness[0], 1e-12)
	assert.Equal(t, []float64{0}, noisiness[1])
}

func TestCalcPreferredCoins(t *testing.T) {
	volumes := [][]float64{
		{100, 100},
		{50, 50},
		{10, 200},
		{80, 80},
	}
	noisiness := [][]float64{
		{0.01, 0.01},
		{0.05, 0.05},
		{0.09, 0.09},
		{0.02, 0.05},
	}

	preferred := CalcPreferredCoins(volumes, noisiness, 2, 0.25)
	// step 0: symbol 2 is clipped for low volume, 1 then 3 are noisiest
	assert.Equal(t, []int{0, 1, 0, 2}, []int{preferred[0][0], preferred[1][0], preferred[2][0], preferred[3][0]})
	// step 1: symbol 1 is clipped, 2 is now liquid and the noisiest
	assert.Equal(t, []int{0, 0, 1, 2}, []int{preferred[0][1], preferred[1][1], preferred[2][1], preferred[3][1]})
}

func TestCalcPreferredCoinsNoSlots(t *testing.T) {
	preferred := CalcPreferredCoins([][]float64{{1}}, [][]float64{{1}}, 0, 0)
	assert.Equal(t, [][]int{{0}}, preferred)
}
