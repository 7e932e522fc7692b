package indicators

import "math"

// EMABands tracks three exponential moving averages of the close with spans
// span0, span1 and their geometric mean. The bands are the lowest and highest
// of the three.
type EMABands struct {
	alphas  [3]float64
	values  [3]float64
	started bool
}

// NewEMABands returns bands that start at the first close they see.
func NewEMABands(span0, span1 float64) *EMABands {
	spans := [3]float64{span0, span1, math.Sqrt(span0 * span1)}
	e := &EMABands{}
	for i, span := range spans {
		e.alphas[i] = 2 / (span + 1)
	}
	return e
}

// Update folds a close into the averages.
func (e *EMABands) Update(close float64) {
	if !e.started {
		e.values = [3]float64{close, close, close}
		e.started = true
		return
	}
	for i, alpha := range e.alphas {
		e.values[i] = e.values[i]*(1-alpha) + close*alpha
	}
}

// Bands returns the lower and upper band.
func (e *EMABands) Bands() (lower, upper float64) {
	lower, upper = e.values[0], e.values[0]
	for _, v := range e.values[1:] {
		lower = math.Min(lower, v)
		upper = math.Max(upper, v)
	}
	return lower, upper
}
