package indicators

// RollingSum sums the last period values at each index. The first period-1
// indexes sum whatever is available so far.
func RollingSum(period int, values []float64) []float64 {
	// Keep track of the sum up to i
	sum := float64(0)
	results := make([]float64, len(values))

	for i, v := range values {
		sum += v
		if period > 0 && i >= period {
			// drop the value that just left the window
			sum -= values[i-period]
		}
		results[i] = sum
	}

	return results
}

// SMA (Simple Moving Average) averages the last period values at each index,
// e.g. period 4 over (1, 2, 3, 4) ends with 10 / 4 = 2.5. During warm-up the
// average is taken over the partial window, so the first value is values[0].
func SMA(period int, values []float64) []float64 {
	results := RollingSum(period, values)

	for i := range results {
		count := i + 1
		if period > 0 && count > period {
			count = period
		}
		results[i] /= float64(count)
	}

	return results
}
