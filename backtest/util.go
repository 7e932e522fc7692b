package backtest

import (
	"math"
	"slices"

	"golang.org/x/exp/constraints"
)

func sum[S []E, E constraints.Integer | constraints.Float](s S) E {
	var sum E
	for _, e := range s {
		sum += e
	}
	return sum
}

func sumFunc[S []E, E constraints.Integer | constraints.Float](s S, pred func(x E) bool) E {
	var sum E
	for _, e := range s {
		if pred(e) {
			sum += e
		}
	}
	return sum
}

func count[S []E, E constraints.Integer | constraints.Float](s S, pred func(x E) bool) int {
	var count int
	for _, e := range s {
		if pred(e) {
			count++
		}
	}
	return count
}

func mean[S []E, E constraints.Integer | constraints.Float](s S) E {
	if len(s) == 0 {
		return 0
	}
	return sum(s) / E(len(s))
}

// median of a copy of s, so s keeps its order.
func median[S []E, E constraints.Float](s S) E {
	if len(s) == 0 {
		return 0
	}
	sorted := slices.Clone(s)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// std is the population standard deviation.
func std[S []E, E constraints.Float](s S) E {
	if len(s) == 0 {
		return 0
	}
	m := mean(s)
	var sq E
	for _, e := range s {
		sq += (e - m) * (e - m)
	}
	return E(math.Sqrt(float64(sq / E(len(s)))))
}
