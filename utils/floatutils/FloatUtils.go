// Package floatutils provides utilities for working with floats
package floatutils

import "math"

// Clip bounds value to the closed interval [min, max]
func Clip(value, min, max float64) float64 {
	return math.Max(math.Min(value, max), min)
}

// ArgMax returns the index of the first maximum of values, which must
// not be empty. NaN entries are never selected over a number.
func ArgMax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] || math.IsNaN(values[best]) {
			best = i
		}
	}
	return best
}

// IsFinite returns whether value is neither NaN nor ±Inf
func IsFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
