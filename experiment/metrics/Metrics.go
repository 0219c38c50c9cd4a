// Package metrics aggregates the statistics of completed episodes and
// the predictions of value functions
package metrics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Episode holds the statistics of a single completed episode
type Episode struct {
	Reward  float64
	Length  int
	Success bool
	Custom  map[string]float64
}

// Aggregate summarizes a number of episodes
type Aggregate struct {
	Count        int
	MeanReward   float64
	StdReward    float64
	MedianReward float64
	MinReward    float64
	MaxReward    float64
	MeanLength   float64
	SuccessRate  float64
	Custom       map[string]float64
}

// NewAggregate summarizes episodes, computing each custom metric in
// registry. The registry may be nil. Without episodes, all statistics
// are zero.
func NewAggregate(episodes []Episode, registry *Registry) Aggregate {
	agg := Aggregate{Count: len(episodes), Custom: map[string]float64{}}
	if len(episodes) == 0 {
		return agg
	}

	rewards := make([]float64, len(episodes))
	lengths := make([]float64, len(episodes))
	successes := 0
	for i, ep := range episodes {
		rewards[i] = ep.Reward
		lengths[i] = float64(ep.Length)
		if ep.Success {
			successes++
		}
	}

	agg.MeanReward = stat.Mean(rewards, nil)
	if len(rewards) > 1 {
		agg.StdReward = stat.StdDev(rewards, nil)
	}
	agg.MedianReward = Median(rewards)
	agg.MinReward = floats.Min(rewards)
	agg.MaxReward = floats.Max(rewards)
	agg.MeanLength = stat.Mean(lengths, nil)
	agg.SuccessRate = float64(successes) / float64(len(episodes))

	if registry != nil {
		agg.Custom = registry.Compute(episodes)
	}
	return agg
}

// String implements the fmt.Stringer interface
func (a Aggregate) String() string {
	return fmt.Sprintf("episodes: %v | reward: %.3f ± %.3f [%.3f, %.3f] | "+
		"length: %.1f | success: %.2f", a.Count, a.MeanReward, a.StdReward,
		a.MinReward, a.MaxReward, a.MeanLength, a.SuccessRate)
}

// Median returns the median of x, or 0 if x is empty
func Median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// ExplainedVariance returns 1 - Var(targets - predictions) / Var(targets),
// which is 1 for perfect predictions and 0 for predicting the mean of
// targets. If the targets have no variance, 0 is returned.
func ExplainedVariance(predictions, targets []float64) float64 {
	if len(targets) < 2 || len(predictions) != len(targets) {
		return 0
	}

	variance := stat.Variance(targets, nil)
	if variance == 0 || math.IsNaN(variance) {
		return 0
	}

	residuals := make([]float64, len(targets))
	floats.SubTo(residuals, targets, predictions)
	return 1 - stat.Variance(residuals, nil)/variance
}

// LearningCurveSlope returns the least squares slope of the last
// window values of x against their index, or 0 if x has fewer than
// window values
func LearningCurveSlope(x []float64, window int) float64 {
	if window < 2 || len(x) < window {
		return 0
	}
	y := x[len(x)-window:]
	steps := make([]float64, window)
	for i := range steps {
		steps[i] = float64(i)
	}
	_, slope := stat.LinearRegression(steps, y, nil, false)
	return slope
}

// Stability returns the inverse coefficient of variation |mean| / std
// of the last window values of x, or 0 if x has fewer than window
// values or a mean of 0
func Stability(x []float64, window int) float64 {
	if window < 1 || len(x) < window {
		return 0
	}
	mean, std := stat.PopMeanStdDev(x[len(x)-window:], nil)
	if math.Abs(mean) < 1e-8 {
		return 0
	}
	if std == 0 {
		return math.Inf(1)
	}
	return math.Abs(mean) / std
}
