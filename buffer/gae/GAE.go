// Package gae implements generalized advantage estimation, GAE(λ),
// following https://arxiv.org/abs/1506.02438, along with the related
// TD, n-step, and Monte-Carlo advantage estimators.
//
// All estimators operate on the chronological reward, value, and done
// sequence of a single environment. A done at index t marks the
// transition at t as the last of its episode: the value of the next
// state is not bootstrapped and the eligibility trace is cut, so that
// no value leaks across an episode boundary.
//
// The values argument may either have the same length T as the
// rewards, in which case the value after the last step is taken to be
// 0, or it may have length T+1, in which case values[T] is the
// bootstrap value of the state following the last step.
package gae

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Epsilon is added to the standard deviation when normalizing
const Epsilon = 1e-8

// DefaultClip is the default bound used to clip advantages
const DefaultClip = 10.0

// GAE computes the generalized advantage estimate of each step in a
// trajectory using the backward recursion:
//
//	δ(t) = r(t) + ℽ v(t+1) (1 - d(t)) - v(t)
//	A(t) = δ(t) + ℽλ (1 - d(t)) A(t+1)
//
// GAE does not modify its inputs.
func GAE(rewards, values []float64, dones []bool, gamma,
	lambda float64) ([]float64, error) {
	if err := validate(rewards, values, dones); err != nil {
		return nil, fmt.Errorf("gae: %v", err)
	}

	T := len(rewards)
	advantages := make([]float64, T)

	gae := 0.0
	for t := T - 1; t >= 0; t-- {
		mask := notDone(dones[t])
		delta := rewards[t] + gamma*nextValue(values, t)*mask - values[t]
		gae = delta + gamma*lambda*mask*gae
		advantages[t] = gae
	}

	return advantages, nil
}

// Returns computes the returns A(t) + v(t) corresponding to a sequence
// of advantages. Only the first len(advantages) values are used.
func Returns(advantages, values []float64) ([]float64, error) {
	if len(values) < len(advantages) {
		return nil, fmt.Errorf("returns: expected at least %v values, "+
			"have %v", len(advantages), len(values))
	}

	returns := make([]float64, len(advantages))
	floats.AddTo(returns, advantages, values[:len(advantages)])
	return returns, nil
}

// TDLambda computes the λ-returns of a trajectory
func TDLambda(rewards, values []float64, dones []bool, gamma,
	lambda float64) ([]float64, error) {
	advantages, err := GAE(rewards, values, dones, gamma, lambda)
	if err != nil {
		return nil, fmt.Errorf("tdLambda: %v", err)
	}
	return Returns(advantages, values)
}

// TD computes the one-step temporal difference errors of a trajectory
func TD(rewards, values []float64, dones []bool,
	gamma float64) ([]float64, error) {
	if err := validate(rewards, values, dones); err != nil {
		return nil, fmt.Errorf("td: %v", err)
	}

	deltas := make([]float64, len(rewards))
	for t := range rewards {
		deltas[t] = rewards[t] + gamma*nextValue(values, t)*
			notDone(dones[t]) - values[t]
	}
	return deltas, nil
}

// NStep computes the n-step advantage of each step in a trajectory:
//
//	A(t) = Σ_{k=0}^{n-1} ℽ^k r(t+k) + ℽ^n v(t+n) - v(t)
//
// The sum is truncated at the first done at or after t, in which case
// no value is bootstrapped, and at the end of the trajectory, in which
// case the value after the last step is bootstrapped.
func NStep(rewards, values []float64, dones []bool, gamma float64,
	n int) ([]float64, error) {
	if err := validate(rewards, values, dones); err != nil {
		return nil, fmt.Errorf("nStep: %v", err)
	}
	if n < 1 {
		return nil, fmt.Errorf("nStep: n must be positive, have %v", n)
	}

	T := len(rewards)
	advantages := make([]float64, T)
	for t := 0; t < T; t++ {
		ret := 0.0
		discount := 1.0
		bootstrap := true

		k := t
		for ; k < T && k < t+n; k++ {
			ret += discount * rewards[k]
			discount *= gamma
			if dones[k] {
				bootstrap = false
				break
			}
		}

		if bootstrap {
			// k is the index of the state after the last summed reward
			ret += discount * stateValue(values, k)
		}
		advantages[t] = ret - values[t]
	}
	return advantages, nil
}

// DiscountedCumSum computes the discounted reward-to-go of each step
// in a trajectory. The sum restarts after each done, so the returned
// values are the Monte-Carlo returns of each episode in the trajectory.
// Given x = [x0 x1 ... xN] with no dones, the result is:
//
//	[
//		x0 + ℽ x1 + ℽ^2 x2 + ... + ℽ^N xN
//		x1 + ℽ x2 + ... + ℽ^(N-1) xN
//		...
//		xN
//	]
func DiscountedCumSum(x []float64, dones []bool,
	discount float64) ([]float64, error) {
	if dones != nil && len(dones) != len(x) {
		return nil, fmt.Errorf("discountedCumSum: expected %v dones, "+
			"have %v", len(x), len(dones))
	}

	cumSums := make([]float64, len(x))
	sum := 0.0
	for t := len(x) - 1; t >= 0; t-- {
		if dones != nil && dones[t] {
			sum = 0
		}
		sum = x[t] + discount*sum
		cumSums[t] = sum
	}
	return cumSums, nil
}

// Normalize standardizes x in place to mean 0 and standard deviation 1
// using the sample standard deviation plus eps
func Normalize(x []float64, eps float64) {
	if len(x) == 0 {
		return
	}

	mean, std := stat.MeanStdDev(x, nil)
	if math.IsNaN(std) {
		std = 0
	}
	floats.AddConst(-mean, x)
	floats.Scale(1/(std+eps), x)
}

// Clip clips each element of x in place to [-bound, bound]
func Clip(x []float64, bound float64) {
	for i := range x {
		x[i] = math.Max(-bound, math.Min(bound, x[i]))
	}
}

// validate checks the lengths of a trajectory's inputs
func validate(rewards, values []float64, dones []bool) error {
	T := len(rewards)
	if len(dones) != T {
		return fmt.Errorf("expected %v dones, have %v", T, len(dones))
	}
	if len(values) != T && len(values) != T+1 {
		return fmt.Errorf("expected %v or %v values, have %v", T, T+1,
			len(values))
	}
	return nil
}

// nextValue returns the value of the state after step t
func nextValue(values []float64, t int) float64 {
	return stateValue(values, t+1)
}

// stateValue returns values[t], or 0 if t is past the stored values
func stateValue(values []float64, t int) float64 {
	if t < len(values) {
		return values[t]
	}
	return 0
}

func notDone(done bool) float64 {
	if done {
		return 0
	}
	return 1
}
