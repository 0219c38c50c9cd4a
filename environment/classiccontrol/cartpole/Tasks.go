package cartpole

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/samuelfneumann/goppo/environment"
	ts "github.com/samuelfneumann/goppo/timestep"
)

const (
	FailAngle float64 = 12 * 2 * math.Pi / 360

	// Bounds (+/-) of each state feature for the default starter
	StartBound float64 = 0.05
)

// NewStarter returns the default Cartpole starting state distribution,
// uniform over (-0.05, 0.05) for each state feature
func NewStarter(seed uint64) env.Starter {
	bounds := make([]r1.Interval, ObservationDims)
	for i := range bounds {
		bounds[i] = r1.Interval{Min: -StartBound, Max: StartBound}
	}
	return env.NewUniformStarter(seed, bounds...)
}

// Balance implements the classic control Cartpole Balance task. In this
// Task, the goal of the agent is to balance the pole on the cart in
// an upright position for as long as possible.
//
// The rewards are +1 for every timestep and -1 when the pole has fallen
// below some set angle threshold θ.
//
// Episodes end after a step limit, which counts as a success, or after
// the pole has fallen below the angle threshold θ, which counts as a
// failure.
type Balance struct {
	env.Starter
	env.Ender
	failAngle float64
}

// NewBalance creates and returns a new Balance task
func NewBalance(s env.Starter, episodeSteps int,
	failAngle float64) (*Balance, error) {
	if episodeSteps < 1 || failAngle <= 0 {
		return nil, fmt.Errorf("newBalance: episode steps and fail angle "+
			"must be positive, have (%v, %v)", episodeSteps, failAngle)
	}

	// The pole falling takes precedence over the step limit
	angle := env.Bound{
		Feature:  2,
		Interval: r1.Interval{Min: -failAngle, Max: failAngle},
	}
	ender := env.AnyOf{
		env.IntervalLimit{Bounds: []env.Bound{angle}, EndType: ts.Failure},
		env.StepLimit{Steps: episodeSteps, EndType: ts.Success},
	}

	return &Balance{s, ender, failAngle}, nil
}

// GetReward returns the reward for an action taken in some state,
// resulting in a transition to the next state nextState.
func (b *Balance) GetReward(_, _, nextState *mat.VecDense) float64 {
	angle := math.Abs(nextState.AtVec(2))

	// Angle of 0 is pointing straight up
	if angle < b.failAngle {
		return 1.0
	}
	return -1.0
}
