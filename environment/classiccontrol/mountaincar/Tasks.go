package mountaincar

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/samuelfneumann/goppo/environment"
	ts "github.com/samuelfneumann/goppo/timestep"
)

const (
	// Commonly used goal position
	GoalPosition float64 = 0.45
)

// NewStarter returns the default Mountain Car starting state
// distribution: positions uniform in [-0.6, -0.4] at rest
func NewStarter(seed uint64) env.Starter {
	return env.NewUniformStarter(seed,
		r1.Interval{Min: -0.6, Max: -0.4},
		r1.Interval{Min: 0, Max: 0},
	)
}

// Goal implements the classic control task of reaching a goal on
// Mountain Car. Since the car is underpowered, it must rock back and
// forth from hill to hill until it reaches the goal.
//
// Rewards are -1 on each timestep and 0 for the action which
// transitions the car to the goal.
//
// Episodes end successfully when the car reaches the goal, and end
// in failure after a step limit.
type Goal struct {
	env.Starter
	env.Ender
	goalX float64
}

// NewGoal creates and returns a new Goal task given a Starter, the
// maximum number of episode steps, and the goal x position
func NewGoal(s env.Starter, episodeSteps int, goalX float64) (*Goal, error) {
	if episodeSteps < 1 {
		return nil, fmt.Errorf("newGoal: episode steps must be positive, "+
			"have %v", episodeSteps)
	}

	// Leaving the interval left of the goal means the goal was reached
	left := env.Bound{
		Feature:  0,
		Interval: r1.Interval{Min: math.Inf(-1), Max: goalX},
	}
	ender := env.AnyOf{
		env.IntervalLimit{Bounds: []env.Bound{left}, EndType: ts.Success},
		env.StepLimit{Steps: episodeSteps, EndType: ts.Failure},
	}

	return &Goal{s, ender, goalX}, nil
}

// AtGoal returns whether state is at the goal
func (g *Goal) AtGoal(state mat.Vector) bool {
	return state.AtVec(0) >= g.goalX
}

// GetReward returns -1 for every action except one reaching the goal
func (g *Goal) GetReward(_, _, nextState *mat.VecDense) float64 {
	if g.AtGoal(nextState) {
		return 0.0
	}
	return -1.0
}
