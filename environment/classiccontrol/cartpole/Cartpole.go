// Package cartpole implements the Cartpole classic control environment
package cartpole

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/samuelfneumann/goppo/environment"
	ts "github.com/samuelfneumann/goppo/timestep"
	"github.com/samuelfneumann/goppo/utils/floatutils"
)

const (
	// Physical constants
	Gravity        float64 = 9.8
	CartMass       float64 = 1.0
	PoleMass       float64 = 0.1
	HalfPoleLength float64 = 0.5  // half of pole length
	ForceMag       float64 = 10.0 // Magnification of force applied
	Dt             float64 = 0.02 // seconds between state updates

	// Bounds (+/-) on state variabels
	PositionBounds float64 = 2.4
	AngleBounds    float64 = math.Pi

	ObservationDims int = 4
	ActionDims      int = 1
)

// Cartpole implements the classic control environment Cartpole with
// discrete actions. In this environment, a pole is attached to a cart,
// which can move horizontally. Gravity pulls the pole downwards so
// that balancing it in an upright position is very difficult.
//
// The state features are continuous and consist of the cart's x
// position and speed, as well as the pole's angle from the positive
// y-axis and the pole's angular velocity. The position of the cart is
// clipped to within the position bounds, and upon reaching a bound the
// speed of the cart is set to 0. The pole's angle is normalized to
// stay in the range (-π, π].
//
// By default, actions are discrete in {0, 1, 2}:
//
//	Action	Meaning
//	  0		Apply force left
//	  1		Do nothing
//	  2		Apply force right
//
// With the TwoActions option, actions are in {0, 1} and the Do nothing
// action is removed.
type Cartpole struct {
	env.Task
	lastStep       ts.TimeStep
	discount       float64
	actions        int
	positionBounds r1.Interval
	angleBounds    r1.Interval
}

// Option configures a Cartpole environment
type Option func(*Cartpole)

// TwoActions restricts the action set to {0: left, 1: right}
func TwoActions() Option {
	return func(c *Cartpole) {
		c.actions = 2
	}
}

// New constructs a new Cartpole environment. Reset must be called
// before the first Step.
func New(t env.Task, discount float64, opts ...Option) *Cartpole {
	c := &Cartpole{
		Task:           t,
		discount:       discount,
		actions:        3,
		positionBounds: r1.Interval{Min: -PositionBounds, Max: PositionBounds},
		angleBounds:    r1.Interval{Min: -AngleBounds, Max: AngleBounds},
	}
	for _, opt := range opts {
		opt(c)
	}

	// No episode has started yet
	c.lastStep = ts.New(ts.Last, 0, discount, nil, 0)
	return c
}

// Reset resets the environment and returns a starting state drawn from
// the environment Starter
func (c *Cartpole) Reset() (ts.TimeStep, error) {
	state := c.Start()
	if err := c.validateState(state); err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}

	startStep := ts.New(ts.First, 0, c.discount, state, 0)
	c.lastStep = startStep

	return startStep, nil
}

// ActionSpec returns the action specification of the environment
func (c *Cartpole) ActionSpec() env.Spec {
	lowerBound := mat.NewVecDense(ActionDims, []float64{0})
	upperBound := mat.NewVecDense(ActionDims,
		[]float64{float64(c.actions - 1)})

	return env.NewSpec(ActionDims, env.Action, lowerBound, upperBound,
		env.Discrete)
}

// ObservationSpec returns the observation specification of the
// environment
func (c *Cartpole) ObservationSpec() env.Spec {
	lower := []float64{c.positionBounds.Min, -math.MaxFloat64,
		c.angleBounds.Min, -math.MaxFloat64}
	upper := []float64{c.positionBounds.Max, math.MaxFloat64,
		c.angleBounds.Max, math.MaxFloat64}

	return env.NewSpec(ObservationDims, env.Observation,
		mat.NewVecDense(ObservationDims, lower),
		mat.NewVecDense(ObservationDims, upper), env.Continuous)
}

// Step takes one environmental step given action a and returns the next
// state as a timestep.TimeStep and a bool indicating whether or not the
// episode has ended. Stepping an environment whose episode has ended
// without first calling Reset is an error.
func (c *Cartpole) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if c.lastStep.Last() {
		return ts.TimeStep{}, false, fmt.Errorf("step: episode has " +
			"ended, call Reset first")
	}
	if a.Len() != ActionDims {
		return ts.TimeStep{}, false, fmt.Errorf("step: actions should be "+
			"%v-dimensional", ActionDims)
	}

	action := int(a.AtVec(0))
	if action < 0 || action >= c.actions || float64(action) != a.AtVec(0) {
		return ts.TimeStep{}, false, fmt.Errorf("step: illegal action %v "+
			"∉ [0, %v)", a.AtVec(0), c.actions)
	}

	var direction float64
	if c.actions == 2 {
		direction = float64(2*action - 1)
	} else {
		direction = float64(action - 1)
	}

	state := c.lastStep.Observation
	nextState := c.nextState(state, direction)

	reward := c.GetReward(state, a, nextState)
	nextStep := ts.New(ts.Mid, reward, c.discount, nextState,
		c.lastStep.Number+1)

	// Check if the step ends the episode
	c.End(&nextStep)

	c.lastStep = nextStep
	return nextStep, nextStep.Last(), nil
}

// nextState computes the next state of the cartpole after applying
// force in the given direction (-1, 0, 1) using Euler integration
func (c *Cartpole) nextState(state *mat.VecDense,
	direction float64) *mat.VecDense {
	x, xDot := state.AtVec(0), state.AtVec(1)
	th, thDot := state.AtVec(2), state.AtVec(3)

	force := direction * ForceMag

	cosTheta := math.Cos(th)
	sinTheta := math.Sin(th)

	totalMass := PoleMass + CartMass
	poleMassLength := PoleMass * HalfPoleLength

	temp := (force + poleMassLength*thDot*thDot*sinTheta) / totalMass
	thAcc := (Gravity*sinTheta - cosTheta*temp) / (HalfPoleLength *
		(4.0/3.0 - PoleMass*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thAcc*cosTheta/totalMass

	x += Dt * xDot
	xDot += Dt * xAcc
	if x <= c.positionBounds.Min || x >= c.positionBounds.Max {
		xDot = 0
	}
	x = floatutils.Clip(x, c.positionBounds.Min, c.positionBounds.Max)

	th += Dt * thDot
	th = normalizeAngle(th, c.angleBounds)
	thDot += Dt * thAcc

	return mat.NewVecDense(ObservationDims, []float64{x, xDot, th, thDot})
}

// validateState ensures that a state observation is valid and between
// the physical bounds of the Cartpole environment
func (c *Cartpole) validateState(obs *mat.VecDense) error {
	if obs.Len() != ObservationDims {
		return fmt.Errorf("state should have %v features", ObservationDims)
	}

	position := obs.AtVec(0)
	if position > c.positionBounds.Max || position < c.positionBounds.Min {
		return fmt.Errorf("position is not within bounds %v",
			c.positionBounds)
	}

	angle := obs.AtVec(2)
	if angle > c.angleBounds.Max || angle < c.angleBounds.Min {
		return fmt.Errorf("angle is not within bounds %v", c.angleBounds)
	}
	return nil
}

func (c *Cartpole) String() string {
	msg := "Cartpole  |  Position: %v  | Speed: %v  |  Angle: %v" +
		"  |  Angular Velocity: %v"

	state := c.lastStep.Observation
	if state == nil {
		return "Cartpole  |  not started"
	}
	position, speed := state.AtVec(0), state.AtVec(1)
	angle, velocity := state.AtVec(2), state.AtVec(3)

	return fmt.Sprintf(msg, position, speed, angle, velocity)
}

// normalizeAngle normalizes the pole angle to the appropriate limits
func normalizeAngle(th float64, angleBounds r1.Interval) float64 {
	if th > angleBounds.Max {
		divisor := int(th / angleBounds.Max)
		return -math.Pi + th - (angleBounds.Max * float64(divisor))
	} else if th < angleBounds.Min {
		divisor := int(th / angleBounds.Min)
		return math.Pi + th - (angleBounds.Min * float64(divisor))
	}
	return th
}
