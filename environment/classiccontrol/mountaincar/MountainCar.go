// Package mountaincar implements the discrete action classic control
// environment "Mountain Car"
package mountaincar

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
	MinPosition float64 = -1.2
	MaxPosition float64 = 0.6
	MaxSpeed    float64 = 0.07
	Power       float64 = 0.0015 // Engine power
	Gravity     float64 = 0.0025

	ObservationDims int = 2
	ActionDims      int = 1
	Actions         int = 3
)

// MountainCar implements the classic control Mountain Car environment.
// In this environment, the agent controls a car in a valley between two
// hills. The car is underpowered and cannot drive up the hill unless
// it rocks back and forth from hill to hill, using its momentum to
// gradually climb higher.
//
// State features consist of the x position of the car and its velocity.
// The sign of the velocity denotes direction, with negative meaning
// that the car is travelling left. Upon reaching the minimum position,
// the velocity of the car is set to 0.
//
// Actions are discrete in {0, 1, 2}:
//
//	Action	Meaning
//	  0		Accelerate left
//	  1		Do nothing
//	  2		Accelerate right
type MountainCar struct {
	env.Task
	positionBounds r1.Interval
	speedBounds    r1.Interval
	lastStep       ts.TimeStep
	discount       float64
}

// New returns a new Mountain Car environment. Reset must be called
// before the first Step.
func New(t env.Task, discount float64) *MountainCar {
	return &MountainCar{
		Task:           t,
		positionBounds: r1.Interval{Min: MinPosition, Max: MaxPosition},
		speedBounds:    r1.Interval{Min: -MaxSpeed, Max: MaxSpeed},
		lastStep:       ts.New(ts.Last, 0, discount, nil, 0),
		discount:       discount,
	}
}

// Reset resets the environment and returns a starting state drawn from
// the environment Starter
func (m *MountainCar) Reset() (ts.TimeStep, error) {
	state := m.Start()
	if err := m.validateState(state); err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}
	m.lastStep = ts.New(ts.First, 0, m.discount, state, 0)
	return m.lastStep, nil
}

// ObservationSpec returns the observation specification of the
// environment
func (m *MountainCar) ObservationSpec() env.Spec {
	lower := mat.NewVecDense(ObservationDims, []float64{m.positionBounds.Min,
		m.speedBounds.Min})
	upper := mat.NewVecDense(ObservationDims, []float64{m.positionBounds.Max,
		m.speedBounds.Max})

	return env.NewSpec(ObservationDims, env.Observation, lower, upper,
		env.Continuous)
}

// ActionSpec returns the action specification of the environment
func (m *MountainCar) ActionSpec() env.Spec {
	lower := mat.NewVecDense(ActionDims, []float64{0})
	upper := mat.NewVecDense(ActionDims, []float64{float64(Actions - 1)})

	return env.NewSpec(ActionDims, env.Action, lower, upper, env.Discrete)
}

// Step takes one environmental step given action a and returns the next
// timestep and whether the episode has ended
func (m *MountainCar) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if m.lastStep.Last() {
		return ts.TimeStep{}, false, fmt.Errorf("step: episode has " +
			"ended, call Reset first")
	}
	if a.Len() != ActionDims {
		return ts.TimeStep{}, false, fmt.Errorf("step: actions should be "+
			"%v-dimensional", ActionDims)
	}

	action := int(a.AtVec(0))
	if action < 0 || action >= Actions || float64(action) != a.AtVec(0) {
		return ts.TimeStep{}, false, fmt.Errorf("step: illegal action %v "+
			"∉ (0, 1, 2)", a.AtVec(0))
	}

	state := m.lastStep.Observation
	nextState := m.nextState(state, float64(action-1))

	reward := m.GetReward(state, a, nextState)
	nextStep := ts.New(ts.Mid, reward, m.discount, nextState,
		m.lastStep.Number+1)
	m.End(&nextStep)

	m.lastStep = nextStep
	return nextStep, nextStep.Last(), nil
}

// nextState computes the state after applying force in the given
// direction (-1, 0, 1)
func (m *MountainCar) nextState(state *mat.VecDense,
	force float64) *mat.VecDense {
	position, velocity := state.AtVec(0), state.AtVec(1)

	velocity += force*Power - Gravity*math.Cos(3*position)
	velocity = floatutils.Clip(velocity, m.speedBounds.Min, m.speedBounds.Max)

	position += velocity
	position = floatutils.Clip(position, m.positionBounds.Min,
		m.positionBounds.Max)
	if position <= m.positionBounds.Min && velocity < 0 {
		velocity = 0
	}

	return mat.NewVecDense(ObservationDims, []float64{position, velocity})
}

// validateState ensures the position and speed of a state are within
// the environmental limits
func (m *MountainCar) validateState(s *mat.VecDense) error {
	if s.Len() != ObservationDims {
		return fmt.Errorf("state should have %v features", ObservationDims)
	}

	position := s.AtVec(0)
	if position < m.positionBounds.Min || position > m.positionBounds.Max {
		return fmt.Errorf("illegal position %v ∉ [%v, %v]", position,
			m.positionBounds.Min, m.positionBounds.Max)
	}

	speed := s.AtVec(1)
	if speed < m.speedBounds.Min || speed > m.speedBounds.Max {
		return fmt.Errorf("illegal speed %v ∉ [%v, %v]", speed,
			m.speedBounds.Min, m.speedBounds.Max)
	}
	return nil
}

func (m *MountainCar) String() string {
	state := m.lastStep.Observation
	if state == nil {
		return "Mountain Car  |  not started"
	}
	return fmt.Sprintf("Mountain Car  |  Position: %v  |  Speed: %v",
		state.AtVec(0), state.AtVec(1))
}
