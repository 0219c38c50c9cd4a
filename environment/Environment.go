// Package environment outlines the interfaces and structs needed to
// implement concrete environments that can be driven by a trainer
package environment

import (
	"gonum.org/v1/gonum/mat"

	ts "github.com/samuelfneumann/goppo/timestep"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when an episode should end. If so, End() adjusts
// the TimeStep so that it is the last of its episode.
type Ender interface {
	End(*ts.TimeStep) bool
}

// Task implements the reward scheme and episode termination for
// taking actions in some environment
type Task interface {
	Starter
	Ender
	GetReward(state, action, nextState *mat.VecDense) float64
}

// Environment implements a simulated environment. Environments are
// driven one episode at a time: Reset starts a new episode and Step
// advances the current one, reporting whether the episode ended.
type Environment interface {
	Reset() (ts.TimeStep, error)
	Step(action *mat.VecDense) (ts.TimeStep, bool, error)
	ObservationSpec() Spec
	ActionSpec() Spec
}
