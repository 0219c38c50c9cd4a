// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType is the position of a TimeStep within its episode
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

var stepTypes = [...]string{First: "First", Mid: "Mid", Last: "Last"}

func (s StepType) String() string {
	if s < First || s > Last {
		return fmt.Sprintf("StepType(%d)", int(s))
	}
	return stepTypes[s]
}

// EndType describes why an episode ended. It is only meaningful on
// the last TimeStep of an episode.
type EndType int

const (
	// Running is the EndType of every step that does not end an episode
	Running EndType = iota

	// Timeout means the episode was cut off without success or failure
	Timeout

	// Success means the episode ended with the task accomplished
	Success

	// Failure means the episode ended with the task failed
	Failure
)

var endTypes = [...]string{
	Running: "Running",
	Timeout: "Timeout",
	Success: "Success",
	Failure: "Failure",
}

func (e EndType) String() string {
	if e < Running || e > Failure {
		return fmt.Sprintf("EndType(%d)", int(e))
	}
	return endTypes[e]
}

// TimeStep is the outcome of a single environment transition. The
// Observation is the state reached by the transition and Number counts
// the steps taken so far in the episode.
type TimeStep struct {
	StepType    StepType
	Reward      float64
	Discount    float64
	Observation *mat.VecDense
	Number      int
	end         EndType
}

// New constructs a new TimeStep
func New(t StepType, r, d float64, o *mat.VecDense, n int) TimeStep {
	return TimeStep{StepType: t, Reward: r, Discount: d, Observation: o,
		Number: n}
}

// Last returns whether the TimeStep ends its episode
func (t *TimeStep) Last() bool {
	return t.StepType == Last
}

// SetEnd makes t the last step of its episode, ended for reason e
func (t *TimeStep) SetEnd(e EndType) {
	t.StepType = Last
	t.end = e
}

// EndType returns how the episode ended, or Running if the TimeStep
// is not the last of its episode
func (t *TimeStep) EndType() EndType {
	if !t.Last() {
		return Running
	}
	return t.end
}

func (t TimeStep) String() string {
	return fmt.Sprintf("TimeStep{%v #%d reward=%.2f discount=%.2f end=%v}",
		t.StepType, t.Number, t.Reward, t.Discount, t.EndType())
}
