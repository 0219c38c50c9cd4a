package environment

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	ts "github.com/samuelfneumann/goppo/timestep"
)

// StepLimit ends episodes once they reach Steps timesteps
type StepLimit struct {
	Steps   int
	EndType ts.EndType
}

// End marks t as the last step of its episode with s.EndType if the
// episode has run for s.Steps steps
func (s StepLimit) End(t *ts.TimeStep) bool {
	if t.Number < s.Steps {
		return false
	}
	t.SetEnd(s.EndType)
	return true
}

// Bound constrains a single observation feature to an interval
type Bound struct {
	Feature  int
	Interval r1.Interval
}

// Contains reports whether the feature of obs lies inside the bound
func (b Bound) Contains(obs mat.Vector) bool {
	x := obs.AtVec(b.Feature)
	return x >= b.Interval.Min && x <= b.Interval.Max
}

// IntervalLimit ends episodes as soon as any bounded feature of the
// observation leaves its interval
type IntervalLimit struct {
	Bounds  []Bound
	EndType ts.EndType
}

// End marks t as the last step of its episode with i.EndType if its
// observation is out of bounds
func (i IntervalLimit) End(t *ts.TimeStep) bool {
	for _, b := range i.Bounds {
		if !b.Contains(t.Observation) {
			t.SetEnd(i.EndType)
			return true
		}
	}
	return false
}

// AnyOf ends an episode when the first of its Enders does. Enders are
// consulted in order, so earlier ones decide the end type.
type AnyOf []Ender

// End implements the Ender interface
func (a AnyOf) End(t *ts.TimeStep) bool {
	for _, e := range a {
		if e.End(t) {
			return true
		}
	}
	return false
}
