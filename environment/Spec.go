package environment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an acion, an observation, a discount, or a reward
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
	Reward
)

func (s SpecType) String() string {
	switch s {
	case Action:
		return "Action"
	case Observation:
		return "Observation"
	case Discount:
		return "Discount"
	default:
		return "Reward"
	}
}

// Cardinality determines the cardinality of a number (discrete or continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec implements an environment specification, which tells the type,
// shape, and bounds of an action, observation, discount, or reward in
// an environment
type Spec struct {
	Dims       int
	Type       SpecType
	LowerBound *mat.VecDense
	UpperBound *mat.VecDense
	Cardinality
}

// NewSpec constructs a new environment specification. The bounds must
// have length dims.
func NewSpec(dims int, t SpecType, lowerBound, upperBound *mat.VecDense,
	cardinality Cardinality) Spec {
	if lowerBound.Len() != dims || upperBound.Len() != dims {
		panic(fmt.Sprintf("newSpec: bounds should have %v dimensions", dims))
	}
	return Spec{dims, t, lowerBound, upperBound, cardinality}
}

// Actions returns the number of distinct actions described by a
// one-dimensional discrete action Spec
func (s Spec) Actions() (int, error) {
	if s.Cardinality != Discrete || s.Dims != 1 {
		return 0, fmt.Errorf("actions: spec is not a one-dimensional " +
			"discrete spec")
	}
	return int(s.UpperBound.AtVec(0)-s.LowerBound.AtVec(0)) + 1, nil
}
