// Package solver wraps Gorgonia Solvers so that they can be described
// by configuration files and have their learning rates adjusted during
// training.
package solver

import (
	"fmt"
	"math"
	"strings"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "adam"
	RMSProp Type = "rmsprop"
	Vanilla Type = "vanilla"
)

// Config describes a Gorgonia Solver. Fields which are not used by
// the solver Type are ignored.
type Config struct {
	Type    Type    `mapstructure:"type" yaml:"type"`
	Epsilon float64 `mapstructure:"epsilon" yaml:"epsilon"` // Smoothing factor
	Beta1   float64 `mapstructure:"beta1" yaml:"beta1"`
	Beta2   float64 `mapstructure:"beta2" yaml:"beta2"`
	Rho     float64 `mapstructure:"rho" yaml:"rho"`
	Clip    float64 `mapstructure:"clip" yaml:"clip"` // <= 0 if no clipping
}

// DefaultConfig returns the configuration of an Adam solver with
// default hyperparameters
func DefaultConfig() Config {
	return Config{
		Type:    Adam,
		Epsilon: 1e-8,
		Beta1:   0.9,
		Beta2:   0.999,
		Rho:     0.999,
	}
}

// Validate checks that the Config describes a valid solver
func (c Config) Validate() error {
	switch c.kind() {
	case Adam:
		if c.Beta1 < 0 || c.Beta1 >= 1 || c.Beta2 < 0 || c.Beta2 >= 1 {
			return fmt.Errorf("validate: adam betas must be in [0, 1), "+
				"have (%v, %v)", c.Beta1, c.Beta2)
		}
	case RMSProp:
		if c.Rho <= 0 || c.Rho >= 1 {
			return fmt.Errorf("validate: rmsprop ρ must be in (0, 1), "+
				"have %v", c.Rho)
		}
	case Vanilla:
	default:
		return fmt.Errorf("validate: unknown solver type %q", c.Type)
	}

	if c.kind() != Vanilla && c.Epsilon <= 0 {
		return fmt.Errorf("validate: epsilon must be positive, have %v",
			c.Epsilon)
	}
	return nil
}

func (c Config) kind() Type {
	return Type(strings.ToLower(string(c.Type)))
}

// Solver wraps a Gorgonia Solver and tracks its learning rate
type Solver struct {
	G.Solver
	Type

	learningRate float64
}

// New returns a new Solver described by c with the given initial
// learning rate. Gradients are expected to already be averaged over
// the batch, so the solver uses a batch size of 1.
func New(c Config, learningRate float64) (*Solver, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if learningRate <= 0 {
		return nil, fmt.Errorf("new: learning rate must be positive, "+
			"have %v", learningRate)
	}

	var s G.Solver
	switch c.kind() {
	case Adam:
		s = newAdam(c, learningRate)
	case RMSProp:
		s = newRMSProp(c, learningRate)
	case Vanilla:
		s = newVanilla(c, learningRate)
	}

	return &Solver{Solver: s, Type: c.kind(), learningRate: learningRate}, nil
}

// SetLearningRate changes the learning rate of the Solver. Any state
// accumulated by the Solver, such as moment estimates, is kept.
func (s *Solver) SetLearningRate(lr float64) {
	G.WithLearnRate(lr)(s.Solver)
	s.learningRate = lr
}

// LearningRate returns the current learning rate of the Solver
func (s *Solver) LearningRate() float64 {
	return s.learningRate
}

// Step clips the global norm of the gradients of model to maxGradNorm,
// if maxGradNorm > 0, and then takes one step with the Solver. The
// gradient norm before clipping is returned.
func (s *Solver) Step(model []G.ValueGrad, maxGradNorm float64) (float64,
	error) {
	norm, err := ClipGradNorm(model, maxGradNorm)
	if err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		return norm, fmt.Errorf("step: gradient norm is not finite")
	}

	if err := s.Solver.Step(model); err != nil {
		return norm, fmt.Errorf("step: %v", err)
	}
	return norm, nil
}
