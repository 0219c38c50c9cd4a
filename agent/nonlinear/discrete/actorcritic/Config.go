package actorcritic

import (
	"fmt"

	"github.com/samuelfneumann/goppo/network"
	"github.com/samuelfneumann/goppo/solver"
	G "gorgonia.org/gorgonia"
)

// Config describes the architecture and optimizer of a CategoricalMLP.
// The policy and value networks share the same hidden layer sizes and
// activation, but no weights.
type Config struct {
	Hidden     []int   `mapstructure:"hidden" yaml:"hidden"`
	Activation string  `mapstructure:"activation" yaml:"activation"`
	Bias       bool    `mapstructure:"bias" yaml:"bias"`
	Init       string  `mapstructure:"init" yaml:"init"`
	InitGain   float64 `mapstructure:"init_gain" yaml:"init_gain"`

	Solver solver.Config `mapstructure:"solver" yaml:"solver"`
}

// DefaultConfig returns a Config with two hidden layers of 64 tanh
// units, Glorot uniform initialization, and the Adam solver
func DefaultConfig() Config {
	return Config{
		Hidden:     []int{64, 64},
		Activation: "tanh",
		Bias:       true,
		Init:       network.GlorotU,
		InitGain:   1.0,
		Solver:     solver.DefaultConfig(),
	}
}

// Validate checks that the Config describes a valid model
func (c Config) Validate() error {
	for i, size := range c.Hidden {
		if size <= 0 {
			return fmt.Errorf("validate: hidden layer %v has size %v", i, size)
		}
	}
	if _, err := network.NewActivation(c.Activation); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if _, err := network.NewInitWFn(c.Init, c.InitGain); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	return nil
}

// layers returns the per-layer biases and activations of the hidden
// layers, along with the weight initialization function
func (c Config) layers() ([]bool, []*network.Activation, G.InitWFn, error) {
	biases := make([]bool, len(c.Hidden))
	activations := make([]*network.Activation, len(c.Hidden))
	for i := range c.Hidden {
		act, err := network.NewActivation(c.Activation)
		if err != nil {
			return nil, nil, nil, err
		}
		biases[i] = c.Bias
		activations[i] = act
	}

	init, err := network.NewInitWFn(c.Init, c.InitGain)
	if err != nil {
		return nil, nil, nil, err
	}
	return biases, activations, init, nil
}
