// Package envconfig provides configuration structs for creating
// batches of environments with default physical parameters and tasks.
// Environment configurations in this package are YAML serializable.
package envconfig

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	env "github.com/samuelfneumann/goppo/environment"
	"github.com/samuelfneumann/goppo/environment/classiccontrol/cartpole"
	"github.com/samuelfneumann/goppo/environment/classiccontrol/mountaincar"
	"github.com/samuelfneumann/goppo/environment/vector"
)

// EnvName stores the name of environments that can be configured with
// this package
type EnvName string

// Environments available for configuration
const (
	Cartpole    EnvName = "cartpole"
	MountainCar EnvName = "mountaincar"
)

// TaskName stores the tasks that can be configured with this package.
// Not all tasks can be used with all environments:
//
//	Environment			Task
//	cartpole			balance
//	mountaincar			goal
type TaskName string

// Tasks available for configuration
const (
	Balance TaskName = "balance"
	Goal    TaskName = "goal"
)

// Config describes a specific environment and task
type Config struct {
	Environment  EnvName  `mapstructure:"environment" yaml:"environment"`
	Task         TaskName `mapstructure:"task" yaml:"task"`
	EpisodeSteps int      `mapstructure:"episode_steps" yaml:"episode_steps"`
	Discount     float64  `mapstructure:"discount" yaml:"discount"`

	// FailAngle is the cartpole balance angle, in degrees
	FailAngle float64 `mapstructure:"fail_angle" yaml:"fail_angle"`

	// TwoActions removes the do-nothing action of cartpole
	TwoActions bool `mapstructure:"two_actions" yaml:"two_actions"`

	// EvalEnvs is the number of environments created for evaluation
	EvalEnvs int  `mapstructure:"eval_envs" yaml:"eval_envs"`
	Parallel bool `mapstructure:"parallel" yaml:"parallel"`
}

// DefaultConfig returns the configuration of the cartpole balance task
// with 500 step episodes
func DefaultConfig() Config {
	return Config{
		Environment:  Cartpole,
		Task:         Balance,
		EpisodeSteps: 500,
		Discount:     0.99,
		FailAngle:    12,
		TwoActions:   true,
		EvalEnvs:     1,
	}
}

// Validate checks that the Config describes an available environment
// and task
func (c Config) Validate() error {
	name, task := c.names()
	switch {
	case name == Cartpole && task != Balance,
		name == MountainCar && task != Goal:
		return fmt.Errorf("validate: environment %v has no task %v", name,
			task)
	case name != Cartpole && name != MountainCar:
		return fmt.Errorf("validate: no such environment %q", c.Environment)
	case c.EpisodeSteps < 1:
		return fmt.Errorf("validate: episode_steps must be positive, have %v",
			c.EpisodeSteps)
	case c.Discount < 0 || c.Discount > 1:
		return fmt.Errorf("validate: discount must be in [0, 1], have %v",
			c.Discount)
	case name == Cartpole && (c.FailAngle <= 0 || c.FailAngle >= 180):
		return fmt.Errorf("validate: fail_angle must be in (0, 180), have %v",
			c.FailAngle)
	case c.EvalEnvs < 0:
		return fmt.Errorf("validate: eval_envs must be non-negative, have %v",
			c.EvalEnvs)
	}
	return nil
}

func (c Config) names() (EnvName, TaskName) {
	return EnvName(strings.ToLower(string(c.Environment))),
		TaskName(strings.ToLower(string(c.Task)))
}

// Create returns the environment described by the Config, with seed
// determining its starting states
func (c Config) Create(seed uint64) (env.Environment, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "create")
	}

	name, _ := c.names()
	switch name {
	case Cartpole:
		return CreateCartpole(c.EpisodeSteps, c.FailAngle, c.TwoActions,
			c.Discount, seed)
	case MountainCar:
		return CreateMountainCar(c.EpisodeSteps, c.Discount, seed)
	}
	return nil, fmt.Errorf("create: no such environment %v", name)
}

// Batch returns a batch of n environments described by the Config.
// Environment i starts from states determined by seed+i.
func (c Config) Batch(n int, seed uint64,
	logger zerolog.Logger) (*vector.Batch, error) {
	envs := make([]env.Environment, n)
	for i := range envs {
		e, err := c.Create(seed + uint64(i))
		if err != nil {
			return nil, errors.Wrap(err, "batch")
		}
		envs[i] = e
	}

	b, err := vector.New(envs, vector.WithParallel(c.Parallel),
		vector.WithLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, "batch")
	}
	return b, nil
}

// CreateCartpole creates the Cartpole environment with default physical
// parameters and the balance task. The fail angle is in degrees.
func CreateCartpole(episodeSteps int, failAngle float64, twoActions bool,
	discount float64, seed uint64) (env.Environment, error) {
	task, err := cartpole.NewBalance(cartpole.NewStarter(seed), episodeSteps,
		failAngle*math.Pi/180)
	if err != nil {
		return nil, errors.Wrap(err, "createCartpole")
	}

	var opts []cartpole.Option
	if twoActions {
		opts = append(opts, cartpole.TwoActions())
	}
	return cartpole.New(task, discount, opts...), nil
}

// CreateMountainCar creates the Mountain Car environment with default
// physical parameters and the goal task
func CreateMountainCar(episodeSteps int, discount float64,
	seed uint64) (env.Environment, error) {
	task, err := mountaincar.NewGoal(mountaincar.NewStarter(seed),
		episodeSteps, mountaincar.GoalPosition)
	if err != nil {
		return nil, errors.Wrap(err, "createMountainCar")
	}
	return mountaincar.New(task, discount), nil
}
