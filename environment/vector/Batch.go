// Package vector steps a fixed batch of environments in lockstep
package vector

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	env "github.com/samuelfneumann/goppo/environment"
	ts "github.com/samuelfneumann/goppo/timestep"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ErrNotReset is returned when stepping an environment whose episode
// ended without it being reset
var ErrNotReset = errors.New("environment episode ended without a reset")

// Episode holds the totals of a completed episode
type Episode struct {
	Env    int
	Reward float64
	Length int
	End    ts.EndType
}

// Step holds the result of stepping each environment in a Batch once,
// one row or element per environment
type Step struct {
	Observations *mat.Dense
	Rewards      []float64
	Dones        []bool

	// Episodes holds the totals of each episode that ended on this step
	Episodes []Episode
}

// state tracks the running totals of the current episode of an
// environment
type state struct {
	length int
	reward float64
	done   bool
}

// Batch is a fixed set of environments with the same observation and
// action dimensions
type Batch struct {
	envs     []env.Environment
	states   []state
	obsDim   int
	actDim   int
	parallel bool
	started  bool
	logger   zerolog.Logger
}

// Option configures a Batch
type Option func(*Batch)

// WithParallel steps each environment in its own goroutine
func WithParallel(parallel bool) Option {
	return func(b *Batch) {
		b.parallel = parallel
	}
}

// WithLogger sets the logger of the Batch
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Batch) {
		b.logger = logger.With().Str("component", "vector").Logger()
	}
}

// New returns a new Batch of envs
func New(envs []env.Environment, opts ...Option) (*Batch, error) {
	if len(envs) == 0 {
		return nil, fmt.Errorf("new: cannot create an empty batch")
	}

	obsDim := envs[0].ObservationSpec().Dims
	actDim := envs[0].ActionSpec().Dims
	for i, e := range envs[1:] {
		if e.ObservationSpec().Dims != obsDim || e.ActionSpec().Dims != actDim {
			return nil, fmt.Errorf("new: environment %v has (%v, %v) "+
				"observation and action dims, expected (%v, %v)", i+1,
				e.ObservationSpec().Dims, e.ActionSpec().Dims, obsDim, actDim)
		}
	}

	b := &Batch{
		envs:   envs,
		states: make([]state, len(envs)),
		obsDim: obsDim,
		actDim: actDim,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Len returns the number of environments in the batch
func (b *Batch) Len() int { return len(b.envs) }

// Env returns environment i of the batch
func (b *Batch) Env(i int) env.Environment { return b.envs[i] }

// ObservationDim returns the dimension of observations
func (b *Batch) ObservationDim() int { return b.obsDim }

// ActionDim returns the dimension of actions
func (b *Batch) ActionDim() int { return b.actDim }

// Reset starts a new episode in every environment and returns the
// starting observations, one row per environment
func (b *Batch) Reset() (*mat.Dense, error) {
	obs := mat.NewDense(b.Len(), b.obsDim, nil)
	err := b.each(func(i int) error {
		start, err := b.reset(i)
		if err != nil {
			return err
		}
		obs.SetRow(i, start.RawVector().Data)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "reset")
	}

	b.started = true
	b.logger.Debug().Int("envs", b.Len()).Msg("reset environments")
	return obs, nil
}

// ResetEnv starts a new episode in environment i and returns its
// starting observation
func (b *Batch) ResetEnv(i int) (*mat.VecDense, error) {
	if i < 0 || i >= b.Len() {
		return nil, fmt.Errorf("resetEnv: index %v out of range [0, %v)", i,
			b.Len())
	}
	obs, err := b.reset(i)
	if err != nil {
		return nil, errors.Wrap(err, "resetEnv")
	}
	return obs, nil
}

// Step takes one action in every environment, one row of actions per
// environment. Environments whose episodes ended on a previous Step
// must be reset with ResetEnv first.
func (b *Batch) Step(actions *mat.Dense) (Step, error) {
	if !b.started {
		return Step{}, fmt.Errorf("step: reset must be called before step")
	}
	if r, c := actions.Dims(); r != b.Len() || c != b.actDim {
		return Step{}, fmt.Errorf("step: expected (%v, %v) actions, have "+
			"(%v, %v)", b.Len(), b.actDim, r, c)
	}
	for i, s := range b.states {
		if s.done {
			return Step{}, errors.Wrapf(ErrNotReset, "step: environment %v", i)
		}
	}

	step := Step{
		Observations: mat.NewDense(b.Len(), b.obsDim, nil),
		Rewards:      make([]float64, b.Len()),
		Dones:        make([]bool, b.Len()),
	}
	ends := make([]ts.EndType, b.Len())

	err := b.each(func(i int) error {
		action := mat.NewVecDense(b.actDim, mat.Row(nil, i, actions))
		t, last, err := b.envs[i].Step(action)
		if err != nil {
			return errors.Wrapf(err, "environment %v", i)
		}

		step.Observations.SetRow(i, t.Observation.RawVector().Data)
		step.Rewards[i] = t.Reward
		step.Dones[i] = last
		ends[i] = t.EndType()

		b.states[i].length++
		b.states[i].reward += t.Reward
		b.states[i].done = last
		return nil
	})
	if err != nil {
		return Step{}, errors.Wrap(err, "step")
	}

	for i, done := range step.Dones {
		if !done {
			continue
		}
		episode := Episode{
			Env:    i,
			Reward: b.states[i].reward,
			Length: b.states[i].length,
			End:    ends[i],
		}
		step.Episodes = append(step.Episodes, episode)
		b.logger.Debug().
			Int("env", i).
			Float64("reward", episode.Reward).
			Int("length", episode.Length).
			Str("end", episode.End.String()).
			Msg("episode completed")
	}
	return step, nil
}

// reset resets environment i and its episode totals
func (b *Batch) reset(i int) (*mat.VecDense, error) {
	t, err := b.envs[i].Reset()
	if err != nil {
		return nil, errors.Wrapf(err, "environment %v", i)
	}
	if t.Observation.Len() != b.obsDim {
		return nil, fmt.Errorf("environment %v returned %v features, "+
			"expected %v", i, t.Observation.Len(), b.obsDim)
	}
	b.states[i] = state{}
	return t.Observation, nil
}

// each calls f once per environment, concurrently if the Batch is
// parallel. Each call must only write to the rows of its environment.
func (b *Batch) each(f func(i int) error) error {
	if !b.parallel {
		for i := range b.envs {
			if err := f(i); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	for i := range b.envs {
		i := i
		g.Go(func() error { return f(i) })
	}
	return g.Wait()
}
