// Package ppo implements Proximal Policy Optimization with a clipped
// surrogate objective, https://arxiv.org/abs/1707.06347.
//
// A Trainer repeats a cycle of collecting a fixed-length rollout from
// a batch of environments, estimating advantages with GAE(λ), and
// optimizing the clipped objective over several epochs of shuffled
// minibatches of the rollout.
package ppo

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samuelfneumann/goppo/agent"
	"github.com/samuelfneumann/goppo/buffer/rollout"
	"github.com/samuelfneumann/goppo/environment/vector"
	"github.com/samuelfneumann/goppo/experiment/checkpointer"
	"github.com/samuelfneumann/goppo/experiment/metrics"
	"github.com/samuelfneumann/goppo/experiment/tracker"
	"github.com/samuelfneumann/goppo/solver/schedule"
	"gonum.org/v1/gonum/mat"
)

// Trainer trains an actor-critic model with PPO
type Trainer struct {
	model agent.ActorCritic
	envs  *vector.Batch
	cfg   Config

	buffer *rollout.Buffer
	obs    *mat.Dense // current observations, nil before the first Reset
	seed   uint64

	// Episodes completed during the current rollout
	episodes []vector.Episode

	logger       zerolog.Logger
	tracker      tracker.Tracker
	checkpointer checkpointer.Checkpointer
	schedule     schedule.Schedule
	registry     *metrics.Registry
	callback     func(Stats)

	evalEnvs     *vector.Batch
	evalEpisodes int
	lastEval     metrics.Aggregate
	evaluated    bool

	update  int
	stats   Stats
	stopped uint32
}

// Option configures a Trainer
type Option func(*Trainer)

// WithLogger sets the logger of the Trainer
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Trainer) {
		t.logger = logger.With().Str("component", "ppo").Logger()
	}
}

// WithTracker sets the Tracker to which the statistics of each cycle
// are logged
func WithTracker(tr tracker.Tracker) Option {
	return func(t *Trainer) {
		t.tracker = tr
	}
}

// WithCheckpointer sets the Checkpointer called every save_frequency
// updates
func WithCheckpointer(c checkpointer.Checkpointer) Option {
	return func(t *Trainer) {
		t.checkpointer = c
	}
}

// WithEvaluation sets the environments and number of episodes used to
// evaluate the model every eval_frequency updates. If episodes < 1,
// eval_episodes from the Config is used.
func WithEvaluation(envs *vector.Batch, episodes int) Option {
	return func(t *Trainer) {
		t.evalEnvs = envs
		t.evalEpisodes = episodes
	}
}

// WithSchedule sets the learning rate schedule used when
// use_lr_schedule is set. The schedule is queried with the number of
// completed updates after each cycle. By default, the learning rate
// decays linearly to 10% of its initial value over 1000 updates.
func WithSchedule(s schedule.Schedule) Option {
	return func(t *Trainer) {
		t.schedule = s
	}
}

// WithSeed seeds the shuffling of minibatches
func WithSeed(seed uint64) Option {
	return func(t *Trainer) {
		t.seed = seed
	}
}

// WithMetrics sets the custom metrics computed on evaluation episodes
func WithMetrics(r *metrics.Registry) Option {
	return func(t *Trainer) {
		t.registry = r
	}
}

// WithCallback registers a function called with the Stats of each
// completed cycle
func WithCallback(f func(Stats)) Option {
	return func(t *Trainer) {
		t.callback = f
	}
}

// New returns a new Trainer of model on envs. The configuration is
// validated before any environment is stepped.
func New(model agent.ActorCritic, envs *vector.Batch, cfg Config,
	opts ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "new")
	}
	if model == nil || envs == nil {
		return nil, fmt.Errorf("new: model and environments must be non-nil")
	}
	if envs.Len() != cfg.NumEnvs {
		return nil, errors.Wrapf(ErrConfig, "new: num_envs is %v but the "+
			"environment batch has %v environments", cfg.NumEnvs, envs.Len())
	}

	t := &Trainer{
		model:  model,
		envs:   envs,
		cfg:    cfg,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if cfg.EvalFrequency > 0 {
		if t.evalEnvs == nil {
			return nil, errors.Wrapf(ErrConfig, "new: eval_frequency is %v "+
				"but no evaluation environments were given", cfg.EvalFrequency)
		}
		if t.evalEnvs.ObservationDim() != envs.ObservationDim() ||
			t.evalEnvs.ActionDim() != envs.ActionDim() {
			return nil, fmt.Errorf("new: evaluation environments have "+
				"(%v, %v) observation and action dims, expected (%v, %v)",
				t.evalEnvs.ObservationDim(), t.evalEnvs.ActionDim(),
				envs.ObservationDim(), envs.ActionDim())
		}
	}
	if t.evalEpisodes < 1 {
		t.evalEpisodes = cfg.EvalEpisodes
	}
	if t.schedule == nil {
		t.schedule = schedule.Decay{Initial: cfg.LearningRate, Floor: 0.1,
			Total: 1000}
	}

	buffer, err := rollout.New(cfg.RolloutSteps, cfg.NumEnvs, cfg.Gamma,
		cfg.GAELambda, rollout.WithNormalizedAdvantages(cfg.NormalizeAdvantages),
		rollout.WithSeed(t.seed))
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}
	t.buffer = buffer

	model.Train()
	model.SetLearningRate(cfg.LearningRate)
	return t, nil
}

// Config returns the configuration of the Trainer
func (t *Trainer) Config() Config { return t.cfg }

// Updates returns the number of completed training cycles
func (t *Trainer) Updates() int { return t.update }

// Stats returns the statistics of the last completed cycle
func (t *Trainer) Stats() Stats { return t.stats }

// LastEvaluation returns the result of the most recent evaluation and
// whether any evaluation has run
func (t *Trainer) LastEvaluation() (metrics.Aggregate, bool) {
	return t.lastEval, t.evaluated
}

// SetLearningRate sets the learning rate of the model
func (t *Trainer) SetLearningRate(lr float64) {
	t.model.SetLearningRate(lr)
}

// Stop signals Train to return after the current cycle. It is safe to
// call from any goroutine.
func (t *Trainer) Stop() {
	atomic.StoreUint32(&t.stopped, 1)
}

func (t *Trainer) isStopped() bool {
	return atomic.LoadUint32(&t.stopped) == 1
}

// Train runs updates training cycles. It returns early, after the
// current cycle, if ctx is done or Stop is called. A cancelled context
// is reported through the returned error.
func (t *Trainer) Train(ctx context.Context, updates int) error {
	for i := 0; i < updates; i++ {
		if err := ctx.Err(); err != nil {
			t.logger.Info().Int("update", t.update).Msg("training cancelled")
			return err
		}
		if t.isStopped() {
			t.logger.Info().Int("update", t.update).Msg("training stopped")
			return nil
		}

		if _, err := t.Update(); err != nil {
			return errors.Wrapf(err, "train: update %v", t.update+1)
		}
	}
	return nil
}

// Update runs a single training cycle: collecting a rollout, optimizing
// the PPO objective, and stepping the learning rate schedule. The
// Tracker, evaluation, and checkpoint hooks are then run. A failed
// evaluation or checkpoint is logged and does not fail the update.
func (t *Trainer) Update() (Stats, error) {
	if err := t.CollectExperience(); err != nil {
		return Stats{}, errors.Wrap(err, "update")
	}

	stats, err := t.rolloutStats()
	if err != nil {
		return Stats{}, errors.Wrap(err, "update")
	}

	if err := t.updatePolicy(&stats); err != nil {
		return Stats{}, errors.Wrap(err, "update")
	}

	t.update++
	stats.Update = t.update

	if t.cfg.UseLRSchedule {
		t.model.SetLearningRate(t.schedule.At(t.update))
	}
	stats.LearningRate = t.model.LearningRate()

	if t.cfg.EvalFrequency > 0 && t.update%t.cfg.EvalFrequency == 0 {
		agg, err := t.Evaluate(t.evalEpisodes)
		if err != nil {
			t.logger.Error().Err(err).Int("update", t.update).
				Msg("could not evaluate")
		} else {
			stats.Evaluated = true
			stats.EvalReward = agg.MeanReward
			stats.EvalCustom = agg.Custom
		}
	}

	t.stats = stats
	t.report()

	if t.checkpointer != nil && t.cfg.SaveFrequency > 0 &&
		t.update%t.cfg.SaveFrequency == 0 {
		if err := t.checkpointer.Checkpoint(t.update, t.metric()); err != nil {
			t.logger.Error().Err(err).Int("update", t.update).
				Msg("could not checkpoint")
		}
	}

	if t.callback != nil {
		t.callback(stats)
	}
	return stats, nil
}

// metric returns the performance measure attached to checkpoints
func (t *Trainer) metric() float64 {
	if t.evaluated {
		return t.lastEval.MeanReward
	}
	if t.stats.EpisodesCompleted > 0 {
		return t.stats.MeanEpisodeReward
	}
	return math.NaN()
}

// report logs the Stats of the last cycle
func (t *Trainer) report() {
	t.logger.Info().EmbedObject(t.stats).Msg("update complete")

	if t.tracker == nil {
		return
	}
	for name, value := range t.stats.scalars() {
		if err := t.tracker.LogScalar(name, value, t.update); err != nil {
			t.logger.Error().Err(err).Str("scalar", name).
				Msg("could not log scalar")
		}
	}
}
