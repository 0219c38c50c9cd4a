// Package experiment assembles and runs PPO training experiments from
// a configuration file
package experiment

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samuelfneumann/goppo/agent/nonlinear/discrete/actorcritic"
	"github.com/samuelfneumann/goppo/agent/ppo"
	"github.com/samuelfneumann/goppo/experiment/checkpointer"
	"github.com/samuelfneumann/goppo/experiment/metrics"
	"github.com/samuelfneumann/goppo/experiment/tracker"
	"github.com/samuelfneumann/goppo/solver/schedule"
	"github.com/samuelfneumann/goppo/utils/progressbar"
	"gonum.org/v1/gonum/stat"
)

// Files written to the directory of each run
const (
	ConfigFile    = "config.yaml"
	ScalarsFile   = "scalars.gob"
	CheckpointDir = "checkpoints"
)

// Experiment is a single PPO training run. Each run writes its
// resolved configuration, checkpoints, and scalars to its own
// directory.
type Experiment struct {
	cfg    Config
	id     uuid.UUID
	dir    string
	logger zerolog.Logger

	model   *actorcritic.CategoricalMLP
	trainer *ppo.Trainer
	scalars *tracker.Scalars
	manager *checkpointer.Manager
	bar     *progressbar.ProgressBar
}

type options struct {
	trackers []tracker.Tracker
	progress io.Writer
}

// Option configures an Experiment
type Option func(*options)

// WithTracker adds a Tracker to which the scalars of the run are logged
func WithTracker(t tracker.Tracker) Option {
	return func(o *options) {
		o.trackers = append(o.trackers, t)
	}
}

// WithProgress draws a progress bar of the run's updates to w
func WithProgress(w io.Writer) Option {
	return func(o *options) {
		o.progress = w
	}
}

// New assembles the environments, model, and trainer described by cfg
func New(cfg Config, logger zerolog.Logger, opts ...Option) (*Experiment,
	error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "new")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.New()
	dir := filepath.Join(cfg.Run.OutDir, fmt.Sprintf("%v_%v", cfg.Run.Name,
		id))
	e := &Experiment{
		cfg:     cfg,
		id:      id,
		dir:     dir,
		logger:  logger.With().Str("run", id.String()).Logger(),
		scalars: tracker.NewScalars(),
	}
	if err := cfg.Save(filepath.Join(e.dir, ConfigFile)); err != nil {
		return nil, errors.Wrap(err, "new")
	}

	envs, err := cfg.Env.Batch(cfg.PPO.NumEnvs, cfg.Run.Seed, e.logger)
	if err != nil {
		return nil, errors.Wrap(err, "new: training environments")
	}
	actions, err := envs.Env(0).ActionSpec().Actions()
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}

	e.model, err = actorcritic.New(envs.ObservationDim(), actions,
		cfg.PPO.MiniBatchSize, cfg.PPO.NumEnvs, cfg.Model,
		cfg.PPO.LearningRate, cfg.Run.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}

	managerOpts := []checkpointer.ManagerOption{
		checkpointer.WithMaxToKeep(cfg.Checkpoint.MaxToKeep),
		checkpointer.WithManagerLogger(e.logger),
	}
	if cfg.Checkpoint.LowerIsBetter {
		managerOpts = append(managerOpts, checkpointer.WithLowerIsBetter())
	}
	e.manager, err = checkpointer.NewManager(
		filepath.Join(e.dir, CheckpointDir), e.model, managerOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}

	trackers := append([]tracker.Tracker{
		e.scalars,
		tracker.NewLog(e.logger, zerolog.DebugLevel),
	}, o.trackers...)

	trainerOpts := []ppo.Option{
		ppo.WithLogger(e.logger),
		ppo.WithTracker(tracker.Multi(trackers...)),
		ppo.WithCheckpointer(e.manager),
		ppo.WithSeed(cfg.Run.Seed),
		ppo.WithMetrics(evalMetrics()),
	}
	if cfg.PPO.UseLRSchedule {
		sched, err := schedule.New(cfg.Schedule, cfg.PPO.LearningRate)
		if err != nil {
			return nil, errors.Wrap(err, "new")
		}
		trainerOpts = append(trainerOpts, ppo.WithSchedule(sched))
	}
	if cfg.Env.EvalEnvs > 0 {
		evalEnvs, err := cfg.Env.Batch(cfg.Env.EvalEnvs,
			cfg.Run.Seed+uint64(cfg.PPO.NumEnvs), e.logger)
		if err != nil {
			return nil, errors.Wrap(err, "new: evaluation environments")
		}
		trainerOpts = append(trainerOpts, ppo.WithEvaluation(evalEnvs, 0))
	}
	if o.progress != nil {
		e.bar = progressbar.New(o.progress, 40, cfg.Run.Updates)
		trainerOpts = append(trainerOpts, ppo.WithCallback(e.progress))
	}

	e.trainer, err = ppo.New(e.model, envs, cfg.PPO, trainerOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}
	return e, nil
}

// evalMetrics returns the custom metrics computed on evaluation
// episodes
func evalMetrics() *metrics.Registry {
	r := metrics.NewRegistry()
	_ = r.Register("length_std", func(eps []metrics.Episode) float64 {
		if len(eps) < 2 {
			return 0
		}
		lengths := make([]float64, len(eps))
		for i, ep := range eps {
			lengths[i] = float64(ep.Length)
		}
		return stat.StdDev(lengths, nil)
	})
	return r
}

func (e *Experiment) progress(s ppo.Stats) {
	e.bar.Increment(fmt.Sprintf("episode reward: %.2f  loss: %.4f",
		s.MeanEpisodeReward, s.TotalLoss))
}

// ID returns the identifier of the run
func (e *Experiment) ID() uuid.UUID { return e.id }

// Dir returns the output directory of the run
func (e *Experiment) Dir() string { return e.dir }

// Trainer returns the PPO trainer of the run
func (e *Experiment) Trainer() *ppo.Trainer { return e.trainer }

// Scalars returns the scalars recorded during the run
func (e *Experiment) Scalars() *tracker.Scalars { return e.scalars }

// Checkpoints returns the checkpoint Manager of the run
func (e *Experiment) Checkpoints() *checkpointer.Manager { return e.manager }

// Run trains for the configured number of updates, or until ctx is
// cancelled, and then saves the recorded scalars. Cancellation stops
// training after the current update and is not an error.
func (e *Experiment) Run(ctx context.Context) error {
	e.logger.Info().
		Str("dir", e.dir).
		Int("updates", e.cfg.Run.Updates).
		Int("envs", e.cfg.PPO.NumEnvs).
		Msg("starting run")

	err := e.trainer.Train(ctx, e.cfg.Run.Updates)
	if e.bar != nil {
		e.bar.Close()
	}
	if errors.Is(err, context.Canceled) {
		e.logger.Warn().Int("update", e.trainer.Updates()).
			Msg("run interrupted")
		err = nil
	}

	saveErr := e.scalars.Save(filepath.Join(e.dir, ScalarsFile))
	if saveErr != nil {
		e.logger.Error().Err(saveErr).Msg("could not save scalars")
		if err == nil {
			err = saveErr
		}
	}
	if err != nil {
		return errors.Wrap(err, "run")
	}

	if best, ok := e.manager.Best(); ok {
		e.logger.Info().
			Int("update", best.Update).
			Float64("metric", best.Metric).
			Str("path", best.Path).
			Msg("best checkpoint")
	}
	e.logger.Info().Int("updates", e.trainer.Updates()).Msg("run complete")
	return nil
}
