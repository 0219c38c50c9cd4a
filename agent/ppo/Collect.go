package ppo

import (
	"github.com/pkg/errors"
	"github.com/samuelfneumann/goppo/experiment/metrics"
	"gonum.org/v1/gonum/stat"
)

// CollectExperience fills the rollout buffer with rollout_steps
// lockstep transitions of every environment and finalizes it. An
// environment whose episode ends is reset immediately: the transition
// keeps the reward and done of the last step, while the next
// observation of the environment is the first of the new episode.
//
// If collection fails, every environment is reset by the next call.
func (t *Trainer) CollectExperience() (err error) {
	defer func() {
		if err != nil {
			t.obs = nil
		}
	}()
	t.buffer.Reset()
	t.episodes = t.episodes[:0]

	if t.obs == nil {
		obs, err := t.envs.Reset()
		if err != nil {
			return errors.Wrap(err, "collectExperience")
		}
		t.obs = obs
	}

	for step := 0; step < t.cfg.RolloutSteps; step++ {
		inf, err := t.model.Infer(t.obs)
		if err != nil {
			return errors.Wrapf(err, "collectExperience: step %v", step)
		}

		next, err := t.envs.Step(inf.Actions)
		if err != nil {
			return errors.Wrapf(err, "collectExperience: step %v", step)
		}

		err = t.buffer.Add(t.obs, inf.Actions, inf.LogProbs, inf.Values,
			next.Rewards, next.Dones)
		if err != nil {
			return errors.Wrapf(err, "collectExperience: step %v", step)
		}

		for i, done := range next.Dones {
			if !done {
				continue
			}
			start, err := t.envs.ResetEnv(i)
			if err != nil {
				return errors.Wrapf(err, "collectExperience: step %v", step)
			}
			next.Observations.SetRow(i, start.RawVector().Data)
		}
		t.episodes = append(t.episodes, next.Episodes...)
		t.obs = next.Observations
	}

	// Bootstrap the rollout with the values of the final observations
	inf, err := t.model.Infer(t.obs)
	if err != nil {
		return errors.Wrap(err, "collectExperience: bootstrap")
	}
	if err := t.buffer.FinishRollout(inf.Values); err != nil {
		return errors.Wrap(err, "collectExperience")
	}

	t.logger.Debug().
		Int("steps", t.cfg.RolloutSteps).
		Int("envs", t.cfg.NumEnvs).
		Int("episodes", len(t.episodes)).
		Msg("collected rollout")
	return nil
}

// rolloutStats returns the Stats of the finalized rollout
func (t *Trainer) rolloutStats() (Stats, error) {
	b, err := t.buffer.Stats()
	if err != nil {
		return Stats{}, errors.Wrap(err, "rolloutStats")
	}
	values, err := t.buffer.Values()
	if err != nil {
		return Stats{}, errors.Wrap(err, "rolloutStats")
	}
	returns, err := t.buffer.Returns()
	if err != nil {
		return Stats{}, errors.Wrap(err, "rolloutStats")
	}

	stats := Stats{
		MeanStepReward:    b.MeanReward,
		EpisodesCompleted: len(t.episodes),
		ExplainedVariance: metrics.ExplainedVariance(values, returns),
	}
	if len(t.episodes) > 0 {
		rewards := make([]float64, len(t.episodes))
		lengths := make([]float64, len(t.episodes))
		for i, ep := range t.episodes {
			rewards[i] = ep.Reward
			lengths[i] = float64(ep.Length)
		}
		stats.MeanEpisodeReward = stat.Mean(rewards, nil)
		stats.MeanEpisodeLength = stat.Mean(lengths, nil)
	}
	return stats, nil
}
