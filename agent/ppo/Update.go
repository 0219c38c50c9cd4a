package ppo

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goppo/utils/floatutils"
)

// klStopFactor scales target_kl into the early stopping threshold
const klStopFactor = 1.5

// UpdatePolicy optimizes the PPO objective over ppo_epochs epochs of
// freshly shuffled minibatches of the finalized rollout and returns
// the mean total loss.
func (t *Trainer) UpdatePolicy() (float64, error) {
	var stats Stats
	if err := t.updatePolicy(&stats); err != nil {
		return 0, err
	}
	return stats.TotalLoss, nil
}

// updatePolicy runs the optimization epochs, recording the mean loss
// terms in stats. If use_kl_penalty is set, the remaining epochs are
// skipped once the mean KL divergence of an epoch exceeds 1.5 times
// target_kl.
func (t *Trainer) updatePolicy(stats *Stats) error {
	var total accumulator

	for epoch := 0; epoch < t.cfg.PPOEpochs; epoch++ {
		batches, err := t.buffer.Minibatches(t.cfg.MiniBatchSize, true)
		if err != nil {
			return errors.Wrapf(err, "updatePolicy: epoch %v", epoch)
		}

		var epochTerms accumulator
		for i, mb := range batches {
			eval, err := t.model.Forward(mb.Observations, mb.Actions)
			if err != nil {
				return errors.Wrapf(err, "updatePolicy: epoch %v minibatch %v",
					epoch, i)
			}

			loss, terms, err := computeLoss(eval, mb, t.cfg)
			if err != nil {
				return errors.Wrapf(err, "updatePolicy: epoch %v minibatch %v",
					epoch, i)
			}

			if err := t.model.Optimize(loss); err != nil {
				return errors.Wrapf(err, "updatePolicy: epoch %v minibatch %v",
					epoch, i)
			}
			epochTerms.add(terms)
			total.add(terms)
		}
		stats.EpochsRun = epoch + 1

		kl := epochTerms.mean().KL
		if t.cfg.UseKLPenalty && kl > klStopFactor*t.cfg.TargetKL {
			stats.EarlyStopped = true
			t.logger.Warn().
				Int("update", t.update+1).
				Int("epoch", epoch).
				Float64("kl", kl).
				Float64("target_kl", t.cfg.TargetKL).
				Msg("early stopping on kl divergence")
			break
		}
	}

	mean := total.mean()
	if !floatutils.IsFinite(mean.Total) {
		return fmt.Errorf("updatePolicy: non-finite mean loss %v", mean.Total)
	}
	stats.PolicyLoss = mean.Policy
	stats.ValueLoss = mean.Value
	stats.Entropy = mean.Entropy
	stats.TotalLoss = mean.Total
	stats.ClipFraction = mean.ClipFraction
	stats.KL = mean.KL
	return nil
}
