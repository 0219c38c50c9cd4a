package ppo

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goppo/experiment/metrics"
	ts "github.com/samuelfneumann/goppo/timestep"
	"gonum.org/v1/gonum/mat"
)

// Evaluate runs episodes evaluation episodes with the model acting
// deterministically and summarizes them. Episodes run one after
// another, cycling through the evaluation environments, and are cut
// off after eval_max_steps steps. The model is returned to training
// mode afterwards.
func (t *Trainer) Evaluate(episodes int) (metrics.Aggregate, error) {
	if t.evalEnvs == nil {
		return metrics.Aggregate{}, fmt.Errorf("evaluate: no evaluation " +
			"environments")
	}
	if episodes < 1 {
		return metrics.Aggregate{}, fmt.Errorf("evaluate: episodes must be "+
			"positive, have %v", episodes)
	}

	t.model.Eval()
	defer t.model.Train()

	results := make([]metrics.Episode, 0, episodes)
	for i := 0; i < episodes; i++ {
		ep, err := t.runEpisode(i % t.evalEnvs.Len())
		if err != nil {
			return metrics.Aggregate{}, errors.Wrapf(err, "evaluate: "+
				"episode %v", i)
		}
		results = append(results, ep)
	}

	agg := metrics.NewAggregate(results, t.registry)
	t.lastEval = agg
	t.evaluated = true

	t.logger.Info().
		Int("update", t.update).
		Int("episodes", agg.Count).
		Float64("mean_reward", agg.MeanReward).
		Float64("std_reward", agg.StdReward).
		Float64("success_rate", agg.SuccessRate).
		Msg("evaluation complete")
	return agg, nil
}

// runEpisode runs a single episode in evaluation environment i
func (t *Trainer) runEpisode(i int) (metrics.Episode, error) {
	e := t.evalEnvs.Env(i)
	step, err := e.Reset()
	if err != nil {
		return metrics.Episode{}, err
	}

	var ep metrics.Episode
	obs := mat.NewDense(1, t.evalEnvs.ObservationDim(), nil)
	for ep.Length < t.cfg.EvalMaxSteps {
		obs.SetRow(0, step.Observation.RawVector().Data)
		inf, err := t.model.Infer(obs)
		if err != nil {
			return metrics.Episode{}, err
		}

		action := mat.NewVecDense(t.evalEnvs.ActionDim(),
			mat.Row(nil, 0, inf.Actions))
		var last bool
		step, last, err = e.Step(action)
		if err != nil {
			return metrics.Episode{}, err
		}

		ep.Reward += step.Reward
		ep.Length++
		if last {
			ep.Success = step.EndType() == ts.Success
			break
		}
	}
	return ep, nil
}
