package ppo

import (
	"github.com/rs/zerolog"
)

// Stats holds the statistics of a single training cycle
type Stats struct {
	Update int

	// Losses averaged over every optimized minibatch
	PolicyLoss   float64
	ValueLoss    float64
	Entropy      float64
	TotalLoss    float64
	ClipFraction float64
	KL           float64

	// ExplainedVariance of the rollout's value predictions with respect
	// to its returns
	ExplainedVariance float64

	// Rollout statistics. Episode statistics are over the episodes that
	// completed during the rollout and are zero if none did.
	MeanStepReward    float64
	MeanEpisodeReward float64
	MeanEpisodeLength float64
	EpisodesCompleted int

	EpochsRun    int
	EarlyStopped bool
	LearningRate float64

	// EvalReward is the mean evaluation return and EvalCustom holds the
	// custom evaluation metrics, both valid if Evaluated
	Evaluated  bool
	EvalReward float64
	EvalCustom map[string]float64
}

// scalars returns the named scalars logged to a Tracker
func (s Stats) scalars() map[string]float64 {
	m := map[string]float64{
		"policy_loss":         s.PolicyLoss,
		"value_loss":          s.ValueLoss,
		"entropy":             s.Entropy,
		"total_loss":          s.TotalLoss,
		"clip_fraction":       s.ClipFraction,
		"approx_kl":           s.KL,
		"explained_variance":  s.ExplainedVariance,
		"mean_step_reward":    s.MeanStepReward,
		"mean_episode_reward": s.MeanEpisodeReward,
		"mean_episode_length": s.MeanEpisodeLength,
		"episodes_completed":  float64(s.EpisodesCompleted),
		"epochs_run":          float64(s.EpochsRun),
		"learning_rate":       s.LearningRate,
	}
	if s.Evaluated {
		m["eval_reward"] = s.EvalReward
		for name, value := range s.EvalCustom {
			m["eval_"+name] = value
		}
	}
	return m
}

// MarshalZerologObject implements the zerolog.LogObjectMarshaler
// interface
func (s Stats) MarshalZerologObject(e *zerolog.Event) {
	e.Int("update", s.Update).
		Float64("policy_loss", s.PolicyLoss).
		Float64("value_loss", s.ValueLoss).
		Float64("entropy", s.Entropy).
		Float64("total_loss", s.TotalLoss).
		Float64("clip_fraction", s.ClipFraction).
		Float64("kl", s.KL).
		Float64("explained_variance", s.ExplainedVariance).
		Float64("episode_reward", s.MeanEpisodeReward).
		Int("episodes", s.EpisodesCompleted).
		Int("epochs", s.EpochsRun).
		Bool("early_stopped", s.EarlyStopped).
		Float64("lr", s.LearningRate)
	if s.Evaluated {
		e.Float64("eval_reward", s.EvalReward)
	}
}

// accumulator averages the loss terms of each minibatch
type accumulator struct {
	sum terms
	n   int
}

func (a *accumulator) add(t terms) {
	a.sum.Policy += t.Policy
	a.sum.Value += t.Value
	a.sum.Entropy += t.Entropy
	a.sum.KL += t.KL
	a.sum.Total += t.Total
	a.sum.ClipFraction += t.ClipFraction
	a.n++
}

func (a *accumulator) mean() terms {
	if a.n == 0 {
		return terms{}
	}
	n := float64(a.n)
	return terms{
		Policy:       a.sum.Policy / n,
		Value:        a.sum.Value / n,
		Entropy:      a.sum.Entropy / n,
		KL:           a.sum.KL / n,
		Total:        a.sum.Total / n,
		ClipFraction: a.sum.ClipFraction / n,
	}
}
