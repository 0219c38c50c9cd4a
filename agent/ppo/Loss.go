package ppo

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/goppo/agent"
	"github.com/samuelfneumann/goppo/buffer/rollout"
	"github.com/samuelfneumann/goppo/utils/floatutils"
)

// terms holds the components of the PPO loss on a single minibatch
type terms struct {
	Policy       float64
	Value        float64
	Entropy      float64
	KL           float64
	Total        float64
	ClipFraction float64
}

// computeLoss computes the clipped PPO objective of a minibatch along
// with its gradient with respect to each sample's log-probability,
// entropy, and value:
//
//	L = -mean(min(r A, clip(r, 1-ε, 1+ε) A)) + c_v L_v - c_H mean(H)
//
// where r = exp(logp - logp_old). If use_kl_penalty is set, the term
// kl_coef mean(logp_old - logp) is added to L.
func computeLoss(eval agent.Evaluation, mb rollout.Minibatch,
	c Config) (agent.Loss, terms, error) {
	B := len(mb.Advantages)
	if len(mb.OldLogProbs) != B || len(mb.OldValues) != B ||
		len(mb.Returns) != B || (mb.Indices != nil && len(mb.Indices) != B) {
		return agent.Loss{}, terms{}, fmt.Errorf("computeLoss: minibatch "+
			"has %v advantages but (%v, %v, %v, %v) old log-probs, old "+
			"values, returns and indices", B, len(mb.OldLogProbs),
			len(mb.OldValues), len(mb.Returns), len(mb.Indices))
	}
	if eval.Len() != B || len(eval.Entropy) != B || len(eval.Values) != B {
		return agent.Loss{}, terms{}, fmt.Errorf("computeLoss: expected %v "+
			"samples, have (%v, %v, %v)", B, eval.Len(), len(eval.Entropy),
			len(eval.Values))
	}
	if B == 0 {
		return agent.Loss{}, terms{}, fmt.Errorf("computeLoss: empty minibatch")
	}

	loss := agent.Loss{
		DLogProb:    make([]float64, B),
		DEntropy:    make([]float64, B),
		DValue:      make([]float64, B),
		MaxGradNorm: c.MaxGradNorm,
	}
	var t terms
	n := float64(B)
	clipped := 0

	for i := 0; i < B; i++ {
		adv := mb.Advantages[i]
		logRatio := eval.LogProbs[i] - mb.OldLogProbs[i]
		ratio := math.Exp(logRatio)

		// Policy
		surr1 := ratio * adv
		surr2 := floatutils.Clip(ratio, 1-c.ClipRatio, 1+c.ClipRatio) * adv
		if math.Abs(ratio-1) > c.ClipRatio {
			clipped++
		}
		if surr1 <= surr2 {
			t.Policy -= surr1 / n
			loss.DLogProb[i] = -surr1 / n
		} else {
			t.Policy -= surr2 / n
		}

		// Value
		v, ret := eval.Values[i], mb.Returns[i]
		var dValue float64
		if c.ValueClipRatio > 0 {
			old := mb.OldValues[i]
			vClipped := old + floatutils.Clip(v-old, -c.ValueClipRatio,
				c.ValueClipRatio)
			l1 := (v - ret) * (v - ret)
			l2 := (vClipped - ret) * (vClipped - ret)
			if l1 >= l2 {
				t.Value += 0.5 * l1 / n
				dValue = (v - ret) / n
			} else {
				// The clipped prediction is constant in v
				t.Value += 0.5 * l2 / n
			}
		} else {
			t.Value += (v - ret) * (v - ret) / n
			dValue = 2 * (v - ret) / n
		}
		loss.DValue[i] = c.ValueCoef * dValue

		t.Entropy += eval.Entropy[i] / n
		loss.DEntropy[i] = -c.EntropyCoef / n

		t.KL -= logRatio / n
		if c.UseKLPenalty {
			loss.DLogProb[i] -= c.KLCoef / n
		}
	}

	t.Total = t.Policy + c.ValueCoef*t.Value - c.EntropyCoef*t.Entropy
	if c.UseKLPenalty {
		t.Total += c.KLCoef * t.KL
	}
	t.ClipFraction = float64(clipped) / n

	if !floatutils.IsFinite(t.Total) {
		return agent.Loss{}, t, fmt.Errorf("computeLoss: non-finite loss %v "+
			"(policy %v, value %v, entropy %v, kl %v)", t.Total, t.Policy,
			t.Value, t.Entropy, t.KL)
	}
	loss.Total = t.Total
	return loss, t, nil
}
