package actorcritic

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// logSoftmax computes the log-probabilities of a softmax distribution
// over logits into dst
func logSoftmax(dst, logits []float64) {
	lse := floats.LogSumExp(logits)
	for i, z := range logits {
		dst[i] = z - lse
	}
}

// entropy returns the entropy -Σ p log p of a distribution given its
// probabilities and log-probabilities
func entropy(probs, logProbs []float64) float64 {
	h := 0.0
	for i, p := range probs {
		if p > 0 {
			h -= p * logProbs[i]
		}
	}
	return h
}

// logitGradient computes into dst the gradient with respect to the
// logits of
//
//	gLogProb * log π(action) + gEntropy * H(π)
//
// where π = softmax(logits). With p the probabilities and H the
// entropy of π:
//
//	∂/∂z_j log π(a) = 1[j = a] - p_j
//	∂/∂z_j H        = -p_j (log p_j + H)
func logitGradient(dst, probs, logProbs []float64, h float64, action int,
	gLogProb, gEntropy float64) {
	for j, p := range probs {
		indicator := 0.0
		if j == action {
			indicator = 1.0
		}
		dLogProb := indicator - p

		dEntropy := 0.0
		if p > 0 && !math.IsInf(logProbs[j], -1) {
			dEntropy = -p * (logProbs[j] + h)
		}
		dst[j] = gLogProb*dLogProb + gEntropy*dEntropy
	}
}
