// Package agent defines the interfaces between on-policy trainers and
// the differentiable actor-critic models they optimize
package agent

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Inference holds the output of an actor-critic model on a batch of
// observations, one row or element per observation
type Inference struct {
	Actions  *mat.Dense
	Values   []float64
	LogProbs []float64
}

// Evaluation holds the differentiable quantities an actor-critic model
// computes for a batch of observations and the actions taken in them
type Evaluation struct {
	LogProbs []float64
	Entropy  []float64
	Values   []float64
}

// Len returns the number of samples in the Evaluation
func (e Evaluation) Len() int {
	return len(e.LogProbs)
}

// Loss describes a scalar training loss over the batch of the most
// recent call to Forward, along with the gradient of the scalar loss
// with respect to each sample's log-probability, entropy, and value.
// The models' parameters are updated by backpropagating these
// gradients through the computations of Forward.
type Loss struct {
	Total float64

	// Gradients of Total, one element per sample in the batch
	DLogProb []float64
	DEntropy []float64
	DValue   []float64

	// MaxGradNorm is the maximum global L2 norm of the parameter
	// gradient; gradients with larger norm are rescaled. A value <= 0
	// disables clipping.
	MaxGradNorm float64
}

// Validate checks that the gradients of the Loss match a batch size
func (l Loss) Validate(batch int) error {
	if len(l.DLogProb) != batch || len(l.DEntropy) != batch ||
		len(l.DValue) != batch {
		return fmt.Errorf("validate: expected %v gradients, have (%v, %v, "+
			"%v)", batch, len(l.DLogProb), len(l.DEntropy), len(l.DValue))
	}
	return nil
}

// Policy represents a policy that an agent can have. In evaluation
// mode, a policy selects actions deterministically.
type Policy interface {
	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}

// ActorCritic is a policy with a state-value baseline, whose
// parameters are learned by gradient descent.
//
// Infer is used to act and is not differentiated. Forward recomputes
// the policy and value on a training batch, and Optimize takes a
// single optimizer step on that batch. Optimize must only be called
// after Forward, and calls must not be made concurrently.
type ActorCritic interface {
	Policy

	// Infer selects actions for a batch of observations, one row per
	// observation, returning the actions along with their
	// log-probabilities and the value estimate of each observation
	Infer(obs *mat.Dense) (Inference, error)

	// Forward computes the log-probability and entropy of the policy
	// and the value estimate for a batch of observations and actions
	Forward(obs, actions *mat.Dense) (Evaluation, error)

	// Optimize backpropagates a loss through the last Forward call,
	// clips the gradient norm, and takes a single optimizer step
	Optimize(loss Loss) error

	SetLearningRate(lr float64)
	LearningRate() float64
}

// Serializable is a model whose parameters can be saved to and loaded
// from disk
type Serializable interface {
	Save(path string) error
	Load(path string) error
}
