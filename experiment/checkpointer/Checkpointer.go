// Package checkpointer implements Checkpointers, which save the state
// of a model as training progresses
package checkpointer

import "github.com/samuelfneumann/goppo/agent"

// Checkpointer checkpoints a model after an update. The metric
// describes the performance of the model at that update and may be
// used to decide which checkpoints to keep.
type Checkpointer interface {
	Checkpoint(update int, metric float64) error
}

// Serializable is an object that can be saved to and loaded from disk
type Serializable = agent.Serializable
