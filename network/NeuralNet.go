// Package network implements feed forward neural networks on Gorgonia
// computational graphs
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a neural network built on a Gorgonia computational
// graph. The network's prediction node is computed from its input node
// whenever a VM runs the graph.
type NeuralNet interface {
	Graph() *G.ExprGraph
	BatchSize() int
	Features() int
	Outputs() int
	Input() *G.Node
	SetInput([]float64) error
	Set(NeuralNet) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Prediction() *G.Node
}

// Set sets the weights of dest to be equal to the weights of source.
// Both networks must have the same architecture.
func Set(dest, source NeuralNet) error {
	return dest.Set(source)
}
