package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// multiHeadMLP is a fully connected network of any depth ending in a
// linear layer with one output node per predicted value
type multiHeadMLP struct {
	g      *G.ExprGraph
	layers []*fcLayer
	input  *G.Node
	output *G.Node

	batch, features, outputs int

	learnables G.Nodes
	model      []G.ValueGrad
}

// NewMultiHeadMLP adds to g a multi-layered perceptron with its own
// (batch, features) input node and outputs linear output nodes.
//
// Hidden layer i has hiddenSizes[i] units, a bias unit if biases[i],
// and activation activations[i]. The output layer always has a bias and
// no activation. Weights are initialized with init. Nodes are named with
// the given prefix, which must be unique within g.
func NewMultiHeadMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, name string) (NeuralNet, error) {
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName(name+"Input"), G.WithInit(G.Zeroes()))

	return NewMultiHeadMLPFromInput(input, outputs, g, hiddenSizes, biases,
		init, activations, name)
}

// NewMultiHeadMLPFromInput is like NewMultiHeadMLP but reads from an
// existing matrix node of g, so several networks can share one input
func NewMultiHeadMLPFromInput(input *G.Node, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, name string) (NeuralNet, error) {
	switch {
	case len(activations) != len(hiddenSizes):
		return nil, fmt.Errorf("newMultiHeadMLP: want %v activations, have %v",
			len(hiddenSizes), len(activations))
	case len(biases) != len(hiddenSizes):
		return nil, fmt.Errorf("newMultiHeadMLP: want %v biases, have %v",
			len(hiddenSizes), len(biases))
	case !input.IsMatrix():
		return nil, fmt.Errorf("newMultiHeadMLP: input must be a matrix")
	case input.Graph() != g:
		return nil, fmt.Errorf("newMultiHeadMLP: input must be in graph g")
	}

	sizes := append(append([]int(nil), hiddenSizes...), outputs)
	bias := append(append([]bool(nil), biases...), true)
	acts := append(append([]*Activation(nil), activations...), Identity())

	shape := input.Shape()
	net := &multiHeadMLP{
		g:        g,
		input:    input,
		batch:    shape[0],
		features: shape[1],
		outputs:  outputs,
		layers:   addfcLayers(g, shape[1], sizes, bias, acts, init, name),
	}

	out := input
	for i, l := range net.layers {
		var err error
		if out, err = l.fwd(out); err != nil {
			return nil, fmt.Errorf("newMultiHeadMLP: layer %v: %v", i, err)
		}
	}
	net.output = out

	return net, nil
}

func (m *multiHeadMLP) Graph() *G.ExprGraph { return m.g }
func (m *multiHeadMLP) BatchSize() int { return m.batch }
func (m *multiHeadMLP) Features() int { return m.features }
func (m *multiHeadMLP) Outputs() int { return m.outputs }
func (m *multiHeadMLP) Input() *G.Node { return m.input }
func (m *multiHeadMLP) Prediction() *G.Node { return m.output }

// SetInput binds a row major (batch, features) input to the input node
func (m *multiHeadMLP) SetInput(input []float64) error {
	if want := m.batch * m.features; len(input) != want {
		return fmt.Errorf("setInput: want %v inputs, have %v", want,
			len(input))
	}
	t := tensor.New(tensor.WithBacking(input),
		tensor.WithShape(m.input.Shape()...))
	return G.Let(m.input, t)
}

// Set copies the weights of source, which must have the same
// architecture, into the network
func (m *multiHeadMLP) Set(source NeuralNet) error {
	src, dst := source.Learnables(), m.Learnables()
	if len(src) != len(dst) {
		return fmt.Errorf("set: source has %v learnables, want %v",
			len(src), len(dst))
	}

	for i := range dst {
		if !dst[i].Shape().Eq(src[i].Shape()) {
			return fmt.Errorf("set: learnable %v has shape %v, want %v",
				i, src[i].Shape(), dst[i].Shape())
		}
		weights, ok := src[i].Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("set: learnable %v has no dense value", i)
		}
		if err := G.Let(dst[i], weights.Clone()); err != nil {
			return fmt.Errorf("set: %v", err)
		}
	}
	return nil
}

// Learnables returns the weights and biases of every layer in order
func (m *multiHeadMLP) Learnables() G.Nodes {
	if m.learnables == nil {
		for _, l := range m.layers {
			m.learnables = append(m.learnables, l.learnables()...)
		}
	}
	return m.learnables
}

// Model returns the learnables paired with their gradients
func (m *multiHeadMLP) Model() []G.ValueGrad {
	if m.model == nil {
		m.model = G.NodesToValueGrads(m.Learnables())
	}
	return m.model
}
