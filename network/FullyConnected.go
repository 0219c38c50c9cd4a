package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// newfcLayer adds the weights of a fully connected layer mapping in to
// out features to the graph g
func newfcLayer(g *G.ExprGraph, in, out int, bias bool, act *Activation,
	init G.InitWFn, name string) *fcLayer {
	weights := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(in, out),
		G.WithName(name+"W"),
		G.WithInit(init),
	)

	var b *G.Node
	if bias {
		b = G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(1, out),
			G.WithName(name+"b"),
			G.WithInit(G.Zeroes()),
		)
	}

	return &fcLayer{weights: weights, bias: b, act: act}
}

// addfcLayers adds one fully connected layer per hidden size to the
// graph g, the first taking features inputs
func addfcLayers(g *G.ExprGraph, features int, hiddenSizes []int,
	biases []bool, activations []*Activation, init G.InitWFn,
	prefix string) []*fcLayer {
	layers := make([]*fcLayer, len(hiddenSizes))

	in := features
	for i, out := range hiddenSizes {
		name := fmt.Sprintf("%vL%v", prefix, i)
		layers[i] = newfcLayer(g, in, out, biases[i], activations[i], init,
			name)
		in = out
	}
	return layers
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	x, err := G.Mul(x, f.weights)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not multiply weights: %v", err)
	}

	if f.bias != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x, err = G.BroadcastAdd(x, f.bias, nil, []byte{0})
		if err != nil {
			return nil, fmt.Errorf("fwd: could not add bias: %v", err)
		}
	}

	if f.act == nil {
		return x, nil
	}
	return f.act.fwd(x)
}

// learnables returns the weights, followed by the bias if it exists
func (f *fcLayer) learnables() G.Nodes {
	if f.bias == nil {
		return G.Nodes{f.weights}
	}
	return G.Nodes{f.weights, f.bias}
}
