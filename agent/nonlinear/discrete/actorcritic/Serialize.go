package actorcritic

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goppo/utils/floatutils"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// checkpoint is the serialized form of a CategoricalMLP
type checkpoint struct {
	Features     int
	Actions      int
	Hidden       []int
	Activation   string
	Bias         bool
	LearningRate float64
	Weights      [][]float64
}

// Save writes the architecture and weights of the model to path
func (c *CategoricalMLP) Save(path string) error {
	learnables := c.train.learnables()
	weights := make([][]float64, len(learnables))
	for i, node := range learnables {
		data, ok := node.Value().Data().([]float64)
		if !ok {
			return fmt.Errorf("save: learnable %v is not float64", node.Name())
		}
		weights[i] = append([]float64(nil), data...)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "save: could not create %v", path)
	}
	defer f.Close()

	cp := checkpoint{
		Features:     c.features,
		Actions:      c.actions,
		Hidden:       c.config.Hidden,
		Activation:   c.config.Activation,
		Bias:         c.config.Bias,
		LearningRate: c.LearningRate(),
		Weights:      weights,
	}
	if err := gob.NewEncoder(f).Encode(cp); err != nil {
		return errors.Wrapf(err, "save: could not encode %v", path)
	}
	return nil
}

// Load sets the weights and learning rate of the model to those saved
// at path. The saved architecture must match the model.
func (c *CategoricalMLP) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "load: could not open %v", path)
	}
	defer f.Close()

	var cp checkpoint
	if err := gob.NewDecoder(f).Decode(&cp); err != nil {
		return errors.Wrapf(err, "load: could not decode %v", path)
	}

	if err := c.compatible(cp); err != nil {
		return fmt.Errorf("load: %v", err)
	}

	learnables := c.train.learnables()
	for i, node := range learnables {
		for _, w := range cp.Weights[i] {
			if !floatutils.IsFinite(w) {
				return fmt.Errorf("load: learnable %v has non-finite weights",
					node.Name())
			}
		}
	}
	for i, node := range learnables {
		backing := append([]float64(nil), cp.Weights[i]...)
		value := tensor.New(tensor.WithShape(node.Shape()...),
			tensor.WithBacking(backing))
		if err := G.Let(node, value); err != nil {
			return fmt.Errorf("load: %v", err)
		}
	}

	if err := c.infer.set(c.train); err != nil {
		return fmt.Errorf("load: could not sync inference graph: %v", err)
	}
	if cp.LearningRate > 0 {
		c.SetLearningRate(cp.LearningRate)
	}
	c.forwarded = false
	return nil
}

// compatible checks that a checkpoint was saved from a model with the
// same architecture
func (c *CategoricalMLP) compatible(cp checkpoint) error {
	if cp.Features != c.features || cp.Actions != c.actions {
		return fmt.Errorf("checkpoint has (%v features, %v actions), model "+
			"has (%v, %v)", cp.Features, cp.Actions, c.features, c.actions)
	}
	if len(cp.Hidden) != len(c.config.Hidden) {
		return fmt.Errorf("checkpoint has %v hidden layers, model has %v",
			len(cp.Hidden), len(c.config.Hidden))
	}
	for i := range cp.Hidden {
		if cp.Hidden[i] != c.config.Hidden[i] {
			return fmt.Errorf("checkpoint hidden layer %v has %v units, "+
				"model has %v", i, cp.Hidden[i], c.config.Hidden[i])
		}
	}

	learnables := c.train.learnables()
	if len(cp.Weights) != len(learnables) {
		return fmt.Errorf("checkpoint has %v learnables, model has %v",
			len(cp.Weights), len(learnables))
	}
	for i, node := range learnables {
		if len(cp.Weights[i]) != node.Shape().TotalSize() {
			return fmt.Errorf("learnable %v has %v weights, expected %v",
				node.Name(), len(cp.Weights[i]), node.Shape().TotalSize())
		}
	}
	return nil
}
