// Package actorcritic implements actor-critic models for discrete
// action spaces on Gorgonia computational graphs
package actorcritic

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/goppo/agent"
	"github.com/samuelfneumann/goppo/network"
	"github.com/samuelfneumann/goppo/solver"
	"github.com/samuelfneumann/goppo/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// graph holds a policy and value network sharing an input node on a
// single computational graph
type graph struct {
	g      *G.ExprGraph
	policy network.NeuralNet
	value  network.NeuralNet
	vm     G.VM

	logitsVal G.Value
	valueVal  G.Value

	// Upstream gradients of the logits and values, only used in the
	// training graph
	gradLogits *G.Node
	gradValue  *G.Node
}

// newGraph creates the policy and value networks for batches of
// observations. If train is true, the graph also backpropagates the
// gradients set on gradLogits and gradValue to the learnables.
func newGraph(features, actions, batch int, c Config, train bool) (*graph,
	error) {
	biases, activations, init, err := c.layers()
	if err != nil {
		return nil, err
	}

	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	policy, err := network.NewMultiHeadMLPFromInput(input, actions, g,
		c.Hidden, biases, init, activations, "policy")
	if err != nil {
		return nil, fmt.Errorf("could not create policy network: %v", err)
	}

	value, err := network.NewMultiHeadMLPFromInput(input, 1, g, c.Hidden,
		biases, init, activations, "value")
	if err != nil {
		return nil, fmt.Errorf("could not create value network: %v", err)
	}

	gr := &graph{g: g, policy: policy, value: value}
	G.Read(policy.Prediction(), &gr.logitsVal)
	G.Read(value.Prediction(), &gr.valueVal)

	if !train {
		gr.vm = G.NewTapeMachine(g)
		return gr, nil
	}

	gr.gradLogits = G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, actions), G.WithName("gradLogits"),
		G.WithInit(G.Zeroes()))
	gr.gradValue = G.NewMatrix(g, tensor.Float64, G.WithShape(batch, 1),
		G.WithName("gradValue"), G.WithInit(G.Zeroes()))

	// The gradient of the surrogate with respect to the logits and
	// values is exactly gradLogits and gradValue
	policySurrogate, err := G.HadamardProd(policy.Prediction(), gr.gradLogits)
	if err != nil {
		return nil, fmt.Errorf("could not create policy surrogate: %v", err)
	}
	valueSurrogate, err := G.HadamardProd(value.Prediction(), gr.gradValue)
	if err != nil {
		return nil, fmt.Errorf("could not create value surrogate: %v", err)
	}
	surrogate := G.Must(G.Add(G.Must(G.Sum(policySurrogate)),
		G.Must(G.Sum(valueSurrogate))))

	learnables := gr.learnables()
	if _, err := G.Grad(surrogate, learnables...); err != nil {
		return nil, fmt.Errorf("could not compute gradient: %v", err)
	}
	gr.vm = G.NewTapeMachine(g, G.BindDualValues(learnables...))
	return gr, nil
}

// learnables returns the learnables of the policy followed by those of
// the value network
func (gr *graph) learnables() G.Nodes {
	learnables := append(G.Nodes{}, gr.policy.Learnables()...)
	return append(learnables, gr.value.Learnables()...)
}

// model returns the learnables of the graph with their gradients
func (gr *graph) model() []G.ValueGrad {
	return append(gr.policy.Model(), gr.value.Model()...)
}

// set sets the weights of gr to a copy of the weights of source
func (gr *graph) set(source *graph) error {
	if err := network.Set(gr.policy, source.policy); err != nil {
		return err
	}
	return network.Set(gr.value, source.value)
}

// run computes the logits and values of a batch of observations. The
// input must fill the graph's batch. Returned slices are copies.
func (gr *graph) run(input []float64) ([]float64, []float64, error) {
	if err := gr.policy.SetInput(input); err != nil {
		return nil, nil, err
	}
	if err := gr.vm.RunAll(); err != nil {
		return nil, nil, err
	}
	defer gr.vm.Reset()

	logits := append([]float64(nil), gr.logitsVal.Data().([]float64)...)
	values := append([]float64(nil), gr.valueVal.Data().([]float64)...)
	return logits, values, nil
}

// CategoricalMLP is an actor-critic model over a fixed number of
// discrete actions. The policy is a softmax over the logits of an MLP
// and the state value is predicted by a second MLP on the same input.
//
// Training happens on a graph with batch size equal to the minibatch
// size, while actions are selected on a separate graph whose weights
// are synchronized after each optimizer step.
type CategoricalMLP struct {
	features int
	actions  int

	train      *graph
	infer      *graph
	trainBatch int
	inferBatch int

	config Config
	solver *solver.Solver
	eval   bool
	source rand.Source

	// The batch of the most recent call to Forward, which Optimize
	// needs to compute the gradients of the logits
	forwarded    bool
	batch        int
	input        []float64
	probs        []float64
	logProbs     []float64
	entropies    []float64
	actionChosen []int
}

// New returns a new CategoricalMLP over actions discrete actions for
// observations with features dimensions. The model trains on batches of
// trainBatch samples and selects actions for inferBatch observations at
// a time, usually the number of environments.
func New(features, actions, trainBatch, inferBatch int, c Config,
	learningRate float64, seed uint64) (*CategoricalMLP, error) {
	if features <= 0 || actions <= 1 {
		return nil, fmt.Errorf("new: need positive features and at least "+
			"two actions, have (%v, %v)", features, actions)
	}
	if trainBatch <= 0 || inferBatch <= 0 {
		return nil, fmt.Errorf("new: batch sizes must be positive, "+
			"have (%v, %v)", trainBatch, inferBatch)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	train, err := newGraph(features, actions, trainBatch, c, true)
	if err != nil {
		return nil, fmt.Errorf("new: training graph: %v", err)
	}
	infer, err := newGraph(features, actions, inferBatch, c, false)
	if err != nil {
		return nil, fmt.Errorf("new: inference graph: %v", err)
	}
	if err := infer.set(train); err != nil {
		return nil, fmt.Errorf("new: could not sync inference graph: %v", err)
	}

	s, err := solver.New(c.Solver, learningRate)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return &CategoricalMLP{
		features:   features,
		actions:    actions,
		train:      train,
		infer:      infer,
		trainBatch: trainBatch,
		inferBatch: inferBatch,
		config:     c,
		solver:     s,
		source:     rand.NewSource(seed),
	}, nil
}

// Eval sets the policy to evaluation mode, where the most probable
// action is always selected
func (c *CategoricalMLP) Eval() { c.eval = true }

// Train sets the policy to training mode, where actions are sampled
func (c *CategoricalMLP) Train() { c.eval = false }

// IsEval returns whether the policy is in evaluation mode
func (c *CategoricalMLP) IsEval() bool { return c.eval }

// Actions returns the number of discrete actions
func (c *CategoricalMLP) Actions() int { return c.actions }

// Features returns the number of observation features
func (c *CategoricalMLP) Features() int { return c.features }

// SetLearningRate sets the learning rate of the solver
func (c *CategoricalMLP) SetLearningRate(lr float64) {
	c.solver.SetLearningRate(lr)
}

// LearningRate returns the learning rate of the solver
func (c *CategoricalMLP) LearningRate() float64 {
	return c.solver.LearningRate()
}

// Infer selects one action for each row of obs
func (c *CategoricalMLP) Infer(obs *mat.Dense) (agent.Inference, error) {
	rows, cols := obs.Dims()
	if cols != c.features {
		return agent.Inference{}, fmt.Errorf("infer: expected %v features, "+
			"have %v", c.features, cols)
	}

	actions := make([]float64, rows)
	values := make([]float64, rows)
	logProbs := make([]float64, rows)

	probs := make([]float64, c.actions)
	logp := make([]float64, c.actions)
	for start := 0; start < rows; start += c.inferBatch {
		n := c.inferBatch
		if rows-start < n {
			n = rows - start
		}

		logits, v, err := c.infer.run(c.pad(obs, start, n, c.inferBatch))
		if err != nil {
			return agent.Inference{}, fmt.Errorf("infer: %v", err)
		}

		for i := 0; i < n; i++ {
			logSoftmax(logp, logits[i*c.actions:(i+1)*c.actions])
			for j := range logp {
				probs[j] = math.Exp(logp[j])
			}

			var a int
			if c.eval {
				a = floatutils.ArgMax(probs)
			} else {
				a = int(distuv.NewCategorical(probs, c.source).Rand())
			}

			actions[start+i] = float64(a)
			logProbs[start+i] = logp[a]
			values[start+i] = v[i]
		}
	}

	return agent.Inference{
		Actions:  mat.NewDense(rows, 1, actions),
		Values:   values,
		LogProbs: logProbs,
	}, nil
}

// Forward computes the log-probabilities of actions, the entropy of
// the policy, and the values for a training batch of at most the
// training batch size
func (c *CategoricalMLP) Forward(obs, actions *mat.Dense) (agent.Evaluation,
	error) {
	rows, cols := obs.Dims()
	if cols != c.features {
		return agent.Evaluation{}, fmt.Errorf("forward: expected %v "+
			"features, have %v", c.features, cols)
	}
	if rows == 0 || rows > c.trainBatch {
		return agent.Evaluation{}, fmt.Errorf("forward: batch size must be "+
			"in [1, %v], have %v", c.trainBatch, rows)
	}
	if r, ac := actions.Dims(); r != rows || ac != 1 {
		return agent.Evaluation{}, fmt.Errorf("forward: expected (%v, 1) "+
			"actions, have (%v, %v)", rows, r, ac)
	}

	chosen := make([]int, rows)
	for i := range chosen {
		a := actions.At(i, 0)
		index := int(math.Round(a))
		if index < 0 || index >= c.actions || float64(index) != a {
			return agent.Evaluation{}, fmt.Errorf("forward: illegal action "+
				"%v", a)
		}
		chosen[i] = index
	}

	// Gradients must be zero while only computing the forward pass
	if err := c.setGradients(nil, nil); err != nil {
		return agent.Evaluation{}, fmt.Errorf("forward: %v", err)
	}

	input := c.pad(obs, 0, rows, c.trainBatch)
	logits, v, err := c.train.run(input)
	if err != nil {
		return agent.Evaluation{}, fmt.Errorf("forward: %v", err)
	}

	eval := agent.Evaluation{
		LogProbs: make([]float64, rows),
		Entropy:  make([]float64, rows),
		Values:   v[:rows],
	}

	probs := make([]float64, rows*c.actions)
	logProbs := make([]float64, rows*c.actions)
	for i := 0; i < rows; i++ {
		lo, hi := i*c.actions, (i+1)*c.actions
		logSoftmax(logProbs[lo:hi], logits[lo:hi])
		for j := lo; j < hi; j++ {
			probs[j] = math.Exp(logProbs[j])
		}

		eval.LogProbs[i] = logProbs[lo+chosen[i]]
		eval.Entropy[i] = entropy(probs[lo:hi], logProbs[lo:hi])
	}

	c.forwarded = true
	c.batch = rows
	c.input = input
	c.probs = probs
	c.logProbs = logProbs
	c.entropies = append([]float64(nil), eval.Entropy...)
	c.actionChosen = chosen

	return eval, nil
}

// Optimize backpropagates the gradients of loss through the most
// recent call to Forward and takes one solver step. The inference
// graph is then synchronized with the new weights.
func (c *CategoricalMLP) Optimize(loss agent.Loss) error {
	if !c.forwarded {
		return fmt.Errorf("optimize: forward must be called before optimize")
	}
	if err := loss.Validate(c.batch); err != nil {
		return fmt.Errorf("optimize: %v", err)
	}
	c.forwarded = false

	gradLogits := make([]float64, c.trainBatch*c.actions)
	gradValue := make([]float64, c.trainBatch)
	for i := 0; i < c.batch; i++ {
		lo, hi := i*c.actions, (i+1)*c.actions
		logitGradient(gradLogits[lo:hi], c.probs[lo:hi], c.logProbs[lo:hi],
			c.entropies[i], c.actionChosen[i], loss.DLogProb[i],
			loss.DEntropy[i])
		gradValue[i] = loss.DValue[i]
	}

	if err := c.setGradients(gradLogits, gradValue); err != nil {
		return fmt.Errorf("optimize: %v", err)
	}
	if err := c.train.policy.SetInput(c.input); err != nil {
		return fmt.Errorf("optimize: %v", err)
	}

	if err := c.train.vm.RunAll(); err != nil {
		return fmt.Errorf("optimize: %v", err)
	}
	_, err := c.solver.Step(c.train.model(), loss.MaxGradNorm)
	c.train.vm.Reset()
	if err != nil {
		return fmt.Errorf("optimize: %v", err)
	}

	if err := c.infer.set(c.train); err != nil {
		return fmt.Errorf("optimize: could not sync inference graph: %v", err)
	}
	return nil
}

// setGradients sets the upstream gradients of the training graph. Nil
// gradients are set to zero.
func (c *CategoricalMLP) setGradients(gradLogits, gradValue []float64) error {
	if gradLogits == nil {
		gradLogits = make([]float64, c.trainBatch*c.actions)
	}
	if gradValue == nil {
		gradValue = make([]float64, c.trainBatch)
	}

	logits := tensor.New(tensor.WithShape(c.trainBatch, c.actions),
		tensor.WithBacking(gradLogits))
	if err := G.Let(c.train.gradLogits, logits); err != nil {
		return err
	}
	value := tensor.New(tensor.WithShape(c.trainBatch, 1),
		tensor.WithBacking(gradValue))
	return G.Let(c.train.gradValue, value)
}

// pad returns n rows of obs starting at row start in row major order,
// followed by rows of zeros up to batch rows
func (c *CategoricalMLP) pad(obs *mat.Dense, start, n, batch int) []float64 {
	input := make([]float64, batch*c.features)
	for i := 0; i < n; i++ {
		mat.Row(input[i*c.features:(i+1)*c.features], start+i, obs)
	}
	return input
}
