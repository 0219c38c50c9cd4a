// Package rollout implements a fixed-capacity buffer holding a single
// on-policy rollout of T lockstep steps over N environments.
//
// A Buffer moves through the states Empty → Filling → Finalized and
// back to Empty on Reset. Transitions are added one batch of N at a
// time. Once T batches have been added, FinishRollout computes the
// generalized advantage estimates and returns of each environment's
// column, after which shuffled minibatches can be drawn any number of
// times until the buffer is reset.
//
// Storage is allocated on the first Add, when the widths of
// observations and actions become known, and is reused across resets.
package rollout

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/goppo/buffer/gae"
)

// State is the state of a Buffer
type State int

const (
	Empty State = iota
	Filling
	Finalized
)

func (s State) String() string {
	switch s {
	case Empty:
		return "Empty"
	case Filling:
		return "Filling"
	default:
		return "Finalized"
	}
}

// Transition is a single (step, environment) entry of a rollout
type Transition struct {
	Observation []float64
	Action      []float64
	LogProb     float64
	Value       float64
	Reward      float64
	Done        bool
}

// Stats summarizes the contents of a finalized Buffer
type Stats struct {
	MeanReward        float64
	MeanValue         float64
	MeanAdvantage     float64
	StdAdvantage      float64
	EpisodesCompleted int
}

// Buffer stores a single rollout. A Buffer is not safe for concurrent
// writes; after finalization it may be read by any number of readers.
type Buffer struct {
	steps int // T, number of lockstep steps per rollout
	envs  int // N, number of environments

	gamma     float64
	lambda    float64
	normalize bool
	rng       *rand.Rand

	state State
	pos   int // Number of batches added

	// Feature widths, known after the first Add
	obsDim int
	actDim int

	// Storage, indexed by t*envs + env
	obsBuffer  []float64
	actBuffer  []float64
	logpBuffer []float64
	valBuffer  []float64
	rewBuffer  []float64
	doneBuffer []bool
	advBuffer  []float64
	retBuffer  []float64
}

// Option configures a Buffer
type Option func(*Buffer)

// WithNormalizedAdvantages sets whether advantages are standardized
// over the full rollout after finalization
func WithNormalizedAdvantages(normalize bool) Option {
	return func(b *Buffer) {
		b.normalize = normalize
	}
}

// WithSeed seeds the random number generator used to shuffle
// minibatches
func WithSeed(seed uint64) Option {
	return func(b *Buffer) {
		b.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates and returns a new Buffer holding steps batches of envs
// transitions each, computing GAE(λ) with discount gamma
func New(steps, envs int, gamma, lambda float64,
	opts ...Option) (*Buffer, error) {
	if steps < 1 || envs < 1 {
		return nil, newError("new", errors.Wrapf(ErrShape, "steps and "+
			"environments must be positive, have steps=%v envs=%v", steps,
			envs))
	}

	b := &Buffer{
		steps:  steps,
		envs:   envs,
		gamma:  gamma,
		lambda: lambda,
		rng:    rand.New(rand.NewSource(0)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// State returns the current state of the buffer
func (b *Buffer) State() State {
	return b.state
}

// Steps returns the number of steps T in a rollout
func (b *Buffer) Steps() int {
	return b.steps
}

// Envs returns the number of environments N in a rollout
func (b *Buffer) Envs() int {
	return b.envs
}

// Len returns the number of transitions currently stored
func (b *Buffer) Len() int {
	return b.pos * b.envs
}

// Capacity returns the number of transitions in a full rollout, T·N
func (b *Buffer) Capacity() int {
	return b.steps * b.envs
}

// Add adds one lockstep batch of transitions to the buffer, one row
// or element per environment.
func (b *Buffer) Add(obs, actions *mat.Dense, logProbs, values,
	rewards []float64, dones []bool) error {
	const op = "add"

	switch {
	case b.state == Finalized:
		return newError(op, ErrFinalized)
	case b.pos >= b.steps:
		return newError(op, ErrBufferFull)
	}

	if err := b.checkBatch(obs, actions, logProbs, values, rewards,
		dones); err != nil {
		return newError(op, err)
	}

	if b.obsBuffer == nil {
		b.allocate(obs, actions)
	}

	start := b.pos * b.envs
	for env := 0; env < b.envs; env++ {
		i := start + env
		copy(b.obsBuffer[i*b.obsDim:(i+1)*b.obsDim], obs.RawRowView(env))
		copy(b.actBuffer[i*b.actDim:(i+1)*b.actDim], actions.RawRowView(env))
	}
	copy(b.logpBuffer[start:start+b.envs], logProbs)
	copy(b.valBuffer[start:start+b.envs], values)
	copy(b.rewBuffer[start:start+b.envs], rewards)
	copy(b.doneBuffer[start:start+b.envs], dones)

	b.pos++
	b.state = Filling
	return nil
}

// checkBatch checks the shape of one batch of transitions
func (b *Buffer) checkBatch(obs, actions *mat.Dense, logProbs, values,
	rewards []float64, dones []bool) error {
	obsRows, obsCols := obs.Dims()
	actRows, actCols := actions.Dims()

	if obsRows != b.envs || actRows != b.envs {
		return errors.Wrapf(ErrShape, "expected %v observation and action "+
			"rows, have %v and %v", b.envs, obsRows, actRows)
	}
	if len(logProbs) != b.envs || len(values) != b.envs ||
		len(rewards) != b.envs || len(dones) != b.envs {
		return errors.Wrapf(ErrShape, "expected %v log-probabilities, "+
			"values, rewards, and dones", b.envs)
	}
	if b.obsBuffer != nil && (obsCols != b.obsDim || actCols != b.actDim) {
		return errors.Wrapf(ErrShape, "expected observation and action "+
			"widths (%v, %v), have (%v, %v)", b.obsDim, b.actDim, obsCols,
			actCols)
	}
	return nil
}

// allocate allocates the buffer storage using the widths of the first
// batch of observations and actions
func (b *Buffer) allocate(obs, actions *mat.Dense) {
	_, b.obsDim = obs.Dims()
	_, b.actDim = actions.Dims()
	size := b.steps * b.envs

	b.obsBuffer = make([]float64, size*b.obsDim)
	b.actBuffer = make([]float64, size*b.actDim)
	b.logpBuffer = make([]float64, size)
	b.valBuffer = make([]float64, size)
	b.rewBuffer = make([]float64, size)
	b.doneBuffer = make([]bool, size)
	b.advBuffer = make([]float64, size)
	b.retBuffer = make([]float64, size)
}

// FinishRollout computes the advantages and returns of the rollout
// and finalizes the buffer. The bootstrap argument holds the value
// estimate of each environment's state after the last step, used as
// the value at t = T.
func (b *Buffer) FinishRollout(bootstrap []float64) error {
	const op = "finishRollout"

	switch {
	case b.state == Finalized:
		return newError(op, ErrFinalized)
	case b.pos != b.steps:
		return newError(op, errors.Wrapf(ErrNotFilled, "have %v of %v "+
			"steps", b.pos, b.steps))
	case len(bootstrap) != b.envs:
		return newError(op, errors.Wrapf(ErrShape, "expected %v bootstrap "+
			"values, have %v", b.envs, len(bootstrap)))
	}

	rewards := make([]float64, b.steps)
	values := make([]float64, b.steps+1)
	dones := make([]bool, b.steps)
	for env := 0; env < b.envs; env++ {
		for t := 0; t < b.steps; t++ {
			i := t*b.envs + env
			rewards[t] = b.rewBuffer[i]
			values[t] = b.valBuffer[i]
			dones[t] = b.doneBuffer[i]
		}
		values[b.steps] = bootstrap[env]

		adv, err := gae.GAE(rewards, values, dones, b.gamma, b.lambda)
		if err != nil {
			return newError(op, err)
		}
		for t := 0; t < b.steps; t++ {
			i := t*b.envs + env
			b.advBuffer[i] = adv[t]
			b.retBuffer[i] = adv[t] + values[t]
		}
	}

	if b.normalize {
		gae.Normalize(b.advBuffer, gae.Epsilon)
	}

	b.state = Finalized
	return nil
}

// Minibatch is a set of transitions drawn from a finalized rollout
type Minibatch struct {
	// Indices of the samples in the flattened rollout, t*N + env
	Indices []int

	Observations *mat.Dense
	Actions      *mat.Dense
	OldLogProbs  []float64
	OldValues    []float64
	Returns      []float64
	Advantages   []float64
}

// Len returns the number of samples in the minibatch
func (m Minibatch) Len() int {
	return len(m.Indices)
}

// Minibatches partitions the finalized rollout into minibatches of
// batchSize samples. The rollout is flattened time-major and
// environment-minor, optionally shuffled, and split into contiguous
// chunks. The last minibatch holds the remaining samples if batchSize
// does not divide T·N; no sample is dropped or repeated.
func (b *Buffer) Minibatches(batchSize int, shuffle bool) ([]Minibatch,
	error) {
	const op = "minibatches"

	if b.state != Finalized {
		return nil, newError(op, ErrNotFinalized)
	}
	if batchSize < 1 {
		return nil, newError(op, errors.Wrapf(ErrShape, "batch size must "+
			"be positive, have %v", batchSize))
	}

	n := b.Capacity()
	var order []int
	if shuffle {
		order = b.rng.Perm(n)
	} else {
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}
	}

	batches := make([]Minibatch, 0, (n+batchSize-1)/batchSize)
	for start := 0; start < n; start += batchSize {
		stop := start + batchSize
		if stop > n {
			stop = n
		}
		batches = append(batches, b.minibatch(order[start:stop]))
	}
	return batches, nil
}

// minibatch gathers the samples at the given flat indices
func (b *Buffer) minibatch(indices []int) Minibatch {
	size := len(indices)
	mb := Minibatch{
		Indices:      append([]int(nil), indices...),
		Observations: mat.NewDense(size, b.obsDim, nil),
		Actions:      mat.NewDense(size, b.actDim, nil),
		OldLogProbs:  make([]float64, size),
		OldValues:    make([]float64, size),
		Returns:      make([]float64, size),
		Advantages:   make([]float64, size),
	}

	for row, i := range indices {
		mb.Observations.SetRow(row, b.obsBuffer[i*b.obsDim:(i+1)*b.obsDim])
		mb.Actions.SetRow(row, b.actBuffer[i*b.actDim:(i+1)*b.actDim])
		mb.OldLogProbs[row] = b.logpBuffer[i]
		mb.OldValues[row] = b.valBuffer[i]
		mb.Returns[row] = b.retBuffer[i]
		mb.Advantages[row] = b.advBuffer[i]
	}
	return mb
}

// Reset empties the buffer so that a new rollout can be collected.
// Reset is valid in any state.
func (b *Buffer) Reset() {
	b.pos = 0
	b.state = Empty
	for i := range b.advBuffer {
		b.advBuffer[i] = 0
		b.retBuffer[i] = 0
	}
}

// At returns the transition stored for step t of environment env
func (b *Buffer) At(t, env int) (Transition, error) {
	if t < 0 || t >= b.pos || env < 0 || env >= b.envs {
		return Transition{}, newError("at", errors.Wrapf(ErrShape,
			"no transition at step %v environment %v", t, env))
	}

	i := t*b.envs + env
	return Transition{
		Observation: append([]float64(nil),
			b.obsBuffer[i*b.obsDim:(i+1)*b.obsDim]...),
		Action: append([]float64(nil),
			b.actBuffer[i*b.actDim:(i+1)*b.actDim]...),
		LogProb: b.logpBuffer[i],
		Value:   b.valBuffer[i],
		Reward:  b.rewBuffer[i],
		Done:    b.doneBuffer[i],
	}, nil
}

// Advantages returns a copy of the advantages of the finalized
// rollout, flattened time-major
func (b *Buffer) Advantages() ([]float64, error) {
	if b.state != Finalized {
		return nil, newError("advantages", ErrNotFinalized)
	}
	return append([]float64(nil), b.advBuffer...), nil
}

// Returns returns a copy of the returns of the finalized rollout,
// flattened time-major
func (b *Buffer) Returns() ([]float64, error) {
	if b.state != Finalized {
		return nil, newError("returns", ErrNotFinalized)
	}
	return append([]float64(nil), b.retBuffer...), nil
}

// Values returns a copy of the value estimates recorded during
// collection of the finalized rollout, flattened time-major
func (b *Buffer) Values() ([]float64, error) {
	if b.state != Finalized {
		return nil, newError("values", ErrNotFinalized)
	}
	return append([]float64(nil), b.valBuffer...), nil
}

// Stats summarizes the finalized rollout
func (b *Buffer) Stats() (Stats, error) {
	if b.state != Finalized {
		return Stats{}, newError("stats", ErrNotFinalized)
	}

	episodes := 0
	for _, done := range b.doneBuffer {
		if done {
			episodes++
		}
	}

	meanAdv, stdAdv := stat.MeanStdDev(b.advBuffer, nil)
	if b.Capacity() == 1 {
		stdAdv = 0
	}
	return Stats{
		MeanReward:        floats.Sum(b.rewBuffer) / float64(b.Capacity()),
		MeanValue:         floats.Sum(b.valBuffer) / float64(b.Capacity()),
		MeanAdvantage:     meanAdv,
		StdAdvantage:      stdAdv,
		EpisodesCompleted: episodes,
	}, nil
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Rollout | State: %v  |  Steps: %v/%v  |  Envs: %v",
		b.state, b.pos, b.steps, b.envs)
}
