package environment

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
)

// UniformStarter samples starting states uniformly from a box. A
// degenerate interval pins its feature to a constant.
type UniformStarter struct {
	bounds []r1.Interval
	dist   *distmv.Uniform
}

// NewUniformStarter returns a UniformStarter sampling feature i of each
// starting state from bounds[i]
func NewUniformStarter(seed uint64, bounds ...r1.Interval) *UniformStarter {
	bounds = append([]r1.Interval(nil), bounds...)
	return &UniformStarter{
		bounds: bounds,
		dist:   distmv.NewUniform(bounds, rand.NewSource(seed)),
	}
}

// Bounds returns a copy of the sampling box
func (u *UniformStarter) Bounds() []r1.Interval {
	return append([]r1.Interval(nil), u.bounds...)
}

// Start samples a starting state
func (u *UniformStarter) Start() *mat.VecDense {
	return mat.NewVecDense(len(u.bounds), u.dist.Rand(nil))
}
