package solver

import G "gorgonia.org/gorgonia"

// newVanilla returns a Gorgonia Vanilla Solver as described by c
func newVanilla(c Config, learningRate float64) G.Solver {
	opts := []G.SolverOpt{
		G.WithLearnRate(learningRate),
		G.WithBatchSize(1),
	}
	if c.Clip > 0 {
		opts = append(opts, G.WithClip(c.Clip))
	}
	return G.NewVanillaSolver(opts...)
}
