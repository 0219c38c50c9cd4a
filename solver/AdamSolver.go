package solver

import G "gorgonia.org/gorgonia"

// newAdam returns a new Gorgonia Adam Solver as described by c
func newAdam(c Config, learningRate float64) G.Solver {
	opts := []G.SolverOpt{
		G.WithLearnRate(learningRate),
		G.WithEps(c.Epsilon),
		G.WithBeta1(c.Beta1),
		G.WithBeta2(c.Beta2),
		G.WithBatchSize(1),
	}
	if c.Clip > 0 {
		opts = append(opts, G.WithClip(c.Clip))
	}
	return G.NewAdamSolver(opts...)
}
