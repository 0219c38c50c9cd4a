package solver

import G "gorgonia.org/gorgonia"

// newRMSProp returns a new Gorgonia RMSProp Solver as described by c.
// Only the default value of η = 0.001 is supported by Gorgonia.
func newRMSProp(c Config, learningRate float64) G.Solver {
	opts := []G.SolverOpt{
		G.WithLearnRate(learningRate),
		G.WithEps(c.Epsilon),
		G.WithRho(c.Rho),
		G.WithBatchSize(1),
	}
	if c.Clip > 0 {
		opts = append(opts, G.WithClip(c.Clip))
	}
	return G.NewRMSPropSolver(opts...)
}
