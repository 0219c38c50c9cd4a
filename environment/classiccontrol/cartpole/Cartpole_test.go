package cartpole

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	ts "github.com/samuelfneumann/goppo/timestep"
)

func newCartpole(t *testing.T, steps int, opts ...Option) *Cartpole {
	task, err := NewBalance(NewStarter(1), steps, FailAngle)
	if err != nil {
		t.Fatal(err)
	}
	return New(task, 0.99, opts...)
}

func TestStepBeforeReset(t *testing.T) {
	c := newCartpole(t, 10)
	if _, _, err := c.Step(mat.NewVecDense(1, []float64{1})); err == nil {
		t.Errorf("step: expected error before reset")
	}
}

func TestIllegalAction(t *testing.T) {
	c := newCartpole(t, 10, TwoActions())
	if _, err := c.Reset(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Step(mat.NewVecDense(1, []float64{2})); err == nil {
		t.Errorf("step: expected error on illegal action")
	}

	actions, err := c.ActionSpec().Actions()
	if err != nil {
		t.Fatal(err)
	}
	if actions != 2 {
		t.Errorf("actions: want(2) have(%v)", actions)
	}
}

func TestStepLimitEndsEpisode(t *testing.T) {
	steps := 5
	c := newCartpole(t, steps)
	if _, err := c.Reset(); err != nil {
		t.Fatal(err)
	}

	// Doing nothing keeps a near upright pole up for a few steps
	noop := mat.NewVecDense(1, []float64{1})
	var step ts.TimeStep
	var done bool
	var err error
	for i := 0; i < steps; i++ {
		step, done, err = c.Step(noop)
		if err != nil {
			t.Fatal(err)
		}
		if step.Reward != 1.0 {
			t.Errorf("reward: want(1) have(%v)", step.Reward)
		}
		if done != (i == steps-1) {
			t.Errorf("step %v: done want(%v) have(%v)", i, i == steps-1,
				done)
		}
	}
	if step.EndType() != ts.Success {
		t.Errorf("endType: want(%v) have(%v)", ts.Success, step.EndType())
	}

	if _, _, err := c.Step(noop); err == nil {
		t.Errorf("step: expected error after episode end")
	}
}

func TestPoleFalls(t *testing.T) {
	c := newCartpole(t, 10000)
	if _, err := c.Reset(); err != nil {
		t.Fatal(err)
	}

	// Always pushing right eventually tips the pole over
	right := mat.NewVecDense(1, []float64{2})
	for i := 0; i < 10000; i++ {
		step, done, err := c.Step(right)
		if err != nil {
			t.Fatal(err)
		}
		if done {
			if step.EndType() != ts.Failure {
				t.Errorf("endType: want(%v) have(%v)", ts.Failure,
					step.EndType())
			}
			if step.Reward != -1.0 {
				t.Errorf("reward: want(-1) have(%v)", step.Reward)
			}
			return
		}
	}
	t.Errorf("step: pole never fell")
}
