package vector

import (
	"errors"
	"fmt"
	"testing"

	env "github.com/samuelfneumann/goppo/environment"
	"github.com/samuelfneumann/goppo/environment/classiccontrol/cartpole"
	ts "github.com/samuelfneumann/goppo/timestep"
	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"
)

// counter is an environment whose observation is the number of steps
// taken, rewarding each step with the action taken. Episodes end after
// a fixed number of steps.
type counter struct {
	episodeSteps int
	steps        int
	resets       int
}

func (c *counter) Reset() (ts.TimeStep, error) {
	c.steps = 0
	c.resets++
	return ts.New(ts.First, 0, 1, mat.NewVecDense(2, []float64{0, 1}), 0), nil
}

func (c *counter) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if a.AtVec(0) < 0 {
		return ts.TimeStep{}, false, fmt.Errorf("negative action")
	}
	c.steps++
	obs := mat.NewVecDense(2, []float64{float64(c.steps), 1})
	t := ts.New(ts.Mid, a.AtVec(0), 1, obs, c.steps)
	if c.steps >= c.episodeSteps {
		t.SetEnd(ts.Timeout)
	}
	return t, t.Last(), nil
}

func (c *counter) ObservationSpec() env.Spec {
	return env.NewSpec(2, env.Observation, mat.NewVecDense(2, nil),
		mat.NewVecDense(2, []float64{100, 1}), env.Continuous)
}

func (c *counter) ActionSpec() env.Spec {
	return env.NewSpec(1, env.Action, mat.NewVecDense(1, nil),
		mat.NewVecDense(1, []float64{1}), env.Discrete)
}

func ones(rows int) *mat.Dense {
	a := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		a.Set(i, 0, 1)
	}
	return a
}

func TestBatch(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		Convey(fmt.Sprintf("Given a batch with parallel=%v", parallel), t,
			func() {
				envs := []env.Environment{
					&counter{episodeSteps: 2},
					&counter{episodeSteps: 3},
				}
				b, err := New(envs, WithParallel(parallel))
				So(err, ShouldBeNil)
				So(b.Len(), ShouldEqual, 2)
				So(b.ObservationDim(), ShouldEqual, 2)
				So(b.ActionDim(), ShouldEqual, 1)

				Convey("Stepping before a reset fails", func() {
					_, err := b.Step(ones(2))
					So(err, ShouldNotBeNil)
				})

				Convey("After a reset", func() {
					obs, err := b.Reset()
					So(err, ShouldBeNil)
					So(obs.At(1, 1), ShouldEqual, 1.0)

					Convey("Stepping reports rewards and observations",
						func() {
							step, err := b.Step(ones(2))
							So(err, ShouldBeNil)
							So(step.Rewards, ShouldResemble, []float64{1, 1})
							So(step.Dones, ShouldResemble, []bool{false, false})
							So(step.Observations.At(0, 0), ShouldEqual, 1.0)
							So(step.Episodes, ShouldBeEmpty)
						})

					Convey("Episode totals are reported once, at the done "+
						"step", func() {
						_, err := b.Step(ones(2))
						So(err, ShouldBeNil)
						step, err := b.Step(ones(2))
						So(err, ShouldBeNil)
						So(step.Dones, ShouldResemble, []bool{true, false})
						So(len(step.Episodes), ShouldEqual, 1)
						So(step.Episodes[0], ShouldResemble, Episode{
							Env: 0, Reward: 2, Length: 2, End: ts.Timeout,
						})

						Convey("Stepping a done environment fails", func() {
							_, err := b.Step(ones(2))
							So(errors.Is(err, ErrNotReset), ShouldBeTrue)
						})

						Convey("Resetting the done environment starts a new "+
							"episode", func() {
							start, err := b.ResetEnv(0)
							So(err, ShouldBeNil)
							So(start.AtVec(0), ShouldEqual, 0.0)

							step, err := b.Step(ones(2))
							So(err, ShouldBeNil)
							So(step.Dones, ShouldResemble, []bool{false, true})
							So(step.Episodes[0].Length, ShouldEqual, 3)
							So(step.Episodes[0].Reward, ShouldEqual, 3.0)
						})
					})

					Convey("Environment errors are returned", func() {
						actions := mat.NewDense(2, 1, []float64{1, -1})
						_, err := b.Step(actions)
						So(err, ShouldNotBeNil)
					})

					Convey("Actions of the wrong shape fail", func() {
						_, err := b.Step(ones(3))
						So(err, ShouldNotBeNil)
					})
				})

				Convey("ResetEnv checks its index", func() {
					_, err := b.ResetEnv(2)
					So(err, ShouldNotBeNil)
				})
			})
	}
}

func TestBatchCartpole(t *testing.T) {
	Convey("Given a batch of cartpoles", t, func() {
		envs := make([]env.Environment, 3)
		for i := range envs {
			task, err := cartpole.NewBalance(cartpole.NewStarter(uint64(i)),
				500, cartpole.FailAngle)
			So(err, ShouldBeNil)
			envs[i] = cartpole.New(task, 0.99, cartpole.TwoActions())
		}
		b, err := New(envs, WithParallel(true))
		So(err, ShouldBeNil)

		Convey("Pushing right drops the poles with a failure", func() {
			_, err := b.Reset()
			So(err, ShouldBeNil)

			done := make([]bool, 3)
			for step := 0; step < 500; step++ {
				for i := range done {
					if done[i] {
						_, err := b.ResetEnv(i)
						So(err, ShouldBeNil)
					}
				}
				s, err := b.Step(ones(3))
				So(err, ShouldBeNil)
				copy(done, s.Dones)
				for _, ep := range s.Episodes {
					So(ep.End, ShouldEqual, ts.Failure)
				}
				if len(s.Episodes) > 0 {
					break
				}
			}
		})
	})

	Convey("Environments must share dimensions", t, func() {
		task, err := cartpole.NewBalance(cartpole.NewStarter(0), 10,
			cartpole.FailAngle)
		So(err, ShouldBeNil)
		envs := []env.Environment{
			cartpole.New(task, 0.99), &counter{episodeSteps: 1},
		}
		_, err = New(envs)
		So(err, ShouldNotBeNil)

		_, err = New(nil)
		So(err, ShouldNotBeNil)
	})
}
