package ppo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/samuelfneumann/goppo/agent"
	"github.com/samuelfneumann/goppo/agent/nonlinear/discrete/actorcritic"
	env "github.com/samuelfneumann/goppo/environment"
	"github.com/samuelfneumann/goppo/environment/classiccontrol/cartpole"
	"github.com/samuelfneumann/goppo/environment/vector"
	"github.com/samuelfneumann/goppo/experiment/metrics"
	"github.com/samuelfneumann/goppo/experiment/tracker"
	"github.com/samuelfneumann/goppo/solver/schedule"
	ts "github.com/samuelfneumann/goppo/timestep"
	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"
)

// chain is an environment whose observation is the number of steps
// taken in the current episode. Each step is rewarded with 1, and
// episodes end successfully after a fixed number of steps.
type chain struct {
	length int
	steps  int
	resets int
}

func (c *chain) Reset() (ts.TimeStep, error) {
	c.steps = 0
	c.resets++
	return ts.New(ts.First, 0, 1, mat.NewVecDense(2, []float64{0, 1}), 0), nil
}

func (c *chain) Step(*mat.VecDense) (ts.TimeStep, bool, error) {
	c.steps++
	obs := mat.NewVecDense(2, []float64{float64(c.steps), 1})
	t := ts.New(ts.Mid, 1, 1, obs, c.steps)
	if c.steps >= c.length {
		t.SetEnd(ts.Success)
	}
	return t, t.Last(), nil
}

func (c *chain) ObservationSpec() env.Spec {
	return env.NewSpec(2, env.Observation, mat.NewVecDense(2, nil),
		mat.NewVecDense(2, []float64{100, 1}), env.Continuous)
}

func (c *chain) ActionSpec() env.Spec {
	return env.NewSpec(1, env.Action, mat.NewVecDense(1, nil),
		mat.NewVecDense(1, []float64{1}), env.Discrete)
}

// model is an actor-critic whose log-probabilities drift by shift
// between acting and training. In evaluation mode Infer fails with
// evalErr, and extraLogProb makes Infer return one log-probability too
// many.
type model struct {
	eval    bool
	lr      float64
	logProb float64
	shift   float64
	value   float64

	evalErr      error
	extraLogProb bool

	batch     int
	forwards  int
	optimizes int
	losses    []agent.Loss
}

func (m *model) Eval()        { m.eval = true }
func (m *model) Train()       { m.eval = false }
func (m *model) IsEval() bool { return m.eval }

func (m *model) SetLearningRate(lr float64) { m.lr = lr }
func (m *model) LearningRate() float64      { return m.lr }

func (m *model) Infer(obs *mat.Dense) (agent.Inference, error) {
	if m.eval && m.evalErr != nil {
		return agent.Inference{}, m.evalErr
	}
	r, _ := obs.Dims()
	n := r
	if m.extraLogProb {
		n++
	}
	return agent.Inference{
		Actions:  mat.NewDense(r, 1, nil),
		Values:   fill(r, m.value),
		LogProbs: fill(n, m.logProb),
	}, nil
}

func (m *model) Forward(obs, actions *mat.Dense) (agent.Evaluation, error) {
	r, _ := obs.Dims()
	m.batch = r
	m.forwards++
	return agent.Evaluation{
		LogProbs: fill(r, m.logProb-m.shift),
		Entropy:  fill(r, 0.5),
		Values:   fill(r, m.value),
	}, nil
}

func (m *model) Optimize(loss agent.Loss) error {
	if err := loss.Validate(m.batch); err != nil {
		return err
	}
	m.optimizes++
	m.losses = append(m.losses, loss)
	return nil
}

func fill(n int, v float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = v
	}
	return x
}

// recorder is a Checkpointer which records the checkpointed updates
type recorder struct {
	updates []int
	metrics []float64
	err     error
}

func (r *recorder) Checkpoint(update int, metric float64) error {
	r.updates = append(r.updates, update)
	r.metrics = append(r.metrics, metric)
	return r.err
}

func testConfig() Config {
	c := DefaultConfig()
	c.NumEnvs = 2
	c.RolloutSteps = 4
	c.MiniBatchSize = 3
	c.PPOEpochs = 2
	c.UseLRSchedule = false
	c.EvalFrequency = 0
	c.SaveFrequency = 0
	return c
}

func chains(n, length int) ([]*chain, *vector.Batch) {
	cs := make([]*chain, n)
	envs := make([]env.Environment, n)
	for i := range cs {
		cs[i] = &chain{length: length}
		envs[i] = cs[i]
	}
	b, err := vector.New(envs)
	if err != nil {
		panic(err)
	}
	return cs, b
}

func TestNew(t *testing.T) {
	Convey("Given a model and two environments", t, func() {
		m := &model{logProb: -0.7, value: 0.5}
		_, envs := chains(2, 3)

		Convey("A valid configuration creates a Trainer", func() {
			tr, err := New(m, envs, testConfig(), WithSeed(1))
			So(err, ShouldBeNil)
			So(tr.Updates(), ShouldEqual, 0)
			So(m.LearningRate(), ShouldEqual, testConfig().LearningRate)
		})

		Convey("A mismatched num_envs fails before stepping", func() {
			c := testConfig()
			c.NumEnvs = 3
			_, err := New(m, envs, c)
			So(errors.Is(err, ErrConfig), ShouldBeTrue)
		})

		Convey("Invalid hyperparameters fail", func() {
			for _, mutate := range []func(*Config){
				func(c *Config) { c.ClipRatio = 0 },
				func(c *Config) { c.ValueClipRatio = -0.1 },
				func(c *Config) { c.PPOEpochs = 0 },
				func(c *Config) { c.MiniBatchSize = 9 },
				func(c *Config) { c.Gamma = 1.1 },
				func(c *Config) { c.GAELambda = -1 },
				func(c *Config) { c.LearningRate = 0 },
				func(c *Config) { c.UseKLPenalty = true; c.TargetKL = 0 },
			} {
				c := testConfig()
				mutate(&c)
				_, err := New(m, envs, c)
				So(errors.Is(err, ErrConfig), ShouldBeTrue)
			}
		})

		Convey("Evaluation requires evaluation environments", func() {
			c := testConfig()
			c.EvalFrequency = 1
			_, err := New(m, envs, c)
			So(errors.Is(err, ErrConfig), ShouldBeTrue)
		})
	})
}

func TestCollectExperience(t *testing.T) {
	Convey("Given a Trainer over environments with 2-step episodes", t,
		func() {
			m := &model{logProb: -0.7, value: 0.5}
			cs, envs := chains(2, 2)
			c := testConfig()
			c.RolloutSteps = 3
			tr, err := New(m, envs, c)
			So(err, ShouldBeNil)
			So(tr.CollectExperience(), ShouldBeNil)

			Convey("The terminal transition keeps its reward and done", func() {
				last, err := tr.buffer.At(1, 0)
				So(err, ShouldBeNil)
				So(last.Done, ShouldBeTrue)
				So(last.Reward, ShouldEqual, 1.0)
				So(last.Observation, ShouldResemble, []float64{1, 1})
			})

			Convey("The next observation is from the reset environment",
				func() {
					next, err := tr.buffer.At(2, 1)
					So(err, ShouldBeNil)
					So(next.Observation, ShouldResemble, []float64{0, 1})
					So(next.Done, ShouldBeFalse)
					So(cs[1].resets, ShouldEqual, 2)
				})

			Convey("Completed episodes are counted", func() {
				stats, err := tr.rolloutStats()
				So(err, ShouldBeNil)
				So(stats.EpisodesCompleted, ShouldEqual, 2)
				So(stats.MeanEpisodeReward, ShouldEqual, 2.0)
				So(stats.MeanEpisodeLength, ShouldEqual, 2.0)
				So(stats.MeanStepReward, ShouldEqual, 1.0)
			})

			Convey("Episodes continue across rollouts", func() {
				So(tr.CollectExperience(), ShouldBeNil)
				first, err := tr.buffer.At(0, 0)
				So(err, ShouldBeNil)
				So(first.Observation, ShouldResemble, []float64{1, 1})
				So(cs[0].resets, ShouldEqual, 4)
			})
		})

	Convey("Given a rollout which fails after its environments ended", t,
		func() {
			m := &model{logProb: -0.7, value: 0.5, extraLogProb: true}
			_, envs := chains(2, 1)
			tr, err := New(m, envs, testConfig())
			So(err, ShouldBeNil)
			So(tr.CollectExperience(), ShouldNotBeNil)

			Convey("The next rollout starts from reset environments",
				func() {
					m.extraLogProb = false
					So(tr.CollectExperience(), ShouldBeNil)
					first, err := tr.buffer.At(0, 0)
					So(err, ShouldBeNil)
					So(first.Observation, ShouldResemble, []float64{0, 1})
				})
		})
}

func TestUpdate(t *testing.T) {
	Convey("Given a Trainer with 3 minibatches per epoch", t, func() {
		m := &model{logProb: -0.7, value: 0.5}
		_, envs := chains(2, 3)
		c := testConfig()
		scalars := tracker.NewScalars()
		tr, err := New(m, envs, c, WithTracker(scalars), WithSeed(3))
		So(err, ShouldBeNil)

		Convey("An update runs every epoch", func() {
			stats, err := tr.Update()
			So(err, ShouldBeNil)
			So(stats.Update, ShouldEqual, 1)
			So(stats.EpochsRun, ShouldEqual, 2)
			So(stats.EarlyStopped, ShouldBeFalse)
			So(m.forwards, ShouldEqual, 6)
			So(m.optimizes, ShouldEqual, 6)
			So(math.IsNaN(stats.TotalLoss), ShouldBeFalse)
			So(stats.KL, ShouldEqual, 0.0)
			So(tr.Stats(), ShouldResemble, stats)

			Convey("Gradients are clipped by max_grad_norm", func() {
				for _, loss := range m.losses {
					So(loss.MaxGradNorm, ShouldEqual, c.MaxGradNorm)
				}
			})

			Convey("The short last minibatch is optimized", func() {
				So(len(m.losses[2].DLogProb), ShouldEqual, 2)
			})

			Convey("Scalars are logged at the update", func() {
				latest, ok := scalars.Latest("policy_loss")
				So(ok, ShouldBeTrue)
				So(latest.Step, ShouldEqual, 1)
				So(latest.Value, ShouldEqual, stats.PolicyLoss)
			})
		})

		Convey("UpdatePolicy returns the mean total loss", func() {
			So(tr.CollectExperience(), ShouldBeNil)
			loss, err := tr.UpdatePolicy()
			So(err, ShouldBeNil)
			So(math.IsInf(loss, 0) || math.IsNaN(loss), ShouldBeFalse)
		})
	})
}

func TestEarlyStop(t *testing.T) {
	Convey("Given a policy whose KL divergence is twice the target", t,
		func() {
			m := &model{logProb: -0.7, shift: 0.02, value: 0.5}
			_, envs := chains(2, 3)
			c := testConfig()
			c.PPOEpochs = 4
			c.UseKLPenalty = true
			c.TargetKL = 0.01
			tr, err := New(m, envs, c)
			So(err, ShouldBeNil)

			Convey("Training stops after the first epoch", func() {
				stats, err := tr.Update()
				So(err, ShouldBeNil)
				So(stats.EarlyStopped, ShouldBeTrue)
				So(stats.EpochsRun, ShouldEqual, 1)
				So(m.optimizes, ShouldEqual, 3)
				So(stats.KL, ShouldAlmostEqual, 0.02, 1e-12)
				So(math.IsNaN(stats.TotalLoss), ShouldBeFalse)
			})

			Convey("Without the KL penalty every epoch runs", func() {
				c.UseKLPenalty = false
				tr, err := New(m, envs, c)
				So(err, ShouldBeNil)
				stats, err := tr.Update()
				So(err, ShouldBeNil)
				So(stats.EarlyStopped, ShouldBeFalse)
				So(stats.EpochsRun, ShouldEqual, 4)
			})
		})
}

func TestSchedule(t *testing.T) {
	Convey("Given a Trainer with a learning rate schedule", t, func() {
		m := &model{logProb: -0.7, value: 0.5}
		_, envs := chains(2, 3)
		c := testConfig()
		c.UseLRSchedule = true
		lr := schedule.Func(func(u int) float64 { return 1 / float64(u+1) })
		tr, err := New(m, envs, c, WithSchedule(lr))
		So(err, ShouldBeNil)

		Convey("The learning rate follows the number of updates", func() {
			for u := 1; u <= 3; u++ {
				stats, err := tr.Update()
				So(err, ShouldBeNil)
				So(stats.LearningRate, ShouldEqual, 1/float64(u+1))
				So(m.LearningRate(), ShouldEqual, 1/float64(u+1))
			}
		})

		Convey("SetLearningRate forwards to the model", func() {
			tr.SetLearningRate(0.5)
			So(m.LearningRate(), ShouldEqual, 0.5)
		})
	})
}

func TestTrain(t *testing.T) {
	Convey("Given a Trainer", t, func() {
		m := &model{logProb: -0.7, value: 0.5}
		_, envs := chains(2, 3)
		var tr *Trainer
		var err error
		tr, err = New(m, envs, testConfig(), WithCallback(func(s Stats) {
			if s.Update == 2 {
				tr.Stop()
			}
		}))
		So(err, ShouldBeNil)

		Convey("Train runs the requested updates", func() {
			So(tr.Train(context.Background(), 1), ShouldBeNil)
			So(tr.Updates(), ShouldEqual, 1)
		})

		Convey("Stop ends training after the current cycle", func() {
			So(tr.Train(context.Background(), 10), ShouldBeNil)
			So(tr.Updates(), ShouldEqual, 2)
		})

		Convey("A cancelled context ends training before a cycle", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := tr.Train(ctx, 10)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(tr.Updates(), ShouldEqual, 0)
		})
	})
}

func TestEvaluate(t *testing.T) {
	Convey("Given a Trainer with evaluation environments", t, func() {
		m := &model{logProb: -0.7, value: 0.5}
		_, envs := chains(2, 3)
		_, evalEnvs := chains(1, 3)
		c := testConfig()
		c.EvalFrequency = 2
		c.EvalEpisodes = 4
		registry := metrics.NewRegistry()
		So(registry.Register("max_length", func(eps []metrics.Episode) float64 {
			longest := 0
			for _, ep := range eps {
				if ep.Length > longest {
					longest = ep.Length
				}
			}
			return float64(longest)
		}), ShouldBeNil)
		tr, err := New(m, envs, c, WithEvaluation(evalEnvs, 0),
			WithMetrics(registry))
		So(err, ShouldBeNil)

		Convey("Evaluation summarizes complete episodes", func() {
			agg, err := tr.Evaluate(3)
			So(err, ShouldBeNil)
			So(agg.Count, ShouldEqual, 3)
			So(agg.MeanReward, ShouldEqual, 3.0)
			So(agg.SuccessRate, ShouldEqual, 1.0)
			So(m.IsEval(), ShouldBeFalse)
		})

		Convey("Episodes are cut off after eval_max_steps", func() {
			tr.cfg.EvalMaxSteps = 2
			agg, err := tr.Evaluate(2)
			So(err, ShouldBeNil)
			So(agg.MeanReward, ShouldEqual, 2.0)
			So(agg.SuccessRate, ShouldEqual, 0.0)
		})

		Convey("Evaluation runs every eval_frequency updates", func() {
			first, err := tr.Update()
			So(err, ShouldBeNil)
			So(first.Evaluated, ShouldBeFalse)

			second, err := tr.Update()
			So(err, ShouldBeNil)
			So(second.Evaluated, ShouldBeTrue)
			So(second.EvalReward, ShouldEqual, 3.0)
			So(second.EvalCustom["max_length"], ShouldEqual, 3.0)
			So(second.scalars()["eval_max_length"], ShouldEqual, 3.0)

			last, ok := tr.LastEvaluation()
			So(ok, ShouldBeTrue)
			So(last.Count, ShouldEqual, 4)
		})

		Convey("A failed evaluation keeps the update", func() {
			tr.cfg.EvalFrequency = 1
			m.evalErr = errors.New("evaluation failed")
			stats, err := tr.Update()
			So(err, ShouldBeNil)
			So(stats.Update, ShouldEqual, 1)
			So(stats.Evaluated, ShouldBeFalse)
			So(tr.Updates(), ShouldEqual, 1)
			So(tr.Stats(), ShouldResemble, stats)
			So(m.IsEval(), ShouldBeFalse)

			_, ok := tr.LastEvaluation()
			So(ok, ShouldBeFalse)
		})
	})
}

func TestCheckpoint(t *testing.T) {
	Convey("Given a Trainer checkpointing every 2 updates", t, func() {
		m := &model{logProb: -0.7, value: 0.5}
		_, envs := chains(2, 3)
		c := testConfig()
		c.SaveFrequency = 2
		rec := &recorder{}
		tr, err := New(m, envs, c, WithCheckpointer(rec))
		So(err, ShouldBeNil)

		Convey("Checkpoints carry the mean episode reward", func() {
			So(tr.Train(context.Background(), 4), ShouldBeNil)
			So(rec.updates, ShouldResemble, []int{2, 4})
			for _, metric := range rec.metrics {
				So(metric, ShouldEqual, 3.0)
			}
		})

		Convey("Checkpoint failures do not stop training", func() {
			rec.err = fmt.Errorf("disk full")
			So(tr.Train(context.Background(), 2), ShouldBeNil)
			So(tr.Updates(), ShouldEqual, 2)
		})
	})
}

func TestCartpole(t *testing.T) {
	Convey("Given a categorical actor-critic on cartpole", t, func() {
		c := testConfig()
		c.RolloutSteps = 16
		c.MiniBatchSize = 8
		c.EvalFrequency = 1
		c.EvalEpisodes = 1
		c.EvalMaxSteps = 20

		newBatch := func(n int, seed uint64) *vector.Batch {
			envs := make([]env.Environment, n)
			for i := range envs {
				task, err := cartpole.NewBalance(
					cartpole.NewStarter(seed+uint64(i)), 50, cartpole.FailAngle)
				So(err, ShouldBeNil)
				envs[i] = cartpole.New(task, 0.99, cartpole.TwoActions())
			}
			b, err := vector.New(envs)
			So(err, ShouldBeNil)
			return b
		}

		mc := actorcritic.DefaultConfig()
		mc.Hidden = []int{8}
		m, err := actorcritic.New(4, 2, c.MiniBatchSize, c.NumEnvs, mc,
			c.LearningRate, 1)
		So(err, ShouldBeNil)

		tr, err := New(m, newBatch(c.NumEnvs, 0), c,
			WithEvaluation(newBatch(1, 100), 0))
		So(err, ShouldBeNil)

		Convey("Training cycles produce finite statistics", func() {
			So(tr.Train(context.Background(), 2), ShouldBeNil)
			stats := tr.Stats()
			So(stats.Update, ShouldEqual, 2)
			So(math.IsNaN(stats.TotalLoss), ShouldBeFalse)
			So(stats.Evaluated, ShouldBeTrue)
			So(stats.EvalReward, ShouldBeGreaterThan, 0)
			So(m.IsEval(), ShouldBeFalse)
		})
	})
}
