package solver

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// param is a learnable with a fixed gradient
type param struct {
	value, grad *tensor.Dense
}

func newParam(value, grad []float64) *param {
	return &param{
		value: tensor.New(tensor.WithShape(len(value)), tensor.WithBacking(value)),
		grad:  tensor.New(tensor.WithShape(len(grad)), tensor.WithBacking(grad)),
	}
}

func (p *param) Value() G.Value          { return p.value }
func (p *param) Grad() (G.Value, error) { return p.grad, nil }

func TestClipGradNorm(t *testing.T) {
	a := newParam([]float64{1, 1}, []float64{3, 0})
	b := newParam([]float64{1}, []float64{4})
	model := []G.ValueGrad{a, b}

	norm, err := ClipGradNorm(model, 10)
	if err != nil {
		t.Fatal(err)
	}
	if norm != 5 {
		t.Errorf("clipGradNorm: \n\twant(5) \n\thave(%v)", norm)
	}
	if a.grad.Data().([]float64)[0] != 3 {
		t.Errorf("clipGradNorm: gradients below the bound were scaled")
	}

	norm, err = ClipGradNorm(model, 1)
	if err != nil {
		t.Fatal(err)
	}
	if norm != 5 {
		t.Errorf("clipGradNorm: should return the norm before clipping, "+
			"have %v", norm)
	}
	clipped, _ := GradNorm(model)
	if math.Abs(clipped-1) > 1e-5 {
		t.Errorf("clipGradNorm: \n\twant norm(1) \n\thave(%v)", clipped)
	}
}

func TestNew(t *testing.T) {
	for _, kind := range []Type{Adam, RMSProp, Vanilla, "ADAM"} {
		c := DefaultConfig()
		c.Type = kind
		s, err := New(c, 1e-3)
		if err != nil {
			t.Errorf("new(%v): %v", kind, err)
			continue
		}
		if s.LearningRate() != 1e-3 {
			t.Errorf("new(%v): wrong learning rate %v", kind, s.LearningRate())
		}
	}

	c := DefaultConfig()
	c.Type = "lbfgs"
	if _, err := New(c, 1e-3); err == nil {
		t.Errorf("new: expected error on unknown type")
	}
	if _, err := New(DefaultConfig(), 0); err == nil {
		t.Errorf("new: expected error on zero learning rate")
	}

	c = DefaultConfig()
	c.Beta1 = 1
	if _, err := New(c, 1e-3); err == nil {
		t.Errorf("new: expected error on invalid β1")
	}
}

func TestStep(t *testing.T) {
	for _, kind := range []Type{Adam, Vanilla} {
		c := DefaultConfig()
		c.Type = kind
		s, err := New(c, 0.1)
		if err != nil {
			t.Fatal(err)
		}

		p := newParam([]float64{1, -1}, []float64{2, -2})
		if _, err := s.Step([]G.ValueGrad{p}, 0); err != nil {
			t.Fatalf("step(%v): %v", kind, err)
		}
		w := p.value.Data().([]float64)
		if w[0] >= 1 || w[1] <= -1 {
			t.Errorf("step(%v): weights should move against the gradient, "+
				"have %v", kind, w)
		}

		// Changing the learning rate keeps the solver usable
		s.SetLearningRate(0.01)
		if s.LearningRate() != 0.01 {
			t.Errorf("setLearningRate(%v): have %v", kind, s.LearningRate())
		}
		p.grad = tensor.New(tensor.WithShape(2),
			tensor.WithBacking([]float64{2, -2}))
		if _, err := s.Step([]G.ValueGrad{p}, 0); err != nil {
			t.Fatalf("step(%v): %v", kind, err)
		}
	}
}

func TestStepNonFinite(t *testing.T) {
	s, err := New(DefaultConfig(), 0.1)
	if err != nil {
		t.Fatal(err)
	}
	p := newParam([]float64{1}, []float64{math.NaN()})
	if _, err := s.Step([]G.ValueGrad{p}, 0.5); err == nil {
		t.Errorf("step: expected error on NaN gradient")
	}
}
