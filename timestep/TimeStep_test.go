package timestep

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestEndType(t *testing.T) {
	step := New(Mid, 1.0, 0.99, mat.NewVecDense(2, nil), 3)
	if step.EndType() != Running {
		t.Errorf("endType: want(%v) have(%v)", Running, step.EndType())
	}

	step.SetEnd(Failure)
	if !step.Last() {
		t.Errorf("setEnd: step should be last")
	}
	if step.EndType() != Failure {
		t.Errorf("endType: want(%v) have(%v)", Failure, step.EndType())
	}
}

func TestString(t *testing.T) {
	if s := Last.String(); s != "Last" {
		t.Errorf("string: want(Last) have(%v)", s)
	}
	if s := EndType(9).String(); s != "EndType(9)" {
		t.Errorf("string: want(EndType(9)) have(%v)", s)
	}

	step := New(First, 0, 1, mat.NewVecDense(1, nil), 0)
	want := "TimeStep{First #0 reward=0.00 discount=1.00 end=Running}"
	if step.String() != want {
		t.Errorf("string: \n\twant(%v) \n\thave(%v)", want, step.String())
	}
}
