package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
)

// GradNorm returns the global L2 norm of the gradients of model
func GradNorm(model []G.ValueGrad) (float64, error) {
	sumSq := 0.0
	for i, vg := range model {
		grad, err := gradData(vg)
		if err != nil {
			return 0, fmt.Errorf("gradNorm: learnable %v: %v", i, err)
		}
		sumSq += floats.Dot(grad, grad)
	}
	return math.Sqrt(sumSq), nil
}

// ClipGradNorm scales the gradients of model in place so that their
// global L2 norm is at most maxNorm. If maxNorm <= 0, the gradients are
// left unchanged. The norm before clipping is returned.
func ClipGradNorm(model []G.ValueGrad, maxNorm float64) (float64, error) {
	norm, err := GradNorm(model)
	if err != nil {
		return 0, fmt.Errorf("clipGradNorm: %v", err)
	}
	if maxNorm <= 0 || norm <= maxNorm {
		return norm, nil
	}

	scale := maxNorm / (norm + 1e-6)
	for _, vg := range model {
		grad, _ := gradData(vg)
		floats.Scale(scale, grad)
	}
	return norm, nil
}

// gradData returns the backing data of the gradient of vg
func gradData(vg G.ValueGrad) ([]float64, error) {
	grad, err := vg.Grad()
	if err != nil {
		return nil, err
	}
	switch data := grad.Data().(type) {
	case []float64:
		return data, nil
	case float64:
		return nil, fmt.Errorf("scalar gradients are not supported")
	default:
		return nil, fmt.Errorf("unsupported gradient type %T", data)
	}
}
