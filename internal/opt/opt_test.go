package opt

import (
	"math"
	"testing"
)

// TestSGDStepInPlace tests in-place SGD update.
func TestSGDStepInPlace(t *testing.T) {
	sgd := SGD{LearningRate: 0.5}

	params := []float64{1.0, 0.0}
	// gradient = params - target, target = {0, 1}
	gradients := []float64{1.0, -1.0}

	sgd.StepInPlace(params, gradients)

	expected := []float64{0.5, 0.5}
	for i := range params {
		if math.Abs(params[i]-expected[i]) > 1e-10 {
			t.Errorf("params[%d] = %v, want %v", i, params[i], expected[i])
		}
	}
}

// TestSGDZeroLearningRate tests that a zero rate leaves params unchanged.
func TestSGDZeroLearningRate(t *testing.T) {
	var o Optimizer = SGD{}

	params := []float64{0.25, 0.75}
	o.StepInPlace(params, []float64{10, -10})

	if params[0] != 0.25 || params[1] != 0.75 {
		t.Errorf("params = %v, want [0.25 0.75]", params)
	}
}
