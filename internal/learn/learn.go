// Package learn provides the feature-update rules used to train the
// templates of a convolution layer.
package learn

import (
	"gonum.org/v1/gonum/floats"

	"github.com/mylittlememory/libdeep/internal/opt"
	"github.com/mylittlememory/libdeep/internal/rng"
)

// Patch describes one layer's activation grid together with the feature
// bank being trained against it. Buffers are shared with the owning layer
// and Features is updated in place.
type Patch struct {
	Activation   []float64
	Width        int
	Height       int
	Depth        int
	FeatureWidth int
	NumFeatures  int
	Features     []float64
}

// TemplateSize returns the number of scalars in a single feature template.
func (p Patch) TemplateSize() int {
	return p.FeatureWidth * p.FeatureWidth * p.Depth
}

// Template returns the slice of Features holding template f.
func (p Patch) Template(f int) []float64 {
	size := p.TemplateSize()
	return p.Features[f*size : (f+1)*size]
}

// Learner updates the feature bank of a patch and returns an error
// contribution for the pass, lower being a better match.
//
// scores has one entry per feature and may be used as scratch space.
// samples is the number of draws the caller intends for the whole training
// call; seed is advanced in place.
type Learner interface {
	Learn(p Patch, scores []float64, samples int, rate float64, seed *rng.State) float64
}

// LearnerFunc adapts a plain function to the Learner interface.
type LearnerFunc func(p Patch, scores []float64, samples int, rate float64, seed *rng.State) float64

// Learn calls f.
func (f LearnerFunc) Learn(p Patch, scores []float64, samples int, rate float64, seed *rng.State) float64 {
	return f(p, scores, samples, rate, seed)
}

// Competitive is a winner-take-all rule. Each draw picks a random
// FeatureWidth x FeatureWidth window from the activation, scores every
// template by mean squared difference, and moves only the best template
// toward the window. The returned value is the mean winning error.
type Competitive struct {
	// Draws per call. Zero means use the samples argument.
	Draws int

	// Optimizer moves the winning template. Nil means SGD at the rate
	// passed to Learn; a non-nil Optimizer ignores that rate.
	Optimizer opt.Optimizer
}

// Learn implements Learner.
func (c Competitive) Learn(p Patch, scores []float64, samples int, rate float64, seed *rng.State) float64 {
	draws := c.Draws
	if draws <= 0 {
		draws = samples
	}
	if draws <= 0 || p.NumFeatures <= 0 || p.FeatureWidth <= 0 {
		return 0
	}

	size := p.TemplateSize()
	window := make([]float64, size)
	grad := make([]float64, size)
	step := c.Optimizer
	if step == nil {
		step = opt.SGD{LearningRate: rate}
	}
	scores = scores[:p.NumFeatures]

	total := 0.0
	for s := 0; s < draws; s++ {
		x := seed.Intn(p.Width - p.FeatureWidth + 1)
		y := seed.Intn(p.Height - p.FeatureWidth + 1)
		SampleWindow(p, x, y, window)

		for f := range scores {
			d := floats.Distance(window, p.Template(f), 2)
			scores[f] = d * d / float64(size)
		}
		best := floats.MinIdx(scores)

		// gradient of 0.5*|t-w|^2 with respect to t
		tmpl := p.Template(best)
		floats.SubTo(grad, tmpl, window)
		step.StepInPlace(tmpl, grad)

		total += scores[best]
	}
	return total / float64(draws)
}

// SampleWindow copies the FeatureWidth x FeatureWidth window whose top-left
// corner is (x, y) into dst, laid out like a feature template. Coordinates
// past the edge of the activation grid are clamped to the last row/column.
func SampleWindow(p Patch, x, y int, dst []float64) {
	fw := p.FeatureWidth
	depth := p.Depth
	for yy := 0; yy < fw; yy++ {
		sy := min(y+yy, p.Height-1)
		for xx := 0; xx < fw; xx++ {
			sx := min(x+xx, p.Width-1)
			n0 := (sy*p.Width + sx) * depth
			n1 := (yy*fw + xx) * depth
			copy(dst[n1:n1+depth], p.Activation[n0:n0+depth])
		}
	}
}
