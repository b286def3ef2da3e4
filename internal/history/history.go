// Package history records a bounded time series of training errors.
//
// When the series fills up, neighbouring samples are averaged in pairs and
// the recording step doubles, so the retained samples always span the whole
// training run at a coarser resolution.
package history

import "gonum.org/v1/gonum/stat"

// DefaultSize is the capacity used when none is given.
const DefaultSize = 1024

// History is a fixed-capacity series of error samples.
type History struct {
	values []float64
	n      int
	step   int
}

// New creates a history holding at most size samples, taken every step
// training calls. Non-positive arguments fall back to DefaultSize and 1.
// Odd sizes are rounded up so that compression halves the series exactly.
func New(size, step int) *History {
	if size <= 0 {
		size = DefaultSize
	}
	if size%2 != 0 {
		size++
	}
	if step <= 0 {
		step = 1
	}
	return &History{
		values: make([]float64, size),
		step:   step,
	}
}

// Add appends a sample, compressing the series first if it is full.
func (h *History) Add(v float64) {
	if h.n == len(h.values) {
		h.compress()
	}
	h.values[h.n] = v
	h.n++
}

func (h *History) compress() {
	half := len(h.values) / 2
	for i := 0; i < half; i++ {
		h.values[i] = (h.values[2*i] + h.values[2*i+1]) / 2
	}
	h.n = half
	h.step *= 2
}

// Values returns the recorded samples. The slice aliases internal storage.
func (h *History) Values() []float64 {
	return h.values[:h.n]
}

// Len returns the number of recorded samples.
func (h *History) Len() int {
	return h.n
}

// Cap returns the maximum number of samples retained.
func (h *History) Cap() int {
	return len(h.values)
}

// Step returns the number of training calls between consecutive samples.
func (h *History) Step() int {
	return h.step
}

// Max returns the largest recorded sample, or 0 when empty.
func (h *History) Max() float64 {
	m := 0.0
	for i, v := range h.Values() {
		if i == 0 || v > m {
			m = v
		}
	}
	return m
}

// Mean returns the mean of the recorded samples, or 0 when empty.
func (h *History) Mean() float64 {
	if h.n == 0 {
		return 0
	}
	return stat.Mean(h.Values(), nil)
}

// Restore replaces the contents with values recorded at the given step.
// Values beyond the capacity are compressed in.
func (h *History) Restore(values []float64, step int) {
	h.n = 0
	if step > 0 {
		h.step = step
	}
	for _, v := range values {
		h.Add(v)
	}
}
