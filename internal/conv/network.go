// Package conv implements an unsupervised convolutional feature pyramid.
//
// A Network is a stack of shrinking layers, each holding a bank of square
// feature templates. Images are propagated by comparing every template with
// a resampled region of the previous layer, and layers are trained one at a
// time: once the accumulated matching error of the current layer drops below
// its threshold, training moves on to the next layer.
package conv

import (
	"github.com/mylittlememory/libdeep/internal/history"
	"github.com/mylittlememory/libdeep/internal/learn"
	"github.com/mylittlememory/libdeep/internal/rng"
)

// Layer is one stage of the pyramid.
type Layer struct {
	Width        int
	Height       int
	Depth        int // channels feeding into this layer
	NumFeatures  int
	FeatureWidth int

	// Activation is Width*Height*Depth scalars, row-major, channel innermost.
	Activation []float64

	// Features is NumFeatures templates of FeatureWidth*FeatureWidth*Depth.
	Features []float64
}

// ActivationIndex returns the offset of channel d at (x, y).
func (l *Layer) ActivationIndex(x, y, d int) int {
	return ActivationIndex(x, y, d, l.Width, l.Depth)
}

// FeatureIndex returns the offset of channel d at (x, y) of template f.
func (l *Layer) FeatureIndex(f, x, y, d int) int {
	return FeatureIndex(f, x, y, d, l.FeatureWidth, l.Depth)
}

// Template returns the slice of Features holding template f.
func (l *Layer) Template(f int) []float64 {
	size := l.FeatureWidth * l.FeatureWidth * l.Depth
	return l.Features[f*size : (f+1)*size]
}

func (l *Layer) patch() learn.Patch {
	return learn.Patch{
		Activation:   l.Activation,
		Width:        l.Width,
		Height:       l.Height,
		Depth:        l.Depth,
		FeatureWidth: l.FeatureWidth,
		NumFeatures:  l.NumFeatures,
		Features:     l.Features,
	}
}

// Score describes the outcome of the last Learn call.
type Score struct {
	Layer   int
	Sum     float64 // value compared against the layer's threshold
	Mean    float64 // Sum divided by Samples
	Samples int
}

// Network is a convolutional feature pyramid. It is not safe for concurrent
// use.
type Network struct {
	cfg Config

	numLayers    int
	currentLayer int
	learningRate float64

	iterations      int
	trainingCounter int
	sinceRecord     int

	outputs        []float64
	outputsWidth   int
	matchThreshold []float64

	layers  []*Layer
	history *history.History
	last    Score

	learner   learn.Learner
	alloc     Allocator
	callbacks []Callback
	closed    bool
}

// Option configures a Network at construction.
type Option func(*Network)

// WithAllocator sets the allocator used for every owned buffer.
func WithAllocator(a Allocator) Option {
	return func(n *Network) { n.alloc = a }
}

// WithLearner replaces the default competitive feature learner.
func WithLearner(l learn.Learner) Option {
	return func(n *Network) { n.learner = l }
}

// WithCallbacks registers training callbacks.
func WithCallbacks(cbs ...Callback) Option {
	return func(n *Network) { n.callbacks = append(n.callbacks, cbs...) }
}

// New builds a network and allocates all of its buffers. Geometry is fixed
// for the lifetime of the network.
//
// Layer widths are interpolated linearly from the image width toward
// FinalWidth; every layer after the first is square. Feature templates are
// filled with uniform noise drawn from InitSeed.
func New(cfg Config, opts ...Option) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.MatchThreshold = append([]float64(nil), cfg.MatchThreshold...)

	n := &Network{
		cfg:          cfg,
		numLayers:    cfg.Layers,
		learningRate: cfg.LearningRate,
		outputsWidth: cfg.FinalWidth,
		layers:       make([]*Layer, cfg.Layers),
		history:      history.New(cfg.HistorySize, cfg.HistoryStep),
		learner:      learn.Competitive{},
		alloc:        HeapAllocator{MaxLen: cfg.MaxBufferLen},
	}
	for _, opt := range opts {
		opt(n)
	}

	if err := n.allocate(); err != nil {
		n.release()
		return nil, err
	}

	seed := rng.New(cfg.InitSeed)
	for _, l := range n.layers {
		seed.Fill(l.Features)
	}
	return n, nil
}

func (n *Network) allocate() error {
	cfg := n.cfg
	var err error

	for l, shape := range cfg.shapes() {
		ly := &shape
		n.layers[l] = ly

		size := ly.Width * ly.Height * ly.Depth
		if ly.Activation, err = n.alloc.Alloc(size); err != nil {
			return &AllocError{Site: SiteActivation, Layer: l, Size: size, Err: err}
		}

		size = ly.NumFeatures * ly.FeatureWidth * ly.FeatureWidth * ly.Depth
		if ly.Features, err = n.alloc.Alloc(size); err != nil {
			return &AllocError{Site: SiteFeature, Layer: l, Size: size, Err: err}
		}
	}

	// The final convolution writes one score per feature of the last layer.
	// Sizing by the last layer's depth instead would overflow when there is
	// only one layer, since its depth is the image depth.
	size := cfg.FinalWidth * cfg.FinalWidth * n.layers[cfg.Layers-1].NumFeatures
	if n.outputs, err = n.alloc.Alloc(size); err != nil {
		return &AllocError{Site: SiteOutputs, Layer: -1, Size: size, Err: err}
	}

	if n.matchThreshold, err = n.alloc.Alloc(cfg.Layers); err != nil {
		return &AllocError{Site: SiteThresholds, Layer: -1, Size: cfg.Layers, Err: err}
	}
	copy(n.matchThreshold, cfg.MatchThreshold)
	return nil
}

// release frees every buffer that has been allocated and clears the handle.
func (n *Network) release() {
	for _, l := range n.layers {
		if l == nil {
			continue
		}
		if l.Activation != nil {
			n.alloc.Free(l.Activation)
			l.Activation = nil
		}
		if l.Features != nil {
			n.alloc.Free(l.Features)
			l.Features = nil
		}
	}
	if n.outputs != nil {
		n.alloc.Free(n.outputs)
		n.outputs = nil
	}
	if n.matchThreshold != nil {
		n.alloc.Free(n.matchThreshold)
		n.matchThreshold = nil
	}
}

// Close releases all buffers. Calling Close more than once returns ErrClosed.
func (n *Network) Close() error {
	if n.closed {
		return ErrClosed
	}
	n.release()
	n.closed = true
	return nil
}

// Config returns the configuration the network was built from. The
// thresholds are a copy.
func (n *Network) Config() Config {
	cfg := n.cfg
	cfg.MatchThreshold = append([]float64(nil), n.cfg.MatchThreshold...)
	return cfg
}

// NumLayers returns the number of layers.
func (n *Network) NumLayers() int { return n.numLayers }

// CurrentLayer returns the index of the layer being trained. It equals
// NumLayers once training is complete.
func (n *Network) CurrentLayer() int { return n.currentLayer }

// Done reports whether every layer has converged.
func (n *Network) Done() bool { return n.currentLayer >= n.numLayers }

// LearningRate returns the rate passed to the feature learner.
func (n *Network) LearningRate() float64 { return n.learningRate }

// SetLearningRate changes the rate used by subsequent Learn calls.
func (n *Network) SetLearningRate(rate float64) { n.learningRate = rate }

// Iterations returns the number of learner passes run so far.
func (n *Network) Iterations() int { return n.iterations }

// TrainingCounter returns the number of Learn calls that ran a layer.
func (n *Network) TrainingCounter() int { return n.trainingCounter }

// Layer returns layer i.
func (n *Network) Layer(i int) *Layer { return n.layers[i] }

// Outputs returns the final-layer activation. The slice aliases internal
// storage and is overwritten by the next full feed forward.
func (n *Network) Outputs() []float64 { return n.outputs }

// OutputsWidth returns the spatial width of Outputs.
func (n *Network) OutputsWidth() int { return n.outputsWidth }

// Thresholds returns the per-layer match thresholds.
func (n *Network) Thresholds() []float64 { return n.matchThreshold }

// History returns the recorded training-error series.
func (n *Network) History() *history.History { return n.history }

// LastScore returns the outcome of the most recent Learn call that ran.
func (n *Network) LastScore() Score { return n.last }
