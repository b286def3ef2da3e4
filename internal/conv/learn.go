package conv

import (
	"context"

	"github.com/pkg/errors"

	"github.com/mylittlememory/libdeep/internal/plot"
	"github.com/mylittlememory/libdeep/internal/rng"
)

// Learn runs one training call on the current layer.
//
// The image is propagated up to the current layer, then the feature learner
// is invoked samples times against that layer's activation. Its error
// contributions are summed; if the sum is strictly below the layer's match
// threshold the network advances to the next layer. The sum is returned,
// lower being better. Note the threshold is compared against a sum, so it
// has to be calibrated for a fixed samples count.
//
// Once every layer has converged Learn is a no-op returning 0. If the scratch
// buffer cannot be allocated Learn returns ScratchFailure and an error whose
// cause is ErrScratchAlloc.
func (n *Network) Learn(img []byte, samples int, seed *rng.State) (float64, error) {
	if n.closed {
		return 0, ErrClosed
	}
	layer := n.currentLayer
	if layer >= n.numLayers {
		return 0, nil
	}
	if seed == nil {
		return 0, ErrNilSeed
	}

	if err := n.FeedForward(img, layer); err != nil {
		return 0, err
	}

	l := n.layers[layer]
	scores, err := n.alloc.Alloc(l.NumFeatures)
	if err != nil {
		return ScratchFailure, errors.Wrapf(ErrScratchAlloc, "layer %d: %v", layer, err)
	}

	for _, cb := range n.callbacks {
		cb.OnLearnBegin(layer, n)
	}

	p := l.patch()
	total := 0.0
	for s := 0; s < samples; s++ {
		total += n.learner.Learn(p, scores, samples, n.learningRate, seed)
		n.iterations++
	}

	n.alloc.Free(scores)

	n.last = Score{Layer: layer, Sum: total, Samples: max(samples, 0)}
	if samples > 0 {
		n.last.Mean = total / float64(samples)
	}

	if total < n.matchThreshold[layer] {
		n.currentLayer++
		for _, cb := range n.callbacks {
			cb.OnLayerAdvance(layer, n.currentLayer, n)
		}
	}

	n.record(total)

	for _, cb := range n.callbacks {
		cb.OnLearnEnd(layer, n.last, n)
	}
	if n.Done() {
		for _, cb := range n.callbacks {
			cb.OnComplete(n)
		}
	}
	return total, nil
}

// record adds score to the history every History().Step() training calls.
func (n *Network) record(score float64) {
	n.trainingCounter++
	n.sinceRecord++
	if n.sinceRecord >= n.history.Step() {
		n.history.Add(score)
		n.sinceRecord = 0
	}
}

// Renderer draws a training-error series.
type Renderer interface {
	Plot(ctx context.Context, s plot.Series, opts plot.Options) error
}

// PlotHistory renders the recorded training errors with r.
func (n *Network) PlotHistory(ctx context.Context, r Renderer, opts plot.Options) error {
	return r.Plot(ctx, n.history, opts)
}
