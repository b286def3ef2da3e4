package conv

import "github.com/pkg/errors"

// FeedForward loads img into the first layer and propagates it through the
// first `layer` convolutions. Each convolution writes into the next layer's
// activation, or into Outputs when it is the last layer. Feature templates
// are not modified.
//
// img holds one byte per channel and must contain at least
// Width*Height*Depth samples of layer 0; bytes are scaled to [0, 1].
func (n *Network) FeedForward(img []byte, layer int) error {
	if n.closed {
		return ErrClosed
	}
	if layer < 0 || layer > n.numLayers {
		return errors.Wrapf(ErrBadGeometry, "feed forward to layer %d of %d", layer, n.numLayers)
	}

	first := n.layers[0]
	if len(img) < len(first.Activation) {
		return errors.Wrapf(ErrBadGeometry, "image has %d samples, want %d", len(img), len(first.Activation))
	}
	for i := range first.Activation {
		first.Activation[i] = float64(img[i]) / 255
	}

	for l := 0; l < layer; l++ {
		dst, dstWidth := n.outputs, n.outputsWidth
		if l < n.numLayers-1 {
			next := n.layers[l+1]
			dst, dstWidth = next.Activation, next.Width
		}
		ConvolveLayer(n.layers[l], dst, dstWidth)
	}
	return nil
}
