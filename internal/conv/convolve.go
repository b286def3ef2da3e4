package conv

// Convolve compares every feature template against a resampled region of img
// for each cell of a layerWidth x layerWidth output grid.
//
// img is imgWidth*imgHeight*imgDepth scalars. The image is split into a grid
// of regions with integer-rounded bounds, and each region is sampled at
// featureWidth x featureWidth points by nearest neighbour. The score written
// to layer[(y*layerWidth+x)*numFeatures+f] is
//
//	1 - sum((img - feature)^2) / (featureWidth^2 * imgDepth)
//
// so an exact match scores 1. Scores are not clamped and can be negative.
// Buffer sizes are the caller's responsibility.
func Convolve(img []float64, imgWidth, imgHeight, imgDepth int,
	featureWidth, numFeatures int, features []float64,
	layer []float64, layerWidth int) {

	templateSize := featureWidth * featureWidth * imgDepth
	featurePixels := 1.0 / float64(templateSize)

	for layerY := 0; layerY < layerWidth; layerY++ {
		ty := layerY * imgHeight / layerWidth
		by := (layerY + 1) * imgHeight / layerWidth

		for layerX := 0; layerX < layerWidth; layerX++ {
			tx := layerX * imgWidth / layerWidth
			bx := (layerX + 1) * imgWidth / layerWidth

			for f := 0; f < numFeatures; f++ {
				tmpl := features[f*templateSize : (f+1)*templateSize]

				match := 0.0
				for yy := 0; yy < featureWidth; yy++ {
					tyy := ty + yy*(by-ty)/featureWidth
					for xx := 0; xx < featureWidth; xx++ {
						txx := tx + xx*(bx-tx)/featureWidth
						n0 := ActivationIndex(txx, tyy, 0, imgWidth, imgDepth)
						n1 := ActivationIndex(xx, yy, 0, featureWidth, imgDepth)
						for d := 0; d < imgDepth; d++ {
							diff := img[n0+d] - tmpl[n1+d]
							match += diff * diff
						}
					}
				}

				layer[OutputIndex(layerX, layerY, f, layerWidth, numFeatures)] = 1 - match*featurePixels
			}
		}
	}
}

// ConvolveLayer convolves l's activation into dst, a dstWidth x dstWidth
// grid with l.NumFeatures channels.
func ConvolveLayer(l *Layer, dst []float64, dstWidth int) {
	Convolve(l.Activation, l.Width, l.Height, l.Depth,
		l.FeatureWidth, l.NumFeatures, l.Features,
		dst, dstWidth)
}
