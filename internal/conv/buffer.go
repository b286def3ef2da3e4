package conv

import (
	"math"

	"github.com/pkg/errors"
)

// Allocator hands out the float buffers owned by a Network. Construction and
// training go through it so that allocation failure can be observed and
// every buffer is released exactly once.
type Allocator interface {
	Alloc(n int) ([]float64, error)
	Free(buf []float64)
}

// HeapAllocator allocates from the Go heap. MaxLen, when positive, caps the
// size of a single buffer.
type HeapAllocator struct {
	MaxLen int
}

// Alloc returns a zeroed buffer of n scalars.
func (a HeapAllocator) Alloc(n int) ([]float64, error) {
	if n < 0 {
		return nil, errors.Errorf("negative buffer size %d", n)
	}
	if a.MaxLen > 0 && n > a.MaxLen {
		return nil, errors.Errorf("buffer of %d scalars exceeds limit %d", n, a.MaxLen)
	}
	return make([]float64, n), nil
}

// Free is a no-op; the garbage collector reclaims heap buffers.
func (HeapAllocator) Free([]float64) {}

// ActivationIndex returns the offset of channel d at (x, y) in a row-major,
// channel-innermost grid of the given width and depth.
func ActivationIndex(x, y, d, width, depth int) int {
	return (y*width+x)*depth + d
}

// FeatureIndex returns the offset of channel d at (x, y) of template f in a
// feature bank of square templates.
func FeatureIndex(f, x, y, d, featureWidth, depth int) int {
	return f*featureWidth*featureWidth*depth + ActivationIndex(x, y, d, featureWidth, depth)
}

// OutputIndex returns the offset of the score of feature f at output cell
// (x, y) in a square grid of the given width.
func OutputIndex(x, y, f, width, features int) int {
	return (y*width+x)*features + f
}

// bufferLen returns the product of dims, or false if it overflows int.
func bufferLen(dims ...int) (int, bool) {
	n := 1
	for _, d := range dims {
		if d < 0 || (d > 0 && n > math.MaxInt/d) {
			return 0, false
		}
		n *= d
	}
	return n, true
}
