package conv

import (
	"fmt"

	"github.com/pkg/errors"
)

// These are the sentinel errors returned by the package. Use errors.Cause to
// compare a wrapped error against them.
var (
	ErrClosed        = errors.New("conv: network is closed")
	ErrInvalidConfig = errors.New("conv: invalid config")
	ErrBadGeometry   = errors.New("conv: geometry mismatch")
	ErrScratchAlloc  = errors.New("conv: scratch allocation failed")
	ErrNilSeed       = errors.New("conv: nil random seed")
)

// ScratchFailure is the score returned together with ErrScratchAlloc. A
// successful Learn never returns a negative score from the default learner.
const ScratchFailure = -1.0

// AllocSite identifies which class of buffer failed to allocate. The numeric
// values are stable.
type AllocSite int

const (
	SiteActivation AllocSite = iota + 1
	SiteFeature
	SiteOutputs
	SiteThresholds
)

func (s AllocSite) String() string {
	switch s {
	case SiteActivation:
		return "activation"
	case SiteFeature:
		return "feature"
	case SiteOutputs:
		return "outputs"
	case SiteThresholds:
		return "thresholds"
	default:
		return fmt.Sprintf("AllocSite(%d)", int(s))
	}
}

// AllocError reports a failed buffer allocation during construction.
type AllocError struct {
	Site  AllocSite
	Layer int // -1 for network-level buffers
	Size  int
	Err   error
}

func (e *AllocError) Error() string {
	if e.Layer >= 0 {
		return fmt.Sprintf("conv: allocate %s buffer of layer %d (%d scalars): %v", e.Site, e.Layer, e.Size, e.Err)
	}
	return fmt.Sprintf("conv: allocate %s buffer (%d scalars): %v", e.Site, e.Size, e.Err)
}

// Cause returns the allocator's error.
func (e *AllocError) Cause() error { return e.Err }

// Unwrap returns the allocator's error.
func (e *AllocError) Unwrap() error { return e.Err }
