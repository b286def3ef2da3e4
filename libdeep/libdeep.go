// Package libdeep is the public entry point for unsupervised convolutional
// feature learning.
package libdeep

import (
	"github.com/mylittlememory/libdeep/internal/conv"
	"github.com/mylittlememory/libdeep/internal/history"
	"github.com/mylittlememory/libdeep/internal/learn"
	"github.com/mylittlememory/libdeep/internal/plot"
	"github.com/mylittlememory/libdeep/internal/rng"
)

// Re-export common types for easier access
type (
	Network     = conv.Network
	Layer       = conv.Layer
	Config      = conv.Config
	Score       = conv.Score
	Option      = conv.Option
	Allocator   = conv.Allocator
	AllocError  = conv.AllocError
	AllocSite   = conv.AllocSite
	Callback    = conv.Callback
	Learner     = learn.Learner
	Patch       = learn.Patch
	Seed        = rng.State
	History     = history.History
	Gnuplot     = plot.Gnuplot
	PlotOptions = plot.Options
)

// Allocation sites reported by AllocError.
const (
	SiteActivation = conv.SiteActivation
	SiteFeature    = conv.SiteFeature
	SiteOutputs    = conv.SiteOutputs
	SiteThresholds = conv.SiteThresholds
)

// ScratchFailure is the score Learn returns when its scratch buffer cannot
// be allocated.
const ScratchFailure = conv.ScratchFailure

// Errors
var (
	ErrClosed        = conv.ErrClosed
	ErrInvalidConfig = conv.ErrInvalidConfig
	ErrBadGeometry   = conv.ErrBadGeometry
	ErrScratchAlloc  = conv.ErrScratchAlloc
	ErrNilSeed       = conv.ErrNilSeed
)

// Network creation
func New(cfg Config, opts ...Option) (*Network, error) {
	return conv.New(cfg, opts...)
}

func DefaultConfig() Config {
	return conv.DefaultConfig()
}

func LoadConfig(path string) (Config, error) {
	return conv.LoadConfig(path)
}

// NewSeed returns a random state to pass to successive Learn calls.
func NewSeed(seed uint32) *Seed {
	return rng.New(seed)
}

// Options
func WithAllocator(a Allocator) Option {
	return conv.WithAllocator(a)
}

func WithLearner(l Learner) Option {
	return conv.WithLearner(l)
}

func WithCallbacks(cbs ...Callback) Option {
	return conv.WithCallbacks(cbs...)
}

// Learners
func Competitive(draws int) Learner {
	return learn.Competitive{Draws: draws}
}

// Callbacks
func Logger(interval int) conv.Logger {
	return conv.Logger{Interval: interval}
}

func CSVLogger(filename string, append bool) *conv.CSVLogger {
	return conv.NewCSVLogger(filename, append)
}

func StallDetector(patience int, minDelta float64) *conv.StallDetector {
	return conv.NewStallDetector(patience, minDelta)
}

func Checkpoint(filename string) *conv.Checkpoint {
	return conv.NewCheckpoint(filename)
}

// Diagnostics
func NewGnuplot(tempDir string) *Gnuplot {
	return plot.NewGnuplot(tempDir)
}

func DefaultPlotOptions(filename string) PlotOptions {
	return plot.DefaultOptions(filename)
}

// Persistence
func Load(filename string, opts ...Option) (*Network, error) {
	return conv.Load(filename, opts...)
}
