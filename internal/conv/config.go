package conv

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/mylittlememory/libdeep/internal/history"
)

// DefaultLearningRate is the rate set by DefaultConfig. A zero rate is
// accepted and leaves the feature templates unchanged.
const DefaultLearningRate = 0.1

// MinFeatureWidth is the smallest feature template side length.
const MinFeatureWidth = 3

// Config holds the parameters a Network is built from.
type Config struct {
	// Number of pyramid stages.
	Layers int `json:"layers"`

	// Raw input geometry.
	ImageWidth  int `json:"image_width"`
	ImageHeight int `json:"image_height"`
	ImageDepth  int `json:"image_depth"`

	// Feature bank of the first layer. The count is reused by every layer,
	// the width scales with each layer's width.
	Features     int `json:"features"`
	FeatureWidth int `json:"feature_width"`

	// Geometry of the final output.
	FinalWidth  int `json:"final_width"`
	FinalHeight int `json:"final_height"`

	// Per-layer convergence gates, layer 0 first.
	MatchThreshold []float64 `json:"match_threshold"`

	LearningRate float64 `json:"learning_rate"`
	InitSeed     uint32  `json:"init_seed"`

	HistorySize int `json:"history_size"`
	HistoryStep int `json:"history_step"`

	// Largest buffer the default allocator hands out; 0 means no limit.
	MaxBufferLen int `json:"max_buffer_len"`
}

// DefaultConfig returns a two layer configuration for 32x32 grey images.
func DefaultConfig() Config {
	return Config{
		Layers:         2,
		ImageWidth:     32,
		ImageHeight:    32,
		ImageDepth:     1,
		Features:       8,
		FeatureWidth:   8,
		FinalWidth:     4,
		FinalHeight:    4,
		MatchThreshold: []float64{0.5, 0.5},
		LearningRate:   DefaultLearningRate,
		InitSeed:       1,
		HistorySize:    history.DefaultSize,
		HistoryStep:    1,
	}
}

// Validate checks that the configuration describes a buildable network.
func (c Config) Validate() error {
	if c.Layers < 1 {
		return errors.Wrapf(ErrInvalidConfig, "layers = %d, want >= 1", c.Layers)
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"image_width", c.ImageWidth},
		{"image_height", c.ImageHeight},
		{"image_depth", c.ImageDepth},
		{"features", c.Features},
		{"feature_width", c.FeatureWidth},
		{"final_width", c.FinalWidth},
		{"final_height", c.FinalHeight},
	} {
		if f.v < 1 {
			return errors.Wrapf(ErrInvalidConfig, "%s = %d, want >= 1", f.name, f.v)
		}
	}
	if len(c.MatchThreshold) != c.Layers {
		return errors.Wrapf(ErrInvalidConfig, "%d match thresholds for %d layers", len(c.MatchThreshold), c.Layers)
	}
	if c.LearningRate < 0 {
		return errors.Wrapf(ErrInvalidConfig, "learning_rate = %v, want >= 0", c.LearningRate)
	}
	if c.HistorySize < 0 || c.HistoryStep < 0 || c.MaxBufferLen < 0 {
		return errors.Wrap(ErrInvalidConfig, "negative history or buffer limit")
	}
	return nil
}

// shapes returns the geometry of every layer without allocating buffers.
// Widths are interpolated from ImageWidth toward FinalWidth and every layer
// after the first is square, fed by the previous layer's features.
func (c Config) shapes() []Layer {
	shapes := make([]Layer, c.Layers)
	for l := range shapes {
		s := &shapes[l]
		s.Width = c.ImageWidth - (c.ImageWidth-c.FinalWidth)*l/c.Layers
		if l == 0 {
			s.Height = c.ImageHeight - (c.ImageHeight-c.FinalHeight)*l/c.Layers
			s.Depth = c.ImageDepth
		} else {
			s.Height = s.Width
			s.Depth = shapes[l-1].NumFeatures
		}
		s.NumFeatures = c.Features
		s.FeatureWidth = max(MinFeatureWidth, c.FeatureWidth*s.Width/c.ImageWidth)
	}
	return shapes
}

// LoadConfig reads a JSON configuration. Fields missing from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}
