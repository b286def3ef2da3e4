package conv

import (
	"log"
	"math"
)

// Callback receives training progress from Learn.
type Callback interface {
	OnLearnBegin(layer int, n *Network)
	OnLearnEnd(layer int, score Score, n *Network)
	OnLayerAdvance(from, to int, n *Network)
	OnComplete(n *Network)
}

// BaseCallback provides default empty implementations for Callback.
type BaseCallback struct{}

func (BaseCallback) OnLearnBegin(layer int, n *Network) {}
func (BaseCallback) OnLearnEnd(layer int, score Score, n *Network) {}
func (BaseCallback) OnLayerAdvance(from, to int, n *Network) {}
func (BaseCallback) OnComplete(n *Network) {}

// Logger logs training progress.
type Logger struct {
	BaseCallback
	Interval int
	Out      *log.Logger // nil means log.Default()
}

func (c Logger) logger() *log.Logger {
	if c.Out == nil {
		return log.Default()
	}
	return c.Out
}

func (c Logger) OnLearnEnd(layer int, score Score, n *Network) {
	if c.Interval > 0 && n.TrainingCounter()%c.Interval == 0 {
		c.logger().Printf("layer %d call %d: error sum = %.6f mean = %.6f",
			layer, n.TrainingCounter(), score.Sum, score.Mean)
	}
}

func (c Logger) OnLayerAdvance(from, to int, n *Network) {
	c.logger().Printf("layer %d converged after %d iterations, training layer %d",
		from, n.Iterations(), to)
}

func (c Logger) OnComplete(n *Network) {
	c.logger().Printf("training complete: %d layers, %d iterations", n.NumLayers(), n.Iterations())
}

// StallDetector flags a layer whose error sum has stopped improving, which
// usually means its threshold is unreachable for the chosen sample count.
type StallDetector struct {
	BaseCallback
	Patience int
	MinDelta float64

	best     float64
	badCalls int
	Stalled  bool
}

// NewStallDetector creates a detector that trips after patience calls
// without an improvement larger than minDelta.
func NewStallDetector(patience int, minDelta float64) *StallDetector {
	return &StallDetector{
		Patience: patience,
		MinDelta: minDelta,
		best:     math.MaxFloat64,
	}
}

func (c *StallDetector) OnLearnEnd(layer int, score Score, n *Network) {
	if score.Sum < c.best-c.MinDelta {
		c.best = score.Sum
		c.badCalls = 0
	} else {
		c.badCalls++
	}
	if c.badCalls >= c.Patience {
		c.Stalled = true
	}
}

func (c *StallDetector) OnLayerAdvance(from, to int, n *Network) {
	c.best = math.MaxFloat64
	c.badCalls = 0
	c.Stalled = false
}

// Checkpoint saves the network each time a layer converges.
type Checkpoint struct {
	BaseCallback
	Filename string
	Out      *log.Logger

	// Err holds the most recent save failure.
	Err error
}

// NewCheckpoint creates a checkpoint callback writing to filename.
func NewCheckpoint(filename string) *Checkpoint {
	return &Checkpoint{Filename: filename}
}

func (c *Checkpoint) OnLayerAdvance(from, to int, n *Network) {
	out := c.Out
	if out == nil {
		out = log.Default()
	}
	if err := n.Save(c.Filename); err != nil {
		c.Err = err
		out.Printf("checkpoint: %v", err)
		return
	}
	out.Printf("checkpoint saved to %s after layer %d", c.Filename, from)
}
