package conv

import (
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// formatVersion is bumped whenever the field layout below changes.
const formatVersion = 1

// maxDecodedLen bounds the total number of scalars a decoded network may
// allocate, activations and history included.
const maxDecodedLen = 1 << 27

// Network message fields.
const (
	fieldVersion         protowire.Number = 1
	fieldConfig          protowire.Number = 2
	fieldCurrentLayer    protowire.Number = 3
	fieldLearningRate    protowire.Number = 4
	fieldIterations      protowire.Number = 5
	fieldTrainingCounter protowire.Number = 6
	fieldLayer           protowire.Number = 7
	fieldHistoryStep     protowire.Number = 8
	fieldHistory         protowire.Number = 9
	fieldSinceRecord     protowire.Number = 10
)

// Config message fields.
const (
	cfgLayers         protowire.Number = 1
	cfgImageWidth     protowire.Number = 2
	cfgImageHeight    protowire.Number = 3
	cfgImageDepth     protowire.Number = 4
	cfgFeatures       protowire.Number = 5
	cfgFeatureWidth   protowire.Number = 6
	cfgFinalWidth     protowire.Number = 7
	cfgFinalHeight    protowire.Number = 8
	cfgMatchThreshold protowire.Number = 9
	cfgLearningRate   protowire.Number = 10
	cfgInitSeed       protowire.Number = 11
	cfgHistorySize    protowire.Number = 12
	cfgHistoryStep    protowire.Number = 13
	cfgMaxBufferLen   protowire.Number = 14
)

// Layer message fields.
const (
	layerWidth        protowire.Number = 1
	layerHeight       protowire.Number = 2
	layerDepth        protowire.Number = 3
	layerNumFeatures  protowire.Number = 4
	layerFeatureWidth protowire.Number = 5
	layerFeatures     protowire.Number = 6
)

func appendInt(b []byte, num protowire.Number, v int) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendFloat(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendFloats(b []byte, num protowire.Number, v []float64) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(8*len(v)))
	for _, x := range v {
		b = protowire.AppendFixed64(b, math.Float64bits(x))
	}
	return b
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func marshalConfig(c Config) []byte {
	var b []byte
	b = appendInt(b, cfgLayers, c.Layers)
	b = appendInt(b, cfgImageWidth, c.ImageWidth)
	b = appendInt(b, cfgImageHeight, c.ImageHeight)
	b = appendInt(b, cfgImageDepth, c.ImageDepth)
	b = appendInt(b, cfgFeatures, c.Features)
	b = appendInt(b, cfgFeatureWidth, c.FeatureWidth)
	b = appendInt(b, cfgFinalWidth, c.FinalWidth)
	b = appendInt(b, cfgFinalHeight, c.FinalHeight)
	b = appendFloats(b, cfgMatchThreshold, c.MatchThreshold)
	b = appendFloat(b, cfgLearningRate, c.LearningRate)
	b = appendInt(b, cfgInitSeed, int(c.InitSeed))
	b = appendInt(b, cfgHistorySize, c.HistorySize)
	b = appendInt(b, cfgHistoryStep, c.HistoryStep)
	b = appendInt(b, cfgMaxBufferLen, c.MaxBufferLen)
	return b
}

func marshalLayer(l *Layer) []byte {
	var b []byte
	b = appendInt(b, layerWidth, l.Width)
	b = appendInt(b, layerHeight, l.Height)
	b = appendInt(b, layerDepth, l.Depth)
	b = appendInt(b, layerNumFeatures, l.NumFeatures)
	b = appendInt(b, layerFeatureWidth, l.FeatureWidth)
	b = appendFloats(b, layerFeatures, l.Features)
	return b
}

// MarshalBinary encodes the network's configuration, training state, feature
// templates and error history using the protobuf wire format.
func (n *Network) MarshalBinary() ([]byte, error) {
	if n.closed {
		return nil, ErrClosed
	}

	var b []byte
	b = appendInt(b, fieldVersion, formatVersion)
	cfg := n.cfg
	cfg.MatchThreshold = n.matchThreshold
	b = appendMessage(b, fieldConfig, marshalConfig(cfg))
	b = appendInt(b, fieldCurrentLayer, n.currentLayer)
	b = appendFloat(b, fieldLearningRate, n.learningRate)
	b = appendInt(b, fieldIterations, n.iterations)
	b = appendInt(b, fieldTrainingCounter, n.trainingCounter)
	for _, l := range n.layers {
		b = appendMessage(b, fieldLayer, marshalLayer(l))
	}
	b = appendInt(b, fieldHistoryStep, n.history.Step())
	b = appendInt(b, fieldSinceRecord, n.sinceRecord)
	b = appendFloats(b, fieldHistory, n.history.Values())
	return b, nil
}

// Encode writes the network to w.
func (n *Network) Encode(w io.Writer) error {
	b, err := n.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return errors.Wrap(err, "encode network")
	}
	return nil
}

// Save writes the network to a file.
func (n *Network) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "create %s", filename)
	}
	if err := n.Encode(file); err != nil {
		file.Close()
		return err
	}
	return errors.Wrapf(file.Close(), "close %s", filename)
}

// fieldFunc handles one field of a message. It returns the number of bytes
// consumed from b, or a negative protowire error code.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func consumeInt(typ protowire.Type, b []byte, dst *int) (int, error) {
	if typ != protowire.VarintType {
		return 0, errors.Errorf("unexpected wire type %v for integer", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	*dst = int(v)
	return n, nil
}

func consumeFloat(typ protowire.Type, b []byte, dst *float64) (int, error) {
	if typ != protowire.Fixed64Type {
		return 0, errors.Errorf("unexpected wire type %v for float", typ)
	}
	v, n := protowire.ConsumeFixed64(b)
	*dst = math.Float64frombits(v)
	return n, nil
}

func consumeFloats(typ protowire.Type, b []byte, dst *[]float64) (int, error) {
	if typ != protowire.BytesType {
		return 0, errors.Errorf("unexpected wire type %v for packed floats", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	if len(v)%8 != 0 {
		return 0, errors.Errorf("packed floats of %d bytes", len(v))
	}
	out := make([]float64, 0, len(v)/8)
	for len(v) > 0 {
		x, m := protowire.ConsumeFixed64(v)
		out = append(out, math.Float64frombits(x))
		v = v[m:]
	}
	*dst = out
	return n, nil
}

func consumeMessage(typ protowire.Type, b []byte, dst *[]byte) (int, error) {
	if typ != protowire.BytesType {
		return 0, errors.Errorf("unexpected wire type %v for message", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	*dst = v
	return n, nil
}

func unmarshalConfig(b []byte) (Config, error) {
	var c Config
	var seed int
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case cfgLayers:
			return consumeInt(typ, b, &c.Layers)
		case cfgImageWidth:
			return consumeInt(typ, b, &c.ImageWidth)
		case cfgImageHeight:
			return consumeInt(typ, b, &c.ImageHeight)
		case cfgImageDepth:
			return consumeInt(typ, b, &c.ImageDepth)
		case cfgFeatures:
			return consumeInt(typ, b, &c.Features)
		case cfgFeatureWidth:
			return consumeInt(typ, b, &c.FeatureWidth)
		case cfgFinalWidth:
			return consumeInt(typ, b, &c.FinalWidth)
		case cfgFinalHeight:
			return consumeInt(typ, b, &c.FinalHeight)
		case cfgMatchThreshold:
			return consumeFloats(typ, b, &c.MatchThreshold)
		case cfgLearningRate:
			return consumeFloat(typ, b, &c.LearningRate)
		case cfgInitSeed:
			return consumeInt(typ, b, &seed)
		case cfgHistorySize:
			return consumeInt(typ, b, &c.HistorySize)
		case cfgHistoryStep:
			return consumeInt(typ, b, &c.HistoryStep)
		case cfgMaxBufferLen:
			return consumeInt(typ, b, &c.MaxBufferLen)
		}
		return 0, nil
	})
	c.InitSeed = uint32(seed)
	return c, err
}

func unmarshalLayer(b []byte) (*Layer, error) {
	l := &Layer{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case layerWidth:
			return consumeInt(typ, b, &l.Width)
		case layerHeight:
			return consumeInt(typ, b, &l.Height)
		case layerDepth:
			return consumeInt(typ, b, &l.Depth)
		case layerNumFeatures:
			return consumeInt(typ, b, &l.NumFeatures)
		case layerFeatureWidth:
			return consumeInt(typ, b, &l.FeatureWidth)
		case layerFeatures:
			return consumeFloats(typ, b, &l.Features)
		}
		return 0, nil
	})
	return l, err
}

// Unmarshal decodes a network written by MarshalBinary. The network is
// rebuilt from the stored configuration with the given options, and each
// stored layer must match the rebuilt geometry.
func Unmarshal(data []byte, opts ...Option) (*Network, error) {
	var version, current, iterations, counter, histStep, sinceRecord int
	var rate float64
	var cfgBytes []byte
	var layers []*Layer
	var values []float64

	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldVersion:
			return consumeInt(typ, b, &version)
		case fieldConfig:
			return consumeMessage(typ, b, &cfgBytes)
		case fieldCurrentLayer:
			return consumeInt(typ, b, &current)
		case fieldLearningRate:
			return consumeFloat(typ, b, &rate)
		case fieldIterations:
			return consumeInt(typ, b, &iterations)
		case fieldTrainingCounter:
			return consumeInt(typ, b, &counter)
		case fieldLayer:
			var msg []byte
			n, err := consumeMessage(typ, b, &msg)
			if err != nil || n < 0 {
				return n, err
			}
			l, err := unmarshalLayer(msg)
			if err != nil {
				return 0, errors.Wrapf(err, "layer %d", len(layers))
			}
			layers = append(layers, l)
			return n, nil
		case fieldHistoryStep:
			return consumeInt(typ, b, &histStep)
		case fieldSinceRecord:
			return consumeInt(typ, b, &sinceRecord)
		case fieldHistory:
			return consumeFloats(typ, b, &values)
		}
		return 0, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode network")
	}
	if version != formatVersion {
		return nil, errors.Errorf("decode network: unsupported format version %d", version)
	}

	cfg, err := unmarshalConfig(cfgBytes)
	if err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := checkDecoded(cfg, layers); err != nil {
		return nil, errors.Wrap(err, "decode network")
	}

	n, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	if err := n.restore(layers, current); err != nil {
		n.Close()
		return nil, err
	}
	n.learningRate = rate
	n.iterations = iterations
	n.trainingCounter = counter
	n.sinceRecord = max(sinceRecord, 0)
	n.history.Restore(values, histStep)
	return n, nil
}

// checkDecoded rejects a stored configuration before anything is allocated
// for it. The stored feature banks must match the configured geometry, and
// all buffers together must fit in maxDecodedLen scalars.
func checkDecoded(cfg Config, layers []*Layer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(layers) != cfg.Layers {
		return errors.Wrapf(ErrBadGeometry, "%d stored layers, want %d", len(layers), cfg.Layers)
	}
	for _, d := range []int{cfg.ImageWidth, cfg.ImageHeight, cfg.ImageDepth, cfg.Features,
		cfg.FeatureWidth, cfg.FinalWidth, cfg.FinalHeight, cfg.HistorySize} {
		if d > maxDecodedLen {
			return errors.Wrapf(ErrBadGeometry, "dimension %d exceeds %d", d, maxDecodedLen)
		}
	}

	total := cfg.HistorySize
	add := func(dims ...int) bool {
		size, ok := bufferLen(dims...)
		if !ok || size > maxDecodedLen-total {
			return false
		}
		total += size
		return true
	}
	for i, s := range cfg.shapes() {
		feat, ok := bufferLen(s.NumFeatures, s.FeatureWidth, s.FeatureWidth, s.Depth)
		if !ok || feat != len(layers[i].Features) {
			return errors.Wrapf(ErrBadGeometry, "layer %d has %d feature values, want %d", i, len(layers[i].Features), feat)
		}
		if !add(s.Width, s.Height, s.Depth) || !add(feat) {
			return errors.Wrapf(ErrBadGeometry, "layer %d exceeds %d scalars", i, maxDecodedLen)
		}
	}
	if !add(cfg.FinalWidth, cfg.FinalWidth, cfg.Features) {
		return errors.Wrapf(ErrBadGeometry, "outputs exceed %d scalars", maxDecodedLen)
	}
	return nil
}

func (n *Network) restore(layers []*Layer, current int) error {
	if len(layers) != n.numLayers {
		return errors.Wrapf(ErrBadGeometry, "%d stored layers, want %d", len(layers), n.numLayers)
	}
	if current < 0 || current > n.numLayers {
		return errors.Wrapf(ErrBadGeometry, "current layer %d of %d", current, n.numLayers)
	}
	for i, stored := range layers {
		l := n.layers[i]
		if stored.Width != l.Width || stored.Height != l.Height || stored.Depth != l.Depth ||
			stored.NumFeatures != l.NumFeatures || stored.FeatureWidth != l.FeatureWidth ||
			len(stored.Features) != len(l.Features) {
			return errors.Wrapf(ErrBadGeometry, "layer %d", i)
		}
		copy(l.Features, stored.Features)
	}
	n.currentLayer = current
	return nil
}

// Decode reads a network written by Encode.
func Decode(r io.Reader, opts ...Option) (*Network, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read network")
	}
	return Unmarshal(data, opts...)
}

// Load reads a network from a file written by Save.
func Load(filename string, opts ...Option) (*Network, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", filename)
	}
	defer file.Close()

	return Decode(file, opts...)
}
