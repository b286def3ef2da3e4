package conv

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/mylittlememory/libdeep/internal/rng"
)

func trainedNetwork(t *testing.T) *Network {
	t.Helper()
	cfg := smallConfig()
	cfg.MatchThreshold = []float64{1000, 0}
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	seed := rng.New(77)
	for i := 0; i < 3; i++ {
		if _, err := n.Learn(testImage(64, byte(i)), 2, seed); err != nil {
			t.Fatalf("Learn failed: %v", err)
		}
	}
	n.SetLearningRate(0.05)
	return n
}

func assertSameNetwork(t *testing.T, got, want *Network) {
	t.Helper()
	if got.CurrentLayer() != want.CurrentLayer() {
		t.Errorf("CurrentLayer() = %d, want %d", got.CurrentLayer(), want.CurrentLayer())
	}
	if got.Iterations() != want.Iterations() || got.TrainingCounter() != want.TrainingCounter() {
		t.Errorf("counters = %d/%d, want %d/%d", got.Iterations(), got.TrainingCounter(), want.Iterations(), want.TrainingCounter())
	}
	if got.LearningRate() != want.LearningRate() {
		t.Errorf("LearningRate() = %v, want %v", got.LearningRate(), want.LearningRate())
	}
	for i := range want.Thresholds() {
		if got.Thresholds()[i] != want.Thresholds()[i] {
			t.Errorf("Thresholds()[%d] = %v, want %v", i, got.Thresholds()[i], want.Thresholds()[i])
		}
	}
	for l := 0; l < want.NumLayers(); l++ {
		gf, wf := got.Layer(l).Features, want.Layer(l).Features
		for i := range wf {
			if gf[i] != wf[i] {
				t.Fatalf("layer %d feature %d = %v, want %v", l, i, gf[i], wf[i])
			}
		}
	}
	gh, wh := got.History(), want.History()
	if gh.Len() != wh.Len() || gh.Step() != wh.Step() {
		t.Fatalf("history %d@%d, want %d@%d", gh.Len(), gh.Step(), wh.Len(), wh.Step())
	}
	for i := range wh.Values() {
		if gh.Values()[i] != wh.Values()[i] {
			t.Errorf("history[%d] = %v, want %v", i, gh.Values()[i], wh.Values()[i])
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	n := trainedNetwork(t)

	var buf bytes.Buffer
	if err := n.Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	assertSameNetwork(t, got, n)
}

func TestSaveLoad(t *testing.T) {
	n := trainedNetwork(t)
	filename := filepath.Join(t.TempDir(), "conv.bin")

	if err := n.Save(filename); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(filename)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertSameNetwork(t, got, n)

	// training resumes from the restored cursor
	if _, err := got.Learn(testImage(64, 1), 2, rng.New(3)); err != nil {
		t.Errorf("Learn after Load failed: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDecodeErrors(t *testing.T) {
	n := trainedNetwork(t)
	data, _ := n.MarshalBinary()

	if _, err := Unmarshal(data[:len(data)-3]); err == nil {
		t.Error("truncated data: expected error")
	}
	if _, err := Unmarshal(appendInt(nil, fieldVersion, 99)); err == nil {
		t.Error("bad version: expected error")
	}

	// a stored layer that disagrees with the rebuilt geometry
	bad := appendInt(nil, fieldVersion, formatVersion)
	bad = appendMessage(bad, fieldConfig, marshalConfig(n.Config()))
	bad = appendMessage(bad, fieldLayer, marshalLayer(&Layer{Width: 1}))
	if _, err := Unmarshal(bad); errors.Cause(err) != ErrBadGeometry {
		t.Errorf("bad layer: err = %v, want ErrBadGeometry", err)
	}
}

func TestMarshalClosed(t *testing.T) {
	n, _ := New(smallConfig())
	n.Close()
	if _, err := n.MarshalBinary(); err != ErrClosed {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestMarshalUsesOwnedThresholds(t *testing.T) {
	cfg := smallConfig()
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	cfg.MatchThreshold[0] = -5
	n.Config().MatchThreshold[1] = -7

	if got := n.Config().MatchThreshold; got[0] != 1000 || got[1] != 1000 {
		t.Errorf("Config().MatchThreshold = %v, want [1000 1000]", got)
	}

	data, err := n.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for i, v := range got.Thresholds() {
		if v != 1000 {
			t.Errorf("reloaded Thresholds()[%d] = %v, want 1000", i, v)
		}
	}
}

func TestDecodeKeepsRecordPacing(t *testing.T) {
	cfg := smallConfig()
	cfg.MatchThreshold = []float64{0, 0}
	cfg.HistoryStep = 3
	n, _ := New(cfg, WithLearner(&constLearner{value: 0.5}))
	for i := 0; i < 2; i++ {
		n.Learn(testImage(64, 0), 1, rng.New(1))
	}
	if n.History().Len() != 0 {
		t.Fatalf("History().Len() = %d before reload, want 0", n.History().Len())
	}

	data, _ := n.MarshalBinary()
	got, err := Unmarshal(data, WithLearner(&constLearner{value: 0.5}))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	// the third call since the last sample is due for recording
	got.Learn(testImage(64, 0), 1, rng.New(1))
	if got.History().Len() != 1 {
		t.Errorf("History().Len() = %d after reload, want 1", got.History().Len())
	}
}

func TestDecodeRejectsOversizedGeometry(t *testing.T) {
	oneLayer := func(c *Config) {
		c.Layers = 1
		c.MatchThreshold = []float64{1}
	}
	tests := []struct {
		name     string
		mutate   func(*Config)
		features int
	}{
		{"huge dimensions", func(c *Config) {
			c.ImageWidth, c.ImageHeight, c.ImageDepth = 1<<31, 1<<31, 1<<31
		}, 0},
		{"huge activation", func(c *Config) {
			c.ImageWidth, c.ImageHeight = 1<<20, 1<<20
		}, 4 * 3 * 3},
		{"huge history", func(c *Config) {
			c.HistorySize = 1 << 40
		}, 4 * 3 * 3},
		{"feature count mismatch", func(c *Config) {}, 5},
	}

	for _, tt := range tests {
		cfg := smallConfig()
		oneLayer(&cfg)
		tt.mutate(&cfg)

		data := appendInt(nil, fieldVersion, formatVersion)
		data = appendMessage(data, fieldConfig, marshalConfig(cfg))
		data = appendMessage(data, fieldLayer, marshalLayer(&Layer{Features: make([]float64, tt.features)}))

		if _, err := Unmarshal(data); errors.Cause(err) != ErrBadGeometry {
			t.Errorf("%s: err = %v, want ErrBadGeometry", tt.name, err)
		}
	}
}
