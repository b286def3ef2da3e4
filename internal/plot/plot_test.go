package plot

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

type series struct {
	values []float64
	step   int
}

func (s series) Values() []float64 { return s.values }
func (s series) Step() int         { return s.step }

func (s series) Max() float64 {
	m := 0.0
	for _, v := range s.values {
		m = max(m, v)
	}
	return m
}

func TestWriteData(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteData(&buf, series{values: []float64{0.5, 0.25}, step: 10}); err != nil {
		t.Fatalf("WriteData failed: %v", err)
	}

	want := "0    0.5000000000\n10    0.2500000000\n"
	if buf.String() != want {
		t.Errorf("WriteData = %q, want %q", buf.String(), want)
	}
}

func TestWriteScript(t *testing.T) {
	var buf bytes.Buffer
	s := series{values: []float64{1, 2}, step: 5}
	opts := Options{Filename: "out.png", Title: "Layer 0", Width: 320, Height: 200}
	if err := WriteScript(&buf, s, "data.dat", opts); err != nil {
		t.Fatalf("WriteScript failed: %v", err)
	}

	script := buf.String()
	for _, want := range []string{
		`set title "Layer 0"`,
		"set xrange [0:10]",
		"set yrange [0:2.040000]",
		"set terminal png size 320,200",
		`set output "out.png"`,
		`plot "data.dat" using 1:2 notitle with lines`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}
}

func TestWriteScriptMinimumRange(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteScript(&buf, series{step: 1}, "d", DefaultOptions("x.png")); err != nil {
		t.Fatalf("WriteScript failed: %v", err)
	}
	if !strings.Contains(buf.String(), "set yrange [0:0.010200]") {
		t.Errorf("unexpected y range:\n%s", buf.String())
	}
}

func TestPlotRemovesTempFiles(t *testing.T) {
	dir := t.TempDir()
	g := &Gnuplot{Binary: filepath.Join(dir, "no-such-gnuplot"), TempDir: dir}

	err := g.Plot(context.Background(), series{values: []float64{1}, step: 1}, DefaultOptions(filepath.Join(dir, "h.png")))
	if err == nil {
		t.Fatal("expected error from missing binary")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestPlotRunsBinary(t *testing.T) {
	bin, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true not available")
	}
	dir := t.TempDir()
	g := &Gnuplot{Binary: bin, TempDir: dir}

	if err := g.Plot(context.Background(), series{values: []float64{1, 2}, step: 1}, DefaultOptions("h.png")); err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestPlotValidatesOptions(t *testing.T) {
	g := NewGnuplot(t.TempDir())
	if err := g.Plot(context.Background(), series{step: 1}, Options{}); err == nil {
		t.Error("expected error for empty filename")
	}
	if err := g.Plot(context.Background(), series{step: 1}, Options{Filename: "a.png"}); err == nil {
		t.Error("expected error for zero size")
	}
}

type peakSeries struct {
	series
	peak float64
}

func (s peakSeries) Max() float64 { return s.peak }

func TestWriteScriptUsesSeriesMax(t *testing.T) {
	var buf bytes.Buffer
	s := peakSeries{series: series{values: []float64{1, 2}, step: 1}, peak: 5}
	if err := WriteScript(&buf, s, "d", DefaultOptions("x.png")); err != nil {
		t.Fatalf("WriteScript failed: %v", err)
	}
	if !strings.Contains(buf.String(), "set yrange [0:5.100000]") {
		t.Errorf("unexpected y range:\n%s", buf.String())
	}
}
