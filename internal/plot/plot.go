// Package plot renders training-error history to an image using gnuplot.
package plot

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// Series is an evenly spaced sequence of error samples.
type Series interface {
	Values() []float64
	Step() int
	Max() float64
}

// Options controls the rendered chart.
type Options struct {
	Filename string `json:"filename"`
	Title    string `json:"title"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// DefaultOptions returns options for a 640x480 chart written to filename.
func DefaultOptions(filename string) Options {
	return Options{
		Filename: filename,
		Title:    "Training Error",
		Width:    640,
		Height:   480,
	}
}

// Gnuplot drives an external gnuplot binary. Data and script files are
// written to TempDir and removed once the binary exits.
type Gnuplot struct {
	Binary  string
	TempDir string
}

// NewGnuplot returns a renderer using the gnuplot found on PATH and the
// given scratch directory. An empty tempDir means os.TempDir().
func NewGnuplot(tempDir string) *Gnuplot {
	return &Gnuplot{Binary: "gnuplot", TempDir: tempDir}
}

// Plot renders s to opts.Filename. A non-zero exit status from the binary is
// returned as an error wrapping *exec.ExitError.
func (g *Gnuplot) Plot(ctx context.Context, s Series, opts Options) error {
	if opts.Filename == "" {
		return errors.New("plot: no output filename")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return errors.Errorf("plot: invalid image size %dx%d", opts.Width, opts.Height)
	}

	dataFile, err := os.CreateTemp(g.TempDir, "libdeep_conv_data*.dat")
	if err != nil {
		return errors.Wrap(err, "plot: create data file")
	}
	defer os.Remove(dataFile.Name())

	err = WriteData(dataFile, s)
	if cerr := dataFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "plot: write %s", dataFile.Name())
	}

	scriptFile, err := os.CreateTemp(g.TempDir, "libdeep_conv_data*.plot")
	if err != nil {
		return errors.Wrap(err, "plot: create script file")
	}
	defer os.Remove(scriptFile.Name())

	err = WriteScript(scriptFile, s, dataFile.Name(), opts)
	if cerr := scriptFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "plot: write %s", scriptFile.Name())
	}

	binary := g.Binary
	if binary == "" {
		binary = "gnuplot"
	}
	out, err := exec.CommandContext(ctx, binary, scriptFile.Name()).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "plot: %s failed: %s", binary, out)
	}
	return nil
}

// WriteData writes one "step value" line per sample.
func WriteData(w io.Writer, s Series) error {
	step := s.Step()
	for i, v := range s.Values() {
		if _, err := fmt.Fprintf(w, "%d    %.10f\n", i*step, v); err != nil {
			return err
		}
	}
	return nil
}

// WriteScript writes a gnuplot script that plots dataPath as a line chart.
func WriteScript(w io.Writer, s Series, dataPath string, opts Options) error {
	values := s.Values()
	maxValue := max(0.01, s.Max())

	_, err := fmt.Fprintf(w, `reset
set title "%s"
set xrange [0:%d]
set yrange [0:%f]
set lmargin 9
set rmargin 2
set xlabel "Time Step"
set ylabel "Training Error Percent"
set grid
set key right top
set terminal png size %d,%d
set output "%s"
plot "%s" using 1:2 notitle with lines
`,
		opts.Title,
		len(values)*s.Step(),
		maxValue*102/100,
		opts.Width, opts.Height,
		opts.Filename,
		dataPath)
	return err
}
