package conv

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// CSVLogger writes one row per training call to a CSV file. The file is
// opened on the first call and closed when training completes or Close is
// called.
type CSVLogger struct {
	BaseCallback
	Filename string
	Append   bool

	file   *os.File
	writer *csv.Writer
	start  time.Time
	err    error
}

// NewCSVLogger creates a new CSVLogger.
func NewCSVLogger(filename string, append bool) *CSVLogger {
	return &CSVLogger{
		Filename: filename,
		Append:   append,
	}
}

func (c *CSVLogger) open() error {
	mode := os.O_CREATE | os.O_WRONLY
	if c.Append {
		mode |= os.O_APPEND
	} else {
		mode |= os.O_TRUNC
	}

	file, err := os.OpenFile(c.Filename, mode, 0644)
	if err != nil {
		return errors.Wrapf(err, "csv logger: open %s", c.Filename)
	}
	c.file = file
	c.writer = csv.NewWriter(file)
	c.start = time.Now()

	info, err := file.Stat()
	if err == nil && (info.Size() == 0 || !c.Append) {
		c.writer.Write([]string{"call", "layer", "sum", "mean", "elapsed_seconds"})
	}
	return nil
}

func (c *CSVLogger) OnLearnEnd(layer int, score Score, n *Network) {
	if c.err != nil {
		return
	}
	if c.writer == nil {
		if c.err = c.open(); c.err != nil {
			log.Printf("%v", c.err)
			return
		}
	}

	record := []string{
		strconv.Itoa(n.TrainingCounter()),
		strconv.Itoa(layer),
		fmt.Sprintf("%.6f", score.Sum),
		fmt.Sprintf("%.6f", score.Mean),
		fmt.Sprintf("%.2f", time.Since(c.start).Seconds()),
	}
	if err := c.writer.Write(record); err != nil {
		log.Printf("csv logger: write record: %v", err)
	}
	c.writer.Flush()
}

func (c *CSVLogger) OnComplete(n *Network) {
	c.Close()
}

// Close flushes and closes the file. It is safe to call more than once.
func (c *CSVLogger) Close() error {
	if c.file == nil {
		return c.err
	}
	c.writer.Flush()
	err := c.writer.Error()
	if cerr := c.file.Close(); err == nil {
		err = cerr
	}
	c.file = nil
	c.writer = nil
	return err
}
