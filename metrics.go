package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

var metricCommand = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "mimecodec_command_duration_seconds",
		Help:    "Duration of commands.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.100, 0.5, 1, 5, 10, 30},
	},
	[]string{
		"cmd",
	},
)

func commandObserve(cmd string, start time.Time) {
	metricCommand.WithLabelValues(cmd).Observe(float64(time.Since(start)) / float64(time.Second))
}

// dumpMetrics writes all metrics of the default registry in the Prometheus text
// format.
func dumpMetrics(w io.Writer) error {
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}

// writeMetrics writes the metrics to path, or to stderr for "-". The file is
// replaced atomically, a textfile collector never sees a partial file.
func writeMetrics(path string) (rerr error) {
	if path == "-" {
		return dumpMetrics(os.Stderr)
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	defer func() {
		if f != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()
	if err := dumpMetrics(f); err != nil {
		return err
	}
	if err := f.Chmod(0644); err != nil {
		return fmt.Errorf("chmod metrics file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing metrics file: %w", err)
	}
	name := f.Name()
	f = nil
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("renaming metrics file: %w", err)
	}
	return nil
}

func cmdMetrics(c *cmd) {
	c.help = `Prints the metrics of this process in Prometheus text format.

Mostly useful to see which metrics exist. Set MetricsOutput in the config file
to write metrics after each command.
`
	if len(c.Parse()) != 0 {
		c.Usage()
	}
	err := dumpMetrics(os.Stdout)
	xcheckf(err, "dump metrics")
}
