// Package telemetry writes the per-step statistics (whenever a
// statistics directory is configured) and the per-task performance
// dumps the driver's -dump-tasks-every flag requests, following the
// teacher's CSV-collector pattern.
package telemetry

import (
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/stat"

	"github.com/fjeanquartier/swiftsim/internal/swifterr"
)

// StepStats is one row of the statistics.csv reduction: the
// conserved quantities summed across every cell, plus the minimum
// next-step time that drives the global time-step selection.
type StepStats struct {
	Step           int     `csv:"step"`
	Time           float64 `csv:"time"`
	Mass           float64 `csv:"mass"`
	KineticEnergy  float64 `csv:"kinetic_energy"`
	InternalEnergy float64 `csv:"internal_energy"`
	PotentialEnergy float64 `csv:"potential_energy"`
	RadiatedEnergy float64 `csv:"radiated_energy"`
	Entropy        float64 `csv:"entropy"`
	MomentumX      float64 `csv:"momentum_x"`
	MomentumY      float64 `csv:"momentum_y"`
	MomentumZ      float64 `csv:"momentum_z"`
	MinNextStep    float64 `csv:"min_next_step"`
	UpdatedCount   int64   `csv:"updated_count"`
}

// TaskTiming is one row of the per-task perf dump: a task's kind and
// how long it actually ran, in nanoseconds, for the -dump-tasks-every
// flag.
type TaskTiming struct {
	Step     int    `csv:"step"`
	Type     string `csv:"type"`
	Subtype  string `csv:"subtype"`
	Rank     int    `csv:"rank"`
	TicNanos int64  `csv:"tic_ns"`
	TocNanos int64  `csv:"toc_ns"`
}

// Collector writes StepStats and TaskTiming rows to CSV files in its
// directory and keeps every step's wall time in memory for Summary.
type Collector struct {
	dir string

	statsFile *os.File
	taskFile  *os.File

	statsHeaderWritten bool
	taskHeaderWritten  bool

	window []float64 // per-step wall time of every step so far, for Summary
}

// NewCollector opens (creating as needed) statistics.csv and
// task_timings.csv under dir. A nil *Collector (dir == "") disables
// every write, mirroring the teacher's "nil output manager disables
// output" convention.
func NewCollector(dir string) (*Collector, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, swifterr.Wrap(swifterr.IO, "creating telemetry directory "+dir, err)
	}
	c := &Collector{dir: dir}

	statsPath := filepath.Join(dir, "statistics.csv")
	f, err := os.Create(statsPath)
	if err != nil {
		return nil, swifterr.Wrap(swifterr.IO, "creating "+statsPath, err)
	}
	c.statsFile = f

	taskPath := filepath.Join(dir, "task_timings.csv")
	f, err = os.Create(taskPath)
	if err != nil {
		c.statsFile.Close()
		return nil, swifterr.Wrap(swifterr.IO, "creating "+taskPath, err)
	}
	c.taskFile = f

	return c, nil
}

// WriteStep appends one statistics.csv row and folds its wall-clock
// cost into the window used by Summary.
func (c *Collector) WriteStep(s StepStats, wallSeconds float64) error {
	if c == nil {
		return nil
	}
	c.window = append(c.window, wallSeconds)

	records := []StepStats{s}
	if !c.statsHeaderWritten {
		if err := gocsv.Marshal(records, c.statsFile); err != nil {
			return swifterr.Wrap(swifterr.IO, "writing statistics row", err)
		}
		c.statsHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, c.statsFile); err != nil {
		return swifterr.Wrap(swifterr.IO, "writing statistics row", err)
	}
	return nil
}

// WriteTasks appends one task_timings.csv row per entry, for a
// -dump-tasks-every sweep.
func (c *Collector) WriteTasks(rows []TaskTiming) error {
	if c == nil || len(rows) == 0 {
		return nil
	}
	if !c.taskHeaderWritten {
		if err := gocsv.Marshal(rows, c.taskFile); err != nil {
			return swifterr.Wrap(swifterr.IO, "writing task timings", err)
		}
		c.taskHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(rows, c.taskFile); err != nil {
		return swifterr.Wrap(swifterr.IO, "writing task timings", err)
	}
	return nil
}

// Summary reports the mean and sample (n-1) standard deviation of
// per-step wall-clock time over every step recorded so far, used for
// the driver's periodic progress log line.
func (c *Collector) Summary() (mean, stddev float64) {
	if c == nil || len(c.window) == 0 {
		return 0, 0
	}
	mean, stddev = stat.MeanStdDev(c.window, nil)
	return mean, stddev
}

// Close flushes and closes every open telemetry file.
func (c *Collector) Close() error {
	if c == nil {
		return nil
	}
	var firstErr error
	for _, f := range []*os.File{c.statsFile, c.taskFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Dir reports the telemetry output directory, or "" if disabled.
func (c *Collector) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}
