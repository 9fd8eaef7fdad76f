package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewCollectorWithEmptyDirIsNilAndHarmless(t *testing.T) {
	c, err := NewCollector("")
	if err != nil {
		t.Fatalf("NewCollector(\"\"): %v", err)
	}
	if c != nil {
		t.Fatal("NewCollector(\"\") should return a nil collector")
	}
	if err := c.WriteStep(StepStats{}, 0); err != nil {
		t.Fatalf("WriteStep on nil collector: %v", err)
	}
	if err := c.WriteTasks(nil); err != nil {
		t.Fatalf("WriteTasks on nil collector: %v", err)
	}
	if mean, stddev := c.Summary(); mean != 0 || stddev != 0 {
		t.Fatalf("Summary on nil collector = (%f, %f), want (0, 0)", mean, stddev)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close on nil collector: %v", err)
	}
	if c.Dir() != "" {
		t.Fatalf("Dir on nil collector = %q, want empty", c.Dir())
	}
}

func TestCollectorWritesStatisticsCSVWithHeader(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCollector(dir)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	defer c.Close()

	if err := c.WriteStep(StepStats{Step: 0, Time: 0.0, Mass: 10}, 0.01); err != nil {
		t.Fatalf("WriteStep: %v", err)
	}
	if err := c.WriteStep(StepStats{Step: 1, Time: 0.1, Mass: 10}, 0.02); err != nil {
		t.Fatalf("WriteStep: %v", err)
	}
	c.Close()

	data, err := os.ReadFile(filepath.Join(dir, "statistics.csv"))
	if err != nil {
		t.Fatalf("reading statistics.csv: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("statistics.csv has %d lines, want 3 (header + 2 rows)", len(lines))
	}
	if !strings.Contains(lines[0], "step") {
		t.Fatalf("header line = %q, want it to contain \"step\"", lines[0])
	}
}

func TestCollectorSummaryReflectsWallTimeWindow(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCollector(dir)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	defer c.Close()

	c.WriteStep(StepStats{Step: 0}, 1.0)
	c.WriteStep(StepStats{Step: 1}, 3.0)

	mean, _ := c.Summary()
	if mean != 2.0 {
		t.Fatalf("Summary mean = %f, want 2.0", mean)
	}
}

func TestCollectorWriteTasksAppendsRows(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCollector(dir)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	defer c.Close()

	rows := []TaskTiming{
		{Step: 0, Type: "self", Subtype: "density", Rank: 0, TicNanos: 10, TocNanos: 20},
	}
	if err := c.WriteTasks(rows); err != nil {
		t.Fatalf("WriteTasks: %v", err)
	}
	c.Close()

	data, err := os.ReadFile(filepath.Join(dir, "task_timings.csv"))
	if err != nil {
		t.Fatalf("reading task_timings.csv: %v", err)
	}
	if !strings.Contains(string(data), "density") {
		t.Fatalf("task_timings.csv = %q, want it to contain \"density\"", string(data))
	}
}
