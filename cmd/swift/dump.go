package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fjeanquartier/swiftsim/internal/engine"
)

// cellRecord is one top-level cell's entry in a -dump-cells-dir
// snapshot, the input cmd/cellviz consumes to render the grid.
type cellRecord struct {
	Loc    [3]float64 `json:"loc"`
	Width  [3]float64 `json:"width"`
	NodeID int        `json:"node_id"`
	Count  int        `json:"count"`
}

// writeCellDump marshals every top-level cell of eng's current tree
// to a JSON file under dir, named by the run's current step.
func writeCellDump(eng *engine.Engine, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tree := eng.Tree()
	tops := tree.TopCells()
	records := make([]cellRecord, len(tops))
	for i, ref := range tops {
		c := tree.Cell(ref)
		records[i] = cellRecord{Loc: c.Loc, Width: c.Width, NodeID: c.NodeID, Count: c.Count}
	}

	path := filepath.Join(dir, fmt.Sprintf("cells_%06d.json", eng.Step()))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
