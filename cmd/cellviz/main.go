// Command cellviz is a standalone debug viewer: it loads one of the
// cell-grid JSON snapshots cmd/swift writes with -dump-cells-dir and
// renders every top-level cell as a rectangle, colored by owning rank
// and shaded by particle count, so a domain decomposition or an empty
// region of the box is obvious at a glance.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	rl "github.com/gen2brain/raylib-go/raylib"
	gui "github.com/gen2brain/raylib-go/raygui"
)

var (
	dir        = flag.String("dir", "", "directory of cells_NNNNNN.json snapshots written by swift -dump-cells-dir")
	screenSize = flag.Int("size", 900, "window width and height in pixels")
)

const panelWidth = 220

// cellRecord mirrors cmd/swift/dump.go's wire format exactly; the two
// are independent copies rather than a shared package since this tool
// never links against the engine.
type cellRecord struct {
	Loc    [3]float64 `json:"loc"`
	Width  [3]float64 `json:"width"`
	NodeID int        `json:"node_id"`
	Count  int        `json:"count"`
}

var rankPalette = []rl.Color{
	{R: 220, G: 90, B: 90, A: 255},
	{R: 90, G: 170, B: 220, A: 255},
	{R: 120, G: 200, B: 120, A: 255},
	{R: 220, G: 190, B: 90, A: 255},
	{R: 180, G: 120, B: 200, A: 255},
	{R: 90, G: 210, B: 200, A: 255},
}

func rankColor(node int) rl.Color {
	if node < 0 {
		return rl.Color{R: 90, G: 90, B: 90, A: 255}
	}
	return rankPalette[node%len(rankPalette)]
}

func main() {
	flag.Parse()
	if *dir == "" {
		fmt.Fprintln(os.Stderr, "usage: cellviz -dir <snapshot directory>")
		os.Exit(1)
	}

	snapshots, err := listSnapshots(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cellviz: %v\n", err)
		os.Exit(1)
	}
	if len(snapshots) == 0 {
		fmt.Fprintf(os.Stderr, "cellviz: no cells_*.json files found in %s\n", *dir)
		os.Exit(1)
	}

	rl.InitWindow(int32(*screenSize+panelWidth), int32(*screenSize), "cellviz")
	defer rl.CloseWindow()
	rl.SetTargetFPS(60)

	index := 0
	cells, maxCount, box, err := loadSnapshot(snapshots[index])
	if err != nil {
		fmt.Fprintf(os.Stderr, "cellviz: %v\n", err)
		os.Exit(1)
	}

	playing := false
	frameCounter := 0

	for !rl.WindowShouldClose() {
		if rl.IsKeyPressed(rl.KeyRight) && index < len(snapshots)-1 {
			index++
			cells, maxCount, box, err = loadSnapshot(snapshots[index])
		}
		if rl.IsKeyPressed(rl.KeyLeft) && index > 0 {
			index--
			cells, maxCount, box, err = loadSnapshot(snapshots[index])
		}
		if rl.IsKeyPressed(rl.KeySpace) {
			playing = !playing
		}
		if playing {
			frameCounter++
			if frameCounter >= 6 && index < len(snapshots)-1 {
				frameCounter = 0
				index++
				cells, maxCount, box, err = loadSnapshot(snapshots[index])
			}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "cellviz: %v\n", err)
			err = nil
		}

		rl.BeginDrawing()
		rl.ClearBackground(rl.Color{R: 18, G: 18, B: 22, A: 255})
		drawGrid(cells, maxCount, box, int32(*screenSize))
		prev, next, toggle := drawPanel(int32(*screenSize), int32(*screenSize), snapshots[index], index, len(snapshots), len(cells), playing)
		rl.EndDrawing()

		if toggle {
			playing = !playing
		}
		if prev && index > 0 {
			index--
			cells, maxCount, box, err = loadSnapshot(snapshots[index])
		}
		if next && index < len(snapshots)-1 {
			index++
			cells, maxCount, box, err = loadSnapshot(snapshots[index])
		}
	}
}

func listSnapshots(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "cells_*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func loadSnapshot(path string) ([]cellRecord, int, [2]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, [2]float64{}, err
	}
	var cells []cellRecord
	if err := json.Unmarshal(data, &cells); err != nil {
		return nil, 0, [2]float64{}, err
	}

	maxCount := 1
	var lo, hi [2]float64
	hi = [2]float64{1, 1}
	for i, c := range cells {
		if c.Count > maxCount {
			maxCount = c.Count
		}
		if i == 0 {
			lo = [2]float64{c.Loc[0], c.Loc[1]}
			hi = [2]float64{c.Loc[0] + c.Width[0], c.Loc[1] + c.Width[1]}
			continue
		}
		if c.Loc[0] < lo[0] {
			lo[0] = c.Loc[0]
		}
		if c.Loc[1] < lo[1] {
			lo[1] = c.Loc[1]
		}
		if c.Loc[0]+c.Width[0] > hi[0] {
			hi[0] = c.Loc[0] + c.Width[0]
		}
		if c.Loc[1]+c.Width[1] > hi[1] {
			hi[1] = c.Loc[1] + c.Width[1]
		}
	}
	span := hi[0] - lo[0]
	if span <= 0 {
		span = 1
	}
	return cells, maxCount, [2]float64{lo[0], span}, nil
}

// drawGrid projects every cell's X/Y extent onto the square viewport,
// ignoring Z: a top-level cell is drawn as one rectangle per X/Y slab,
// which is enough to see a partition boundary or a density hole.
func drawGrid(cells []cellRecord, maxCount int, box [2]float64, viewport int32) {
	origin, span := box[0], box[1]
	scale := float64(viewport) / span

	for _, c := range cells {
		x := int32((c.Loc[0] - origin) * scale)
		y := int32((c.Loc[1] - origin) * scale)
		w := int32(c.Width[0] * scale)
		h := int32(c.Width[1] * scale)
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}

		base := rankColor(c.NodeID)
		brightness := float32(c.Count) / float32(maxCount)
		if brightness < 0.15 {
			brightness = 0.15
		}
		fill := rl.Color{
			R: uint8(float32(base.R) * brightness),
			G: uint8(float32(base.G) * brightness),
			B: uint8(float32(base.B) * brightness),
			A: 255,
		}
		rl.DrawRectangle(x, y, w, h, fill)
		rl.DrawRectangleLines(x, y, w, h, rl.Color{R: 10, G: 10, B: 12, A: 255})
	}
}

// drawPanel renders the sidebar: current snapshot name, a play/pause
// and step button row (gui.Button, mirroring cmd/potentialpreview's
// use of raygui for transport controls), and the cell count.
func drawPanel(x, height int32, path string, index, total, cellCount int, playing bool) (prev, next, toggle bool) {
	rl.DrawRectangle(x, 0, panelWidth, height, rl.Color{R: 28, G: 28, B: 34, A: 255})
	rl.DrawText(filepath.Base(path), x+10, 10, 14, rl.LightGray)
	rl.DrawText(fmt.Sprintf("snapshot %d / %d", index+1, total), x+10, 30, 14, rl.LightGray)
	rl.DrawText(fmt.Sprintf("cells: %d", cellCount), x+10, 50, 14, rl.LightGray)

	buttonY := float32(80)
	prev = gui.Button(rl.Rectangle{X: float32(x) + 10, Y: buttonY, Width: 55, Height: 26}, "< prev")
	next = gui.Button(rl.Rectangle{X: float32(x) + 75, Y: buttonY, Width: 55, Height: 26}, "next >")
	label := "play"
	if playing {
		label = "pause"
	}
	toggle = gui.Button(rl.Rectangle{X: float32(x) + 140, Y: buttonY, Width: 65, Height: 26}, label)

	rl.DrawText("left/right: step", x+10, height-60, 12, rl.Gray)
	rl.DrawText("space: play/pause", x+10, height-40, 12, rl.Gray)
	return
}
