package part

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// PartCounts summarizes how many particles of each species a Loader
// produced, mirroring the values a real initial-conditions reader
// would hand the engine.
type PartCounts struct {
	Gas    int
	Gravity int
	Star   int
}

// Loader is the out-of-scope collaborator that populates a Store. The
// engine only depends on this interface; how the arrays are filled
// (HDF5 ICs, cosmological glass files, procedural generation) is
// entirely outside the scheduler core.
type Loader interface {
	// Load returns the populated store, per-species counts, the
	// simulation box dimensions, whether the box is periodic, and
	// whether internal energy was supplied as entropy in the ICs.
	Load() (store Store, counts PartCounts, box [3]float64, periodic bool, entropyICs bool, err error)
}

// LatticeLoader builds a regular n^3 lattice of gas particles with a
// small OpenSimplex-noise position jitter, used by the core's own
// tests to reproduce small fixed scenarios (a single cell, or a grid of
// cells via GridLoader) without pulling in a real IC reader. Jitter is
// deterministic: same Seed always perturbs the same way, so scenario
// assertions are reproducible across test runs.
type LatticeLoader struct {
	N        int     // particles per axis, per cell
	Spacing  float64 // lattice spacing
	H        float64 // smoothing length, h = HFactor * Spacing
	HFactor  float64
	Jitter   float64 // fraction of Spacing to perturb by
	Seed     int64
	Origin   [3]float64
}

// Load implements Loader.
func (l LatticeLoader) Load() (Store, PartCounts, [3]float64, bool, bool, error) {
	noise := opensimplex.New(l.Seed)
	n := l.N
	if n <= 0 {
		n = 4
	}
	spacing := l.Spacing
	if spacing <= 0 {
		spacing = 1.0
	}
	hFactor := l.HFactor
	if hFactor <= 0 {
		hFactor = 1.23
	}
	h := l.H
	if h <= 0 {
		h = hFactor * spacing
	}

	var store Store
	store.Parts = make([]Particle, 0, n*n*n)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				x := l.Origin[0] + float64(i)*spacing
				y := l.Origin[1] + float64(j)*spacing
				z := l.Origin[2] + float64(k)*spacing

				if l.Jitter > 0 {
					// 4-D noise keeps the perturbation stable across
					// repeated evaluations at the same lattice point
					// while still varying smoothly in space.
					nx := noise.Eval4(x*0.37, y*0.37, z*0.37, 0.0)
					ny := noise.Eval4(x*0.37, y*0.37, z*0.37, 7.0)
					nz := noise.Eval4(x*0.37, y*0.37, z*0.37, 13.0)
					x += nx * l.Jitter * spacing
					y += ny * l.Jitter * spacing
					z += nz * l.Jitter * spacing
				}

				store.Parts = append(store.Parts, Particle{
					X: x, Y: y, Z: z,
					Mass:       1.0,
					H:          h,
					TimeBin:    TimeBinUnset,
					GpartIndex: -1,
				})
			}
		}
	}

	box := [3]float64{
		float64(n) * spacing,
		float64(n) * spacing,
		float64(n) * spacing,
	}
	counts := PartCounts{Gas: len(store.Parts)}
	return store, counts, box, false, false, nil
}

// GridLoader tiles a LatticeLoader across a cdim[3] grid of top
// cells, producing a 27-cell 3x3x3 grid scenario. The box returned
// covers the full tiled region.
type GridLoader struct {
	Cdim    [3]int
	Cell    LatticeLoader // per-cell lattice parameters; Origin is overwritten
}

func (g GridLoader) Load() (Store, PartCounts, [3]float64, bool, bool, error) {
	var store Store
	n := g.Cell.N
	if n <= 0 {
		n = 4
	}
	spacing := g.Cell.Spacing
	if spacing <= 0 {
		spacing = 1.0
	}
	cellWidth := float64(n) * spacing

	for cx := 0; cx < g.Cdim[0]; cx++ {
		for cy := 0; cy < g.Cdim[1]; cy++ {
			for cz := 0; cz < g.Cdim[2]; cz++ {
				sub := g.Cell
				sub.Origin = [3]float64{
					float64(cx) * cellWidth,
					float64(cy) * cellWidth,
					float64(cz) * cellWidth,
				}
				sub.Seed = g.Cell.Seed + int64(cx*g.Cdim[1]*g.Cdim[2]+cy*g.Cdim[2]+cz)
				subStore, _, _, _, _, err := sub.Load()
				if err != nil {
					return Store{}, PartCounts{}, [3]float64{}, false, false, err
				}
				store.Parts = append(store.Parts, subStore.Parts...)
			}
		}
	}

	box := [3]float64{
		float64(g.Cdim[0]) * cellWidth,
		float64(g.Cdim[1]) * cellWidth,
		float64(g.Cdim[2]) * cellWidth,
	}
	counts := PartCounts{Gas: len(store.Parts)}
	return store, counts, box, true, false, nil
}
