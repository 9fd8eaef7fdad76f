package sched

import (
	"testing"

	"github.com/fjeanquartier/swiftsim/internal/cellgrid"
	"github.com/fjeanquartier/swiftsim/internal/part"
	"github.com/fjeanquartier/swiftsim/internal/task"
)

func latticeTree(n int, spacing float64) (*part.Store, *cellgrid.Tree) {
	store := &part.Store{}
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			for z := 0; z < n; z++ {
				store.Parts = append(store.Parts, part.Particle{
					X: float64(x) * spacing, Y: float64(y) * spacing, Z: float64(z) * spacing,
					Mass: 1, H: spacing * 0.5, GpartIndex: -1,
				})
			}
		}
	}
	box := [3]float64{float64(n) * spacing, float64(n) * spacing, float64(n) * spacing}
	tree := cellgrid.Rebuild(store, box, false, spacing*0.5, cellgrid.DefaultParams())
	return store, tree
}

func TestBuildWiresInitBeforeDensityBeforeGhostBeforeKick(t *testing.T) {
	_, tree := latticeTree(4, 1.0)
	pool := task.NewPool(64, 256)

	Build(pool, tree, BuildOptions{})
	pool.Compact()

	found := false
	for _, ref := range tree.TopCells() {
		c := tree.Cell(ref)
		if c.InitTask == task.NoRef {
			continue
		}
		found = true
		for _, d := range c.DensityTasks {
			if !unlocksContain(pool, c.InitTask, d) {
				t.Fatalf("init task should unlock every density task for cell %v", ref)
			}
			if !unlocksContain(pool, d, c.GhostTask) {
				t.Fatalf("density task should unlock the ghost task for cell %v", ref)
			}
		}
		for _, f := range c.ForceTasks {
			if !unlocksContain(pool, c.GhostTask, f) {
				t.Fatalf("ghost task should unlock every force task for cell %v", ref)
			}
			if !unlocksContain(pool, f, c.KickTask) {
				t.Fatalf("force task should unlock the kick task for cell %v", ref)
			}
		}
	}
	if !found {
		t.Fatal("expected at least one active top cell with an init task")
	}
}

func TestBuildWithGravityWiresGravUpGatherFFTDown(t *testing.T) {
	store, tree := latticeTree(3, 1.0)
	store.GParts = []part.GravParticle{{X: 0.1, Y: 0.1, Z: 0.1, Mass: 1}}
	tree = cellgrid.Rebuild(store, [3]float64{3, 3, 3}, false, 0.5, cellgrid.DefaultParams())

	pool := task.NewPool(64, 256)
	Build(pool, tree, BuildOptions{Gravity: true})
	pool.Compact()

	var sawGravUp bool
	for _, ref := range tree.TopCells() {
		c := tree.Cell(ref)
		if c.GravUpTask == task.NoRef {
			continue
		}
		sawGravUp = true
		if !unlocksContain(pool, c.InitTask, c.GravUpTask) {
			t.Fatalf("init should unlock grav_up for cell %v", ref)
		}
		if !unlocksContain(pool, c.GravDownTask, c.KickTask) {
			t.Fatalf("grav_down should unlock kick for cell %v", ref)
		}
	}
	if !sawGravUp {
		t.Fatal("expected at least one top cell with a grav_up task when Gravity is enabled")
	}
}

func TestBuildRankableAcyclic(t *testing.T) {
	_, tree := latticeTree(4, 1.0)
	pool := task.NewPool(64, 256)
	Build(pool, tree, BuildOptions{})
	pool.Compact()
	if err := pool.Rank(); err != nil {
		t.Fatalf("Rank: %v", err)
	}
}

func unlocksContain(pool *task.Pool, from, to task.Ref) bool {
	for _, r := range pool.Unlocks(from) {
		if r == to {
			return true
		}
	}
	return false
}
