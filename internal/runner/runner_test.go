package runner

import (
	"testing"

	"github.com/fjeanquartier/swiftsim/internal/cellgrid"
	"github.com/fjeanquartier/swiftsim/internal/kernel"
	"github.com/fjeanquartier/swiftsim/internal/part"
	"github.com/fjeanquartier/swiftsim/internal/sched"
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

func TestLaunchRunsEveryTaskAndKernelTouchesEveryParticle(t *testing.T) {
	store, tree := latticeTree(4, 1.0)

	pool := task.NewPool(64, 256)
	sched.Build(pool, tree, sched.BuildOptions{})
	pool.Compact()
	if err := pool.Rank(); err != nil {
		t.Fatalf("Rank: %v", err)
	}

	s := sched.New(pool, tree, 2, task.MaskAll, task.MaskAll, 4, false)
	s.Start(2)

	runnerPool := NewPool(s, tree, store, kernel.Identity())
	runnerPool.Launch(2)

	if s.Waiting() != 0 {
		t.Fatalf("Waiting() = %d after Launch returns, want 0", s.Waiting())
	}

	for _, ref := range tree.TopCells() {
		c := tree.Cell(ref)
		if c.Count > 0 && c.Updated == 0 {
			t.Fatalf("cell %v had particles but Identity kernel never touched it (Updated=0)", ref)
		}
	}
}

func TestLaunchWithNoOpKernelsStillDrainsGraph(t *testing.T) {
	store, tree := latticeTree(3, 1.0)

	pool := task.NewPool(64, 256)
	sched.Build(pool, tree, sched.BuildOptions{})
	pool.Compact()
	if err := pool.Rank(); err != nil {
		t.Fatalf("Rank: %v", err)
	}

	s := sched.New(pool, tree, 1, task.MaskAll, task.MaskAll, 4, true)
	s.Start(1)

	runnerPool := NewPool(s, tree, store, kernel.NoOp)
	runnerPool.Launch(1)

	if s.Waiting() != 0 {
		t.Fatalf("Waiting() = %d after Launch returns, want 0", s.Waiting())
	}
}
