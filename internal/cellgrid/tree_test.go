package cellgrid

import (
	"testing"

	"github.com/fjeanquartier/swiftsim/internal/part"
)

func lattice(n int, spacing float64) *part.Store {
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
	return store
}

func TestRebuildBucketsAllParticles(t *testing.T) {
	store := lattice(6, 1.0)
	box := [3]float64{6, 6, 6}
	tree := Rebuild(store, box, false, 0.5, DefaultParams())

	total := 0
	for _, ref := range tree.TopCells() {
		total += tree.Cell(ref).Count
	}
	if total != len(store.Parts) {
		t.Fatalf("top cells account for %d particles, want %d", total, len(store.Parts))
	}
}

func TestRebuildSplitsDenseCells(t *testing.T) {
	store := lattice(10, 0.1)
	box := [3]float64{1, 1, 1}
	params := DefaultParams()
	params.SplitSize = 50
	tree := Rebuild(store, box, false, 0.05, params)

	var sawSplit bool
	for _, ref := range tree.TopCells() {
		if tree.Cell(ref).Split {
			sawSplit = true
		}
	}
	if !sawSplit {
		t.Fatal("expected at least one top cell to split given SplitSize=50 over 1000 particles")
	}
}

func TestBucketGravPartsRelinksBackLinks(t *testing.T) {
	store := &part.Store{}
	for i := 0; i < 8; i++ {
		store.Parts = append(store.Parts, part.Particle{
			X: float64(7 - i), Y: 0, Z: 0, Mass: 1, H: 0.1, GpartIndex: -1,
		})
	}
	for i := range store.Parts {
		store.LinkPartner(i, part.GravParticle{X: store.Parts[i].X, Y: 0, Z: 0, Mass: 1})
	}
	if err := store.CheckPartnerLinks(); err != nil {
		t.Fatalf("fixture back-links broken before rebuild: %v", err)
	}

	box := [3]float64{8, 1, 1}
	tree := Rebuild(store, box, false, 0.1, DefaultParams())
	_ = tree

	if err := store.CheckPartnerLinks(); err != nil {
		t.Fatalf("back-links broken after rebuild (gas particles reordered without relinking gravity partners): %v", err)
	}
}

func TestGravPartsBucketedToTopCells(t *testing.T) {
	store := &part.Store{
		GParts: []part.GravParticle{
			{X: 0.1, Y: 0.1, Z: 0.1, Mass: 1, TiEndStep: 4},
			{X: 3.9, Y: 3.9, Z: 3.9, Mass: 1, TiEndStep: 2},
		},
	}
	box := [3]float64{4, 4, 4}
	params := DefaultParams()
	tree := Rebuild(store, box, false, 1, params)

	total := 0
	for _, ref := range tree.TopCells() {
		total += tree.Cell(ref).GCount
	}
	if total != 2 {
		t.Fatalf("top cells account for %d gravity particles, want 2", total)
	}
}

func TestReduceTiEndMinFoldsGravityAtTopCellEvenWhenSplit(t *testing.T) {
	store := lattice(10, 0.1)
	for i := range store.Parts {
		store.Parts[i].TiEndStep = 100
	}
	store.GParts = []part.GravParticle{{X: 0.05, Y: 0.05, Z: 0.05, Mass: 1, TiEndStep: 3}}

	box := [3]float64{1, 1, 1}
	params := DefaultParams()
	params.SplitSize = 10
	tree := Rebuild(store, box, false, 0.05, params)

	var top CellRef
	for _, ref := range tree.TopCells() {
		if tree.Cell(ref).GCount > 0 {
			top = ref
			break
		}
	}
	if !tree.Cell(top).Split {
		t.Skip("fixture did not produce a split top cell containing the gravity particle")
	}

	min := tree.ReduceTiEndMin(top, store)
	if min != 3 {
		t.Fatalf("ReduceTiEndMin = %d, want 3 (the gravity particle's ti_end, lower than every gas particle's)", min)
	}
}
