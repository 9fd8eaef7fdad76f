// Package cellgrid implements the recursive spatial cell tree: its
// construction (rebuild), drift-only refresh, 13-direction sort
// indices, and the two-lock/hold protocol that lets runners safely
// mutate particle data cell-by-cell.
package cellgrid

import "github.com/fjeanquartier/swiftsim/internal/task"

// CellRef indexes into Tree.cells. The zero value is a valid
// reference (the first cell allocated); NoCell (-1) is used for absent
// parent/child/task links. A
// cyclic parent/child pointer graph is replaced by int32 indices into
// one contiguous backing array.
//
// CellRef is defined in package task (which Task.Ci/Cj also use) to
// avoid a cellgrid<->task import cycle; it is aliased here so callers
// can spell it cellgrid.CellRef.
type CellRef = task.CellRef

const NoCell = task.NoCell

// NumSortDirections is the number of canonical axis-pair directions
// (glossary: "sort direction (sid)").
const NumSortDirections = 13

// SortEntry is one element of a cell's sort array for a given
// direction: the particle's index within the cell's local [0,Count)
// range and its projected distance along that direction's axis.
type SortEntry struct {
	Dist float64
	Ind  int32
}

// Cell is one node of the recursive spatial tree. Cells are arena
// elements, never individually allocated or freed by pointer; a split
// cell's Children are CellRef indices into the same Tree.cells slice
// the cell itself lives in.
type Cell struct {
	Loc   [3]float64
	Width [3]float64

	// Particle ranges. Each is a [Begin, Begin+Count) slice into the
	// tree's backing part.Store arrays.
	Begin, Count   int
	GBegin, GCount int
	SBegin, SCount int

	Parent   CellRef
	Children [8]CellRef
	Split    bool
	Depth    int

	HMax  float64 // max smoothing length among this cell's particles
	DxMax float64 // max displacement since last rebuild

	SortedMask uint16                   // bit d set => Sorts[d] is valid
	Sorts      [NumSortDirections][]SortEntry

	lock  cellLock
	glock cellLock

	// NodeID is the owning MPI rank; cells with NodeID != local rank
	// are "foreign" and only ever touched by recv tasks.
	NodeID int

	// Super is the shallowest ancestor that owns per-cell hierarchy
	// tasks (init/ghost/kick/...). A cell that is its own super cell
	// stores its own CellRef here.
	Super CellRef

	// Task shortcuts, set during task-graph construction.
	SortTask       [NumSortDirections]task.Ref
	InitTask       task.Ref
	GhostTask      task.Ref
	ExtraGhostTask task.Ref
	KickTask       task.Ref
	GravUpTask     task.Ref
	GravDownTask   task.Ref

	// Linked lists (as plain slices, reset whenever the task graph is
	// rebuilt, so there is no benefit to a real linked-list node pool) of
	// every density/gradient/force/gravity task touching this cell,
	// used by task-graph construction to wire ghost dependencies.
	DensityTasks  []task.Ref
	GradientTasks []task.Ref
	ForceTasks    []task.Ref
	GravityTasks  []task.Ref

	// Reductions, accumulated by kernels and rolled up to the engine
	// once per step.
	Mass            float64
	KineticEnergy   float64
	InternalEnergy  float64
	PotentialEnergy float64
	RadiatedEnergy  float64
	Momentum        [3]float64
	AngularMomentum [3]float64
	Entropy         float64
	TiEndMin        int64
	Updated         int
}

// IsLeaf reports whether c has no children.
func (c *Cell) IsLeaf() bool { return !c.Split }

// ClearSorts invalidates every sort direction, as happens on rebuild.
func (c *Cell) ClearSorts() {
	c.SortedMask = 0
}

// SortValid reports whether direction d currently holds a valid,
// monotone sort array for this cell.
func (c *Cell) SortValid(d int) bool {
	return c.SortedMask&(1<<uint(d)) != 0
}

// MarkSortValid sets the sorted bit for direction d.
func (c *Cell) MarkSortValid(d int) {
	c.SortedMask |= 1 << uint(d)
}
