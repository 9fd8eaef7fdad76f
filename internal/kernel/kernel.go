// Package kernel defines the seam between the scheduler and the
// physics it dispatches. The scheduler never computes density,
// pressure, or gravitational acceleration itself; it calls one of
// these function values with the cells already locked and trusts the
// kernel to only touch the particle ranges it was handed.
package kernel

import (
	"github.com/fjeanquartier/swiftsim/internal/cellgrid"
	"github.com/fjeanquartier/swiftsim/internal/task"
)

// SelfKernel computes a self-interaction pass (every particle in c
// against every other particle in c) for one task subtype.
type SelfKernel func(c *cellgrid.Cell, sub task.Subtype)

// PairKernel computes a pair-interaction pass between two cells for
// one task subtype. ci and cj are never the same cell; callers must
// hold both cells' appropriate locks before invoking it.
type PairKernel func(ci, cj *cellgrid.Cell, sub task.Subtype, sid int)

// Set bundles every kernel the runner dispatches by (type, subtype).
// A field left nil makes the corresponding task type a no-op, which is
// convenient for tests that only exercise scheduling behavior.
type Set struct {
	Self SelfKernel
	Pair PairKernel

	// GravUp propagates multipole moments from children to a parent
	// cell; GravDown applies a parent's field expansion to its
	// children. Both are self-contained tree walks, not pair kernels.
	GravUp   func(c *cellgrid.Cell)
	GravDown func(c *cellgrid.Cell)

	// Cooling and Source are per-cell, single-argument passes run
	// after kick, when enabled by the step's task mask.
	Cooling func(c *cellgrid.Cell)
	Source  func(c *cellgrid.Cell)
}

// NoOp is a Set whose every field is nil, used by tests that verify
// scheduling and dependency behavior without caring about physics
// output.
var NoOp = Set{}

// Identity returns a Set whose self/pair kernels only bump a cell's
// Updated counter by the number of particles visited. It is useful for
// tests that need to observe "this kernel ran" without depending on
// real physics.
func Identity() Set {
	return Set{
		Self: func(c *cellgrid.Cell, sub task.Subtype) {
			c.Updated += c.Count
		},
		Pair: func(ci, cj *cellgrid.Cell, sub task.Subtype, sid int) {
			ci.Updated += cj.Count
			cj.Updated += ci.Count
		},
	}
}
