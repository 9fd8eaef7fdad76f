package engine

import (
	"fmt"

	"github.com/fjeanquartier/swiftsim/internal/cellgrid"
	"github.com/fjeanquartier/swiftsim/internal/swifterr"
)

// checkInvariants re-validates the partition, sort, and gas/gravity
// partner-link invariants against the store and tree as they stand
// after this step's tasks have run. Each check runs through
// swifterr.Assert, so a broken invariant panics immediately in a
// swiftdebug build and is otherwise returned as a fatal error that
// Advance propagates to the caller.
func (e *Engine) checkInvariants() error {
	if err := swifterr.Assert(e.tree.CheckPartition(e.store), "cell partition"); err != nil {
		return err
	}
	for _, ref := range e.tree.TopCells() {
		if err := e.checkSortInvariantRecursive(ref); err != nil {
			return err
		}
	}
	if err := swifterr.Assert(e.store.CheckPartnerLinks(), "gas/gravity partner links"); err != nil {
		return err
	}
	return nil
}

// checkSortInvariantRecursive walks every cell reachable from ref
// (split and leaf alike, unlike TopCells which only lists the roots),
// so a corrupted sort array anywhere in the tree is caught rather than
// just at top level.
func (e *Engine) checkSortInvariantRecursive(ref cellgrid.CellRef) error {
	cell := e.tree.Cell(ref)
	if err := swifterr.Assert(cell.CheckSortInvariant(), fmt.Sprintf("sort order on cell %d", ref)); err != nil {
		return err
	}
	if !cell.Split {
		return nil
	}
	for _, ch := range cell.Children {
		if ch == cellgrid.NoCell {
			continue
		}
		if err := e.checkSortInvariantRecursive(ch); err != nil {
			return err
		}
	}
	return nil
}
