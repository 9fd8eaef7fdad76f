package cellgrid

import "sync/atomic"

// cellLock implements one of a cell's two independent lock/hold
// counters: one guards the hydro particle array, the other the
// gravity particle array. Acquiring it never blocks: if it cannot be
// taken immediately the caller gets false back and is expected to
// re-queue the task rather than spin.
type cellLock struct {
	locked int32 // 0 or 1, CAS-guarded
	hold   int32 // incremented by every locked descendant
}

// TryLockCell attempts to acquire the parts-lock on cell ref within
// tree t. It fails (returns false) if the cell's hold count is
// nonzero, if any ancestor is already locked, or if the cell itself is
// already locked. On success, every ancestor's hold counter is
// incremented.
func (t *Tree) TryLockCell(ref CellRef) bool {
	return t.tryLock(ref, false)
}

// TryLockGCell is the gravity-array equivalent of TryLockCell.
func (t *Tree) TryLockGCell(ref CellRef) bool {
	return t.tryLock(ref, true)
}

func (t *Tree) tryLock(ref CellRef, grav bool) bool {
	c := t.Cell(ref)
	l := &c.lock
	if grav {
		l = &c.glock
	}

	if atomic.LoadInt32(&l.hold) != 0 {
		return false
	}
	for a := c.Parent; a != NoCell; a = t.Cell(a).Parent {
		al := &t.Cell(a).lock
		if grav {
			al = &t.Cell(a).glock
		}
		if atomic.LoadInt32(&al.locked) != 0 {
			return false
		}
	}
	if !atomic.CompareAndSwapInt32(&l.locked, 0, 1) {
		return false
	}
	for a := c.Parent; a != NoCell; a = t.Cell(a).Parent {
		al := &t.Cell(a).lock
		if grav {
			al = &t.Cell(a).glock
		}
		atomic.AddInt32(&al.hold, 1)
	}
	return true
}

// UnlockCell releases the parts-lock on ref and decrements every
// ancestor's hold counter.
func (t *Tree) UnlockCell(ref CellRef) { t.unlock(ref, false) }

// UnlockGCell releases the gparts-lock on ref.
func (t *Tree) UnlockGCell(ref CellRef) { t.unlock(ref, true) }

func (t *Tree) unlock(ref CellRef, grav bool) {
	c := t.Cell(ref)
	l := &c.lock
	if grav {
		l = &c.glock
	}
	atomic.StoreInt32(&l.locked, 0)
	for a := c.Parent; a != NoCell; a = t.Cell(a).Parent {
		al := &t.Cell(a).lock
		if grav {
			al = &t.Cell(a).glock
		}
		atomic.AddInt32(&al.hold, -1)
	}
}

// TryLockPair attempts to lock both ci and cj in a fixed order (lower
// CellRef first) so that two tasks contending for the same pair of
// cells never deadlock against each other. On partial failure the
// first lock taken is released before returning false, so the caller
// can safely re-queue the task.
func (t *Tree) TryLockPair(ci, cj CellRef) bool {
	first, second := ci, cj
	if second < first {
		first, second = second, first
	}
	if !t.TryLockCell(first) {
		return false
	}
	if first == second {
		return true
	}
	if !t.TryLockCell(second) {
		t.UnlockCell(first)
		return false
	}
	return true
}

// UnlockPair releases both cells locked by a prior successful
// TryLockPair call.
func (t *Tree) UnlockPair(ci, cj CellRef) {
	t.UnlockCell(ci)
	if cj != ci {
		t.UnlockCell(cj)
	}
}
