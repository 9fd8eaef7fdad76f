// Package runner implements the worker loop: wait for the step
// barrier, pull a task from the scheduler, lock its cells without
// blocking, dispatch to a kernel (or recurse for sub_self/sub_pair),
// and report completion.
package runner

import (
	"sync"
	"time"

	"github.com/fjeanquartier/swiftsim/internal/affinity"
	"github.com/fjeanquartier/swiftsim/internal/cellgrid"
	"github.com/fjeanquartier/swiftsim/internal/kernel"
	"github.com/fjeanquartier/swiftsim/internal/part"
	"github.com/fjeanquartier/swiftsim/internal/sched"
	"github.com/fjeanquartier/swiftsim/internal/task"
)

// Pool holds what the worker goroutines need across steps (scheduler,
// tree, store, kernels); each Launch starts a fresh set of worker
// goroutines and blocks until every one has drained the current step's
// graph.
type Pool struct {
	Scheduler *sched.Scheduler
	Tree      *cellgrid.Tree
	Store     *part.Store
	Kernels   kernel.Set

	// MaxSubRecurseDepth bounds how deep a sub_self/sub_pair task may
	// recurse into children before falling back to running the pair
	// kernel directly; this only guards against a malformed graph, it
	// is never exercised by a correctly split tree.
	MaxSubRecurseDepth int

	// Pin requests that each worker goroutine lock itself to its own
	// OS thread and CPU (internal/affinity), backing the driver's
	// -pin flag. Ignored on platforms affinity.Available reports
	// false for.
	Pin bool
}

// NewPool wires a worker pool over an already-started scheduler. store
// is the backing particle array the tree's cells slice into, needed by
// leaf-cell sort tasks (MergeOrBuildSort requires it to read positions).
func NewPool(s *sched.Scheduler, tree *cellgrid.Tree, store *part.Store, kernels kernel.Set) *Pool {
	return &Pool{Scheduler: s, Tree: tree, Store: store, Kernels: kernels, MaxSubRecurseDepth: 64}
}

// Launch runs numWorkers worker loops concurrently and waits for all
// of them to observe the scheduler drain. The scheduler must already
// have been started (sched.Scheduler.Start) before calling this.
func (p *Pool) Launch(numWorkers int) {
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(workerID int) {
			defer wg.Done()
			if p.Pin && affinity.Available() {
				_ = affinity.PinRoundRobin(workerID)
			}
			p.workerLoop(workerID)
		}(w)
	}
	wg.Wait()
}

func (p *Pool) workerLoop(workerID int) {
	for {
		r, ok := p.Scheduler.GetTask(workerID)
		if !ok {
			return
		}
		p.runTask(workerID, r)
	}
}

// runTask attempts to lock the task's cells, runs it if successful,
// and re-queues it (without recording any runtime) on lock conflict
// rather than blocking the worker.
func (p *Pool) runTask(workerID int, r task.Ref) {
	t := p.Scheduler.Pool().Get(r)

	locked, ok := p.tryLock(t)
	if !ok {
		p.Scheduler.Requeue(workerID, r)
		return
	}

	t.Tic = time.Now().UnixNano()
	p.dispatch(workerID, t)
	t.Toc = time.Now().UnixNano()

	if locked {
		p.unlock(t)
	}
	p.Scheduler.Done(r, workerID)
}

// tryLock acquires whatever cell locks t's type requires. The second
// return value is false on a lock conflict (caller must re-queue); the
// first is false for task types that never take a cell lock at all
// (send/recv), so runTask knows not to attempt a release.
func (p *Pool) tryLock(t *task.Task) (needsUnlock, ok bool) {
	grav := t.Subtype == task.SubtypeGrav || isGravType(t.Type)

	switch t.Type {
	case task.TypeSend, task.TypeRecv:
		return false, true
	case task.TypePair, task.TypeSubPair:
		if grav {
			if !p.Tree.TryLockGCell(t.Ci) {
				return true, false
			}
			if t.Ci == t.Cj {
				return true, true
			}
			if !p.Tree.TryLockGCell(t.Cj) {
				p.Tree.UnlockGCell(t.Ci)
				return true, false
			}
			return true, true
		}
		return true, p.Tree.TryLockPair(t.Ci, t.Cj)
	default:
		if grav {
			return true, p.Tree.TryLockGCell(t.Ci)
		}
		return true, p.Tree.TryLockCell(t.Ci)
	}
}

func isGravType(t task.Type) bool {
	switch t {
	case task.TypeGravUp, task.TypeGravDown, task.TypeGravMM, task.TypeGravGather, task.TypeGravFFT, task.TypeGravExternal:
		return true
	default:
		return false
	}
}

func (p *Pool) unlock(t *task.Task) {
	grav := t.Subtype == task.SubtypeGrav || isGravType(t.Type)
	switch t.Type {
	case task.TypePair, task.TypeSubPair:
		if grav {
			p.Tree.UnlockGCell(t.Ci)
			if t.Cj != t.Ci {
				p.Tree.UnlockGCell(t.Cj)
			}
			return
		}
		p.Tree.UnlockPair(t.Ci, t.Cj)
	default:
		if grav {
			p.Tree.UnlockGCell(t.Ci)
			return
		}
		p.Tree.UnlockCell(t.Ci)
	}
}

// dispatch calls the kernel (or recurses) matching t's (type,
// subtype). Cells are already locked by the caller.
func (p *Pool) dispatch(workerID int, t *task.Task) {
	switch t.Type {
	case task.TypeSort:
		p.dispatchSort(t)
	case task.TypeSelf:
		if p.Kernels.Self != nil {
			p.Kernels.Self(p.Tree.Cell(t.Ci), t.Subtype)
		}
	case task.TypePair:
		if p.Kernels.Pair != nil {
			sid := int(t.Flags)
			p.Kernels.Pair(p.Tree.Cell(t.Ci), p.Tree.Cell(t.Cj), t.Subtype, sid)
		}
	case task.TypeSubSelf:
		p.recurseSelf(t.Ci, t.Subtype, 0)
	case task.TypeSubPair:
		p.recursePair(t.Ci, t.Cj, t.Subtype, int(t.Flags), 0)
	case task.TypeGravUp:
		if p.Kernels.GravUp != nil {
			p.Kernels.GravUp(p.Tree.Cell(t.Ci))
		}
	case task.TypeGravDown:
		if p.Kernels.GravDown != nil {
			p.Kernels.GravDown(p.Tree.Cell(t.Ci))
		}
	case task.TypeCooling:
		if p.Kernels.Cooling != nil {
			p.Kernels.Cooling(p.Tree.Cell(t.Ci))
		}
	case task.TypeSource:
		if p.Kernels.Source != nil {
			p.Kernels.Source(p.Tree.Cell(t.Ci))
		}
	case task.TypeInit, task.TypeGhost, task.TypeExtraGhost, task.TypeKick:
		// Pure synchronization points: no kernel to call, their only
		// purpose is to sit in the dependency chain between passes.
	case task.TypeSend, task.TypeRecv:
		// Posting/testing the MPI request happens in Scheduler.Enqueue
		// via OnPostSend/OnPostRecv; nothing left to do once the
		// runner picks up the task, beyond reporting completion.
	case task.TypeGravMM, task.TypeGravGather, task.TypeGravFFT:
		// Long-range gravity passes are out of scope for the scheduler
		// core; treated as synchronization points like ghost/kick.
	}
}

func (p *Pool) dispatchSort(t *task.Task) {
	dirs := uint16(t.Flags)
	for d := 0; d < cellgrid.NumSortDirections; d++ {
		if dirs&(1<<uint(d)) == 0 {
			continue
		}
		p.Tree.MergeOrBuildSort(t.Ci, d, p.Store)
	}
}

// recurseSelf runs a sub_self by descending into c's children (or
// running the self kernel directly on a leaf), following the same
// sort-direction bookkeeping the construction-time splitter used.
func (p *Pool) recurseSelf(c cellgrid.CellRef, sub task.Subtype, depth int) {
	cell := p.Tree.Cell(c)
	if !cell.Split || depth >= p.MaxSubRecurseDepth {
		if p.Kernels.Self != nil {
			p.Kernels.Self(cell, sub)
		}
		return
	}
	for i, ci := range cell.Children {
		if ci == cellgrid.NoCell {
			continue
		}
		p.recurseSelf(ci, sub, depth+1)
		for j := i + 1; j < len(cell.Children); j++ {
			cj := cell.Children[j]
			if cj == cellgrid.NoCell {
				continue
			}
			sid, _ := cellgrid.OffsetToSid(octantDelta(i, j))
			p.recursePair(ci, cj, sub, sid, depth+1)
		}
	}
}

// recursePair runs a sub_pair by descending into both cells' children
// along the parent's canonical direction.
func (p *Pool) recursePair(ci, cj cellgrid.CellRef, sub task.Subtype, sid int, depth int) {
	cellI := p.Tree.Cell(ci)
	cellJ := p.Tree.Cell(cj)
	if !cellI.Split || !cellJ.Split || depth >= p.MaxSubRecurseDepth {
		if p.Kernels.Pair != nil {
			p.Kernels.Pair(cellI, cellJ, sub, sid)
		}
		return
	}
	for octI, childI := range cellI.Children {
		if childI == cellgrid.NoCell {
			continue
		}
		for octJ, childJ := range cellJ.Children {
			if childJ == cellgrid.NoCell {
				continue
			}
			childSid, ok := cellgrid.ChildSid(sid, octI, octJ)
			if !ok {
				continue
			}
			p.recursePair(childI, childJ, sub, childSid, depth+1)
		}
	}
}

// octantDelta turns a pair of 0..7 octant indices within the same
// parent into the (dx,dy,dz) offset between their centers, for
// deriving the sid of a same-parent child-child self-split pair.
func octantDelta(octI, octJ int) (dx, dy, dz int) {
	bit := func(o, b int) int {
		if o&(1<<uint(b)) != 0 {
			return 1
		}
		return -1
	}
	dx = bit(octJ, 0) - bit(octI, 0)
	dy = bit(octJ, 1) - bit(octI, 1)
	dz = bit(octJ, 2) - bit(octI, 2)
	clamp := func(v int) int {
		switch {
		case v > 0:
			return 1
		case v < 0:
			return -1
		default:
			return 0
		}
	}
	return clamp(dx), clamp(dy), clamp(dz)
}
