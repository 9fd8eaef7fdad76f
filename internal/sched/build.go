package sched

import (
	"github.com/fjeanquartier/swiftsim/internal/cellgrid"
	"github.com/fjeanquartier/swiftsim/internal/task"
)

// BuildOptions selects which optional passes this step's graph
// construction should include.
type BuildOptions struct {
	Gravity    bool
	Cooling    bool
	ExtraGhost bool
}

// Build constructs a fresh task graph for one step over tree into
// pool, which must already have been Reset. It wires the init ->
// density -> ghost -> force -> kick hierarchy (and, if
// opt.Gravity, the grav_up -> grav_gather -> grav_fft -> grav_down
// long-range chain alongside short-range grav self/pair tasks) for
// every non-empty top cell, following the split choice of always
// deferring recursion into a sub_self/sub_pair task rather than
// fanning child-child pairs out at construction time (DESIGN.md,
// internal/sched entry, documents why: the runner already implements
// the child recursion, so building it twice at construction time too
// would duplicate the sort-direction bookkeeping for no benefit).
//
// Build does not call pool.Compact, pool.Rank, or pool.Reweight --
// callers run those once after construction, exactly as
// Pool.Compact's doc describes.
func Build(pool *task.Pool, tree *cellgrid.Tree, opt BuildOptions) {
	top := tree.TopCells()

	// Reset per-cell task-graph bookkeeping: Cell{} zero-initializes
	// these Refs to 0, a valid task index, not "absent" -- NoRef must
	// be written explicitly before relying on it as a sentinel.
	for _, ref := range top {
		c := tree.Cell(ref)
		c.InitTask, c.GhostTask, c.ExtraGhostTask, c.KickTask = task.NoRef, task.NoRef, task.NoRef, task.NoRef
		c.GravUpTask, c.GravDownTask = task.NoRef, task.NoRef
		for d := range c.SortTask {
			c.SortTask[d] = task.NoRef
		}
		c.DensityTasks, c.GradientTasks, c.ForceTasks, c.GravityTasks = nil, nil, nil, nil
	}

	active := func(c *cellgrid.Cell) bool { return c.Count > 0 || c.GCount > 0 }

	for _, ref := range top {
		c := tree.Cell(ref)
		if !active(c) {
			continue
		}
		c.InitTask = pool.NewTask(task.TypeInit, task.SubtypeNone, ref, task.NoCell)
		c.GhostTask = pool.NewTask(task.TypeGhost, task.SubtypeNone, ref, task.NoCell)
		c.KickTask = pool.NewTask(task.TypeKick, task.SubtypeNone, ref, task.NoCell)
		if opt.ExtraGhost {
			c.ExtraGhostTask = pool.NewTask(task.TypeExtraGhost, task.SubtypeNone, ref, task.NoCell)
			pool.AddUnlock(c.GhostTask, c.ExtraGhostTask)
		}
		if opt.Cooling {
			cooling := pool.NewTask(task.TypeCooling, task.SubtypeNone, ref, task.NoCell)
			pool.AddUnlock(c.KickTask, cooling)
		}
		if opt.Gravity {
			c.GravUpTask = pool.NewTask(task.TypeGravUp, task.SubtypeNone, ref, task.NoCell)
			c.GravDownTask = pool.NewTask(task.TypeGravDown, task.SubtypeNone, ref, task.NoCell)
			pool.AddUnlock(c.InitTask, c.GravUpTask)
		}
	}

	selfOrSub := func(sub task.Subtype, ref cellgrid.CellRef, c *cellgrid.Cell) task.Ref {
		typ := task.TypeSelf
		if c.Split {
			typ = task.TypeSubSelf
		}
		return pool.NewTask(typ, sub, ref, task.NoCell)
	}
	pairOrSub := func(sub task.Subtype, ci, cj cellgrid.CellRef, ciCell, cjCell *cellgrid.Cell, sid int) task.Ref {
		typ := task.TypePair
		if ciCell.Split && cjCell.Split {
			typ = task.TypeSubPair
		}
		r := pool.NewTask(typ, sub, ci, cj)
		pool.Get(r).Flags = int32(sid)
		return r
	}

	// Self tasks: density pass (always) and force pass (always, for
	// every active cell with hydro particles) plus the short-range
	// gravity self pass when enabled.
	for _, ref := range top {
		c := tree.Cell(ref)
		if c.Count == 0 {
			continue
		}
		density := selfOrSub(task.SubtypeDensity, ref, c)
		force := selfOrSub(task.SubtypeForce, ref, c)
		pool.AddUnlock(c.InitTask, density)
		c.DensityTasks = append(c.DensityTasks, density)
		c.ForceTasks = append(c.ForceTasks, force)

		if opt.Gravity {
			grav := selfOrSub(task.SubtypeGrav, ref, c)
			pool.AddUnlock(c.InitTask, grav)
			c.GravityTasks = append(c.GravityTasks, grav)
		}
	}

	// Pair tasks: enumerate each top cell's forward 13-direction
	// neighborhood once per unordered pair, wiring in the sort
	// dependency for the two cells' sort tasks along that direction.
	cdim := tree.Cdim
	wrap := func(i, n int) (int, bool) {
		if i >= 0 && i < n {
			return i, true
		}
		if !tree.Periodic {
			return 0, false
		}
		return ((i % n) + n) % n, true
	}
	flat := func(ix, iy, iz int) int { return (ix*cdim[1]+iy)*cdim[2] + iz }

	for ix := 0; ix < cdim[0]; ix++ {
		for iy := 0; iy < cdim[1]; iy++ {
			for iz := 0; iz < cdim[2]; iz++ {
				ci := top[flat(ix, iy, iz)]
				cCell := tree.Cell(ci)
				if !active(cCell) {
					continue
				}
				for sid := 0; sid < cellgrid.NumSortDirections; sid++ {
					off := cellgrid.SidOffset(sid)
					jx, ok1 := wrap(ix+off[0], cdim[0])
					jy, ok2 := wrap(iy+off[1], cdim[1])
					jz, ok3 := wrap(iz+off[2], cdim[2])
					if !ok1 || !ok2 || !ok3 {
						continue
					}
					cj := top[flat(jx, jy, jz)]
					jCell := tree.Cell(cj)
					if !active(jCell) {
						continue
					}
					emitPair(pool, tree, ci, cj, cCell, jCell, sid, opt, pairOrSub)
				}
			}
		}
	}

	// Ghost/Kick wiring: consume the per-cell task lists accumulated
	// above, now that every density/force/grav task touching a cell is
	// known.
	for _, ref := range top {
		c := tree.Cell(ref)
		if !active(c) {
			continue
		}
		for _, d := range c.DensityTasks {
			pool.AddUnlock(d, c.GhostTask)
		}
		ghostSrc := c.GhostTask
		if opt.ExtraGhost {
			ghostSrc = c.ExtraGhostTask
		}
		for _, f := range c.ForceTasks {
			pool.AddUnlock(ghostSrc, f)
			pool.AddUnlock(f, c.KickTask)
		}
		for _, g := range c.GravityTasks {
			pool.AddUnlock(g, c.KickTask)
		}
	}

	if opt.Gravity {
		gather := pool.NewTask(task.TypeGravGather, task.SubtypeNone, top[0], task.NoCell)
		fft := pool.NewTask(task.TypeGravFFT, task.SubtypeNone, top[0], task.NoCell)
		pool.AddUnlock(gather, fft)
		for _, ref := range top {
			c := tree.Cell(ref)
			if !active(c) {
				continue
			}
			pool.AddUnlock(c.GravUpTask, gather)
			pool.AddUnlock(fft, c.GravDownTask)
			pool.AddUnlock(c.GravDownTask, c.KickTask)
		}
	}
}

// emitPair creates the density, force, and (if enabled) gravity pair
// tasks for one canonical-direction neighbor pair, wiring the density
// task to the cells' sort tasks for that direction (and the gravity
// task to both cells' init tasks) and recording each in both cells'
// per-pass task lists.
func emitPair(pool *task.Pool, tree *cellgrid.Tree, ci, cj cellgrid.CellRef, ciCell, cjCell *cellgrid.Cell, sid int, opt BuildOptions, pairOrSub func(task.Subtype, cellgrid.CellRef, cellgrid.CellRef, *cellgrid.Cell, *cellgrid.Cell, int) task.Ref) {
	if ciCell.Count > 0 && cjCell.Count > 0 {
		density := pairOrSub(task.SubtypeDensity, ci, cj, ciCell, cjCell, sid)
		sortI := getOrCreateSortTask(pool, ciCell, ci, sid)
		sortJ := getOrCreateSortTask(pool, cjCell, cj, sid)
		pool.AddUnlock(sortI, density)
		pool.AddUnlock(sortJ, density)
		ciCell.DensityTasks = append(ciCell.DensityTasks, density)
		cjCell.DensityTasks = append(cjCell.DensityTasks, density)

		force := pairOrSub(task.SubtypeForce, ci, cj, ciCell, cjCell, sid)
		ciCell.ForceTasks = append(ciCell.ForceTasks, force)
		cjCell.ForceTasks = append(cjCell.ForceTasks, force)
	}
	if opt.Gravity {
		grav := pairOrSub(task.SubtypeGrav, ci, cj, ciCell, cjCell, sid)
		pool.AddUnlock(ciCell.InitTask, grav)
		pool.AddUnlock(cjCell.InitTask, grav)
		ciCell.GravityTasks = append(ciCell.GravityTasks, grav)
		cjCell.GravityTasks = append(cjCell.GravityTasks, grav)
	}
}

// getOrCreateSortTask returns c's sort task covering direction d,
// extending an already-created sort task's direction bitmask (via
// Flags) rather than allocating a second one when the cell already
// has a sort task for a different direction -- mirroring the "OR its
// direction bit into a single sort task per cell" construction rule.
// The cell's Init->sort unlock edge is added exactly once, at the
// point a sort task is actually created, not on every direction that
// later reuses it.
func getOrCreateSortTask(pool *task.Pool, c *cellgrid.Cell, ref cellgrid.CellRef, d int) task.Ref {
	if c.SortTask[d] != task.NoRef {
		return c.SortTask[d]
	}
	for dd := 0; dd < cellgrid.NumSortDirections; dd++ {
		if c.SortTask[dd] != task.NoRef {
			r := c.SortTask[dd]
			pool.Get(r).Flags |= 1 << uint(d)
			c.SortTask[d] = r
			return r
		}
	}
	r := pool.NewTask(task.TypeSort, task.SubtypeNone, ref, task.NoCell)
	pool.Get(r).Flags = 1 << uint(d)
	c.SortTask[d] = r
	pool.AddUnlock(c.InitTask, r)
	return r
}
