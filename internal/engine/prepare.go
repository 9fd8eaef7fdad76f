package engine

import (
	"github.com/fjeanquartier/swiftsim/internal/cellgrid"
	"github.com/fjeanquartier/swiftsim/internal/proxy"
	"github.com/fjeanquartier/swiftsim/internal/sched"
	"github.com/fjeanquartier/swiftsim/internal/swifterr"
	"github.com/fjeanquartier/swiftsim/internal/task"
	"github.com/fjeanquartier/swiftsim/internal/telemetry"
)

// needsRebuild reports whether any top cell has drifted far enough
// (per cellgrid.Tree.NeedsRebuild) that the drift-only refresh already
// applied by the caller is no longer sufficient.
func (e *Engine) needsRebuild() bool {
	for _, ref := range e.tree.TopCells() {
		if e.tree.NeedsRebuild(ref) {
			return true
		}
	}
	return false
}

// markSkips marks every task as active or skipped for the coming
// step. A task is active if either cell it touches has a minimum
// integer end-of-step (TiEndMin) at or before tiCurrent, i.e. holds
// particles that are due this step; cells whose particles all end
// later sit out the step. Tasks with no cell, and every task when
// DriftAll is set, are left active. This must run after any rebuild,
// since a freshly built task graph starts with every task marked
// active.
func (e *Engine) markSkips() {
	for _, r := range e.pool.All() {
		t := e.pool.Get(r)
		if t.Ci == task.NoCell {
			continue
		}
		if e.cfg.DriftAll {
			t.Skip = false
			continue
		}
		active := e.tree.Cell(t.Ci).TiEndMin <= e.tiCurrent
		if t.Cj != task.NoCell && t.Cj != t.Ci {
			active = active || e.tree.Cell(t.Cj).TiEndMin <= e.tiCurrent
		}
		t.Skip = !active
	}
}

// taskTimings snapshots every task's measured runtime for the
// driver's task-graph-dump-frequency flag.
func (e *Engine) taskTimings() []telemetry.TaskTiming {
	refs := e.pool.All()
	rows := make([]telemetry.TaskTiming, 0, len(refs))
	for _, r := range refs {
		t := e.pool.Get(r)
		if t.Tic == 0 {
			continue
		}
		rows = append(rows, telemetry.TaskTiming{
			Step:     e.step,
			Type:     t.Type.String(),
			Subtype:  t.Subtype.String(),
			Rank:     e.rank,
			TicNanos: t.Tic,
			TocNanos: t.Toc,
		})
	}
	return rows
}

// rebuildAll replaces the cell tree and remakes the task graph from
// scratch, the step-7 branch of the loop. The task pool is reset and
// refilled in place, a new scheduler is built over it and the new
// tree, and the existing worker pool is repointed at that scheduler
// and tree.
func (e *Engine) rebuildAll() error {
	globalMaxH := maxH(e.store.Parts)
	e.tree = cellgrid.Rebuild(e.store, e.box, e.periodic, globalMaxH, e.cfg.Cell)
	e.exchangeCells()
	e.prevParts = append(e.prevParts[:0], e.store.Parts...)

	e.pool.Reset()
	sched.Build(e.pool, e.tree, e.cfg.Build)
	e.pool.Compact()
	e.markSkips()
	if err := e.pool.Rank(); err != nil {
		return swifterr.Wrap(swifterr.Invariant, "ranking rebuilt task graph", err)
	}
	e.pool.Reweight(e.taskCounts, e.taskIsLocal)

	e.scheduler = sched.New(e.pool, e.tree, e.cfg.NumWorkers, task.MaskAll, task.MaskAll, e.cfg.MaxSteal, e.cfg.NoSteal)
	e.runner.Scheduler = e.scheduler
	e.runner.Tree = e.tree
	return nil
}

// exchangeCells posts the count handshake for every foreign top cell
// against its owning rank. With the single-rank LocalTransport this
// loop never finds a peer to talk to; a real MPI-backed Transport
// would carry the cell metadata exchange through to completion here,
// before task-graph construction wires the corresponding send/recv
// tasks.
func (e *Engine) exchangeCells() {
	rank, size := e.transport.Rank()
	for peer := 0; peer < size; peer++ {
		if peer == rank {
			continue
		}
		p := &proxy.Proxy{Peer: peer}
		for _, ref := range e.tree.TopCells() {
			c := e.tree.Cell(ref)
			if c.NodeID != peer {
				continue
			}
			p.OutMeta = append(p.OutMeta, proxy.CellMeta{Loc: c.Loc, Width: c.Width, Count: c.Count, GCount: c.GCount, SCount: c.SCount})
		}
		p.SendCounts(e.transport, peer)
		p.RecvCounts(e.transport, rank)
	}
}

func (e *Engine) taskCounts(r task.Ref) (ci, cj int) {
	t := e.pool.Get(r)
	ci = e.tree.Cell(t.Ci).Count
	if t.Cj != task.NoCell {
		cj = e.tree.Cell(t.Cj).Count
	}
	return
}

func (e *Engine) taskIsLocal(r task.Ref) (ciLocal, cjLocal bool) {
	t := e.pool.Get(r)
	ciLocal = e.tree.Cell(t.Ci).NodeID == e.rank
	cjLocal = true
	if t.Cj != task.NoCell {
		cjLocal = e.tree.Cell(t.Cj).NodeID == e.rank
	}
	return
}
