package engine

import (
	"github.com/fjeanquartier/swiftsim/internal/partition"
	"github.com/fjeanquartier/swiftsim/internal/task"
)

// shouldForceRepart reports whether this step must rebalance the
// domain decomposition: either a fixed cadence has elapsed, or the
// load imbalance measured from the accumulated weights already
// exceeds the configured threshold.
func (e *Engine) shouldForceRepart() bool {
	if e.size <= 1 {
		return false
	}
	if e.cfg.RepartitionEvery > 0 && e.stepsSinceRepart >= e.cfg.RepartitionEvery {
		return true
	}
	if len(e.vertexTime) == 0 {
		return false
	}
	gr, assignment := e.currentWeightedGraph()
	load := partition.RankLoad(gr, assignment, e.size)
	return partition.Imbalance(load) > e.cfg.ImbalanceThreshold
}

// currentWeightedGraph turns the accumulated per-cell/per-edge task
// timings into a partition.Graph plus the rank assignment currently
// in force (read back from each top cell's NodeID).
func (e *Engine) currentWeightedGraph() (*partition.Graph, partition.RankAssignment) {
	tops := e.tree.TopCells()
	vertices := make([]partition.VertexWeight, len(tops))
	assignment := make(partition.RankAssignment, len(tops))
	for i, ref := range tops {
		c := e.tree.Cell(ref)
		vertices[i] = partition.VertexWeight{
			CellIndex:     i,
			Time:          e.vertexTime[ref],
			ParticleCount: c.Count + c.GCount + c.SCount,
		}
		assignment[i] = c.NodeID
	}
	vertices = partition.RescaleVertexWeights(vertices, e.cfg.MetisMaxWeight)
	edges := make([]partition.EdgeWeight, 0, len(e.edgeTime))
	topIndex := make(map[task.CellRef]int, len(tops))
	for i, ref := range tops {
		topIndex[ref] = i
	}
	for k, v := range e.edgeTime {
		a, aok := topIndex[k.a]
		b, bok := topIndex[k.b]
		if !aok || !bok {
			continue
		}
		edges = append(edges, partition.EdgeWeight{A: a, B: b, Time: v})
	}
	return partition.Build(vertices, edges), assignment
}

// accumulateWeights folds the just-finished step's measured task
// durations into the running per-cell/per-edge estimator the next
// repartition decision (or trigger check) consults.
func (e *Engine) accumulateWeights() {
	for _, r := range e.pool.All() {
		t := e.pool.Get(r)
		if t.Tic == 0 || t.Toc <= t.Tic || t.Ci == task.NoCell {
			continue
		}
		dur := float64(t.Toc - t.Tic)
		superI := e.tree.Cell(t.Ci).Super
		if t.Cj == task.NoCell || t.Cj == t.Ci {
			e.vertexTime[superI] += dur
			continue
		}
		superJ := e.tree.Cell(t.Cj).Super
		if superJ == superI {
			e.vertexTime[superI] += dur
			continue
		}
		e.edgeTime[edgeKeyOf(superI, superJ)] += dur
	}
	e.stepsSinceRepart++
}

// repartition recolors every top cell's owning rank from the
// accumulated weights and resets the estimator.
func (e *Engine) repartition() {
	gr, _ := e.currentWeightedGraph()
	assignment := partition.Partition(gr, e.size, int64(e.step)+1)
	for i, ref := range e.tree.TopCells() {
		e.tree.Cell(ref).NodeID = assignment[i]
	}
	e.vertexTime = make(map[task.CellRef]float64)
	e.edgeTime = make(map[edgeKey]float64)
	e.stepsSinceRepart = 0
}
