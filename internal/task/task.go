// Package task implements the task graph: the tagged task record, the
// atomically-bump-allocated task pool, the append-only unlock edge
// buffer and its post-construction compaction into per-task slices,
// Kahn's-algorithm ranking and the intrinsic task-weight formula.
package task

import (
	"math/bits"
	"sort"
	"sync/atomic"
)

// CellRef indexes into a cellgrid.Tree's cell arena. Declared here
// (rather than in package cellgrid) so both Task and Cell can use the
// same type without an import cycle; see cellgrid.CellRef.
type CellRef int32

const NoCell CellRef = -1

// Ref indexes into a Pool's task slice. The zero value is a valid
// index (task 0), so NoRef is -1, not 0.
type Ref int32

const NoRef Ref = -1

// Type is the task's kind.
type Type uint8

const (
	TypeNone Type = iota
	TypeSort
	TypeSelf
	TypePair
	TypeSubSelf
	TypeSubPair
	TypeInit
	TypeGhost
	TypeExtraGhost
	TypeKick
	TypeSend
	TypeRecv
	TypeGravUp
	TypeGravDown
	TypeGravMM
	TypeGravGather
	TypeGravFFT
	TypeGravExternal
	TypeCooling
	TypeSource
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeSort:
		return "sort"
	case TypeSelf:
		return "self"
	case TypePair:
		return "pair"
	case TypeSubSelf:
		return "sub_self"
	case TypeSubPair:
		return "sub_pair"
	case TypeInit:
		return "init"
	case TypeGhost:
		return "ghost"
	case TypeExtraGhost:
		return "extra_ghost"
	case TypeKick:
		return "kick"
	case TypeSend:
		return "send"
	case TypeRecv:
		return "recv"
	case TypeGravUp:
		return "grav_up"
	case TypeGravDown:
		return "grav_down"
	case TypeGravMM:
		return "grav_mm"
	case TypeGravGather:
		return "grav_gather"
	case TypeGravFFT:
		return "grav_fft"
	case TypeGravExternal:
		return "grav_external"
	case TypeCooling:
		return "cooling"
	case TypeSource:
		return "source"
	default:
		return "unknown"
	}
}

// Subtype further qualifies pair/self/sub_* and send/recv tasks.
type Subtype uint8

const (
	SubtypeNone Subtype = iota
	SubtypeDensity
	SubtypeGradient
	SubtypeForce
	SubtypeGrav
	SubtypeTend
	SubtypeXv
	SubtypeRho
)

// String renders a Subtype for task logs and the task-timing CSV dump.
func (s Subtype) String() string {
	switch s {
	case SubtypeNone:
		return "none"
	case SubtypeDensity:
		return "density"
	case SubtypeGradient:
		return "gradient"
	case SubtypeForce:
		return "force"
	case SubtypeGrav:
		return "grav"
	case SubtypeTend:
		return "tend"
	case SubtypeXv:
		return "xv"
	case SubtypeRho:
		return "rho"
	default:
		return "unknown"
	}
}

// Mask is a bitmask over Type, used by the scheduler to silently drop
// tasks of types not relevant to the current pass.
type Mask uint32

func (m Mask) Has(t Type) bool { return m&(1<<uint(t)) != 0 }

func MaskOf(types ...Type) Mask {
	var m Mask
	for _, t := range types {
		m |= 1 << uint(t)
	}
	return m
}

const MaskAll Mask = ^Mask(0)

// HasSub reports whether s's bit is set, when m is used as a subtype
// mask rather than a type mask. Type and Subtype masks are always
// kept in separate Mask values, so the shared bit layout is harmless.
func (m Mask) HasSub(s Subtype) bool { return m&(1<<uint(s)) != 0 }

func SubMaskOf(subs ...Subtype) Mask {
	var m Mask
	for _, s := range subs {
		m |= 1 << uint(s)
	}
	return m
}

// Task is a single unit of scheduler work: a tagged record, dispatched
// by (Type, Subtype) rather than by virtual call.
type Task struct {
	Type    Type
	Subtype Subtype

	// Flags carries the sort-direction bitset for task_type_sort, the
	// sid (sort id, 0..12) for pair/sub_pair tasks, or an MPI tag for
	// send/recv tasks.
	Flags int32

	Ci, Cj CellRef // Cj is NoCell for self/init/ghost/kick/sort/send/recv

	wait     int32 // atomic; see sched.Scheduler.Start
	Skip     bool
	Implicit bool
	Tight    bool // a pair split from a cell pair too "tight" to recurse further

	Weight float64
	Rank   int32

	// Unlock range: after Pool.Compact, unlockBegin:unlockEnd indexes
	// into Pool.unlockEdges, giving this task's successors in O(1)
	// without per-task allocation.
	unlockBegin, unlockEnd int32

	// Tic/Toc are wall-clock start/end ticks set by the runner, used
	// both for statistics and (when non-zero) to override the
	// intrinsic weight estimate with a measured one on reweight.
	Tic, Toc int64
}

// Wait returns the task's current wait counter. sched.Scheduler.Start
// arms it to 1 plus the number of non-skipped predecessors; each
// completing predecessor then decrements it, and the task is enqueued
// once it is back at 1. It is not decremented further after that.
func (t *Task) Wait() int32 { return atomic.LoadInt32(&t.wait) }

// ResetWait sets r's wait counter to v. Used by the scheduler's start
// phase, which seeds every task at 1 before rewait runs.
func (p *Pool) ResetWait(r Ref, v int32) { atomic.StoreInt32(&p.tasks[r].wait, v) }

// IncWait atomically increments r's wait counter and returns the new
// value.
func (p *Pool) IncWait(r Ref) int32 { return atomic.AddInt32(&p.tasks[r].wait, 1) }

// DecWait atomically decrements r's wait counter and returns the new
// value.
func (p *Pool) DecWait(r Ref) int32 { return atomic.AddInt32(&p.tasks[r].wait, -1) }

// edge is one entry in the append-only unlock buffer recorded during
// graph construction: task `from` unlocks task `to`.
type edge struct {
	from Ref
	to   Ref
}

// Pool owns every Task for one step's graph plus the append-only
// unlock edge buffer. It is reset and rebuilt from scratch at the
// start of every rebuild.
type Pool struct {
	tasks []Task
	next  int32 // atomic bump allocator

	edges    []edge
	edgeNext int32 // atomic bump allocator

	unlockEdges []Ref // compacted successor array, built by Compact
}

// NewPool preallocates capacity for an expected task/edge count; both
// grow automatically if exceeded; this is only a sizing hint.
func NewPool(expectTasks, expectEdges int) *Pool {
	return &Pool{
		tasks: make([]Task, 0, expectTasks),
		edges: make([]edge, 0, expectEdges),
	}
}

// Reset discards all tasks and edges, ready for a new rebuild.
func (p *Pool) Reset() {
	p.tasks = p.tasks[:0]
	atomic.StoreInt32(&p.next, 0)
	p.edges = p.edges[:0]
	atomic.StoreInt32(&p.edgeNext, 0)
	p.unlockEdges = p.unlockEdges[:0]
}

// NewTask bump-allocates a new task and returns its Ref. Construction
// is single-writer-at-a-time per cell (protected by the owning cell's
// lock where tasks are created lazily, e.g. sort tasks) but the
// overall graph builder may run many cells' worth of NewTask calls
// concurrently, hence the atomic counter rather than append under a
// mutex.
func (p *Pool) NewTask(typ Type, sub Subtype, ci, cj CellRef) Ref {
	idx := atomic.AddInt32(&p.next, 1) - 1
	if int(idx) >= cap(p.tasks) {
		// Growing requires a lock in a fully concurrent builder; the
		// construction phase in this implementation pre-sizes the pool
		// from a conservative estimate and only grows single-threaded
		// between phases, so a plain append is safe here.
		grown := make([]Task, idx+1, (idx+1)*2)
		copy(grown, p.tasks[:len(p.tasks)])
		p.tasks = grown
	} else if int(idx) >= len(p.tasks) {
		p.tasks = p.tasks[:idx+1]
	}
	p.tasks[idx] = Task{Type: typ, Subtype: sub, Ci: ci, Cj: cj}
	return Ref(idx)
}

// Get returns a pointer to the task at r. The pointer is valid until
// the next Reset.
func (p *Pool) Get(r Ref) *Task { return &p.tasks[r] }

// Len returns the number of tasks currently allocated.
func (p *Pool) Len() int { return len(p.tasks) }

// All returns every task Ref currently allocated, in allocation order.
func (p *Pool) All() []Ref {
	out := make([]Ref, len(p.tasks))
	for i := range out {
		out[i] = Ref(i)
	}
	return out
}

// AddUnlock records that task `from` must unlock task `to` once done.
// Edges go into an append-only buffer; Compact must be called once
// every edge for the step has been recorded, before the graph can be
// started.
func (p *Pool) AddUnlock(from, to Ref) {
	idx := atomic.AddInt32(&p.edgeNext, 1) - 1
	if int(idx) >= cap(p.edges) {
		grown := make([]edge, idx+1, (idx+1)*2)
		copy(grown, p.edges[:len(p.edges)])
		p.edges = grown
	} else if int(idx) >= len(p.edges) {
		p.edges = p.edges[:idx+1]
	}
	p.edges[idx] = edge{from: from, to: to}
}

// Compact rewrites every task's unlock list as a contiguous slice of
// a single global array, computed from in-degree offsets over the
// edges recorded so far. It must run single-threaded after
// construction and before Start.
func (p *Pool) Compact() {
	n := len(p.tasks)
	outDegree := make([]int32, n)
	for _, e := range p.edges {
		outDegree[e.from]++
	}
	offsets := make([]int32, n+1)
	for i := 0; i < n; i++ {
		offsets[i+1] = offsets[i] + outDegree[i]
	}
	p.unlockEdges = make([]Ref, offsets[n])
	cursor := make([]int32, n)
	copy(cursor, offsets[:n])
	for _, e := range p.edges {
		pos := cursor[e.from]
		p.unlockEdges[pos] = e.to
		cursor[e.from]++
	}
	for i := 0; i < n; i++ {
		p.tasks[i].unlockBegin = offsets[i]
		p.tasks[i].unlockEnd = offsets[i+1]
	}
}

// Unlocks returns the (compacted) list of tasks that r unlocks. Valid
// only after Compact.
func (p *Pool) Unlocks(r Ref) []Ref {
	t := &p.tasks[r]
	return p.unlockEdges[t.unlockBegin:t.unlockEnd]
}

// InDegree returns how many predecessors a task has, valid after
// Compact (it is recomputed, not read off unlockBegin/End, since
// those describe *out*-edges).
func (p *Pool) InDegree() []int32 {
	n := len(p.tasks)
	in := make([]int32, n)
	for _, e := range p.edges {
		in[e.to]++
	}
	return in
}

// Rank assigns topological ranks by Kahn's algorithm. Ranks are used
// only for cost estimation and task logs, never for scheduling
// decisions at runtime. Returns an error if the graph has a cycle (a
// fatal construction error).
func (p *Pool) Rank() error {
	n := len(p.tasks)
	indeg := p.InDegree()
	queue := make([]Ref, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 && !p.tasks[i].Skip {
			queue = append(queue, Ref(i))
			p.tasks[i].Rank = 0
		}
	}
	visited := 0
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		visited++
		rank := p.tasks[r].Rank
		for _, succ := range p.Unlocks(r) {
			if p.tasks[succ].Skip {
				continue
			}
			indeg[succ]--
			if p.tasks[succ].Rank < rank+1 {
				p.tasks[succ].Rank = rank + 1
			}
			if indeg[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	nonSkipped := 0
	for i := 0; i < n; i++ {
		if !p.tasks[i].Skip {
			nonSkipped++
		}
	}
	if visited != nonSkipped {
		return ErrCycle
	}
	return nil
}

// ErrCycle is the fatal construction error raised when the unlock
// graph over non-skipped tasks is not a DAG.
var ErrCycle = cycleError{}

type cycleError struct{}

func (cycleError) Error() string { return "task: unlock graph contains a cycle" }

// SidScale are empirical per-direction pair-weight scale factors (see
// DESIGN.md, internal/task entry): diagonal directions carry roughly
// a third of the weight of face-on directions because fewer particle
// pairs are actually accepted by the smoothing-length cut along them.
var SidScale = [13]float64{
	0.1897, 0.4025, 0.1897, 0.4025, 0.5788,
	0.4025, 0.1897, 0.4025, 0.1897, 0.4025,
	0.5788, 0.4025, 0.5788,
}

const weightScale = 0.001

// Reweight assigns Weight = max(successor weights) + intrinsic to
// every task, processed in descending Rank order so that every
// successor's weight is already final when a task is visited. This
// holds regardless of allocation order, since Rank establishes the
// topological order directly.
func (p *Pool) Reweight(counts func(Ref) (ci, cj int), isLocal func(Ref) (ciLocal, cjLocal bool)) {
	n := len(p.tasks)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	// Process in descending rank so every successor is finalized
	// before its predecessors are visited.
	sortByRankDesc(order, p.tasks)

	for _, idx := range order {
		t := &p.tasks[idx]
		var w float64
		for _, succ := range p.Unlocks(Ref(idx)) {
			if sw := p.tasks[succ].Weight; sw > w {
				w = sw
			}
		}
		if !t.Implicit && t.Toc > t.Tic && t.Tic > 0 {
			w += weightScale * float64(t.Toc-t.Tic)
		} else {
			ci, cj := 0, 0
			if counts != nil {
				ci, cj = counts(Ref(idx))
			}
			switch t.Type {
			case TypeSort:
				logN := 0
				if ci > 0 {
					logN = 64 - bits.LeadingZeros64(uint64(ci))
				}
				w += weightScale * float64(bits.OnesCount32(uint32(t.Flags))) * float64(ci) * float64(logN)
			case TypeSelf, TypeSubSelf:
				w += weightScale * float64(ci) * float64(ci)
			case TypePair, TypeSubPair:
				scale := 1.0
				if t.Flags >= 0 && int(t.Flags) < len(SidScale) {
					scale = SidScale[t.Flags]
				}
				remote := false
				if isLocal != nil {
					ciLocal, cjLocal := isLocal(Ref(idx))
					remote = !ciLocal || !cjLocal
				}
				factor := 2.0
				if remote {
					factor = 3.0
				}
				w += factor * weightScale * float64(ci) * float64(cj) * scale
			case TypeGhost, TypeKick, TypeInit, TypeExtraGhost:
				w += weightScale * float64(ci)
			default:
				w += weightScale * float64(ci+cj+1)
			}
		}
		t.Weight = w
	}
}

func sortByRankDesc(order []int, tasks []Task) {
	sort.Slice(order, func(a, b int) bool {
		return tasks[order[a]].Rank > tasks[order[b]].Rank
	})
}
