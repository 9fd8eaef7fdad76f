// Package sched owns the task pool's runtime: the start/rewait/
// enqueue-seed two-phase launch, the per-worker queues, the done/
// unlock/re-enqueue cascade, and work stealing. Runners (internal/
// runner) call GetTask and Done; nothing else touches a queue
// directly.
package sched

import (
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/fjeanquartier/swiftsim/internal/cellgrid"
	"github.com/fjeanquartier/swiftsim/internal/task"
)

const (
	sendQueue = 0
	recvQueue = 1
)

// Scheduler drives one step's task graph to completion across a fixed
// set of worker queues.
type Scheduler struct {
	pool *task.Pool
	tree *cellgrid.Tree

	queues   []*queue
	rngs     []*rand.Rand
	maxSteal int
	noSteal  bool

	typeMask task.Mask
	subMask  task.Mask

	waiting int32 // atomic: tasks enqueued or running, not yet done

	mu   sync.Mutex
	cond *sync.Cond

	ownerMu sync.Mutex
	owner   map[cellgrid.CellRef]int

	randMu sync.Mutex
	rand   *rand.Rand

	// OnPostSend/OnPostRecv let internal/proxy hook the non-blocking
	// MPI post that must happen before a send/recv task is queued,
	// without sched importing proxy. Left nil, send/recv tasks are
	// queued with no side effect (the single-node LocalTransport
	// case).
	OnPostSend func(r task.Ref)
	OnPostRecv func(r task.Ref)
}

// New builds a scheduler over pool and tree with numQueues worker
// queues. typeMask/subMask gate which tasks are allowed to run this
// step; maxSteal bounds how many steal attempts a worker makes before
// going to sleep.
func New(pool *task.Pool, tree *cellgrid.Tree, numQueues int, typeMask, subMask task.Mask, maxSteal int, noSteal bool) *Scheduler {
	if numQueues < 1 {
		numQueues = 1
	}
	s := &Scheduler{
		pool:     pool,
		tree:     tree,
		queues:   make([]*queue, numQueues),
		rngs:     make([]*rand.Rand, numQueues),
		maxSteal: maxSteal,
		noSteal:  noSteal,
		typeMask: typeMask,
		subMask:  subMask,
		owner:    make(map[cellgrid.CellRef]int),
		rand:     rand.New(rand.NewSource(1)),
	}
	s.cond = sync.NewCond(&s.mu)
	for i := range s.queues {
		s.queues[i] = newQueue()
		s.rngs[i] = rand.New(rand.NewSource(int64(i) + 1))
	}
	return s
}

// NumQueues returns how many worker queues this scheduler manages.
func (s *Scheduler) NumQueues() int { return len(s.queues) }

// Pool returns the task pool this scheduler is driving.
func (s *Scheduler) Pool() *task.Pool { return s.pool }

// Requeue returns a task to workerID's own queue without touching its
// wait counter or successors — used by the runner when a lock attempt
// on an already-ready task fails, so it is tried again later rather
// than blocking the worker.
func (s *Scheduler) Requeue(workerID int, r task.Ref) {
	s.queues[workerID].pushOwner(r)
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Waiting returns the number of tasks currently enqueued or running.
func (s *Scheduler) Waiting() int32 { return atomic.LoadInt32(&s.waiting) }

// Start arms the graph for a new launch: reset → rewait → enqueue
// seed tasks. numWorkers controls how many goroutines share the
// rewait/enqueue-seed sweep; it need not match NumQueues.
func (s *Scheduler) Start(numWorkers int) {
	if numWorkers < 1 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	refs := s.pool.All()
	n := len(refs)

	for _, r := range refs {
		s.pool.ResetWait(r, 1)
	}

	parallelFor(n, numWorkers, func(i int) {
		r := refs[i]
		t := s.pool.Get(r)
		if t.Skip {
			return
		}
		for _, succ := range s.pool.Unlocks(r) {
			s.pool.IncWait(succ)
		}
	})

	parallelFor(n, numWorkers, func(i int) {
		r := refs[i]
		if s.pool.Get(r).Wait() == 1 {
			s.Enqueue(r)
		}
	})

	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

func parallelFor(n, numWorkers int, body func(i int)) {
	if n == 0 {
		return
	}
	if numWorkers > n {
		numWorkers = n
	}
	chunk := (n + numWorkers - 1) / numWorkers
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				body(i)
			}
		}(lo, hi)
	}
	wg.Wait()
}

func (s *Scheduler) masked(t *task.Task) bool {
	if !s.typeMask.Has(t.Type) {
		return false
	}
	if t.Subtype != task.SubtypeNone && !s.subMask.HasSub(t.Subtype) {
		return false
	}
	return true
}

// Enqueue routes a newly-ready task to a queue. A skipped task is
// dropped without touching its successors (Start's rewait never
// counted it as their predecessor); a masked-out or implicit task is
// completed immediately without ever touching a queue.
func (s *Scheduler) Enqueue(r task.Ref) {
	t := s.pool.Get(r)

	if t.Skip {
		return
	}
	if !s.masked(t) {
		s.Done(r, -1)
		return
	}
	if t.Implicit {
		s.Done(r, -1)
		return
	}

	atomic.AddInt32(&s.waiting, 1)

	switch t.Type {
	case task.TypeRecv:
		if s.OnPostRecv != nil {
			s.OnPostRecv(r)
		}
		s.queues[recvQueue].pushOwner(r)
	case task.TypeSend:
		if s.OnPostSend != nil {
			s.OnPostSend(r)
		}
		s.queues[sendQueue].pushOwner(r)
	case task.TypePair, task.TypeSubPair:
		wi := s.ownerOf(s.superOf(t.Ci))
		wj := s.ownerOf(s.superOf(t.Cj))
		w := wi
		if s.queues[wj].len() < s.queues[wi].len() {
			w = wj
		}
		s.queues[w].pushOwner(r)
	default:
		w := s.ownerOf(s.superOf(t.Ci))
		s.queues[w].pushOwner(r)
	}

	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Done is called by a runner once a task has actually executed (or,
// from Enqueue, for tasks that never needed to run at all). It
// propagates completion to successors and, for tasks that really ran,
// records the worker as the new owner of the cells it touched.
func (s *Scheduler) Done(r task.Ref, workerID int) {
	t := s.pool.Get(r)

	if workerID >= 0 {
		s.setOwner(s.superOf(t.Ci), workerID)
		if t.Cj != task.NoCell {
			s.setOwner(s.superOf(t.Cj), workerID)
		}
		atomic.AddInt32(&s.waiting, -1)
	}

	for _, succ := range s.pool.Unlocks(r) {
		if s.pool.DecWait(succ) == 1 {
			s.Enqueue(succ)
		}
	}

	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Scheduler) superOf(c cellgrid.CellRef) cellgrid.CellRef {
	if c == cellgrid.NoCell {
		return cellgrid.NoCell
	}
	return s.tree.Cell(c).Super
}

func (s *Scheduler) ownerOf(super cellgrid.CellRef) int {
	s.ownerMu.Lock()
	w, ok := s.owner[super]
	s.ownerMu.Unlock()
	if !ok {
		return s.randomQueue()
	}
	return w
}

func (s *Scheduler) setOwner(super cellgrid.CellRef, w int) {
	if super == cellgrid.NoCell {
		return
	}
	s.ownerMu.Lock()
	s.owner[super] = w
	s.ownerMu.Unlock()
}

func (s *Scheduler) randomQueue() int {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rand.Intn(len(s.queues))
}

// GetTask blocks until a task is ready for worker workerID, or
// returns false once the step has genuinely drained (no queue has
// work and no task is outstanding).
func (s *Scheduler) GetTask(workerID int) (task.Ref, bool) {
	for {
		if r, ok := s.queues[workerID].popOwner(); ok {
			return r, true
		}
		if !s.noSteal {
			if r, ok := s.trySteal(workerID); ok {
				return r, true
			}
		}
		if atomic.LoadInt32(&s.waiting) == 0 {
			return task.NoRef, false
		}
		s.sleep()
	}
}

func (s *Scheduler) trySteal(workerID int) (task.Ref, bool) {
	n := len(s.queues)
	if n <= 2 {
		return task.NoRef, false
	}
	rng := s.rngs[workerID%len(s.rngs)]
	// Queues 0 (send) and 1 (recv) are never steal targets, to
	// preserve MPI progress ordering.
	for attempt := 0; attempt < s.maxSteal; attempt++ {
		victim := 2 + rng.Intn(n-2)
		if victim == workerID {
			continue
		}
		if r, ok := s.queues[victim].stealFront(); ok {
			return r, true
		}
	}
	return task.NoRef, false
}

func (s *Scheduler) sleep() {
	s.mu.Lock()
	if atomic.LoadInt32(&s.waiting) != 0 {
		s.cond.Wait()
	}
	s.mu.Unlock()
}
