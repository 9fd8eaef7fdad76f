package sched

import (
	"testing"

	"github.com/fjeanquartier/swiftsim/internal/task"
)

// drain runs every queued/ready task on a single worker to completion,
// mimicking what internal/runner's worker loop does without any of its
// locking or kernel-dispatch machinery.
func drain(t *testing.T, s *Scheduler, numWorkers int) int {
	t.Helper()
	ran := 0
	for {
		any := false
		for w := 0; w < numWorkers; w++ {
			r, ok := s.GetTask(w)
			if !ok {
				continue
			}
			any = true
			ran++
			s.Done(r, w)
		}
		if !any {
			break
		}
	}
	return ran
}

func TestStartEnqueuesOnlyRootTasks(t *testing.T) {
	pool := task.NewPool(4, 4)
	a := pool.NewTask(task.TypeInit, task.SubtypeNone, task.NoCell, task.NoCell)
	b := pool.NewTask(task.TypeGhost, task.SubtypeNone, task.NoCell, task.NoCell)
	pool.AddUnlock(a, b)
	pool.Compact()

	s := New(pool, nil, 1, task.MaskAll, task.MaskAll, 4, true)
	s.Start(1)

	r, ok := s.GetTask(0)
	if !ok {
		t.Fatal("expected a ready task after Start")
	}
	if r != a {
		t.Fatalf("GetTask = %v, want the root task %v", r, a)
	}
}

func TestDoneUnlocksSuccessorOnceWaitReachesOne(t *testing.T) {
	pool := task.NewPool(4, 4)
	a := pool.NewTask(task.TypeInit, task.SubtypeNone, task.NoCell, task.NoCell)
	b := pool.NewTask(task.TypeGhost, task.SubtypeNone, task.NoCell, task.NoCell)
	pool.AddUnlock(a, b)
	pool.Compact()

	s := New(pool, nil, 1, task.MaskAll, task.MaskAll, 4, true)
	s.Start(1)

	ran := drain(t, s, 1)
	if ran != 2 {
		t.Fatalf("drained %d tasks, want 2", ran)
	}
	if s.Waiting() != 0 {
		t.Fatalf("Waiting() = %d, want 0 once the graph has drained", s.Waiting())
	}
}

func TestEnqueueSkipsMaskedOutTaskTypeWithoutBlockingSuccessors(t *testing.T) {
	pool := task.NewPool(4, 4)
	a := pool.NewTask(task.TypeCooling, task.SubtypeNone, task.NoCell, task.NoCell)
	b := pool.NewTask(task.TypeKick, task.SubtypeNone, task.NoCell, task.NoCell)
	pool.AddUnlock(a, b)
	pool.Compact()

	mask := task.MaskOf(task.TypeKick) // TypeCooling deliberately excluded
	s := New(pool, nil, 1, mask, task.MaskAll, 4, true)
	s.Start(1)

	ran := drain(t, s, 1)
	if ran != 1 {
		t.Fatalf("drained %d tasks, want 1 (only the unmasked kick task actually runs)", ran)
	}
}

func TestGetTaskReturnsFalseOnceGraphFullyDrained(t *testing.T) {
	pool := task.NewPool(4, 4)
	pool.NewTask(task.TypeInit, task.SubtypeNone, task.NoCell, task.NoCell)
	pool.Compact()

	s := New(pool, nil, 1, task.MaskAll, task.MaskAll, 4, true)
	s.Start(1)
	drain(t, s, 1)

	if _, ok := s.GetTask(0); ok {
		t.Fatal("GetTask should report false once nothing remains and no task is outstanding")
	}
}
