package kernel

import (
	"testing"

	"github.com/fjeanquartier/swiftsim/internal/cellgrid"
	"github.com/fjeanquartier/swiftsim/internal/task"
)

func TestNoOpLeavesEveryFieldNil(t *testing.T) {
	s := NoOp
	if s.Self != nil || s.Pair != nil || s.GravUp != nil || s.GravDown != nil || s.Cooling != nil || s.Source != nil {
		t.Fatal("NoOp should have every field nil")
	}
}

func TestIdentitySelfBumpsUpdatedByCount(t *testing.T) {
	s := Identity()
	c := &cellgrid.Cell{Count: 5}
	s.Self(c, task.SubtypeDensity)
	if c.Updated != 5 {
		t.Fatalf("Updated = %d, want 5", c.Updated)
	}
}

func TestIdentityPairBumpsBothCellsByTheOthersCount(t *testing.T) {
	s := Identity()
	ci := &cellgrid.Cell{Count: 3}
	cj := &cellgrid.Cell{Count: 7}
	s.Pair(ci, cj, task.SubtypeDensity, 0)
	if ci.Updated != 7 {
		t.Fatalf("ci.Updated = %d, want 7", ci.Updated)
	}
	if cj.Updated != 3 {
		t.Fatalf("cj.Updated = %d, want 3", cj.Updated)
	}
}
