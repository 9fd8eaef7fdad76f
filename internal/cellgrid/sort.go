package cellgrid

import (
	"math"

	"github.com/fjeanquartier/swiftsim/internal/part"
)

// insertionSortThreshold is the crossover below which the sort falls
// back to a plain insertion sort rather than recursing further.
const insertionSortThreshold = 15

// sortAxis returns the unit projection axis for direction d, used to
// project a particle's position onto the direction for sort-based
// pair pruning.
func sortAxis(d int) [3]float64 {
	o := sidOffsets[d]
	return [3]float64{float64(o[0]), float64(o[1]), float64(o[2])}
}

// BuildSort computes (or recomputes) the sort array for direction d
// on leaf cell ref, sorting the cell's local particle range by
// projected distance along the direction's axis, and terminates the
// array with a +Inf sentinel. Must be called under the cell's
// parts-lock.
func (t *Tree) BuildSort(ref CellRef, d int, store *part.Store) {
	c := t.Cell(ref)
	axis := sortAxis(d)
	n := c.Count
	arr := make([]SortEntry, n+1)
	for i := 0; i < n; i++ {
		p := &store.Parts[c.Begin+i]
		dist := p.X*axis[0] + p.Y*axis[1] + p.Z*axis[2]
		arr[i] = SortEntry{Dist: dist, Ind: int32(i)}
	}
	sortEntries(arr[:n])
	arr[n] = SortEntry{Dist: math.Inf(1), Ind: -1}
	c.Sorts[d] = arr
	c.MarkSortValid(d)
}

// MergeChildSorts assembles a split cell's sort array for direction d
// by an 8-way merge of its (already-sorted) children's arrays for the
// same direction, remapping each child's local index into the
// parent's local index space. Every present child must already have
// SortValid(d) true.
func (t *Tree) MergeChildSorts(ref CellRef, d int) {
	c := t.Cell(ref)
	type cursor struct {
		entries []SortEntry
		pos     int
		offset  int32 // local-index offset of this child within the parent
	}
	var cursors []*cursor
	var offset int32
	for _, ch := range c.Children {
		if ch == NoCell {
			continue
		}
		child := t.Cell(ch)
		if !child.SortValid(d) {
			t.MergeOrBuildSort(ch, d, nil)
		}
		cursors = append(cursors, &cursor{entries: child.Sorts[d], offset: offset})
		offset += int32(child.Count)
	}

	out := make([]SortEntry, 0, c.Count+1)
	for {
		bestIdx := -1
		var bestDist float64
		for i, cu := range cursors {
			if cu.pos >= len(cu.entries)-1 { // exclude sentinel
				continue
			}
			d := cu.entries[cu.pos].Dist
			if bestIdx == -1 || d < bestDist {
				bestIdx = i
				bestDist = d
			}
		}
		if bestIdx == -1 {
			break
		}
		cu := cursors[bestIdx]
		e := cu.entries[cu.pos]
		out = append(out, SortEntry{Dist: e.Dist, Ind: e.Ind + cu.offset})
		cu.pos++
	}
	out = append(out, SortEntry{Dist: math.Inf(1), Ind: -1})
	c.Sorts[d] = out
	c.MarkSortValid(d)
}

// MergeOrBuildSort ensures direction d is valid on ref, building it
// directly (leaf) or merging from children (split), recursing as
// needed. store is required only for leaves; pass nil when ref is
// known to be split.
func (t *Tree) MergeOrBuildSort(ref CellRef, d int, store *part.Store) {
	c := t.Cell(ref)
	if c.SortValid(d) {
		return
	}
	if c.Split {
		t.MergeChildSorts(ref, d)
		return
	}
	t.BuildSort(ref, d, store)
}

// sortEntries sorts entries ascending by Dist, using quicksort with an
// insertion-sort fallback below insertionSortThreshold elements.
func sortEntries(a []SortEntry) {
	quicksort(a, 0, len(a)-1)
}

func quicksort(a []SortEntry, lo, hi int) {
	for lo < hi {
		if hi-lo+1 < insertionSortThreshold {
			insertionSort(a[lo : hi+1])
			return
		}
		p := partitionEntries(a, lo, hi)
		// Recurse into the smaller side, loop over the larger, to
		// bound stack depth.
		if p-lo < hi-p {
			quicksort(a, lo, p-1)
			lo = p + 1
		} else {
			quicksort(a, p+1, hi)
			hi = p - 1
		}
	}
}

func partitionEntries(a []SortEntry, lo, hi int) int {
	mid := lo + (hi-lo)/2
	// Median-of-three pivot selection.
	if a[mid].Dist < a[lo].Dist {
		a[mid], a[lo] = a[lo], a[mid]
	}
	if a[hi].Dist < a[lo].Dist {
		a[hi], a[lo] = a[lo], a[hi]
	}
	if a[hi].Dist < a[mid].Dist {
		a[hi], a[mid] = a[mid], a[hi]
	}
	pivot := a[mid].Dist
	a[mid], a[hi-1] = a[hi-1], a[mid]
	i := lo
	j := hi - 1
	for {
		for i++; a[i].Dist < pivot; i++ {
		}
		for j--; j > lo && a[j].Dist > pivot; j-- {
		}
		if i >= j {
			break
		}
		a[i], a[j] = a[j], a[i]
	}
	a[i], a[hi-1] = a[hi-1], a[i]
	return i
}

func insertionSort(a []SortEntry) {
	for i := 1; i < len(a); i++ {
		v := a[i]
		j := i - 1
		for j >= 0 && a[j].Dist > v.Dist {
			a[j+1] = a[j]
			j--
		}
		a[j+1] = v
	}
}

// CheckSortInvariant validates that for every direction with its bit
// set, the array is monotone non-decreasing and ends in the sentinel.
func (c *Cell) CheckSortInvariant() error {
	for d := 0; d < NumSortDirections; d++ {
		if !c.SortValid(d) {
			continue
		}
		arr := c.Sorts[d]
		if len(arr) != c.Count+1 {
			return &SortInvariantError{Direction: d, Reason: "length mismatch"}
		}
		for i := 1; i < len(arr); i++ {
			if arr[i].Dist < arr[i-1].Dist {
				return &SortInvariantError{Direction: d, Reason: "not monotone"}
			}
		}
		if arr[len(arr)-1].Ind != -1 {
			return &SortInvariantError{Direction: d, Reason: "missing sentinel"}
		}
	}
	return nil
}

// SortInvariantError reports a broken sort-array invariant.
type SortInvariantError struct {
	Direction int
	Reason    string
}

func (e *SortInvariantError) Error() string {
	return "cellgrid: sort invariant violated for direction " + itoa(e.Direction) + ": " + e.Reason
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [8]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
