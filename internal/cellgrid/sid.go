package cellgrid

// Sid directions. Two cells ci, cj related by an integer offset
// (dx,dy,dz) in {-1,0,1}^3 \ {0,0,0} are canonicalized to one of 13
// directions (the 26 neighbor offsets come in +/- pairs under
// reflection; sid picks the representative, and the caller is told
// whether ci/cj need to be swapped to match it). See DESIGN.md's Open
// Question #1 for how this table was derived.
const (
	SidFFF = iota // (-1,-1,-1) family
	SidFFZ        // (-1,-1, 0)
	SidFFP        // (-1,-1, 1)
	SidFZF        // (-1, 0,-1)
	SidFZZ        // (-1, 0, 0)
	SidFZP        // (-1, 0, 1)
	SidFPF        // (-1, 1,-1)
	SidFPZ        // (-1, 1, 0)
	SidFPP        // (-1, 1, 1)
	SidZFF        // ( 0,-1,-1)
	SidZFZ        // ( 0,-1, 0)
	SidZFP        // ( 0,-1, 1)
	SidZZF        // ( 0, 0,-1)
)

// sidOffsets lists the canonical (dx,dy,dz) representative for each
// of the 13 directions, using the convention that the first nonzero
// component (in x,y,z order) is negative -- this is what makes each
// direction's reflection unique to one table entry.
var sidOffsets = [NumSortDirections][3]int{
	{-1, -1, -1},
	{-1, -1, 0},
	{-1, -1, 1},
	{-1, 0, -1},
	{-1, 0, 0},
	{-1, 0, 1},
	{-1, 1, -1},
	{-1, 1, 0},
	{-1, 1, 1},
	{0, -1, -1},
	{0, -1, 0},
	{0, -1, 1},
	{0, 0, -1},
}

// SidOffset returns the canonical (dx,dy,dz) representative for
// direction sid, for callers (e.g. the task-graph builder) that
// enumerate neighbor cells directly by direction rather than going
// through OffsetToSid.
func SidOffset(sid int) [3]int { return sidOffsets[sid] }

// OffsetToSid canonicalizes an integer offset in {-1,0,1}^3 (excluding
// the origin) to (sid, swapped): swapped reports whether ci and cj
// must be exchanged for the pair to match the direction's sign
// convention.
func OffsetToSid(dx, dy, dz int) (sid int, swapped bool) {
	if dx == 0 && dy == 0 && dz == 0 {
		return -1, false
	}
	// Normalize so that the first nonzero component is negative;
	// record whether we flipped.
	flip := false
	if dx != 0 {
		flip = dx > 0
	} else if dy != 0 {
		flip = dy > 0
	} else {
		flip = dz > 0
	}
	if flip {
		dx, dy, dz = -dx, -dy, -dz
	}
	for i, o := range sidOffsets {
		if o[0] == dx && o[1] == dy && o[2] == dz {
			return i, flip
		}
	}
	return -1, false
}

// ChildSid derives the sid a child-cell pair inherits when a
// pair/self task at parent sid parentSid (parentSid < 0 for a self
// task) is split into up-to-13-way child-child pairs. octI and octJ
// are the 0..7 octant indices (bit0=x,
// bit1=y, bit2=z of the child within its parent) of the two
// children being paired.
//
// The rule: each octant's position contributes a (-1 or +1) unit
// offset along each axis (octant bit 0 => -0.5 width, bit 1 => +0.5
// width, from the parent center); the net offset between the two
// child centers, combined with the parent direction for the two
// non-degenerate axes of a pair task (or treated as all-centered for
// a self task), is canonicalized the same way top-level pairs are.
func ChildSid(parentSid int, octI, octJ int) (sid int, ok bool) {
	octOffset := func(oct int) [3]int {
		o := [3]int{-1, -1, -1}
		if oct&1 != 0 {
			o[0] = 1
		}
		if oct&2 != 0 {
			o[1] = 1
		}
		if oct&4 != 0 {
			o[2] = 1
		}
		return o
	}
	oi := octOffset(octI)
	oj := octOffset(octJ)

	var base [3]int
	if parentSid >= 0 && parentSid < NumSortDirections {
		base = sidOffsets[parentSid]
	}

	// Combine the parent-level direction (scaled to the child grid,
	// i.e. doubled) with the per-octant sub-offset; any axis where the
	// parent direction is 0 (a face/edge-interior axis) is driven
	// purely by the octant placement.
	dx := 2*base[0] + (oj[0] - oi[0])
	dy := 2*base[1] + (oj[1] - oi[1])
	dz := 2*base[2] + (oj[2] - oi[2])

	// Clamp to {-1,0,1}: only the sign of the accumulated offset
	// matters for canonicalization, magnitude does not change which
	// of the 13 directions applies.
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
	sid, _ = OffsetToSid(clamp(dx), clamp(dy), clamp(dz))
	return sid, sid >= 0
}
