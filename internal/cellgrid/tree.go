package cellgrid

import (
	"math"

	"github.com/fjeanquartier/swiftsim/internal/part"
)

// Params bundles the tunables that govern rebuild/split decisions, all
// sourced from the parameter file (internal/paramfile) rather than
// package-level globals.
type Params struct {
	SplitSize int     // max particle count before a cell is split (default 400)
	Stretch   float64 // top-level cell sizing safety factor (default 1.10)
	MaxRelDx  float64 // drift-only refresh threshold, fraction of h (default 0.25)
	Gamma     float64 // kernel support-radius factor (hydro collaborator constant)
}

// DefaultParams mirrors the reference implementation's documented
// defaults (original_source/src/space.h: space_stretch=1.10,
// space_maxreldx=0.25, space_splitsize_default=400).
func DefaultParams() Params {
	return Params{SplitSize: 400, Stretch: 1.10, MaxRelDx: 0.25, Gamma: 1.825}
}

// Tree owns the cell arena and the top-level grid dimensions for one
// rank's local domain.
type Tree struct {
	cells []Cell
	free  []CellRef // freed cell slots available for reuse on rebuild

	Cdim   [3]int
	Width  [3]float64 // top-level cell width
	Dim    [3]float64 // full box size
	Periodic bool

	Params Params

	top []CellRef // the Cdim[0]*Cdim[1]*Cdim[2] top-level cells, row-major
}

// Cell returns a pointer to the cell at ref. The pointer is valid
// until the next Rebuild.
func (t *Tree) Cell(ref CellRef) *Cell { return &t.cells[ref] }

// NumCells returns how many cells are currently allocated.
func (t *Tree) NumCells() int { return len(t.cells) }

// TopCells returns the CellRefs of every top-level cell, row-major
// over (x,y,z).
func (t *Tree) TopCells() []CellRef { return t.top }

// TopIndex returns the (ix,iy,iz) index of the top cell containing a
// position, bucketed by integer division of its coordinates by the
// top-level cell width.
func (t *Tree) TopIndex(x, y, z float64) (ix, iy, iz int) {
	ix = clampIndex(int(x/t.Width[0]), t.Cdim[0])
	iy = clampIndex(int(y/t.Width[1]), t.Cdim[1])
	iz = clampIndex(int(z/t.Width[2]), t.Cdim[2])
	return
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func (t *Tree) topFlat(ix, iy, iz int) int {
	return (ix*t.Cdim[1]+iy)*t.Cdim[2] + iz
}

func (t *Tree) alloc() CellRef {
	if n := len(t.free); n > 0 {
		r := t.free[n-1]
		t.free = t.free[:n-1]
		t.cells[r] = Cell{}
		return r
	}
	t.cells = append(t.cells, Cell{})
	return CellRef(len(t.cells) - 1)
}

// Rebuild constructs a fresh top-level grid covering dim and buckets
// every particle in store into it by integer division of its
// coordinates, then recursively splits any top cell whose count or
// h_max exceeds the configured thresholds. globalMaxH is the globally-maximum
// smoothing length across all particles, used to size the top grid so
// its shortest edge exceeds globalMaxH*stretch.
func Rebuild(store *part.Store, dim [3]float64, periodic bool, globalMaxH float64, p Params) *Tree {
	t := &Tree{Dim: dim, Periodic: periodic, Params: p}

	minCellWidth := globalMaxH * p.Stretch
	if minCellWidth <= 0 {
		minCellWidth = 1
	}
	for a := 0; a < 3; a++ {
		n := int(dim[a] / minCellWidth)
		if n < 1 {
			n = 1
		}
		t.Cdim[a] = n
		t.Width[a] = dim[a] / float64(n)
	}

	nTop := t.Cdim[0] * t.Cdim[1] * t.Cdim[2]
	t.cells = make([]Cell, 0, nTop*2)
	t.top = make([]CellRef, nTop)
	for ix := 0; ix < t.Cdim[0]; ix++ {
		for iy := 0; iy < t.Cdim[1]; iy++ {
			for iz := 0; iz < t.Cdim[2]; iz++ {
				ref := t.alloc()
				c := t.Cell(ref)
				c.Loc = [3]float64{float64(ix) * t.Width[0], float64(iy) * t.Width[1], float64(iz) * t.Width[2]}
				c.Width = t.Width
				c.Parent = NoCell
				for i := range c.Children {
					c.Children[i] = NoCell
				}
				c.Super = ref
				t.top[t.topFlat(ix, iy, iz)] = ref
			}
		}
	}

	// Bucket particles into top cells via counting sort: count, then
	// prefix-sum into offsets, then scatter -- identical in spirit to
	// the in-place octant counting sort used by Split, just over the
	// coarser top grid and allowed to allocate once since it runs only
	// at rebuild time over the whole array.
	n := len(store.Parts)
	topOf := make([]int, n)
	counts := make([]int, nTop)
	for i := 0; i < n; i++ {
		ix, iy, iz := t.TopIndex(store.Parts[i].X, store.Parts[i].Y, store.Parts[i].Z)
		flat := t.topFlat(ix, iy, iz)
		topOf[i] = flat
		counts[flat]++
	}
	offsets := make([]int, nTop+1)
	for i := 0; i < nTop; i++ {
		offsets[i+1] = offsets[i] + counts[i]
	}
	sorted := make([]part.Particle, n)
	cursor := make([]int, nTop)
	copy(cursor, offsets[:nTop])
	for i := 0; i < n; i++ {
		flat := topOf[i]
		sorted[cursor[flat]] = store.Parts[i]
		cursor[flat]++
	}
	copy(store.Parts, sorted)

	for i := 0; i < nTop; i++ {
		c := t.Cell(t.top[i])
		c.Begin = offsets[i]
		c.Count = offsets[i+1] - offsets[i]
	}

	// Gravity and star particles are bucketed to top-cell granularity
	// only, never split further: the long-range gravity chain
	// (grav_up/grav_down) and the scheduler's cell-activity check both
	// operate per top cell (internal/sched/build.go's `active`), so a
	// finer split would only be bookkeeping no consumer reads.
	bucketGravParts(t, store)
	bucketStarParts(t, store)

	// Recursively split and compute h_max/dx_max bottom-up.
	for _, ref := range t.top {
		t.splitRecursive(ref, store, 0)
		t.reduceHMax(ref, store)
	}

	// Every reorder above carries each Particle's GpartIndex along with
	// it (it is just a struct field), so the forward part->gpart link
	// is always correct once bucketing settles. The reverse link
	// (GravParticle.IDOrNegOffset) is only fixed up here, once, rather
	// than after every intermediate reorder.
	relinkGravityPartners(store)

	return t
}

// relinkGravityPartners restores part.Store.LinkPartner's invariant
// (gpart.IDOrNegOffset == -(partIdx)) after a rebuild has moved gas
// particles to new indices.
func relinkGravityPartners(store *part.Store) {
	for i := range store.Parts {
		if gi := store.Parts[i].GpartIndex; gi >= 0 {
			store.GParts[gi].IDOrNegOffset = -int64(i)
		}
	}
}

// bucketGravParts counting-sorts store.GParts into the same top-cell
// order as the gas particles, and remaps each gas particle's forward
// link (Particle.GpartIndex) to its gravity partner's new index. The
// reverse link (GravParticle.IDOrNegOffset) is left for
// relinkGravityPartners to restore once Rebuild's reorders are done.
func bucketGravParts(t *Tree, store *part.Store) {
	n := len(store.GParts)
	nTop := len(t.top)
	topOf := make([]int, n)
	counts := make([]int, nTop)
	for i := 0; i < n; i++ {
		ix, iy, iz := t.TopIndex(store.GParts[i].X, store.GParts[i].Y, store.GParts[i].Z)
		flat := t.topFlat(ix, iy, iz)
		topOf[i] = flat
		counts[flat]++
	}
	offsets := make([]int, nTop+1)
	for i := 0; i < nTop; i++ {
		offsets[i+1] = offsets[i] + counts[i]
	}
	sorted := make([]part.GravParticle, n)
	oldToNew := make([]int, n)
	cursor := make([]int, nTop)
	copy(cursor, offsets[:nTop])
	for i := 0; i < n; i++ {
		flat := topOf[i]
		dst := cursor[flat]
		sorted[dst] = store.GParts[i]
		oldToNew[i] = dst
		cursor[flat]++
	}
	copy(store.GParts, sorted)

	for i := range store.Parts {
		if gi := store.Parts[i].GpartIndex; gi >= 0 {
			store.Parts[i].GpartIndex = int32(oldToNew[gi])
		}
	}

	for i := 0; i < nTop; i++ {
		c := t.Cell(t.top[i])
		c.GBegin = offsets[i]
		c.GCount = offsets[i+1] - offsets[i]
	}
}

// bucketStarParts counting-sorts store.SParts into top-cell order.
// Nothing outside part.Store holds an index into SParts, so there is
// no back-link to repair.
func bucketStarParts(t *Tree, store *part.Store) {
	n := len(store.SParts)
	nTop := len(t.top)
	topOf := make([]int, n)
	counts := make([]int, nTop)
	for i := 0; i < n; i++ {
		ix, iy, iz := t.TopIndex(store.SParts[i].X, store.SParts[i].Y, store.SParts[i].Z)
		flat := t.topFlat(ix, iy, iz)
		topOf[i] = flat
		counts[flat]++
	}
	offsets := make([]int, nTop+1)
	for i := 0; i < nTop; i++ {
		offsets[i+1] = offsets[i] + counts[i]
	}
	sorted := make([]part.StarParticle, n)
	cursor := make([]int, nTop)
	copy(cursor, offsets[:nTop])
	for i := 0; i < n; i++ {
		flat := topOf[i]
		sorted[cursor[flat]] = store.SParts[i]
		cursor[flat]++
	}
	copy(store.SParts, sorted)

	for i := 0; i < nTop; i++ {
		c := t.Cell(t.top[i])
		c.SBegin = offsets[i]
		c.SCount = offsets[i+1] - offsets[i]
	}
}

// splitRecursive splits a cell when its count exceeds SplitSize or
// h_max*gamma*stretch exceeds half its width, via an 8-way in-place
// counting sort on the octant bit of (x,y,z) relative to the cell
// center.
func (t *Tree) splitRecursive(ref CellRef, store *part.Store, depth int) {
	c := t.Cell(ref)
	c.Depth = depth
	if depth >= maxDepth {
		return
	}
	hMax := localHMax(store, c.Begin, c.Count)
	halfWidth := math.Min(c.Width[0], math.Min(c.Width[1], c.Width[2])) / 2
	needsSplit := c.Count > t.Params.SplitSize ||
		hMax*t.Params.Gamma*t.Params.Stretch > halfWidth
	if !needsSplit || c.Count == 0 {
		c.HMax = hMax
		return
	}

	center := [3]float64{
		c.Loc[0] + c.Width[0]/2,
		c.Loc[1] + c.Width[1]/2,
		c.Loc[2] + c.Width[2]/2,
	}

	// 8-way counting sort on the octant bit of each axis, in place.
	n := c.Count
	octOf := make([]int, n)
	counts := [8]int{}
	for i := 0; i < n; i++ {
		p := &store.Parts[c.Begin+i]
		oct := octant(p, center)
		octOf[i] = oct
		counts[oct]++
	}
	var offsets [9]int
	for o := 0; o < 8; o++ {
		offsets[o+1] = offsets[o] + counts[o]
	}
	scratch := make([]part.Particle, n)
	cursor := offsets
	for i := 0; i < n; i++ {
		o := octOf[i]
		scratch[cursor[o]] = store.Parts[c.Begin+i]
		cursor[o]++
	}
	copy(store.Parts[c.Begin:c.Begin+n], scratch)

	c.Split = true
	childWidth := [3]float64{c.Width[0] / 2, c.Width[1] / 2, c.Width[2] / 2}
	for o := 0; o < 8; o++ {
		count := offsets[o+1] - offsets[o]
		childRef := t.alloc()
		// t.Cell(ref) may have been invalidated by alloc's append;
		// refetch the parent pointer each iteration.
		parent := t.Cell(ref)
		child := t.Cell(childRef)
		child.Width = childWidth
		child.Loc = octantLoc(parent.Loc, childWidth, o)
		child.Begin = parent.Begin + offsets[o]
		child.Count = count
		child.Parent = ref
		for i := range child.Children {
			child.Children[i] = NoCell
		}
		child.Super = parent.Super
		parent.Children[o] = childRef

		t.splitRecursive(childRef, store, depth+1)
	}
}

const maxDepth = 52

func octant(p *part.Particle, center [3]float64) int {
	o := 0
	if p.X >= center[0] {
		o |= 1
	}
	if p.Y >= center[1] {
		o |= 2
	}
	if p.Z >= center[2] {
		o |= 4
	}
	return o
}

func octantLoc(parentLoc, childWidth [3]float64, oct int) [3]float64 {
	loc := parentLoc
	if oct&1 != 0 {
		loc[0] += childWidth[0]
	}
	if oct&2 != 0 {
		loc[1] += childWidth[1]
	}
	if oct&4 != 0 {
		loc[2] += childWidth[2]
	}
	return loc
}

func localHMax(store *part.Store, begin, count int) float64 {
	var h float64
	for i := begin; i < begin+count; i++ {
		if store.Parts[i].H > h {
			h = store.Parts[i].H
		}
	}
	return h
}

// reduceHMax recomputes c.HMax bottom-up from children (or directly
// from particles for a leaf); a cell's h_max is always at least the
// max of its children's.
func (t *Tree) reduceHMax(ref CellRef, store *part.Store) float64 {
	c := t.Cell(ref)
	if !c.Split {
		c.HMax = localHMax(store, c.Begin, c.Count)
		return c.HMax
	}
	var maxH float64
	for _, ch := range c.Children {
		if ch == NoCell {
			continue
		}
		if h := t.reduceHMax(ch, store); h > maxH {
			maxH = h
		}
	}
	c.HMax = maxH
	return maxH
}

// RefreshDrift updates h_max/dx_max up the tree without re-splitting,
// used on steps where no particle has moved far enough to force a
// full rebuild. prev holds the position snapshot taken at the last
// rebuild.
func (t *Tree) RefreshDrift(ref CellRef, store *part.Store, prev []part.Particle) (hMax, dxMax float64) {
	c := t.Cell(ref)
	if !c.Split {
		c.HMax = localHMax(store, c.Begin, c.Count)
		c.DxMax = part.MaxDisplacement(store.Parts, prev, c.Begin, c.Begin+c.Count)
		return c.HMax, c.DxMax
	}
	for _, ch := range c.Children {
		if ch == NoCell {
			continue
		}
		h, dx := t.RefreshDrift(ch, store, prev)
		if h > hMax {
			hMax = h
		}
		if dx > dxMax {
			dxMax = dx
		}
	}
	c.HMax, c.DxMax = hMax, dxMax
	return
}

// ReduceTiEndMin recomputes c.TiEndMin bottom-up from the minimum
// ti_end among a leaf's gas particles (or its children's already-
// reduced values for a split cell), folding in this cell's own
// gravity particles if it is a top cell. Gravity particles are only
// ever bucketed at top-cell granularity (see bucketGravParts), so a
// split top cell's GBegin/GCount would otherwise never be visited by
// the leaf-only branch below. Particles with no ti_end yet assigned
// never reach this reduction under normal operation, since every
// particle is given an initial timebin by the loader.
func (t *Tree) ReduceTiEndMin(ref CellRef, store *part.Store) int64 {
	c := t.Cell(ref)
	var min int64 = -1
	fold := func(te int64) {
		if min < 0 || te < min {
			min = te
		}
	}

	if !c.Split {
		for i := c.Begin; i < c.Begin+c.Count; i++ {
			fold(store.Parts[i].TiEndStep)
		}
	} else {
		for _, ch := range c.Children {
			if ch == NoCell {
				continue
			}
			fold(t.ReduceTiEndMin(ch, store))
		}
	}

	if c.Parent == NoCell {
		for i := c.GBegin; i < c.GBegin+c.GCount; i++ {
			fold(store.GParts[i].TiEndStep)
		}
	}

	if min < 0 {
		min = 0
	}
	c.TiEndMin = min
	return min
}

// NeedsRebuild reports whether any cell's dx_max exceeds
// MaxRelDx*h_max, forcing a full rebuild rather than a drift-only
// refresh.
func (t *Tree) NeedsRebuild(ref CellRef) bool {
	c := t.Cell(ref)
	if c.HMax > 0 && c.DxMax > t.Params.MaxRelDx*c.HMax {
		return true
	}
	if !c.Split {
		return false
	}
	for _, ch := range c.Children {
		if ch == NoCell {
			continue
		}
		if t.NeedsRebuild(ch) {
			return true
		}
	}
	return false
}

// CheckPartition validates the cell-partition invariant: the sum of
// leaf counts equals the global particle count, and every particle
// lies within its cell's region to within DxMax tolerance.
func (t *Tree) CheckPartition(store *part.Store) error {
	var total int
	var walk func(ref CellRef) error
	walk = func(ref CellRef) error {
		c := t.Cell(ref)
		if !c.Split {
			total += c.Count
			for i := c.Begin; i < c.Begin+c.Count; i++ {
				p := &store.Parts[i]
				tol := c.DxMax
				if p.X < c.Loc[0]-tol || p.X > c.Loc[0]+c.Width[0]+tol ||
					p.Y < c.Loc[1]-tol || p.Y > c.Loc[1]+c.Width[1]+tol ||
					p.Z < c.Loc[2]-tol || p.Z > c.Loc[2]+c.Width[2]+tol {
					return &PartitionError{CellIndex: int(ref), ParticleIndex: i}
				}
			}
			return nil
		}
		for _, ch := range c.Children {
			if ch == NoCell {
				continue
			}
			if err := walk(ch); err != nil {
				return err
			}
		}
		return nil
	}
	for _, top := range t.top {
		if err := walk(top); err != nil {
			return err
		}
	}
	if total != len(store.Parts) {
		return &PartitionError{CountMismatch: true, Got: total, Want: len(store.Parts)}
	}
	return nil
}

// PartitionError reports a broken cell-partition invariant.
type PartitionError struct {
	CellIndex, ParticleIndex int
	CountMismatch            bool
	Got, Want                int
}

func (e *PartitionError) Error() string {
	if e.CountMismatch {
		return "cellgrid: leaf particle count mismatch"
	}
	return "cellgrid: particle outside its cell's region"
}
