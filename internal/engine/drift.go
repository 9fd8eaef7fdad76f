package engine

import "github.com/fjeanquartier/swiftsim/internal/part"

// driftStore advances every particle's position by one second-order
// kick-drift step using its last-computed acceleration, which is the
// only physics the engine itself performs; density, force and gravity
// kernels remain opaque (internal/kernel).
func driftStore(store *part.Store, dt float64) {
	if dt == 0 {
		return
	}
	for i := range store.Parts {
		p := &store.Parts[i]
		p.X += p.VX*dt + 0.5*p.AX*dt*dt
		p.Y += p.VY*dt + 0.5*p.AY*dt*dt
		p.Z += p.VZ*dt + 0.5*p.AZ*dt*dt
	}
	for i := range store.GParts {
		g := &store.GParts[i]
		g.X += g.VX*dt + 0.5*g.AX*dt*dt
		g.Y += g.VY*dt + 0.5*g.AY*dt*dt
		g.Z += g.VZ*dt + 0.5*g.AZ*dt*dt
	}
	for i := range store.SParts {
		s := &store.SParts[i]
		s.X += s.VX * dt
		s.Y += s.VY * dt
		s.Z += s.VZ * dt
	}
}

// maxH returns the largest smoothing length among gas particles, the
// quantity cellgrid.Rebuild needs to size top-level cells.
func maxH(parts []part.Particle) float64 {
	var h float64
	for i := range parts {
		if parts[i].H > h {
			h = parts[i].H
		}
	}
	if h <= 0 {
		h = 1
	}
	return h
}

// timeOf converts an integer timeline tick to a simulation time.
func (e *Engine) timeOf(ti int64) float64 {
	return e.cfg.TimeBegin + float64(ti)*e.cfg.DtMin
}

// reduceMinTiEnd walks every top cell's bottom-up ti_end reduction and
// returns the smallest value found, the next tick the global step
// clock must advance to.
func (e *Engine) reduceMinTiEnd() int64 {
	var min int64 = -1
	for _, ref := range e.tree.TopCells() {
		m := e.tree.ReduceTiEndMin(ref, e.store)
		if min < 0 || m < min {
			min = m
		}
	}
	if min < 0 {
		min = e.tiCurrent
	}
	return min
}

// assignInitialTimebins seeds every particle's end-of-step tick so the
// first reduceMinTiEnd call has something to reduce. Real SWIFT
// derives this from a force kernel's time-step criterion; that kernel
// is out of scope here, so every particle starts on the same
// fixed-size bin (see Config.FixedDtTicks).
func (e *Engine) assignInitialTimebins() {
	for i := range e.store.Parts {
		e.store.Parts[i].TiBeginStep = 0
		e.store.Parts[i].TiEndStep = e.cfg.FixedDtTicks
	}
	for i := range e.store.GParts {
		e.store.GParts[i].TiBeginStep = 0
		e.store.GParts[i].TiEndStep = e.cfg.FixedDtTicks
	}
}

// advanceActiveTimebins bumps every particle that reached the end of
// its bin this step onto a fresh one. This is the fixed-dt-mode
// counterpart to SWIFT's adaptive time-step criterion.
func (e *Engine) advanceActiveTimebins() {
	for i := range e.store.Parts {
		p := &e.store.Parts[i]
		if p.TiEndStep <= e.tiCurrent {
			p.TiBeginStep = e.tiCurrent
			p.TiEndStep = e.tiCurrent + e.cfg.FixedDtTicks
		}
	}
	for i := range e.store.GParts {
		g := &e.store.GParts[i]
		if g.TiEndStep <= e.tiCurrent {
			g.TiBeginStep = e.tiCurrent
			g.TiEndStep = e.tiCurrent + e.cfg.FixedDtTicks
		}
	}
}
