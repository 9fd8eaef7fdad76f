package engine

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/fjeanquartier/swiftsim/internal/snapshot"
	"github.com/fjeanquartier/swiftsim/internal/telemetry"
)

// reduceStatistics sums every top cell's conserved-quantity
// accumulators, allreduces them across ranks, and returns the row the
// caller writes to the statistics collector.
func (e *Engine) reduceStatistics() telemetry.StepStats {
	tops := e.tree.TopCells()
	mass := make([]float64, len(tops))
	ke := make([]float64, len(tops))
	ie := make([]float64, len(tops))
	pe := make([]float64, len(tops))
	re := make([]float64, len(tops))
	entropy := make([]float64, len(tops))
	mx := make([]float64, len(tops))
	my := make([]float64, len(tops))
	mz := make([]float64, len(tops))
	updated := make([]float64, len(tops))

	minNext := math.Inf(1)
	for i, ref := range tops {
		c := e.tree.Cell(ref)
		mass[i] = c.Mass
		ke[i] = c.KineticEnergy
		ie[i] = c.InternalEnergy
		pe[i] = c.PotentialEnergy
		re[i] = c.RadiatedEnergy
		entropy[i] = c.Entropy
		mx[i] = c.Momentum[0]
		my[i] = c.Momentum[1]
		mz[i] = c.Momentum[2]
		updated[i] = float64(c.Updated)
		if c.TiEndMin > e.tiCurrent {
			if t := e.timeOf(c.TiEndMin); t < minNext {
				minNext = t
			}
		}
	}
	if math.IsInf(minNext, 1) {
		minNext = e.time
	}

	local := []float64{
		floats.Sum(mass), floats.Sum(ke), floats.Sum(ie), floats.Sum(pe), floats.Sum(re),
		floats.Sum(entropy), floats.Sum(mx), floats.Sum(my), floats.Sum(mz), floats.Sum(updated),
	}
	reduced := e.transport.Allreduce(local)

	return telemetry.StepStats{
		Step:            e.step,
		Time:            e.time,
		Mass:            reduced[0],
		KineticEnergy:   reduced[1],
		InternalEnergy:  reduced[2],
		PotentialEnergy: reduced[3],
		RadiatedEnergy:  reduced[4],
		Entropy:         reduced[5],
		MomentumX:       reduced[6],
		MomentumY:       reduced[7],
		MomentumZ:       reduced[8],
		UpdatedCount:    int64(reduced[9]),
		MinNextStep:     minNext,
	}
}

// maybeSnapshot drifts all particles to the next planned output time
// and dumps a snapshot if candidateTime has reached or passed it,
// mirroring step 2 of the loop: output boundaries preempt the
// ordinary minimum-next-step drift so every snapshot lands exactly on
// its scheduled time.
func (e *Engine) maybeSnapshot(candidateTime float64) error {
	if e.cfg.SnapshotDeltaTime <= 0 || candidateTime < e.nextSnapshotTime {
		return nil
	}
	dt := e.nextSnapshotTime - e.time
	driftStore(e.store, dt)
	e.time = e.nextSnapshotTime
	if err := snapshot.Write(e.cfg.SnapshotDir, e.step, e.time, e.box, e.periodic, e.entropyICs, e.store); err != nil {
		return err
	}
	e.nextSnapshotTime += e.cfg.SnapshotDeltaTime
	return nil
}
