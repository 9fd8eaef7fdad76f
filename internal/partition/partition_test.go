package partition

import (
	"math"
	"testing"
)

func TestPartitionSingleRankAssignsEverythingToZero(t *testing.T) {
	vertices := []VertexWeight{{CellIndex: 0, Time: 1}, {CellIndex: 1, Time: 1}}
	gr := Build(vertices, nil)
	assignment := Partition(gr, 1, 1)
	for i, rank := range assignment {
		if rank != 0 {
			t.Fatalf("assignment[%d] = %d, want 0 with a single rank", i, rank)
		}
	}
}

func TestPartitionAssignsEveryRankAtLeastOneCell(t *testing.T) {
	// Eight cells in a tight chain: modularity detection tends to
	// collapse this into one or two communities, exercising splitUpTo.
	vertices := make([]VertexWeight, 8)
	for i := range vertices {
		vertices[i] = VertexWeight{CellIndex: i, Time: 1}
	}
	edges := []EdgeWeight{
		{A: 0, B: 1, Time: 10}, {A: 1, B: 2, Time: 10}, {A: 2, B: 3, Time: 10},
		{A: 3, B: 4, Time: 10}, {A: 4, B: 5, Time: 10}, {A: 5, B: 6, Time: 10},
		{A: 6, B: 7, Time: 10},
	}
	gr := Build(vertices, edges)
	assignment := Partition(gr, 4, 7)

	seen := make(map[int]bool)
	for _, rank := range assignment {
		seen[rank] = true
	}
	for rank := 0; rank < 4; rank++ {
		if !seen[rank] {
			t.Fatalf("rank %d was never assigned a cell: %v", rank, assignment)
		}
	}
}

func TestSelfWeightReturnsAccumulatedVertexTime(t *testing.T) {
	gr := Build([]VertexWeight{{CellIndex: 0, Time: 2.5}, {CellIndex: 1, Time: 7.5}}, nil)
	if gr.SelfWeight(0) != 2.5 {
		t.Fatalf("SelfWeight(0) = %f, want 2.5", gr.SelfWeight(0))
	}
	if gr.SelfWeight(1) != 7.5 {
		t.Fatalf("SelfWeight(1) = %f, want 7.5", gr.SelfWeight(1))
	}
}

func TestRankLoadSumsSelfWeightPerRank(t *testing.T) {
	gr := Build([]VertexWeight{{CellIndex: 0, Time: 1}, {CellIndex: 1, Time: 2}, {CellIndex: 2, Time: 3}}, nil)
	assignment := RankAssignment{0, 0, 1}
	load := RankLoad(gr, assignment, 2)
	if load[0] != 3 {
		t.Fatalf("load[0] = %f, want 3", load[0])
	}
	if load[1] != 3 {
		t.Fatalf("load[1] = %f, want 3", load[1])
	}
}

func TestImbalanceOfEvenLoadIsOne(t *testing.T) {
	if got := Imbalance([]float64{5, 5, 5}); got != 1 {
		t.Fatalf("Imbalance(even) = %f, want 1", got)
	}
}

func TestImbalanceReflectsHeaviestRank(t *testing.T) {
	got := Imbalance([]float64{1, 1, 10})
	want := 10.0 / 4.0
	if got != want {
		t.Fatalf("Imbalance = %f, want %f", got, want)
	}
}

func TestImbalanceOfEmptyLoadIsOne(t *testing.T) {
	if got := Imbalance(nil); got != 1 {
		t.Fatalf("Imbalance(nil) = %f, want 1", got)
	}
}

func TestRescaleVertexWeightsLeavesBalancedWeightsUntouched(t *testing.T) {
	vertices := []VertexWeight{
		{CellIndex: 0, Time: 5, ParticleCount: 50},
		{CellIndex: 1, Time: 5, ParticleCount: 50},
	}
	out := RescaleVertexWeights(vertices, 2)
	for i, v := range out {
		if v.Time != vertices[i].Time {
			t.Fatalf("out[%d].Time = %f, want unchanged %f", i, v.Time, vertices[i].Time)
		}
	}
}

func TestRescaleVertexWeightsDampsSkewBeyondMetisMaxWeight(t *testing.T) {
	vertices := []VertexWeight{
		{CellIndex: 0, Time: 90, ParticleCount: 10},
		{CellIndex: 1, Time: 10, ParticleCount: 90},
	}
	// actualRatio = (90/100)/(10/100) = 9, metisMaxWeight = 3, scale = 3/9.
	out := RescaleVertexWeights(vertices, 3)
	if out[0].ParticleCount != 10 || out[1].ParticleCount != 90 {
		t.Fatal("RescaleVertexWeights must not alter ParticleCount")
	}
	wantA, wantB := 90*(3.0/9.0), 10*(3.0/9.0)
	if math.Abs(out[0].Time-wantA) > 1e-9 {
		t.Fatalf("out[0].Time = %f, want %f", out[0].Time, wantA)
	}
	if math.Abs(out[1].Time-wantB) > 1e-9 {
		t.Fatalf("out[1].Time = %f, want %f", out[1].Time, wantB)
	}
}

func TestRescaleVertexWeightsSkipsWhenCountsAreZero(t *testing.T) {
	vertices := []VertexWeight{{CellIndex: 0, Time: 5}, {CellIndex: 1, Time: 1}}
	out := RescaleVertexWeights(vertices, 1)
	if out[0].Time != 5 || out[1].Time != 1 {
		t.Fatal("RescaleVertexWeights should leave weights untouched when no particle counts are given")
	}
}
