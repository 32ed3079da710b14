package flowroute

import "testing"

func TestAggregateSumsVolumeRegardlessOfTimer(t *testing.T) {
	g := mustGrid(t, 2, 2)
	a := NewAggregator(g)
	pool := NewPool()
	pool.AddMany([]Particle{
		{IY: 0, IX: 0, Volume: 2, Timer: 0},
		{IY: 0, IX: 0, Volume: 3, Timer: 50}, // mid-hop but still physically present
	})
	depth := a.Aggregate(pool)
	area := g.CellArea(0, 0)
	if got, want := depth.Get(0, 0), 5/area; got != want {
		t.Fatalf("expected depth %g, got %g", want, got)
	}
}

func TestAggregateIsIdempotentWithoutAnIntervalStep(t *testing.T) {
	g := mustGrid(t, 2, 2)
	a := NewAggregator(g)
	pool := NewPool()
	pool.Add(Particle{IY: 1, IX: 1, Volume: 7})

	first := a.Aggregate(pool)
	second := a.Aggregate(pool)
	for i := range first.Elements {
		if first.Elements[i] != second.Elements[i] {
			t.Fatalf("expected identical repeated aggregation, element %d differs: %g vs %g", i, first.Elements[i], second.Elements[i])
		}
	}
}

func TestAggregateEmptyPoolIsAllZero(t *testing.T) {
	g := mustGrid(t, 2, 2)
	a := NewAggregator(g)
	depth := a.Aggregate(NewPool())
	for i, v := range depth.Elements {
		if v != 0 {
			t.Fatalf("element %d: expected 0 for an empty pool, got %g", i, v)
		}
	}
}
