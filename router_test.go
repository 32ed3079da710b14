package flowroute

import "testing"

// routerGrid builds a 3x3 grid with an explicit D8 field (EncodingClockwise)
// so each test controls exactly which cells hop, sink, or leave the domain,
// independent of steepestDescent's tie-break derivation.
func routerGrid(t *testing.T, d8 [][]int) *Grid {
	t.Helper()
	elev := flatElev(3, 3)
	cn := flatCN(3, 3, 80)
	lat := []float64{3, 2, 1}
	lon := []float64{0, 1, 2}
	g, err := NewGrid(lat, lon, elev, d8, cn, nil, CRSInfo{}, EncodingClockwise, nil)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

func zeroD8(ny, nx int) [][]int {
	out := make([][]int, ny)
	for i := range out {
		out[i] = make([]int, nx)
	}
	return out
}

func TestRouterTimerGatesHop(t *testing.T) {
	d8 := zeroD8(3, 3)
	d8[1][1] = 2 // S
	g := routerGrid(t, d8)
	rt := NewRouter(g, RouterConfig{THillslope: 10, TChannel: 5})
	diag := NewDiagnostics()
	pool := NewPool()
	pool.Add(Particle{IY: 1, IX: 1, Volume: 1, Timer: 100})

	rt.Advance(pool, 1, diag)

	if pool.Len() != 1 {
		t.Fatalf("expected particle to survive while timer is counting down, got %d", pool.Len())
	}
	if got := pool.At(0).Timer; got != 99 {
		t.Fatalf("expected timer to decrement by dt, got %g", got)
	}
	if pool.At(0).IY != 1 || pool.At(0).IX != 1 {
		t.Fatal("expected position unchanged while timer is pending")
	}
}

func TestRouterTimerFloorsAtZero(t *testing.T) {
	d8 := zeroD8(3, 3)
	d8[1][1] = 2
	g := routerGrid(t, d8)
	rt := NewRouter(g, RouterConfig{THillslope: 10, TChannel: 5})
	diag := NewDiagnostics()
	pool := NewPool()
	pool.Add(Particle{IY: 1, IX: 1, Volume: 1, Timer: 0.5})

	rt.Advance(pool, 2, diag)

	if got := pool.At(0).Timer; got != 0 {
		t.Fatalf("expected timer to floor at 0, got %g", got)
	}
}

func TestRouterHopMovesAndResetsTimerByClass(t *testing.T) {
	d8 := zeroD8(3, 3)
	d8[1][1] = 2 // S -> (2,1)
	g := routerGrid(t, d8)
	rt := NewRouter(g, RouterConfig{THillslope: 10, TChannel: 5})
	diag := NewDiagnostics()
	pool := NewPool()
	pool.Add(Particle{IY: 1, IX: 1, Volume: 1, Timer: 0})

	rt.Advance(pool, 1, diag)

	if pool.Len() != 1 {
		t.Fatalf("expected particle to remain in the local pool after a hop, got %d", pool.Len())
	}
	p := pool.At(0)
	if p.IY != 2 || p.IX != 1 {
		t.Fatalf("expected hop to (2,1), got (%d,%d)", p.IY, p.IX)
	}
	if p.Class != ClassHillslope || p.Timer != 10 {
		t.Fatalf("expected hillslope timer reset to 10, got class=%v timer=%g", p.Class, p.Timer)
	}
}

func TestRouterRetiresSinkParticleAndRecordsOutflow(t *testing.T) {
	d8 := zeroD8(3, 3) // every cell defaults to the sink code
	g := routerGrid(t, d8)
	rt := NewRouter(g, RouterConfig{THillslope: 10, TChannel: 5})
	diag := NewDiagnostics()
	pool := NewPool()
	pool.Add(Particle{IY: 1, IX: 1, Volume: 3, Timer: 0})

	rt.Advance(pool, 1, diag)

	if pool.Len() != 0 {
		t.Fatalf("expected the particle to be retired, got %d remaining", pool.Len())
	}
	if diag.Outflow != 3 {
		t.Fatalf("expected outflow of 3, got %g", diag.Outflow)
	}
	if diag.OutflowByCell[[2]int{1, 1}] != 3 {
		t.Fatal("expected per-cell outflow recorded at the sink cell")
	}
}

func TestRouterRetiresOutOfDomainParticleAndRecordsBoundaryLoss(t *testing.T) {
	d8 := zeroD8(3, 3)
	d8[2][1] = 2 // S from the last row: steps off the grid
	g := routerGrid(t, d8)
	rt := NewRouter(g, RouterConfig{THillslope: 10, TChannel: 5})
	diag := NewDiagnostics()
	pool := NewPool()
	pool.Add(Particle{IY: 2, IX: 1, Volume: 3, Timer: 0})

	rt.Advance(pool, 1, diag)

	if pool.Len() != 0 {
		t.Fatalf("expected the particle to be retired, got %d remaining", pool.Len())
	}
	if diag.BoundaryLoss != 3 {
		t.Fatalf("expected boundary loss of 3, got %g", diag.BoundaryLoss)
	}
	if diag.BoundaryLossByCell[[2]int{2, 1}] != 3 {
		t.Fatal("expected per-cell boundary loss recorded at retirement cell")
	}
}

func TestRouterRetirementOrderingIsDeterministic(t *testing.T) {
	d8 := zeroD8(3, 3)
	d8[2][0] = 2 // S from last row: out of domain
	d8[1][0] = 2 // S: hops to (2,0), survives
	d8[2][1] = 2 // S from last row: out of domain
	// d8[2][2] left at sinkCode: retires as a sink
	g := routerGrid(t, d8)
	rt := NewRouter(g, RouterConfig{THillslope: 10, TChannel: 5})
	diag := NewDiagnostics()
	pool := NewPool()
	pool.AddMany([]Particle{
		{IY: 2, IX: 0, Volume: 1, Timer: 0},
		{IY: 1, IX: 0, Volume: 1, Timer: 0}, // survives (hops to 2,0)
		{IY: 2, IX: 1, Volume: 1, Timer: 0},
		{IY: 2, IX: 2, Volume: 1, Timer: 0},
	})

	rt.Advance(pool, 1, diag)

	// Three particles retire; one survives by hopping south from iy=1.
	// Regardless of goroutine scheduling, the survivor must be the only
	// element left and must carry its updated position.
	if pool.Len() != 1 {
		t.Fatalf("expected exactly 1 survivor, got %d", pool.Len())
	}
	if pool.At(0).IY != 2 || pool.At(0).IX != 0 {
		t.Fatalf("expected survivor at (2,0), got (%d,%d)", pool.At(0).IY, pool.At(0).IX)
	}
	if diag.BoundaryLoss != 2 {
		t.Fatalf("expected 2 retirements worth of boundary loss, got %g", diag.BoundaryLoss)
	}
	if diag.Outflow != 1 {
		t.Fatalf("expected 1 retirement worth of outflow (sink), got %g", diag.Outflow)
	}
}
