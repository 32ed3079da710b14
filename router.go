package flowroute

import (
	"runtime"
	"sort"
	"sync"
)

// RouterConfig holds the per-cell-class timer reset values.
type RouterConfig struct {
	THillslope float64 // seconds
	TChannel   float64 // seconds
}

// Router advances local particles one D8 hop per step, gated by each
// particle's timer. It never crosses rank boundaries itself; particles
// whose new position leaves the local slab are left in the pool with their
// updated position and handed to the Slab Decomposer afterward.
type Router struct {
	grid *Grid
	cfg  RouterConfig
}

// NewRouter returns a Router bound to grid and cfg.
func NewRouter(g *Grid, cfg RouterConfig) *Router { return &Router{grid: g, cfg: cfg} }

// hopOutcome is filled in for each particle during the parallel pass and
// applied afterward in original insertion order, so that the eventual
// retirement/migration partitioning is deterministic regardless of how the
// work was sharded across goroutines (§4.5, §9 reproducibility anchor).
type hopOutcome struct {
	retireSink    bool
	retireOOB     bool
}

// Advance runs one router pass over every particle currently in pool.
// Particles retired to a sink or out of domain are removed from the pool
// and their volume is added to the corresponding diagnostic counter;
// survivors have their position/timer updated in place. dt is the
// simulation step length in seconds.
func (rt *Router) Advance(pool *Pool, dt float64, diag *Diagnostics) {
	n := pool.Len()
	if n == 0 {
		return
	}
	outcomes := make([]hopOutcome, n)

	nprocs := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			for i := pp; i < n; i += nprocs {
				p := pool.At(i)
				if p.Timer > 0 {
					p.Timer -= dt
					if p.Timer < 0 {
						p.Timer = 0
					}
					continue
				}
				y2, x2, res := rt.grid.Neighbor(p.IY, p.IX)
				switch res {
				case HopSink:
					outcomes[i].retireSink = true
				case HopOutOfDomain:
					outcomes[i].retireOOB = true
				case HopMoved:
					p.IY, p.IX = y2, x2
					if rt.grid.IsChannel(y2, x2) {
						p.Class = ClassChannel
						p.Timer = rt.cfg.TChannel
					} else {
						p.Class = ClassHillslope
						p.Timer = rt.cfg.THillslope
					}
				}
			}
		}(pp)
	}
	wg.Wait()

	var retireIdx []int
	for i, o := range outcomes {
		switch {
		case o.retireSink:
			diag.Outflow += pool.At(i).Volume
			diag.OutflowByCell[[2]int{pool.At(i).IY, pool.At(i).IX}] += pool.At(i).Volume
			retireIdx = append(retireIdx, i)
		case o.retireOOB:
			diag.BoundaryLoss += pool.At(i).Volume
			diag.BoundaryLossByCell[[2]int{pool.At(i).IY, pool.At(i).IX}] += pool.At(i).Volume
			retireIdx = append(retireIdx, i)
		}
	}
	sort.Ints(retireIdx)
	pool.RemoveIndices(retireIdx)
}
