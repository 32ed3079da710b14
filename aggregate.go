package flowroute

import "github.com/ctessum/sparse"

// Aggregator bins the particles currently resident on a rank into cell-wise
// flood depth. Because ownership of a cell's particles follows iy exactly
// like ownership of the cell itself, the local sum already equals the
// global sum for that cell; no cross-rank reduction is needed to produce
// flood_depth, only a gather at output time (§4.8).
type Aggregator struct {
	grid *Grid
}

// NewAggregator returns an Aggregator bound to grid.
func NewAggregator(g *Grid) *Aggregator { return &Aggregator{grid: g} }

// Aggregate computes h(iy,ix) = ΣV_p(iy,ix) / area(iy,ix) over every
// particle currently in pool, including those with Timer > 0 — a particle
// mid-hop is still physically present in its current cell. Calling
// Aggregate repeatedly without advancing the pool returns the same field
// each time (§8 idempotence property).
func (a *Aggregator) Aggregate(pool *Pool) *sparse.DenseArray {
	depth := sparse.ZerosDense(a.grid.Ny, a.grid.Nx)
	for _, p := range pool.All() {
		depth.Set(depth.Get(p.IY, p.IX)+p.Volume, p.IY, p.IX)
	}
	for iy := 0; iy < a.grid.Ny; iy++ {
		for ix := 0; ix < a.grid.Nx; ix++ {
			area := a.grid.CellArea(iy, ix)
			if area > 0 {
				depth.Set(depth.Get(iy, ix)/area, iy, ix)
			}
		}
	}
	return depth
}
