package flowroute

// Decomposer assigns row ranges to ranks under a simple row-slab scheme:
// rank r owns rows [floor(r*Ny/R), floor((r+1)*Ny/R)). A particle's owning
// rank is determined solely by its row index (§4.6).
type Decomposer struct {
	ny, ranks int
	bounds    []int // len(ranks)+1, bounds[r]..bounds[r+1) is rank r's rows
}

// NewDecomposer precomputes the row bounds for ranks ranks over a grid with
// ny rows.
func NewDecomposer(ny, ranks int) *Decomposer {
	d := &Decomposer{ny: ny, ranks: ranks, bounds: make([]int, ranks+1)}
	for r := 0; r <= ranks; r++ {
		d.bounds[r] = r * ny / ranks
	}
	return d
}

// OwnerOf returns the rank owning row iy.
func (d *Decomposer) OwnerOf(iy int) int {
	for r := 0; r < d.ranks; r++ {
		if iy >= d.bounds[r] && iy < d.bounds[r+1] {
			return r
		}
	}
	// iy out of [0,ny) should never reach here; the router retires
	// out-of-domain particles before this is called.
	if iy < 0 {
		return 0
	}
	return d.ranks - 1
}

// RowRange returns the local row bounds [lo, hi) owned by rank.
func (d *Decomposer) RowRange(rank int) (lo, hi int) {
	return d.bounds[rank], d.bounds[rank+1]
}

// HaloRows returns the read-only halo row indices rank needs at its slab
// edges to evaluate D8 hops for boundary rows: one row above its range and
// one below, clipped to the grid.
func (d *Decomposer) HaloRows(rank int) []int {
	lo, hi := d.RowRange(rank)
	var halo []int
	if lo > 0 {
		halo = append(halo, lo-1)
	}
	if hi < d.ny {
		halo = append(halo, hi)
	}
	return halo
}

// Partition splits departing particles (those whose post-hop row left the
// local slab) into one contiguous buffer per destination rank, preserving
// each particle's relative order within its destination bucket.
func (d *Decomposer) Partition(departing []Particle) [][]Particle {
	buckets := make([][]Particle, d.ranks)
	for _, p := range departing {
		r := d.OwnerOf(p.IY)
		buckets[r] = append(buckets[r], p)
	}
	return buckets
}

// LocalParticles splits pool's contents into particles that remain on
// rank (row still within its range) and those that must migrate, without
// mutating the pool. Called once per step, immediately after the router
// pass.
func (d *Decomposer) LocalParticles(rank int, all []Particle) (local, departing []Particle) {
	lo, hi := d.RowRange(rank)
	local = make([]Particle, 0, len(all))
	for _, p := range all {
		if p.IY >= lo && p.IY < hi {
			local = append(local, p)
		} else {
			departing = append(departing, p)
		}
	}
	return local, departing
}
