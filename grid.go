/*
Copyright © 2013 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

package flowroute

import (
	"math"

	"github.com/ctessum/sparse"
)

// CRSInfo describes the coordinate reference system a grid's spatial
// variables are defined on, mirroring the CF grid-mapping attributes
// expected by every container this engine reads or writes.
type CRSInfo struct {
	GridMapping     string // CF grid_mapping_name, e.g. "latitude_longitude"
	EPSG            int
	SemiMajorAxis   float64 // meters
	InverseFlattening float64
}

// Grid holds the immutable domain: DEM, D8 directions, curve numbers,
// optional channel mask, and the derived per-cell area. It is built once
// at load time and never mutated afterward; the Router and other
// components only ever read from it.
type Grid struct {
	Lat, Lon []float64 // strictly monotonic 1-D coordinate center arrays
	Ny, Nx   int

	Encoding Encoding
	CRS      CRSInfo

	elev    [][]float64 // (ny,nx), only needed when D8 isn't supplied
	d8      [][]int     // (ny,nx)
	cn      [][]float64 // (ny,nx), in [0,100]
	channel [][]bool    // (ny,nx), optional

	area [][]float64 // m², derived at build time

	flowAcc     *sparse.DenseArray // (ny,nx), computed lazily, cached
	flowAccDone bool
}

// NewGrid validates and assembles a Grid from raw field arrays. If d8 is
// nil, directions are derived from elev using the steepest-descent
// tie-break rule in §4.1. cellAreaM2, if nil, is derived from geodetic
// spacing of lat/lon on a sphere of radius CRS.SemiMajorAxis.
func NewGrid(lat, lon []float64, elev [][]float64, d8 [][]int, cn [][]float64, channel [][]bool, crs CRSInfo, enc Encoding, cellAreaM2 [][]float64) (*Grid, error) {
	ny, nx := len(lat), len(lon)
	if ny == 0 || nx == 0 {
		return nil, &DomainInvalidError{Reason: "grid has zero extent"}
	}
	if err := checkMonotonic(lat); err != nil {
		return nil, &DomainInvalidError{Reason: "latitude: " + err.Error()}
	}
	if err := checkMonotonic(lon); err != nil {
		return nil, &DomainInvalidError{Reason: "longitude: " + err.Error()}
	}
	if len(elev) != ny || (ny > 0 && len(elev[0]) != nx) {
		return nil, &DomainInvalidError{Reason: "dem shape does not match coordinates"}
	}
	if len(cn) != ny || (ny > 0 && len(cn[0]) != nx) {
		return nil, &DomainInvalidError{Reason: "cn shape does not match coordinates"}
	}
	if d8 != nil && (len(d8) != ny || (ny > 0 && len(d8[0]) != nx)) {
		return nil, &DomainInvalidError{Reason: "d8 shape does not match coordinates"}
	}
	if channel != nil && (len(channel) != ny || (ny > 0 && len(channel[0]) != nx)) {
		return nil, &DomainInvalidError{Reason: "channel_mask shape does not match coordinates"}
	}
	if enc != EncodingESRI && enc != EncodingClockwise {
		return nil, &DomainInvalidError{Reason: "unsupported D8 encoding"}
	}

	g := &Grid{
		Lat: lat, Lon: lon, Ny: ny, Nx: nx,
		Encoding: enc, CRS: crs,
		elev: elev, cn: cn, channel: channel,
	}

	if d8 == nil {
		g.d8 = make([][]int, ny)
		for iy := 0; iy < ny; iy++ {
			g.d8[iy] = make([]int, nx)
			for ix := 0; ix < nx; ix++ {
				g.d8[iy][ix] = steepestDescent(enc, elev, ny, nx, iy, ix)
			}
		}
	} else {
		g.d8 = d8
	}

	if cellAreaM2 != nil {
		g.area = cellAreaM2
	} else {
		g.area = geodeticCellAreas(lat, lon, crs.SemiMajorAxis)
	}

	return g, nil
}

func checkMonotonic(v []float64) error {
	if len(v) < 2 {
		return nil
	}
	increasing := v[1] > v[0]
	for i := 1; i < len(v); i++ {
		if increasing && v[i] <= v[i-1] {
			return errNonMonotonic
		}
		if !increasing && v[i] >= v[i-1] {
			return errNonMonotonic
		}
	}
	return nil
}

var errNonMonotonic = errNonMonotonicType{}

type errNonMonotonicType struct{}

func (errNonMonotonicType) Error() string { return "coordinates are not strictly monotonic" }

// geodeticCellAreas computes approximate equal-area cell sizes from
// geodetic spacing, treating the grid as a sphere of the given radius. Used
// only when the domain container doesn't supply a pre-computed area field.
func geodeticCellAreas(lat, lon []float64, radius float64) [][]float64 {
	if radius <= 0 {
		radius = 6378137.0 // WGS84 semi-major axis, meters
	}
	ny, nx := len(lat), len(lon)
	area := make([][]float64, ny)
	dLon := spacing(lon)
	dLat := spacing(lat)
	for iy := 0; iy < ny; iy++ {
		area[iy] = make([]float64, nx)
		latRad := lat[iy] * math.Pi / 180
		dyM := dLat[iy] * math.Pi / 180 * radius
		for ix := 0; ix < nx; ix++ {
			dxM := dLon[ix] * math.Pi / 180 * radius * math.Cos(latRad)
			area[iy][ix] = math.Abs(dyM * dxM)
		}
	}
	return area
}

// spacing returns the local cell width at each index, using the average of
// the neighboring gaps (or the single adjacent gap at the domain edges).
func spacing(v []float64) []float64 {
	n := len(v)
	out := make([]float64, n)
	if n == 1 {
		out[0] = 1
		return out
	}
	for i := 0; i < n; i++ {
		switch {
		case i == 0:
			out[i] = v[1] - v[0]
		case i == n-1:
			out[i] = v[n-1] - v[n-2]
		default:
			out[i] = (v[i+1] - v[i-1]) / 2
		}
	}
	return out
}

// Neighbor computes the target of a single D8 hop from (iy,ix). It is a
// pure function over the grid's shape and D8 field.
func (g *Grid) Neighbor(iy, ix int) (iy2, ix2 int, result HopResult) {
	return neighbor(g.Encoding, g.Ny, g.Nx, iy, ix, g.d8[iy][ix])
}

// CellArea returns the area of cell (iy,ix) in square meters.
func (g *Grid) CellArea(iy, ix int) float64 { return g.area[iy][ix] }

// IsChannel reports whether (iy,ix) is flagged as a channel cell.
func (g *Grid) IsChannel(iy, ix int) bool {
	if g.channel == nil {
		return false
	}
	return g.channel[iy][ix]
}

// CN returns the curve number of cell (iy,ix).
func (g *Grid) CN(iy, ix int) float64 { return g.cn[iy][ix] }

// D8 returns the raw D8 code stored for cell (iy,ix).
func (g *Grid) D8(iy, ix int) int { return g.d8[iy][ix] }

// FlowAccumulation computes (and caches) flow accumulation via a
// Kahn-style topological sweep over the inverse D8 graph: cells with no
// upstream contributor are queued first, and each cell's accumulated count
// is pushed downstream exactly once it is dequeued. This is O(N) in cell
// count and assumes the D8 field is acyclic, which holds for any grid
// derived by steepest descent or a valid hydrologic conditioning step.
func (g *Grid) FlowAccumulation() *sparse.DenseArray {
	if g.flowAccDone {
		return g.flowAcc
	}
	acc := sparse.ZerosDense(g.Ny, g.Nx)
	indegree := make([][]int, g.Ny)
	for iy := range indegree {
		indegree[iy] = make([]int, g.Nx)
	}
	for iy := 0; iy < g.Ny; iy++ {
		for ix := 0; ix < g.Nx; ix++ {
			acc.Set(1, iy, ix) // each cell contributes its own area unit
			y2, x2, res := g.Neighbor(iy, ix)
			if res == HopMoved {
				indegree[y2][x2]++
			}
		}
	}
	queue := make([][2]int, 0, g.Ny*g.Nx)
	for iy := 0; iy < g.Ny; iy++ {
		for ix := 0; ix < g.Nx; ix++ {
			if indegree[iy][ix] == 0 {
				queue = append(queue, [2]int{iy, ix})
			}
		}
	}
	for head := 0; head < len(queue); head++ {
		iy, ix := queue[head][0], queue[head][1]
		y2, x2, res := g.Neighbor(iy, ix)
		if res != HopMoved {
			continue
		}
		acc.Set(acc.Get(y2, x2)+acc.Get(iy, ix), y2, x2)
		indegree[y2][x2]--
		if indegree[y2][x2] == 0 {
			queue = append(queue, [2]int{y2, x2})
		}
	}
	g.flowAcc = acc
	g.flowAccDone = true
	return acc
}
