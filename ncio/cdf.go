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

// Package ncio is the CF-compliant NetCDF container layer shared by domain
// input, rainfall input, output, and checkpoint containers. It wraps
// github.com/ctessum/cdf the same way the teacher's vargrid.go and sr/sr.go
// do: a file is opened or created, a Header built with NewHeader/
// AddVariable/AddAttribute/Define, and variables read or written with
// File.Reader/File.Writer. Every open/close is scoped to the call that
// needs it (§5); nothing here holds a file handle across steps.
package ncio

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"
)

// CRSInfo mirrors the CF grid-mapping fields flowroute.CRSInfo carries,
// without ncio importing package flowroute: the caller translates between
// the two at the package boundary, keeping this container layer reusable
// independent of the domain model it happens to serialize for this module.
type CRSInfo struct {
	GridMapping       string
	EPSG              int
	SemiMajorAxis     float64
	InverseFlattening float64
}

// writeCRS attaches the grid-mapping attributes CF expects on every spatial
// variable's companion CRS variable.
func writeCRS(h *cdf.Header, crs CRSInfo) {
	h.AddVariable("crs", []string{}, []int32{0})
	h.AddAttribute("crs", "grid_mapping_name", crs.GridMapping)
	h.AddAttribute("crs", "epsg_code", fmt.Sprintf("EPSG:%d", crs.EPSG))
	h.AddAttribute("crs", "semi_major_axis", []float64{crs.SemiMajorAxis})
	h.AddAttribute("crs", "inverse_flattening", []float64{crs.InverseFlattening})
}

// readCRS recovers a CRSInfo from an already-open file's header, tolerating
// a missing crs variable (defaults to a bare WGS84 descriptor).
func readCRS(h *cdf.Header) CRSInfo {
	crs := CRSInfo{GridMapping: "latitude_longitude", SemiMajorAxis: 6378137.0, InverseFlattening: 298.257223563}
	if gm, ok := h.GetAttribute("crs", "grid_mapping_name").(string); ok {
		crs.GridMapping = gm
	}
	if sma, ok := h.GetAttribute("crs", "semi_major_axis").([]float64); ok && len(sma) > 0 {
		crs.SemiMajorAxis = sma[0]
	}
	if invf, ok := h.GetAttribute("crs", "inverse_flattening").([]float64); ok && len(invf) > 0 {
		crs.InverseFlattening = invf[0]
	}
	return crs
}

// readVarFloat64 reads the full contents of a float64 variable and reshapes
// it into a (ny,nx) grid, matching the row-major layout cdf uses for a
// 2-D (latitude,longitude) variable.
func readVarFloat64(f *cdf.File, name string, ny, nx int) ([][]float64, error) {
	r := f.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("flowroute/ncio: reading %s: %v", name, err)
	}
	flat, ok := buf.([]float64)
	if !ok {
		return nil, fmt.Errorf("flowroute/ncio: variable %s is not float64", name)
	}
	return reshape64(flat, ny, nx), nil
}

// readVarInt32 reads the full contents of an int32 variable and reshapes it
// into a (ny,nx) grid of plain ints.
func readVarInt32(f *cdf.File, name string, ny, nx int) ([][]int, error) {
	r := f.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("flowroute/ncio: reading %s: %v", name, err)
	}
	flat, ok := buf.([]int32)
	if !ok {
		return nil, fmt.Errorf("flowroute/ncio: variable %s is not int32", name)
	}
	out := make([][]int, ny)
	for iy := 0; iy < ny; iy++ {
		out[iy] = make([]int, nx)
		for ix := 0; ix < nx; ix++ {
			out[iy][ix] = int(flat[iy*nx+ix])
		}
	}
	return out, nil
}

func reshape64(flat []float64, ny, nx int) [][]float64 {
	out := make([][]float64, ny)
	for iy := 0; iy < ny; iy++ {
		out[iy] = flat[iy*nx : (iy+1)*nx]
	}
	return out
}

func flatten64(grid [][]float64, ny, nx int) []float64 {
	flat := make([]float64, ny*nx)
	for iy := 0; iy < ny; iy++ {
		copy(flat[iy*nx:(iy+1)*nx], grid[iy])
	}
	return flat
}

func flattenInt32(grid [][]int, ny, nx int) []int32 {
	flat := make([]int32, ny*nx)
	for iy := 0; iy < ny; iy++ {
		for ix := 0; ix < nx; ix++ {
			flat[iy*nx+ix] = int32(grid[iy][ix])
		}
	}
	return flat
}

// openForRead opens path for reading and parses its cdf header.
func openForRead(path string) (*os.File, *cdf.File, error) {
	osf, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("flowroute/ncio: opening %s: %v", path, err)
	}
	f, err := cdf.Open(osf)
	if err != nil {
		osf.Close()
		return nil, nil, fmt.Errorf("flowroute/ncio: parsing %s: %v", path, err)
	}
	return osf, f, nil
}

// createForWrite creates path (truncating any existing file) and writes h
// as its header.
func createForWrite(path string, h *cdf.Header) (*os.File, *cdf.File, error) {
	h.Define()
	for _, err := range h.Check() {
		return nil, nil, fmt.Errorf("flowroute/ncio: building header for %s: %v", path, err)
	}
	osf, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("flowroute/ncio: creating %s: %v", path, err)
	}
	f, err := cdf.Create(osf, h)
	if err != nil {
		osf.Close()
		return nil, nil, fmt.Errorf("flowroute/ncio: initializing %s: %v", path, err)
	}
	return osf, f, nil
}
