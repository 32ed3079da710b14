package ncio

import (
	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// WriteOutput writes one time slice of flood_depth and risk_index to path,
// following the container layout in §6: dimensions (time,latitude,
// longitude), CF-1.10 conventions, fill-value attributes. Built with the
// same NewHeader/AddVariable/AddAttribute/Define/Create sequence the
// teacher uses in sr.createOrOpenOutputFile.
func WriteOutput(path string, lat, lon []float64, t float64, floodDepth, riskIndex *sparse.DenseArray, crs CRSInfo) error {
	ny, nx := len(lat), len(lon)
	h := cdf.NewHeader(
		[]string{"time", "latitude", "longitude"},
		[]int{0, ny, nx},
	)
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", "seconds since simulation start")

	h.AddVariable("latitude", []string{"latitude"}, []float64{0})
	h.AddVariable("longitude", []string{"longitude"}, []float64{0})

	h.AddVariable("flood_depth", []string{"time", "latitude", "longitude"}, []float64{0})
	h.AddAttribute("flood_depth", "units", "m")
	h.AddAttribute("flood_depth", "_FillValue", []float64{-9999.0})
	h.AddAttribute("flood_depth", "grid_mapping", "crs")
	h.AddAttribute("", "Conventions", "CF-1.10")

	h.AddVariable("risk_index", []string{"time", "latitude", "longitude"}, []float64{0})
	h.AddAttribute("risk_index", "units", "1")
	h.AddAttribute("risk_index", "_FillValue", []float64{-9999.0})
	h.AddAttribute("risk_index", "grid_mapping", "crs")

	writeCRS(h, crs)

	osf, f, err := createForWrite(path, h)
	if err != nil {
		return err
	}
	defer osf.Close()

	if _, err := f.Writer("time", []int{0}, []int{1}).Write([]float64{t}); err != nil {
		return err
	}
	if _, err := f.Writer("latitude", []int{0}, []int{ny}).Write(lat); err != nil {
		return err
	}
	if _, err := f.Writer("longitude", []int{0}, []int{nx}).Write(lon); err != nil {
		return err
	}
	if _, err := f.Writer("flood_depth", []int{0, 0, 0}, []int{1, ny, nx}).Write(flatten64(reshapeFrom(floodDepth, ny, nx), ny, nx)); err != nil {
		return err
	}
	if _, err := f.Writer("risk_index", []int{0, 0, 0}, []int{1, ny, nx}).Write(flatten64(reshapeFrom(riskIndex, ny, nx), ny, nx)); err != nil {
		return err
	}
	return cdf.UpdateNumRecs(osf)
}

// reshapeFrom converts a sparse.DenseArray's flat backing store into the
// [][]float64 shape the flatten64 helper expects, without copying twice.
func reshapeFrom(a *sparse.DenseArray, ny, nx int) [][]float64 {
	return reshape64(a.Elements, ny, nx)
}
