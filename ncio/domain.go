package ncio

import (
	"fmt"

	"github.com/ctessum/cdf"
)

// Encoding mirrors flowroute.Encoding's two accepted D8 codings without
// ncio importing package flowroute; the caller translates at the boundary.
type Encoding int

const (
	EncodingESRI Encoding = iota
	EncodingClockwise
)

// RawDomain is the unprocessed content of a domain container (§6): every
// field flowroute.NewGrid needs to assemble a Grid, with none of that
// constructor's validation applied yet.
type RawDomain struct {
	Lat, Lon []float64
	DEM, CN  [][]float64
	D8       [][]int
	Channel  [][]bool
	Encoding Encoding
	CRS      CRSInfo
}

// LoadDomain reads a domain container (§6) from path: dem, d8, cn, and an
// optional channel_mask, all declared over (latitude,longitude), plus the
// coordinate arrays and CRS descriptor. It mirrors the shape of the
// teacher's VarGridConfig.LoadCTMData: open once, read every variable
// needed, and return an assembled, immutable value — the file handle does
// not outlive this call. Constructing and validating the domain model
// itself is the caller's job (flowroute.LoadDomain).
func LoadDomain(path string) (*RawDomain, error) {
	osf, f, err := openForRead(path)
	if err != nil {
		return nil, err
	}
	defer osf.Close()

	lat, err := readCoord(f, "latitude")
	if err != nil {
		return nil, err
	}
	lon, err := readCoord(f, "longitude")
	if err != nil {
		return nil, err
	}
	ny, nx := len(lat), len(lon)

	dem, err := readVarFloat64(f, "dem", ny, nx)
	if err != nil {
		return nil, err
	}
	cn, err := readVarFloat64(f, "cn", ny, nx)
	if err != nil {
		return nil, err
	}

	var d8 [][]int
	for _, name := range f.Header.Variables() {
		if name == "d8" {
			d8, err = readVarInt32(f, "d8", ny, nx)
			if err != nil {
				return nil, err
			}
			break
		}
	}

	var channel [][]bool
	for _, name := range f.Header.Variables() {
		if name == "channel_mask" {
			raw, err := readVarInt32(f, "channel_mask", ny, nx)
			if err != nil {
				return nil, err
			}
			channel = make([][]bool, ny)
			for iy := range raw {
				channel[iy] = make([]bool, nx)
				for ix := range raw[iy] {
					channel[iy][ix] = raw[iy][ix] != 0
				}
			}
			break
		}
	}

	enc := EncodingESRI
	if e, ok := f.Header.GetAttribute("d8", "encoding").(string); ok && e == "clockwise" {
		enc = EncodingClockwise
	}

	return &RawDomain{
		Lat: lat, Lon: lon, DEM: dem, CN: cn, D8: d8, Channel: channel,
		Encoding: enc, CRS: readCRS(f.Header),
	}, nil
}

// readCoord reads a 1-D coordinate variable declared as its own dimension.
func readCoord(f *cdf.File, name string) ([]float64, error) {
	r := f.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("flowroute/ncio: reading coordinate %s: %v", name, err)
	}
	flat, ok := buf.([]float64)
	if !ok {
		return nil, fmt.Errorf("flowroute/ncio: coordinate %s is not float64", name)
	}
	return flat, nil
}
