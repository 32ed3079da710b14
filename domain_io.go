package flowroute

import "github.com/riverfold/flowroute/ncio"

// LoadDomain reads a domain container from path via ncio.LoadDomain and
// assembles a validated Grid from it, translating ncio's container-level
// mirror types (Encoding, CRSInfo) into the domain model's own types at
// this package boundary (§6). Any read or validation failure is reported
// as a *DomainInvalidError.
func LoadDomain(path string) (*Grid, error) {
	raw, err := ncio.LoadDomain(path)
	if err != nil {
		return nil, &DomainInvalidError{Reason: err.Error()}
	}
	grid, err := NewGrid(raw.Lat, raw.Lon, raw.DEM, raw.D8, raw.CN, raw.Channel,
		fromNCIOCRS(raw.CRS), fromNCIOEncoding(raw.Encoding), nil)
	if err != nil {
		return nil, &DomainInvalidError{Reason: err.Error()}
	}
	return grid, nil
}

// ToNCIOCRS converts a Grid's CRSInfo into ncio's mirror type, for callers
// writing output containers through flowroute/ncio.
func ToNCIOCRS(c CRSInfo) ncio.CRSInfo {
	return ncio.CRSInfo{
		GridMapping:       c.GridMapping,
		EPSG:              c.EPSG,
		SemiMajorAxis:     c.SemiMajorAxis,
		InverseFlattening: c.InverseFlattening,
	}
}

func fromNCIOCRS(c ncio.CRSInfo) CRSInfo {
	return CRSInfo{
		GridMapping:       c.GridMapping,
		EPSG:              c.EPSG,
		SemiMajorAxis:     c.SemiMajorAxis,
		InverseFlattening: c.InverseFlattening,
	}
}

func fromNCIOEncoding(e ncio.Encoding) Encoding {
	if e == ncio.EncodingClockwise {
		return EncodingClockwise
	}
	return EncodingESRI
}

func toNCIOEncoding(e Encoding) ncio.Encoding {
	if e == EncodingClockwise {
		return ncio.EncodingClockwise
	}
	return ncio.EncodingESRI
}
