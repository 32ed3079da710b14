package flowroute

// Encoding identifies which of the two accepted D8 direction codings a grid
// uses. Both map the eight compass neighbors plus a sink sentinel; the
// active encoding is recorded once in grid metadata and never mixed.
type Encoding int

const (
	// EncodingESRI is the power-of-two coding {1,2,4,8,16,32,64,128} used by
	// Esri-style D8 rasters, read clockwise starting from east.
	EncodingESRI Encoding = iota
	// EncodingClockwise is the sequential {0..7} coding, clockwise from east.
	EncodingClockwise
)

// direction is a compass offset (drow, dcol) in grid index space, with row
// increasing southward as is conventional for raster grids.
type direction struct{ dy, dx int }

// clockwise order starting from east, matching the tie-break rule in §4.1.
var compassClockwise = [8]direction{
	{0, 1},   // E
	{1, 1},   // SE
	{1, 0},   // S
	{1, -1},  // SW
	{0, -1},  // W
	{-1, -1}, // NW
	{-1, 0},  // N
	{-1, 1},  // NE
}

// esriToClockwise maps the bit position of each ESRI power-of-two code (E,
// SE, S, SW, W, NW, N, NE in bit order 0..7) to a clockwise index. ESRI's
// encoding already lists directions in the same clockwise-from-east order,
// so the mapping is the identity; kept explicit for readability and so a
// future differently-ordered encoding only requires editing this table.
var esriToClockwise = [8]int{0, 1, 2, 3, 4, 5, 6, 7}

// sinkCode is the sentinel value meaning "no downstream neighbor". Both
// encodings reserve 0 for this purpose.
const sinkCode = 0

// HopResult classifies where a D8 hop leads.
type HopResult int

const (
	// HopMoved indicates the hop landed on a valid, in-domain cell.
	HopMoved HopResult = iota
	// HopSink indicates the source cell's D8 code is the sink sentinel.
	HopSink
	// HopOutOfDomain indicates the target cell falls outside grid bounds.
	HopOutOfDomain
)

// neighbor computes the target of a single D8 hop from (iy,ix) under the
// given code and encoding. It is a pure function over the grid's shape and
// encoding; it never mutates the grid.
func neighbor(enc Encoding, ny, nx, iy, ix, code int) (ny2, nx2 int, result HopResult) {
	if code == sinkCode {
		return 0, 0, HopSink
	}
	var idx int
	switch enc {
	case EncodingESRI:
		bit := -1
		for b := 0; b < 8; b++ {
			if code == 1<<uint(b) {
				bit = b
				break
			}
		}
		if bit < 0 {
			return 0, 0, HopSink
		}
		idx = esriToClockwise[bit]
	case EncodingClockwise:
		if code < 0 || code > 7 {
			return 0, 0, HopSink
		}
		idx = code
	default:
		return 0, 0, HopSink
	}
	d := compassClockwise[idx]
	y, x := iy+d.dy, ix+d.dx
	if y < 0 || y >= ny || x < 0 || x >= nx {
		return 0, 0, HopOutOfDomain
	}
	return y, x, HopMoved
}

// steepestDescent picks the D8 code for a cell when no D8 field was
// supplied, following the tie-break rule in §4.1: steepest descent,
// cardinal preferred over diagonal on ties, then lowest clockwise index
// starting from east. A flat cell with no downhill neighbor returns the
// sink code.
func steepestDescent(enc Encoding, elev [][]float64, ny, nx, iy, ix int) int {
	type candidate struct {
		idx      int
		slope    float64
		cardinal bool
	}
	var best *candidate
	for idx, d := range compassClockwise {
		y, x := iy+d.dy, ix+d.dx
		if y < 0 || y >= ny || x < 0 || x >= nx {
			continue
		}
		dist := 1.0
		cardinal := d.dy == 0 || d.dx == 0
		if !cardinal {
			dist = sqrt2
		}
		drop := elev[iy][ix] - elev[y][x]
		if drop <= 0 {
			continue
		}
		slope := drop / dist
		c := candidate{idx: idx, slope: slope, cardinal: cardinal}
		if best == nil {
			best = &c
			continue
		}
		switch {
		case slope > best.slope:
			best = &c
		case slope == best.slope && cardinal && !best.cardinal:
			best = &c
		case slope == best.slope && cardinal == best.cardinal && idx < best.idx:
			best = &c
		}
	}
	if best == nil {
		return sinkCode
	}
	return codeFromClockwiseIndex(enc, best.idx)
}

const sqrt2 = 1.4142135623730951

func codeFromClockwiseIndex(enc Encoding, idx int) int {
	switch enc {
	case EncodingClockwise:
		return idx
	case EncodingESRI:
		for bit, mapped := range esriToClockwise {
			if mapped == idx {
				return 1 << uint(bit)
			}
		}
	}
	return sinkCode
}

// ConvertEncoding translates a single D8 code from one encoding to the
// other, preserving the physical direction it names. Used to verify the
// encoding-equivalence testable property in §8.
func ConvertEncoding(code int, from, to Encoding) int {
	if from == to {
		return code
	}
	if code == sinkCode {
		return sinkCode
	}
	var idx int
	switch from {
	case EncodingESRI:
		bit := -1
		for b := 0; b < 8; b++ {
			if code == 1<<uint(b) {
				bit = b
				break
			}
		}
		if bit < 0 {
			return sinkCode
		}
		idx = esriToClockwise[bit]
	case EncodingClockwise:
		idx = code
	}
	return codeFromClockwiseIndex(to, idx)
}
