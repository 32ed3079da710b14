package flowroute

import "testing"

func TestSteepestDescentTieBreak(t *testing.T) {
	// Cardinal (S) and diagonal (SE) neighbors tie on elevation drop; the
	// diagonal's longer distance gives it the smaller slope, so S wins.
	elev := [][]float64{
		{10, 10, 10},
		{5, 5, 5},
		{5, 5, 5},
	}
	code := steepestDescent(EncodingClockwise, elev, 3, 3, 0, 1)
	y, x := compassClockwise[code].dy, compassClockwise[code].dx
	if y != 1 || x != 0 {
		t.Fatalf("expected cardinal S hop (1,0), got (%d,%d)", y, x)
	}
}

func TestSteepestDescentFlatIsSink(t *testing.T) {
	elev := [][]float64{
		{1, 1, 1},
		{1, 1, 1},
		{1, 1, 1},
	}
	code := steepestDescent(EncodingClockwise, elev, 3, 3, 1, 1)
	if code != sinkCode {
		t.Fatalf("expected sink code on flat terrain, got %d", code)
	}
}

func TestConvertEncodingRoundTrip(t *testing.T) {
	for code := 0; code < 8; code++ {
		esri := codeFromClockwiseIndex(EncodingESRI, code)
		back := ConvertEncoding(esri, EncodingESRI, EncodingClockwise)
		if back != code {
			t.Fatalf("round trip failed for clockwise index %d: got %d via ESRI %d", code, back, esri)
		}
	}
}

func TestConvertEncodingSink(t *testing.T) {
	if got := ConvertEncoding(sinkCode, EncodingESRI, EncodingClockwise); got != sinkCode {
		t.Fatalf("sink code must convert to sink code, got %d", got)
	}
}

func TestNeighborOutOfDomain(t *testing.T) {
	_, _, res := neighbor(EncodingClockwise, 3, 3, 0, 0, 6) // north, off grid
	if res != HopOutOfDomain {
		t.Fatalf("expected HopOutOfDomain, got %v", res)
	}
}

func TestNeighborMoved(t *testing.T) {
	y, x, res := neighbor(EncodingClockwise, 3, 3, 1, 1, 0) // east
	if res != HopMoved || y != 1 || x != 2 {
		t.Fatalf("expected move to (1,2), got (%d,%d) %v", y, x, res)
	}
}
