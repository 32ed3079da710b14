package ncio

import (
	"testing"
)

func TestReshapeFlattenRoundTrip(t *testing.T) {
	flat := []float64{1, 2, 3, 4, 5, 6}
	grid := reshape64(flat, 2, 3)
	if len(grid) != 2 || len(grid[0]) != 3 {
		t.Fatalf("unexpected shape %d x %d", len(grid), len(grid[0]))
	}
	if grid[1][2] != 6 {
		t.Fatalf("grid[1][2] = %g, want 6", grid[1][2])
	}
	back := flatten64(grid, 2, 3)
	for i, v := range flat {
		if back[i] != v {
			t.Fatalf("round trip mismatch at %d: got %g want %g", i, back[i], v)
		}
	}
}

func TestLoadDomainMissingFileReturnsPlainError(t *testing.T) {
	_, err := LoadDomain("/nonexistent/flowroute-domain.nc")
	if err == nil {
		t.Fatal("expected an error opening a missing domain file")
	}
	// ncio no longer wraps this as a domain model error; that's
	// flowroute.LoadDomain's job at the package boundary.
	if _, ok := err.(*RainfallUnavailableError); ok {
		t.Fatal("a missing domain file should never produce a rainfall error")
	}
}

func TestRainfallSourceOutsideWindowReturnsZeroFieldWithoutReadingAFrame(t *testing.T) {
	src := NewRainfallSource([]RainfallFrame{{Time: 1000, Path: "/nonexistent/frame.nc"}}, 2, 2)
	field, err := src.Next(0, 10)
	if err != nil {
		t.Fatalf("Next before the window should not error: %v", err)
	}
	for i, v := range field.Elements {
		if v != 0 {
			t.Fatalf("expected a zero field before the first frame, index %d = %g", i, v)
		}
	}

	field, err = src.Next(2000, 10)
	if err != nil {
		t.Fatalf("Next after the window should not error: %v", err)
	}
	for i, v := range field.Elements {
		if v != 0 {
			t.Fatalf("expected a zero field after the last frame, index %d = %g", i, v)
		}
	}
}

func TestRainfallSourceNoFramesAlwaysReturnsZero(t *testing.T) {
	src := NewRainfallSource(nil, 3, 3)
	field, err := src.Next(500, 10)
	if err != nil {
		t.Fatalf("Next with no frames should not error: %v", err)
	}
	if len(field.Elements) != 9 {
		t.Fatalf("expected a 3x3 field, got %d elements", len(field.Elements))
	}
	for i, v := range field.Elements {
		if v != 0 {
			t.Fatalf("expected an all-zero field, index %d = %g", i, v)
		}
	}
}
