package flowroute

import (
	"reflect"
	"testing"
)

func TestDecomposerRowRangesCoverGridExactlyOnce(t *testing.T) {
	d := NewDecomposer(10, 3)
	seen := make([]int, 0, 10)
	for r := 0; r < 3; r++ {
		lo, hi := d.RowRange(r)
		for iy := lo; iy < hi; iy++ {
			seen = append(seen, iy)
		}
	}
	if len(seen) != 10 {
		t.Fatalf("expected every one of 10 rows covered exactly once, got %d entries", len(seen))
	}
	for iy := 0; iy < 10; iy++ {
		if seen[iy] != iy {
			t.Fatalf("expected rows in ascending contiguous order, got %v", seen)
		}
	}
}

func TestDecomposerOwnerOfMatchesRowRange(t *testing.T) {
	d := NewDecomposer(10, 3)
	for iy := 0; iy < 10; iy++ {
		r := d.OwnerOf(iy)
		lo, hi := d.RowRange(r)
		if iy < lo || iy >= hi {
			t.Fatalf("row %d assigned to rank %d, but that rank's range is [%d,%d)", iy, r, lo, hi)
		}
	}
}

func TestDecomposerPartitionGroupsByOwningRank(t *testing.T) {
	d := NewDecomposer(10, 2) // rank 0 owns [0,5), rank 1 owns [5,10)
	departing := []Particle{
		{IY: 1, Volume: 1},
		{IY: 6, Volume: 2},
		{IY: 4, Volume: 3},
		{IY: 9, Volume: 4},
	}
	buckets := d.Partition(departing)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if len(buckets[0]) != 2 || len(buckets[1]) != 2 {
		t.Fatalf("expected 2 particles per bucket, got %d and %d", len(buckets[0]), len(buckets[1]))
	}
	// relative order preserved within a destination bucket
	if buckets[0][0].IY != 1 || buckets[0][1].IY != 4 {
		t.Fatalf("unexpected order in rank 0 bucket: %+v", buckets[0])
	}
	if buckets[1][0].IY != 6 || buckets[1][1].IY != 9 {
		t.Fatalf("unexpected order in rank 1 bucket: %+v", buckets[1])
	}
}

func TestDecomposerLocalParticlesSplitsByRange(t *testing.T) {
	d := NewDecomposer(10, 2)
	all := []Particle{
		{IY: 2, Volume: 1},
		{IY: 7, Volume: 2},
		{IY: 0, Volume: 3},
		{IY: 9, Volume: 4},
	}
	local, departing := d.LocalParticles(0, all)
	if len(local) != 2 || len(departing) != 2 {
		t.Fatalf("expected 2 local and 2 departing, got %d/%d", len(local), len(departing))
	}
	gotLocal := []int{local[0].IY, local[1].IY}
	if !reflect.DeepEqual(gotLocal, []int{2, 0}) {
		t.Fatalf("expected local rows in original relative order [2,0], got %v", gotLocal)
	}
}

func TestDecomposerHaloRowsClipsAtDomainEdges(t *testing.T) {
	d := NewDecomposer(10, 2)
	if halo := d.HaloRows(0); len(halo) != 1 || halo[0] != 5 {
		t.Fatalf("expected rank 0's halo to be just its lower neighbor row 5, got %v", halo)
	}
	if halo := d.HaloRows(1); len(halo) != 1 || halo[0] != 4 {
		t.Fatalf("expected rank 1's halo to be just its upper neighbor row 4, got %v", halo)
	}
}
