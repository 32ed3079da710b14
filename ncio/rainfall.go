package ncio

import (
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/sparse"
)

// RainfallUnavailableError is returned when a rainfall frame that falls
// inside the configured run window names a container file that can't be
// read. flowroute.Engine.Step type-asserts against this directly and
// treats a non-fatal instance as a zero rainfall field for the step (§7).
type RainfallUnavailableError struct {
	Time  float64
	Fatal bool
}

func (e *RainfallUnavailableError) Error() string {
	return fmt.Sprintf("flowroute/ncio: rainfall unavailable at t=%g (fatal=%v)", e.Time, e.Fatal)
}

// RainfallFrame names a single time-indexed rainfall container and the
// simulation time (seconds since run start) its field applies to.
type RainfallFrame struct {
	Time float64
	Path string
}

// RainfallSource is a finite, restartable lazy pull sequence over a time-
// indexed list of rainfall containers (§4.2, §9). It opens one file at a
// time at the step boundary and closes it before returning, mirroring the
// teacher's per-call cdf.Open pattern rather than holding long-lived
// handles open across the run.
type RainfallSource struct {
	frames []RainfallFrame
	ny, nx int
}

// NewRainfallSource sorts frames by time and binds the source to a grid of
// shape (ny,nx); every frame's precipitation field is validated against
// this shape when read.
func NewRainfallSource(frames []RainfallFrame, ny, nx int) *RainfallSource {
	sorted := make([]RainfallFrame, len(frames))
	copy(sorted, frames)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	return &RainfallSource{frames: sorted, ny: ny, nx: nx}
}

// Next returns the precipitation depth (mm) accumulated over [t, t+dt),
// aligned to the grid. A step that ends before the first frame (t+dt below
// its time) or starts after the last returns a zero field. Every failure to
// open or read a frame file, a file missing on disk included, is retried
// with cenkalti/backoff for up to 30 seconds; a frame still unreadable after
// that is a fatal RainfallUnavailableError.
func (s *RainfallSource) Next(t, dt float64) (*sparse.DenseArray, error) {
	if len(s.frames) == 0 || t+dt < s.frames[0].Time || t > s.frames[len(s.frames)-1].Time {
		return sparse.ZerosDense(s.ny, s.nx), nil
	}

	lo, hi, frac := s.bracket(t)
	if lo < 0 {
		return sparse.ZerosDense(s.ny, s.nx), nil
	}

	loField, err := s.readFrame(s.frames[lo].Path, s.frames[lo].Time)
	if err != nil {
		return nil, err
	}
	if hi == lo {
		return scaleDepth(loField, dt), nil
	}

	hiField, err := s.readFrame(s.frames[hi].Path, s.frames[hi].Time)
	if err != nil {
		return nil, err
	}
	interp := sparse.ZerosDense(s.ny, s.nx)
	for i := range interp.Elements {
		interp.Elements[i] = loField.Elements[i]*(1-frac) + hiField.Elements[i]*frac
	}
	return scaleDepth(interp, dt), nil
}

// bracket finds the adjacent frame indices surrounding t and the linear
// interpolation fraction between them. A t before the first frame returns
// the first frame alone and a t after the last returns the last frame
// alone, each with fraction 0; it never returns a negative index.
func (s *RainfallSource) bracket(t float64) (lo, hi int, frac float64) {
	for i := 0; i < len(s.frames); i++ {
		if s.frames[i].Time == t {
			return i, i, 0
		}
		if s.frames[i].Time > t {
			if i == 0 {
				return 0, 0, 0
			}
			span := s.frames[i].Time - s.frames[i-1].Time
			if span <= 0 {
				return i - 1, i - 1, 0
			}
			return i - 1, i, (t - s.frames[i-1].Time) / span
		}
	}
	return len(s.frames) - 1, len(s.frames) - 1, 0
}

func scaleDepth(rate *sparse.DenseArray, dt float64) *sparse.DenseArray {
	out := sparse.ZerosDense(rate.Shape[0], rate.Shape[1])
	for i, v := range rate.Elements {
		out.Elements[i] = v * dt
	}
	return out
}

// readFrame opens, reads, and closes one rainfall container's
// "precipitation" variable, retrying any open or read failure with
// exponential backoff for up to 30 seconds.
func (s *RainfallSource) readFrame(path string, t float64) (*sparse.DenseArray, error) {
	var field *sparse.DenseArray
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	err := backoff.Retry(func() error {
		osf, f, err := openForRead(path)
		if err != nil {
			return err
		}
		defer osf.Close()
		grid, err := readVarFloat64(f, "precipitation", s.ny, s.nx)
		if err != nil {
			return err
		}
		field = sparse.ZerosDense(s.ny, s.nx)
		for iy := 0; iy < s.ny; iy++ {
			for ix := 0; ix < s.nx; ix++ {
				field.Set(grid[iy][ix], iy, ix)
			}
		}
		return nil
	}, b)
	if err != nil {
		return nil, &RainfallUnavailableError{Time: t, Fatal: true}
	}
	if field == nil {
		return nil, fmt.Errorf("flowroute/ncio: empty rainfall field at %s", path)
	}
	return field, nil
}
