package flowroute

import (
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RiskConfig holds the Risk Reducer's parameters.
type RiskConfig struct {
	Beta float64 // weight given to runoff vs. flow accumulation, default 0.5
	PLo  float64 // low percentile, default 5
	PHi  float64 // high percentile, default 95
}

// DefaultRiskConfig returns the §4.9 defaults.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{Beta: 0.5, PLo: 5, PHi: 95}
}

// Risk computes R = β·Q̂ + (1−β)·Â, where Q̂ and Â are the robust-
// percentile-normalized fields of cumulative runoff Q and flow
// accumulation A. Percentiles are computed over the flattened field with
// gonum/stat.Quantile (which requires an ascending-sorted sample, prepared
// with gonum/floats.Sort), followed by a plain clip-then-scale-to-[0,1]
// loop.
func Risk(cfg RiskConfig, q, a *sparse.DenseArray) *sparse.DenseArray {
	qHat := normalize(cfg.PLo, cfg.PHi, q)
	aHat := normalize(cfg.PLo, cfg.PHi, a)

	ny, nx := q.Shape[0], q.Shape[1]
	r := sparse.ZerosDense(ny, nx)
	for i := range r.Elements {
		r.Elements[i] = cfg.Beta*qHat.Elements[i] + (1-cfg.Beta)*aHat.Elements[i]
	}
	return r
}

// normalize clips field to [pLo, pHi] percentiles and linearly rescales the
// result to [0,1].
func normalize(pLo, pHi float64, field *sparse.DenseArray) *sparse.DenseArray {
	sample := make([]float64, len(field.Elements))
	copy(sample, field.Elements)
	floats.Sort(sample)

	lo := stat.Quantile(pLo/100, stat.Empirical, sample, nil)
	hi := stat.Quantile(pHi/100, stat.Empirical, sample, nil)

	out := sparse.ZerosDense(field.Shape[0], field.Shape[1])
	span := hi - lo
	for i, v := range field.Elements {
		switch {
		case v < lo:
			v = lo
		case v > hi:
			v = hi
		}
		if span <= 0 {
			out.Elements[i] = 0.5
			continue
		}
		out.Elements[i] = (v - lo) / span
	}
	return out
}
