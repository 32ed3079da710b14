package flowroute

import (
	"github.com/ctessum/sparse"
	"github.com/riverfold/flowroute/ncio"
)

// CheckpointStore reads and writes the full engine state for one rank
// to/from a CF-NetCDF container (§4.10). It delegates the container
// mechanics to flowroute/ncio and is responsible only for the domain-level
// semantics: comparing a restored checkpoint's grid description against
// the currently loaded domain and reassigning particles across a changed
// rank count.
type CheckpointStore struct{}

// NewCheckpointStore returns a CheckpointStore.
func NewCheckpointStore() *CheckpointStore { return &CheckpointStore{} }

func toConfigEcho(cfg *RunConfig) *ncio.ConfigEcho {
	if cfg == nil {
		return nil
	}
	return &ncio.ConfigEcho{
		Alpha: cfg.Alpha, THillslope: cfg.THillslope, TChannel: cfg.TChannel,
		Beta: cfg.Beta, VTarget: cfg.VTarget, VMin: cfg.VMin, Dt: cfg.Dt,
		Ranks: cfg.Ranks, DomainPath: cfg.DomainPath,
	}
}

// fromConfigEcho recovers enough of a RunConfig from an echoed checkpoint
// attribute block to run RunConfig.Compatible against it.
func fromConfigEcho(e *ncio.ConfigEcho) *RunConfig {
	return &RunConfig{
		Alpha: e.Alpha, THillslope: e.THillslope, TChannel: e.TChannel,
		Beta: e.Beta, VTarget: e.VTarget, VMin: e.VMin, Dt: e.Dt,
		Ranks: e.Ranks, DomainPath: e.DomainPath,
	}
}

func toNCIOParticles(ps []Particle) []ncio.Particle {
	out := make([]ncio.Particle, len(ps))
	for i, p := range ps {
		out[i] = ncio.Particle{IY: p.IY, IX: p.IX, Volume: p.Volume, Timer: p.Timer, Class: int(p.Class)}
	}
	return out
}

func fromNCIOParticles(ps []ncio.Particle) []Particle {
	out := make([]Particle, len(ps))
	for i, p := range ps {
		out[i] = Particle{IY: p.IY, IX: p.IX, Volume: p.Volume, Timer: p.Timer, Class: Class(p.Class)}
	}
	return out
}

// Save writes the given rank's state to path.
func (CheckpointStore) Save(path string, grid *Grid, runoff *RunoffState, pool *Pool, diag *Diagnostics, elapsed float64, step int, cfg *RunConfig) error {
	var a *sparse.DenseArray
	if grid.flowAccDone {
		a = grid.flowAcc
	}
	c := &ncio.Checkpoint{
		Ny: grid.Ny, Nx: grid.Nx,
		Encoding:     toNCIOEncoding(grid.Encoding),
		P:            runoff.P,
		Q:            runoff.Q,
		A:            a,
		Residual:     runoff.Residual,
		Particles:    toNCIOParticles(pool.All()),
		ElapsedTime:  elapsed,
		Step:         step,
		Outflow:      diag.Outflow,
		BoundaryLoss: diag.BoundaryLoss,
		ResidualSum:  runoff.ResidualTotal(),
		Config:       toConfigEcho(cfg),
	}
	return ncio.WriteCheckpoint(path, c)
}

// RestoredState is the result of loading a checkpoint against an
// already-loaded domain: cumulative fields and a pool holding only the
// particles that belong to this rank's row range under the current
// decomposition. Particles owned by a different rank than the caller are
// returned separately so the engine can route them through one
// Transport.ExchangeParticles round before stepping resumes (§4.10).
type RestoredState struct {
	Runoff      *RunoffState
	Local       []Particle
	Departing   map[int][]Particle // destination rank -> particles
	Elapsed     float64
	Step        int
	Diagnostics *Diagnostics
}

// Load reads path and reassigns its particles against grid/decomp/rank,
// verifying that the checkpoint's grid shape and D8 encoding match grid,
// and that cfg is Compatible with the configuration echoed into the
// checkpoint at Save time. It does not compare CN/DEM field contents
// directly (those are properties of the domain file, already validated by
// ncio.LoadDomain); a mismatched domain file is caught here by
// shape/encoding disagreement or by RunConfig.Compatible, whichever the
// checkpoint makes observable. The restored RunoffState is built from
// cfg's own Alpha/VMin rather than DefaultRunoffConfig, so a restart under
// non-default thresholds resumes with the thresholds it was run with.
func (CheckpointStore) Load(path string, grid *Grid, decomp *Decomposer, rank int, cfg *RunConfig) (*RestoredState, error) {
	c, err := ncio.ReadCheckpoint(path)
	if err != nil {
		return nil, &StateIncompatibleError{Reason: err.Error()}
	}
	if c.Ny != grid.Ny || c.Nx != grid.Nx {
		return nil, &StateIncompatibleError{Reason: "checkpoint grid shape does not match domain"}
	}
	if fromNCIOEncoding(c.Encoding) != grid.Encoding {
		return nil, &StateIncompatibleError{Reason: "checkpoint D8 encoding does not match domain"}
	}
	if c.Config != nil {
		if err := cfg.Compatible(fromConfigEcho(c.Config)); err != nil {
			return nil, err
		}
	}

	runoff := NewRunoffState(grid, RunoffConfig{Alpha: cfg.Alpha, VMin: cfg.VMin})
	copy(runoff.P.Elements, c.P.Elements)
	copy(runoff.Q.Elements, c.Q.Elements)
	if c.Residual != nil {
		copy(runoff.Residual.Elements, c.Residual.Elements)
	}

	diag := NewDiagnostics()
	diag.Outflow = c.Outflow
	diag.BoundaryLoss = c.BoundaryLoss

	departing := make(map[int][]Particle)
	var local []Particle
	for _, p := range fromNCIOParticles(c.Particles) {
		owner := decomp.OwnerOf(p.IY)
		if owner == rank {
			local = append(local, p)
		} else {
			departing[owner] = append(departing[owner], p)
		}
	}

	return &RestoredState{
		Runoff:      runoff,
		Local:       local,
		Departing:   departing,
		Elapsed:     c.ElapsedTime,
		Step:        c.Step,
		Diagnostics: diag,
	}, nil
}
