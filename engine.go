package flowroute

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ctessum/sparse"
	"github.com/riverfold/flowroute/ncio"
	"github.com/riverfold/flowroute/transport"
)

// Engine orchestrates one rank's pipeline (§2 control flow): Rainfall
// Source, Runoff Generator, Particle Pool, Router, Slab Decomposer,
// Migration Transport, Aggregator, Risk Reducer, and Checkpoint Store. It
// holds exactly the per-rank state described in §3: the immutable Grid,
// mutable RunoffState, the particle Pool, cumulative Diagnostics, the
// current step index/elapsed time, and the RunConfig echo.
type Engine struct {
	Rank    int
	Grid    *Grid
	Config  *RunConfig
	Rainfall *ncio.RainfallSource

	ranks  int
	runoff *RunoffState
	pool   *Pool
	router *Router
	decomp *Decomposer
	agg    *Aggregator
	trans  transport.Transport

	diag *Diagnostics

	StepIndex   int
	ElapsedTime float64

	LastFloodDepth *sparse.DenseArray
	LastRiskIndex  *sparse.DenseArray

	checkpoints CheckpointStore
}

// NewEngine assembles an Engine for rank out of ranks total ranks sharing
// grid, configured by cfg and exchanging migrants over trans.
func NewEngine(rank, ranks int, grid *Grid, cfg *RunConfig, rainfall *ncio.RainfallSource, trans transport.Transport) *Engine {
	return &Engine{
		Rank:     rank,
		Grid:     grid,
		Config:   cfg,
		Rainfall: rainfall,
		ranks:    ranks,
		runoff:   NewRunoffState(grid, RunoffConfig{Alpha: cfg.Alpha, VMin: cfg.VMin}),
		pool:     NewPool(),
		router:   NewRouter(grid, RouterConfig{THillslope: cfg.THillslope, TChannel: cfg.TChannel}),
		decomp:   NewDecomposer(grid.Ny, ranks),
		agg:      NewAggregator(grid),
		trans:    trans,
		diag:     NewDiagnostics(),

		ElapsedTime: cfg.TimeStart,
	}
}

// Restore replaces the engine's runoff state, diagnostics, and step
// counters with a checkpoint previously loaded via CheckpointStore.Load,
// then runs the one-time restart reassignment exchange (§4.10): particles
// whose owner rank changed under the restored (possibly different) rank
// count are sent to their new owner and this rank's arrivals are folded
// into the fresh pool, all via one ExchangeCounts/ExchangeParticles round.
func (e *Engine) Restore(rs *RestoredState) error {
	e.runoff = rs.Runoff
	e.diag = rs.Diagnostics
	e.StepIndex = rs.Step
	e.ElapsedTime = rs.Elapsed

	buckets := rs.PendingDeparture(e.ranks)
	sendCounts := make([]int, len(buckets))
	for i, b := range buckets {
		sendCounts[i] = len(b)
	}
	if _, err := e.trans.ExchangeCounts(sendCounts); err != nil {
		return &TransportError{Cause: err}
	}
	arrivals, err := e.trans.ExchangeParticles(toTransportBuckets(buckets))
	if err != nil {
		return &TransportError{Cause: err}
	}

	e.pool = NewPool()
	e.pool.AddMany(rs.Local)
	e.pool.AddMany(fromTransportParticles(arrivals))
	return nil
}

// PendingDeparture reports particles this rank must send during the
// one-time restart reassignment exchange (§4.10), keyed by destination.
func (rs *RestoredState) PendingDeparture(ranks int) [][]Particle {
	buckets := make([][]Particle, ranks)
	for dest, particles := range rs.Departing {
		buckets[dest] = particles
	}
	return buckets
}

// toTransportParticles converts a slice of domain particles into their
// wire representation for package transport, which deliberately doesn't
// depend on package flowroute.
func toTransportParticles(ps []Particle) []transport.Particle {
	out := make([]transport.Particle, len(ps))
	for i, p := range ps {
		out[i] = transport.Particle{IY: p.IY, IX: p.IX, Volume: p.Volume, Timer: p.Timer, Class: int(p.Class)}
	}
	return out
}

func toTransportBuckets(buckets [][]Particle) [][]transport.Particle {
	out := make([][]transport.Particle, len(buckets))
	for i, b := range buckets {
		out[i] = toTransportParticles(b)
	}
	return out
}

func fromTransportParticles(ps []transport.Particle) []Particle {
	out := make([]Particle, len(ps))
	for i, p := range ps {
		out[i] = Particle{IY: p.IY, IX: p.IX, Volume: p.Volume, Timer: p.Timer, Class: Class(p.Class)}
	}
	return out
}

// Step runs one simulation step: rainfall pull, runoff update, spawning,
// routing, migration partitioning/exchange, and arrival ingestion (§2).
// Aggregation and checkpointing are the caller's responsibility, invoked
// at the cadences named in §4.8/§4.10, since they require coordination
// across every rank (gather for I/O) that the Engine itself doesn't own.
func (e *Engine) Step() error {
	precip, err := e.Rainfall.Next(e.ElapsedTime, e.Config.Dt)
	if err != nil {
		if rfErr, ok := err.(*ncio.RainfallUnavailableError); ok && !rfErr.Fatal {
			precip = sparse.ZerosDense(e.Grid.Ny, e.Grid.Nx)
		} else {
			return err
		}
	}

	residualBefore := e.runoff.ResidualTotal()
	spawnVolume := e.runoff.Step(precip)
	e.diag.SpawnedTotal += e.runoff.ResidualTotal() - residualBefore
	for iy := 0; iy < e.Grid.Ny; iy++ {
		for ix := 0; ix < e.Grid.Nx; ix++ {
			dV := spawnVolume.Get(iy, ix)
			if dV <= 0 {
				continue
			}
			n := SpawnTarget(dV, e.Config.VTarget, e.Config.NMaxPerCell)
			class := ClassHillslope
			if e.Grid.IsChannel(iy, ix) {
				class = ClassChannel
			}
			e.pool.Spawn(iy, ix, dV, n, class)
			e.diag.SpawnedTotal += dV
		}
	}

	e.router.Advance(e.pool, e.Config.Dt, e.diag)

	local, departing := e.decomp.LocalParticles(e.Rank, e.pool.All())
	e.pool = NewPool()
	e.pool.AddMany(local)

	buckets := e.decomp.Partition(departing)
	sendCounts := make([]int, len(buckets))
	for i, b := range buckets {
		sendCounts[i] = len(b)
	}
	if _, err := e.trans.ExchangeCounts(sendCounts); err != nil {
		return &TransportError{Cause: err}
	}
	arrivals, err := e.trans.ExchangeParticles(toTransportBuckets(buckets))
	if err != nil {
		return &TransportError{Cause: err}
	}
	e.pool.AddMany(fromTransportParticles(arrivals))

	e.ElapsedTime += e.Config.Dt
	e.StepIndex++
	return nil
}

// Aggregate computes and stores the current flood-depth field; it is
// idempotent when called without an intervening Step (§8).
func (e *Engine) Aggregate() *sparse.DenseArray {
	e.LastFloodDepth = e.agg.Aggregate(e.pool)
	return e.LastFloodDepth
}

// Risk computes and stores the current risk-index field from the cumulative
// runoff Q and the grid's flow accumulation. If no flood depth has been
// aggregated yet, it runs Aggregate first.
func (e *Engine) Risk(cfg RiskConfig) *sparse.DenseArray {
	if e.LastFloodDepth == nil {
		e.Aggregate()
	}
	e.LastRiskIndex = Risk(cfg, e.runoff.Q, e.Grid.FlowAccumulation())
	return e.LastRiskIndex
}

// Checkpoint writes the current state to path.
func (e *Engine) Checkpoint(path string) error {
	return e.checkpoints.Save(path, e.Grid, e.runoff, e.pool, e.diag, e.ElapsedTime, e.StepIndex, e.Config)
}

// MassConservation returns the current mass-conservation diagnostic,
// non-nil only when the drift exceeds Config.MassConservationTolerance.
func (e *Engine) MassConservation() *MassConservationError {
	var live float64
	for _, p := range e.pool.All() {
		live += p.Volume
	}
	return MassConservationCheck(e.diag, live, e.runoff.ResidualTotal(), e.Config.MassConservationTolerance)
}

// Diagnostics returns the engine's cumulative diagnostic counters.
func (e *Engine) Diagnostics() *Diagnostics { return e.diag }

// Log writes a one-line status message per call, in the teacher's
// Log(w io.Writer) DomainManipulator idiom (run.go), reporting step index,
// wall time since start, elapsed simulation time, and live particle count.
func Log(w io.Writer) func(*Engine) {
	start := time.Now()
	return func(e *Engine) {
		fmt.Fprintf(w, "rank %d step %-6d walltime=%6.3gs simtime=%10.1fs particles=%d\n",
			e.Rank, e.StepIndex, time.Since(start).Seconds(), e.ElapsedTime, e.pool.Len())
	}
}

// CancelSignal returns a channel that receives once SIGINT or SIGTERM is
// observed, for the between-steps cancellation check named in §5 —
// checked once per loop iteration, never preemptively, the same idiom the
// teacher uses for its convergence check in SteadyStateConvergenceCheck.
func CancelSignal() <-chan os.Signal {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	return c
}
