package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ctessum/sparse"
	"github.com/spf13/cobra"

	"github.com/riverfold/flowroute"
	"github.com/riverfold/flowroute/cloudstore"
	"github.com/riverfold/flowroute/ncio"
	"github.com/riverfold/flowroute/transport"
)

// NewRootCmd assembles the full flowroute command tree: run, restart,
// version, and grid validate, the same composition the teacher's
// InitializeConfig performs for the inmap command.
func NewRootCmd() *cobra.Command {
	cfg := InitializeConfig()

	cfg.runCmd.RunE = func(cmd *cobra.Command, args []string) error {
		rc, err := ToRunConfig(cfg)
		if err != nil {
			return err
		}
		return runSimulation(cmd.Context(), rc, cfg, false)
	}

	cfg.restartCmd.RunE = func(cmd *cobra.Command, args []string) error {
		rc, err := ToRunConfig(cfg)
		if err != nil {
			return err
		}
		return runSimulation(cmd.Context(), rc, cfg, true)
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a domain container without running a simulation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.GetString("domain_path")
			if _, err := flowroute.LoadDomain(path); err != nil {
				return err
			}
			cmd.Printf("domain %s is valid\n", path)
			return nil
		},
	}
	cfg.gridCmd.AddCommand(validateCmd)

	cfg.Root.AddCommand(cfg.versionCmd, cfg.runCmd, cfg.restartCmd, cfg.gridCmd)
	return cfg.Root
}

// runSimulation drives every rank of one run to completion (or until a
// cancellation signal arrives between steps, §5). With rpc_addrs unset it
// runs every rank as a goroutine in this process over a transport.Mock
// cluster and merges their disjoint row ranges into a single output
// container; with rpc_addrs set it runs exactly the one rank named by
// --rank over transport.RPC, matching a genuinely distributed deployment
// where no process can see another rank's memory to merge itself.
func runSimulation(ctx context.Context, rc *flowroute.RunConfig, cfg *Cfg, restart bool) error {
	grid, err := flowroute.LoadDomain(rc.DomainPath)
	if err != nil {
		return err
	}

	frames := make([]ncio.RainfallFrame, len(rc.RainfallPaths))
	for i, p := range rc.RainfallPaths {
		frames[i] = ncio.RainfallFrame{Path: p, Time: rc.RainfallTimes[i]}
	}

	addrs := cfg.GetStringSlice("rpc_addrs")
	if len(addrs) > 0 {
		rank := cfg.GetInt("rank")
		return runDistributedRank(ctx, rc, grid, frames, addrs, rank, restart)
	}
	return runLocalCluster(ctx, rc, grid, frames, restart)
}

// runLocalCluster runs every rank in-process over a transport.Mock
// barrier, merging each rank's disjoint row range into one output.
func runLocalCluster(ctx context.Context, rc *flowroute.RunConfig, grid *flowroute.Grid, frames []ncio.RainfallFrame, restart bool) error {
	mocks := transport.NewMockCluster(rc.Ranks)
	decomp := flowroute.NewDecomposer(grid.Ny, rc.Ranks)
	store := flowroute.NewCheckpointStore()

	var wg sync.WaitGroup
	errs := make([]error, rc.Ranks)
	depths := make([]*sparse.DenseArray, rc.Ranks)
	risks := make([]*sparse.DenseArray, rc.Ranks)

	for rank := 0; rank < rc.Ranks; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			source := ncio.NewRainfallSource(frames, grid.Ny, grid.Nx)
			engine := flowroute.NewEngine(rank, rc.Ranks, grid, rc, source, mocks[rank])

			if restart {
				if err := restoreRank(engine, store, grid, decomp, rank, rc); err != nil {
					errs[rank] = err
					return
				}
			}

			if err := stepLoop(engine, rc, rank); err != nil {
				errs[rank] = err
				return
			}
			depths[rank] = engine.Aggregate()
			riskCfg := flowroute.DefaultRiskConfig()
			riskCfg.Beta = rc.Beta
			risks[rank] = engine.Risk(riskCfg)
		}(rank)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	depth := mergeDisjoint(grid.Ny, grid.Nx, depths)
	// Every rank computes risk over the full grid from the same cumulative
	// fields, so rank 0's field already covers the whole domain.
	risk := risks[0]
	return writeOutput(ctx, rc, grid, depth, risk)
}

// runDistributedRank runs exactly one rank over transport.RPC, dialing
// every peer named in addrs. This is the deployment path a real
// multi-process cluster uses; merging its output with the other ranks'
// is out of this process's scope by construction (§7), so this rank
// writes its own partition to a rank-suffixed output path.
func runDistributedRank(ctx context.Context, rc *flowroute.RunConfig, grid *flowroute.Grid, frames []ncio.RainfallFrame, addrs []string, rank int, restart bool) error {
	trans, err := transport.ListenAndServe(rank, len(addrs), addrs[rank])
	if err != nil {
		return err
	}
	for peer, addr := range addrs {
		if err := trans.DialPeer(peer, addr); err != nil {
			return err
		}
	}

	source := ncio.NewRainfallSource(frames, grid.Ny, grid.Nx)
	engine := flowroute.NewEngine(rank, len(addrs), grid, rc, source, trans)

	if restart {
		decomp := flowroute.NewDecomposer(grid.Ny, len(addrs))
		store := flowroute.NewCheckpointStore()
		if err := restoreRank(engine, store, grid, decomp, rank, rc); err != nil {
			return err
		}
	}

	if err := stepLoop(engine, rc, rank); err != nil {
		return err
	}

	depth := engine.Aggregate()
	riskCfg := flowroute.DefaultRiskConfig()
	riskCfg.Beta = rc.Beta
	risk := engine.Risk(riskCfg)
	rankOutput := rankSuffixed(rc.OutputPath, rank)
	return writeOutput(ctx, &flowroute.RunConfig{OutputPath: rankOutput}, grid, depth, risk)
}

// restoreRank loads this rank's checkpoint and restores the engine with
// it; Engine.Restore itself drives the one-time restart-reassignment
// exchange (§4.10).
func restoreRank(engine *flowroute.Engine, store *flowroute.CheckpointStore, grid *flowroute.Grid, decomp *flowroute.Decomposer, rank int, rc *flowroute.RunConfig) error {
	path := filepath.Join(rc.CheckpointDir, fmt.Sprintf("rank_%d.nc", rank))
	rs, err := store.Load(path, grid, decomp, rank, rc)
	if err != nil {
		return err
	}
	return engine.Restore(rs)
}

// stepLoop advances engine from its current step to rc.TimeEnd,
// checkpointing at rc.CheckpointEvery and stopping early, but only
// between steps, on SIGINT/SIGTERM (§5).
func stepLoop(engine *flowroute.Engine, rc *flowroute.RunConfig, rank int) error {
	cancel := flowroute.CancelSignal()
	store := flowroute.NewCheckpointStore()

	for engine.ElapsedTime < rc.TimeEnd {
		select {
		case <-cancel:
			return checkpointRank(engine, store, rc, rank)
		default:
		}

		if err := engine.Step(); err != nil {
			return err
		}
		if rc.K > 0 && engine.StepIndex%rc.K == 0 {
			engine.Aggregate()
		}

		if mc := engine.MassConservation(); mc != nil {
			if mc.Fatal {
				return mc
			}
			fmt.Fprintf(os.Stderr, "flowroute: rank %d: %v\n", rank, mc)
		}

		if rc.CheckpointEvery > 0 && engine.StepIndex%rc.CheckpointEvery == 0 {
			if err := checkpointRank(engine, store, rc, rank); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkpointRank(engine *flowroute.Engine, store *flowroute.CheckpointStore, rc *flowroute.RunConfig, rank int) error {
	if rc.CheckpointDir == "" {
		return nil
	}
	if err := os.MkdirAll(rc.CheckpointDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(rc.CheckpointDir, fmt.Sprintf("rank_%d.nc", rank))
	return engine.Checkpoint(path)
}

// writeOutput writes the final flood-depth/risk-index container, routing
// through cloudstore.Upload when rc.OutputPath names a bucket URL.
func writeOutput(ctx context.Context, rc *flowroute.RunConfig, grid *flowroute.Grid, depth, risk *sparse.DenseArray) error {
	local := rc.OutputPath
	if cloudstore.IsRemote(local) {
		tmp, err := os.CreateTemp("", "flowroute-output-*.nc")
		if err != nil {
			return err
		}
		tmp.Close()
		local = tmp.Name()
		defer os.Remove(local)
	}
	if err := ncio.WriteOutput(local, grid.Lat, grid.Lon, rc.TimeEnd, depth, risk, flowroute.ToNCIOCRS(grid.CRS)); err != nil {
		return err
	}
	return cloudstore.Upload(ctx, local, rc.OutputPath)
}

// mergeDisjoint sums a set of per-rank fields that are each non-zero only
// over their own row range, producing one full-domain field. Summation
// (rather than overwrite) is safe because the Slab Decomposer guarantees
// single ownership per row (§4.9).
func mergeDisjoint(ny, nx int, parts []*sparse.DenseArray) *sparse.DenseArray {
	out := sparse.ZerosDense(ny, nx)
	for _, p := range parts {
		if p == nil {
			continue
		}
		for i, v := range p.Elements {
			out.Elements[i] += v
		}
	}
	return out
}

func rankSuffixed(path string, rank int) string {
	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	return fmt.Sprintf("%s_rank%d%s", base, rank, ext)
}
