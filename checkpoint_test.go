package flowroute

import (
	"os"
	"testing"
)

func TestCheckpointStoreSaveLoadRoundTrip(t *testing.T) {
	g := mustGrid(t, 4, 1)
	decomp := NewDecomposer(g.Ny, 1)

	runoff := NewRunoffState(g, DefaultRunoffConfig())
	runoff.Step(constPrecip(g.Ny, g.Nx, 50))

	pool := NewPool()
	pool.Add(Particle{IY: 0, IX: 0, Volume: 2.5, Class: ClassHillslope})
	pool.Add(Particle{IY: 3, IX: 0, Volume: 1.25, Timer: 7, Class: ClassChannel})

	diag := NewDiagnostics()
	diag.Outflow = 3
	diag.BoundaryLoss = 1

	cfg := testRunConfig(1)

	f, err := os.CreateTemp("", "flowroute-checkpoint-*.nc")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	store := NewCheckpointStore()
	if err := store.Save(path, g, runoff, pool, diag, 120, 12, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rs, err := store.Load(path, g, decomp, 0, cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if rs.Elapsed != 120 {
		t.Fatalf("expected elapsed 120, got %g", rs.Elapsed)
	}
	if rs.Step != 12 {
		t.Fatalf("expected step 12, got %d", rs.Step)
	}
	if rs.Diagnostics.Outflow != 3 || rs.Diagnostics.BoundaryLoss != 1 {
		t.Fatalf("diagnostics did not round-trip: %+v", rs.Diagnostics)
	}
	if len(rs.Departing) != 0 {
		t.Fatalf("expected no departing particles under a single-rank decomposition, got %v", rs.Departing)
	}
	if len(rs.Local) != 2 {
		t.Fatalf("expected 2 local particles, got %d", len(rs.Local))
	}
	for i, v := range rs.Runoff.Q.Elements {
		if v != runoff.Q.Elements[i] {
			t.Fatalf("Q field did not round-trip at index %d: got %g want %g", i, v, runoff.Q.Elements[i])
		}
	}
}

func TestCheckpointStoreLoadRejectsShapeMismatch(t *testing.T) {
	g := mustGrid(t, 4, 1)
	otherGrid := mustGrid(t, 2, 1)
	decomp := NewDecomposer(g.Ny, 1)

	runoff := NewRunoffState(g, DefaultRunoffConfig())
	pool := NewPool()
	diag := NewDiagnostics()

	f, err := os.CreateTemp("", "flowroute-checkpoint-*.nc")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	store := NewCheckpointStore()
	cfg := testRunConfig(1)
	if err := store.Save(path, g, runoff, pool, diag, 0, 0, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, err = store.Load(path, otherGrid, decomp, 0, cfg)
	if err == nil {
		t.Fatal("expected a shape-mismatch error loading against a differently-shaped grid")
	}
	if _, ok := err.(*StateIncompatibleError); !ok {
		t.Fatalf("expected *StateIncompatibleError, got %T", err)
	}
}

// TestCheckpointStoreLoadUsesConfigThresholdsNotDefaults exercises a
// restart run with Alpha/VMin that differ from DefaultRunoffConfig (the
// same gap between runoff.go's default VMin of 1e-6 and the CLI's v_min
// default of 0.01): Load must build the restored RunoffState from cfg,
// not from DefaultRunoffConfig, or a restart under ordinary CLI defaults
// would silently resume with the wrong threshold.
func TestCheckpointStoreLoadUsesConfigThresholdsNotDefaults(t *testing.T) {
	g := mustGrid(t, 2, 1)
	decomp := NewDecomposer(g.Ny, 1)

	cfg := testRunConfig(1)
	cfg.Alpha = 0.35
	cfg.VMin = 0.01
	if d := DefaultRunoffConfig(); cfg.Alpha == d.Alpha || cfg.VMin == d.VMin {
		t.Fatal("test setup must diverge from DefaultRunoffConfig to be meaningful")
	}

	runoff := NewRunoffState(g, RunoffConfig{Alpha: cfg.Alpha, VMin: cfg.VMin})
	pool := NewPool()
	diag := NewDiagnostics()

	f, err := os.CreateTemp("", "flowroute-checkpoint-*.nc")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	store := NewCheckpointStore()
	if err := store.Save(path, g, runoff, pool, diag, 0, 0, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rs, err := store.Load(path, g, decomp, 0, cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rs.Runoff.Config().Alpha != cfg.Alpha || rs.Runoff.Config().VMin != cfg.VMin {
		t.Fatalf("restored RunoffState used %+v, want Alpha=%g VMin=%g", rs.Runoff.Config(), cfg.Alpha, cfg.VMin)
	}
}

// TestCheckpointStoreLoadRejectsIncompatibleDomain confirms Load wires
// RunConfig.Compatible: a restart configured against a different domain
// file than the one the checkpoint was written under must fail, even
// though the grid shape and D8 encoding happen to still match.
func TestCheckpointStoreLoadRejectsIncompatibleDomain(t *testing.T) {
	g := mustGrid(t, 2, 1)
	decomp := NewDecomposer(g.Ny, 1)

	runoff := NewRunoffState(g, DefaultRunoffConfig())
	pool := NewPool()
	diag := NewDiagnostics()

	f, err := os.CreateTemp("", "flowroute-checkpoint-*.nc")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	savedCfg := testRunConfig(1)
	savedCfg.DomainPath = "domain-a.nc"
	store := NewCheckpointStore()
	if err := store.Save(path, g, runoff, pool, diag, 0, 0, savedCfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restartCfg := testRunConfig(1)
	restartCfg.DomainPath = "domain-b.nc"
	_, err = store.Load(path, g, decomp, 0, restartCfg)
	if err == nil {
		t.Fatal("expected an error restarting against a different domain path")
	}
	if _, ok := err.(*StateIncompatibleError); !ok {
		t.Fatalf("expected *StateIncompatibleError, got %T", err)
	}
}
