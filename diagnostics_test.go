package flowroute

import "testing"

func TestMassConservationCheckWithinToleranceReturnsNil(t *testing.T) {
	d := NewDiagnostics()
	d.SpawnedTotal = 100
	if err := MassConservationCheck(d, 100, 0, 1e-6); err != nil {
		t.Fatalf("expected nil for exact conservation, got %v", err)
	}
}

func TestMassConservationCheckNonFatalDrift(t *testing.T) {
	d := NewDiagnostics()
	d.SpawnedTotal = 100
	// 0.5% drift against a 0.1% tolerance: outside tolerance but well below
	// the 1000x fatal escalation threshold.
	err := MassConservationCheck(d, 99.5, 0, 1e-3)
	if err == nil {
		t.Fatal("expected a non-nil mass conservation error")
	}
	if err.Fatal {
		t.Fatalf("expected non-fatal drift, got fatal: %+v", err)
	}
}

func TestMassConservationCheckFatalDrift(t *testing.T) {
	d := NewDiagnostics()
	d.SpawnedTotal = 100
	// 50% drift against a 0.01% tolerance is far past the 1000x (10%)
	// escalation.
	err := MassConservationCheck(d, 50, 0, 1e-4)
	if err == nil {
		t.Fatal("expected a non-nil mass conservation error")
	}
	if !err.Fatal {
		t.Fatalf("expected fatal drift, got non-fatal: %+v", err)
	}
}

func TestMassConservationCheckAccountsOutflowBoundaryLossAndResidual(t *testing.T) {
	d := NewDiagnostics()
	d.SpawnedTotal = 100
	d.Outflow = 40
	d.BoundaryLoss = 10
	// liveVolume 45 + outflow 40 + boundaryLoss 10 + residual 5 == 100
	if err := MassConservationCheck(d, 45, 5, 1e-9); err != nil {
		t.Fatalf("expected exact conservation across all four buckets, got %v", err)
	}
}
