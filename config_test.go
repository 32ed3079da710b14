package flowroute

import "testing"

func validRunConfig() RunConfig {
	return RunConfig{
		DomainPath:                "domain.nc",
		TimeStart:                 0,
		TimeEnd:                   100,
		Dt:                        1,
		Alpha:                     0.2,
		THillslope:                10,
		TChannel:                  5,
		Beta:                      0.5,
		VTarget:                   1,
		VMin:                      1e-6,
		NMaxPerCell:               10,
		K:                         1,
		Ranks:                     1,
		MassConservationTolerance: 1e-3,
	}
}

func TestRunConfigValidateAcceptsDefaults(t *testing.T) {
	rc := validRunConfig()
	if err := rc.Validate(); err != nil {
		t.Fatalf("expected a valid config, got %v", err)
	}
}

func TestRunConfigValidateRejectsMissingDomainPath(t *testing.T) {
	rc := validRunConfig()
	rc.DomainPath = ""
	assertConfigInvalid(t, rc)
}

func TestRunConfigValidateRejectsMismatchedRainfallLengths(t *testing.T) {
	rc := validRunConfig()
	rc.RainfallPaths = []string{"a.nc", "b.nc"}
	rc.RainfallTimes = []float64{0}
	assertConfigInvalid(t, rc)
}

func TestRunConfigValidateRejectsNonPositiveDt(t *testing.T) {
	rc := validRunConfig()
	rc.Dt = 0
	assertConfigInvalid(t, rc)
}

func TestRunConfigValidateRejectsTimeEndBeforeTimeStart(t *testing.T) {
	rc := validRunConfig()
	rc.TimeStart = 50
	rc.TimeEnd = 10
	assertConfigInvalid(t, rc)
}

func TestRunConfigValidateRejectsBetaOutOfRange(t *testing.T) {
	rc := validRunConfig()
	rc.Beta = 1.5
	assertConfigInvalid(t, rc)
}

func TestRunConfigValidateRejectsNonPositiveRanks(t *testing.T) {
	rc := validRunConfig()
	rc.Ranks = 0
	assertConfigInvalid(t, rc)
}

func assertConfigInvalid(t *testing.T, rc RunConfig) {
	t.Helper()
	err := rc.Validate()
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if _, ok := err.(*ConfigurationInvalidError); !ok {
		t.Fatalf("expected *ConfigurationInvalidError, got %T", err)
	}
}

func TestRunConfigCompatibleAcrossDifferingRanksAndDt(t *testing.T) {
	c := validRunConfig()
	prior := validRunConfig()
	prior.Ranks = 4
	prior.Dt = 5
	if err := c.Compatible(&prior); err != nil {
		t.Fatalf("expected ranks/dt differences to be compatible, got %v", err)
	}
}

func TestRunConfigCompatibleRejectsDifferentDomain(t *testing.T) {
	c := validRunConfig()
	prior := validRunConfig()
	prior.DomainPath = "other.nc"
	err := c.Compatible(&prior)
	if err == nil {
		t.Fatal("expected an incompatibility error for a different domain path")
	}
	if _, ok := err.(*StateIncompatibleError); !ok {
		t.Fatalf("expected *StateIncompatibleError, got %T", err)
	}
}
