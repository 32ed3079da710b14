package flowroute

// RunConfig holds every tunable parameter of a run (§6 CLI surface). It is
// echoed into every checkpoint so a restart can detect an incompatible
// resume (§4.10) and is validated once at startup, the same point the
// teacher's inmaputil.InitializeConfig validates its VarGridConfig.
type RunConfig struct {
	DomainPath    string    // input domain container path
	RainfallPaths []string  // rainfall container paths, one per time frame
	RainfallTimes []float64 // simulation time (s) each RainfallPaths entry applies to, same length
	OutputPath    string
	CheckpointDir string

	TimeStart float64 // seconds
	TimeEnd   float64 // seconds
	Dt        float64 // seconds

	Alpha      float64 // SCS-CN initial-abstraction ratio
	THillslope float64 // seconds
	TChannel   float64 // seconds
	Beta       float64 // risk-reducer weight
	VTarget    float64 // nominal particle volume, m³
	VMin       float64 // minimum spawnable volume, m³

	NMaxPerCell int // spawn cap per cell per step
	K           int // aggregation cadence, steps

	CheckpointEvery int // steps between checkpoints, 0 disables periodic checkpointing
	Ranks           int // rank count this run is configured for

	MassConservationTolerance float64
}

// Validate checks configuration invariants, returning a
// ConfigurationInvalidError naming the first violation found.
func (c *RunConfig) Validate() error {
	switch {
	case c.DomainPath == "":
		return &ConfigurationInvalidError{Reason: "domain path is required"}
	case len(c.RainfallPaths) != len(c.RainfallTimes):
		return &ConfigurationInvalidError{Reason: "rainfall_paths and rainfall_times must have the same length"}
	case c.Dt <= 0:
		return &ConfigurationInvalidError{Reason: "dt must be positive"}
	case c.TimeEnd < c.TimeStart:
		return &ConfigurationInvalidError{Reason: "time_end must not precede time_start"}
	case c.Alpha < 0:
		return &ConfigurationInvalidError{Reason: "alpha must be non-negative"}
	case c.THillslope < 0 || c.TChannel < 0:
		return &ConfigurationInvalidError{Reason: "t_hillslope and t_channel must be non-negative"}
	case c.Beta < 0 || c.Beta > 1:
		return &ConfigurationInvalidError{Reason: "beta must be in [0,1]"}
	case c.VTarget <= 0:
		return &ConfigurationInvalidError{Reason: "v_target must be positive"}
	case c.VMin < 0:
		return &ConfigurationInvalidError{Reason: "v_min must be non-negative"}
	case c.NMaxPerCell <= 0:
		return &ConfigurationInvalidError{Reason: "n_max_per_cell must be positive"}
	case c.K <= 0:
		return &ConfigurationInvalidError{Reason: "aggregation interval k must be positive"}
	case c.Ranks <= 0:
		return &ConfigurationInvalidError{Reason: "rank count must be positive"}
	case c.MassConservationTolerance < 0:
		return &ConfigurationInvalidError{Reason: "mass conservation tolerance must be non-negative"}
	}
	return nil
}

// Compatible reports whether a checkpoint written under prior (an echoed
// RunConfig read back from a checkpoint) names the same domain file as c;
// only DomainPath is compared here (grid shape and D8 encoding are checked
// by CheckpointStore.Load). Operational knobs like Dt, K, and
// CheckpointEvery are allowed to differ across a restart; rank count is
// explicitly allowed to differ too, since the Checkpoint Store reassigns
// particles to the new decomposition (§4.10).
func (c *RunConfig) Compatible(prior *RunConfig) error {
	if prior.DomainPath != c.DomainPath {
		return &StateIncompatibleError{Reason: "checkpoint was written for a different domain file"}
	}
	return nil
}
