// Package cli wires the flowroute command-line surface (§6): a cobra
// command tree bound to a viper configuration object in the same pattern
// as the teacher's inmaputil.Cfg/InitializeConfig, extended to flowroute's
// own option set (domain/rainfall paths, time window, physical
// parameters, checkpoint cadence).
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/riverfold/flowroute"
)

// Cfg holds the command tree and its bound configuration, following the
// teacher's embed-the-Viper-in-a-struct-of-commands shape.
type Cfg struct {
	*viper.Viper

	Root, versionCmd, runCmd, restartCmd, gridCmd *cobra.Command
}

// option describes one configuration variable: its flag name, default,
// and which flag sets it is registered on, the same schema the teacher
// drives its options slice with.
type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

// InitializeConfig builds the command tree, registers every flowroute
// configuration option as a persistent flag on Root, and binds it into
// viper so that flags, a --config file, and FLOWROUTE_* environment
// variables all resolve through the same Cfg.GetString/GetFloat64/...
// accessors (§6).
func InitializeConfig() *Cfg {
	cfg := &Cfg{Viper: viper.New()}

	cfg.Root = &cobra.Command{
		Use:   "flowroute",
		Short: "A distributed-memory hydrological particle-transport simulator.",
		Long: `flowroute simulates overland and channel flood routing by advecting a
pool of Lagrangian particles across a row-decomposed domain.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line flags, or by
setting environment variables in the format 'FLOWROUTE_var', where 'var' is
the name of the variable to set.`,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return setConfig(cfg)
		},
	}

	cfg.versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("flowroute v%s\n", flowroute.Version)
		},
		DisableAutoGenTag: true,
	}

	cfg.runCmd = &cobra.Command{
		Use:               "run",
		Short:             "Run a flowroute simulation from a fresh start.",
		DisableAutoGenTag: true,
	}

	cfg.restartCmd = &cobra.Command{
		Use:               "restart",
		Short:             "Resume a flowroute simulation from a checkpoint directory.",
		DisableAutoGenTag: true,
	}

	cfg.gridCmd = &cobra.Command{
		Use:               "grid",
		Short:             "Operate on a domain container.",
		DisableAutoGenTag: true,
	}

	cfg.SetEnvPrefix("FLOWROUTE")
	cfg.AutomaticEnv()

	options := []option{
		{name: "domain_path", usage: "domain_path is the path to the CF-NetCDF domain container.",
			defaultVal: "", flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags(), cfg.gridCmd.PersistentFlags()}},
		{name: "rainfall_paths", usage: "rainfall_paths lists the rainfall container paths, one per time frame.",
			defaultVal: []string{}, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "rainfall_times", usage: "rainfall_times lists the simulation time (s) each rainfall_paths entry applies to.",
			defaultVal: []string{}, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "output_path", usage: "output_path is where the flood depth/risk index container is written.",
			defaultVal: "flowroute_output.nc", flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "checkpoint_dir", usage: "checkpoint_dir is the directory holding per-rank checkpoint containers.",
			defaultVal: "checkpoints", flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "time_start", usage: "time_start is the simulation start time in seconds.",
			defaultVal: 0.0, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "time_end", usage: "time_end is the simulation end time in seconds.",
			defaultVal: 3600.0, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "dt", usage: "dt is the simulation step length in seconds.",
			defaultVal: 60.0, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "alpha", usage: "alpha is the SCS-CN initial-abstraction ratio.",
			defaultVal: 0.2, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "t_hillslope", usage: "t_hillslope is the characteristic hillslope residence time in seconds.",
			defaultVal: 600.0, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "t_channel", usage: "t_channel is the characteristic channel residence time in seconds.",
			defaultVal: 120.0, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "beta", usage: "beta is the risk reducer's flow/accumulation weighting in [0,1].",
			defaultVal: 0.5, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "v_target", usage: "v_target is the nominal spawned particle volume in cubic meters.",
			defaultVal: 1.0, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "v_min", usage: "v_min is the minimum spawnable volume in cubic meters.",
			defaultVal: 0.01, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "n_max_per_cell", usage: "n_max_per_cell caps how many particles one cell may spawn in one step.",
			defaultVal: 8, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "k", usage: "k is the number of steps between aggregation passes.",
			defaultVal: 10, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "checkpoint_every", usage: "checkpoint_every is the number of steps between periodic checkpoints (0 disables).",
			defaultVal: 0, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "ranks", usage: "ranks is the number of row-decomposed ranks to run.",
			defaultVal: 1, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "mass_conservation_tolerance", usage: "mass_conservation_tolerance is the allowed fractional mass-balance drift.",
			defaultVal: 1e-6, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "rpc_addrs", usage: "rpc_addrs lists one host:port per rank, enabling the net/rpc transport instead of the in-process mock (multi-process runs only).",
			defaultVal: []string{}, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
		{name: "rank", usage: "rank is this process's rank index when rpc_addrs is set.",
			defaultVal: 0, flagsets: []*pflag.FlagSet{cfg.runCmd.PersistentFlags(), cfg.restartCmd.PersistentFlags()}},
	}

	for _, opt := range options {
		for i, set := range opt.flagsets {
			if i != 0 {
				set.AddFlag(opt.flagsets[0].Lookup(opt.name))
				continue
			}
			switch v := opt.defaultVal.(type) {
			case string:
				set.String(opt.name, v, opt.usage)
			case []string:
				set.StringSlice(opt.name, v, opt.usage)
			case int:
				set.Int(opt.name, v, opt.usage)
			case float64:
				set.Float64(opt.name, v, opt.usage)
			default:
				panic(fmt.Errorf("flowroute/cli: invalid option default type: %T", opt.defaultVal))
			}
			cfg.BindPFlag(opt.name, set.Lookup(opt.name))
		}
	}

	cfg.Root.PersistentFlags().String("config", "", "config is the path to a YAML/TOML/JSON configuration file.")
	cfg.BindPFlag("config", cfg.Root.PersistentFlags().Lookup("config"))

	return cfg
}

// setConfig reads in the configuration file named by --config, if any,
// the same pattern as the teacher's inmaputil.setConfig.
func setConfig(cfg *Cfg) error {
	if cfgpath := cfg.GetString("config"); cfgpath != "" {
		cfg.SetConfigFile(cfgpath)
		if err := cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("flowroute: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// ToRunConfig builds and validates a flowroute.RunConfig from the bound
// configuration. The caller is responsible for calling this after
// setConfig has run (cobra's PersistentPreRunE guarantees that for every
// subcommand under Root).
func ToRunConfig(cfg *Cfg) (*flowroute.RunConfig, error) {
	times := cfg.GetStringSlice("rainfall_times")
	rainTimes := make([]float64, len(times))
	for i, s := range times {
		var t float64
		if _, err := fmt.Sscanf(s, "%g", &t); err != nil {
			return nil, &flowroute.ConfigurationInvalidError{Reason: fmt.Sprintf("rainfall_times[%d] is not a number: %q", i, s)}
		}
		rainTimes[i] = t
	}

	rc := &flowroute.RunConfig{
		DomainPath:                cfg.GetString("domain_path"),
		RainfallPaths:             cfg.GetStringSlice("rainfall_paths"),
		RainfallTimes:             rainTimes,
		OutputPath:                cfg.GetString("output_path"),
		CheckpointDir:             cfg.GetString("checkpoint_dir"),
		TimeStart:                 cfg.GetFloat64("time_start"),
		TimeEnd:                   cfg.GetFloat64("time_end"),
		Dt:                        cfg.GetFloat64("dt"),
		Alpha:                     cfg.GetFloat64("alpha"),
		THillslope:                cfg.GetFloat64("t_hillslope"),
		TChannel:                  cfg.GetFloat64("t_channel"),
		Beta:                      cfg.GetFloat64("beta"),
		VTarget:                   cfg.GetFloat64("v_target"),
		VMin:                      cfg.GetFloat64("v_min"),
		NMaxPerCell:               cfg.GetInt("n_max_per_cell"),
		K:                         cfg.GetInt("k"),
		CheckpointEvery:           cfg.GetInt("checkpoint_every"),
		Ranks:                     cfg.GetInt("ranks"),
		MassConservationTolerance: cfg.GetFloat64("mass_conservation_tolerance"),
	}
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	return rc, nil
}
