package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/picogrid/flock-simulations/pkg/config"
	"github.com/picogrid/flock-simulations/pkg/engine"
	"github.com/picogrid/flock-simulations/pkg/logger"
	"github.com/picogrid/flock-simulations/pkg/simulation"
	"github.com/picogrid/flock-simulations/pkg/utils"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation",
	Long: `Run a scenario on the selected backend. The scenario is a file path or
the name of a scenario found in the scenario directory. Flags override the
scenario, FLOCKSIM_* environment variables override the file.`,
	RunE: runSimulation,
}

func init() {
	addRunFlags(runCmd)
	_ = viper.BindPFlag("metrics_addr", runCmd.Flags().Lookup("metrics-addr"))
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("scenario", "s", "", "scenario name or file")
	cmd.Flags().String("simulation", simulation.FlockingName, "simulation to run (flocking, benchmark)")
	cmd.Flags().IntP("ticks", "t", 0, "number of ticks (0 runs until interrupted)")
	cmd.Flags().Duration("tick-interval", 0, "wall-clock interval between ticks")
	cmd.Flags().StringP("backend", "b", "", "compute backend (serial, offload)")
	cmd.Flags().StringP("device", "d", "", "device class (CPU, GPU, ACC)")
	cmd.Flags().String("nearest-policy", "", "neighbor selection (last, nearest)")
	cmd.Flags().String("non-finite-policy", "", "non-finite delta handling (zero, propagate)")
	cmd.Flags().StringP("output-dir", "o", "", "telemetry output directory")
	cmd.Flags().Bool("no-telemetry", false, "disable CSV telemetry")
	cmd.Flags().Int64("seed", 0, "random seed for generated flocks")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	cmd.Flags().BoolP("interactive", "i", false, "prompt for run settings")
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	cfg, err := loadScenario(cmd)
	if err != nil {
		return err
	}

	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		if err := promptRunSettings(cmd, cfg); err != nil {
			return err
		}
	}

	if viper.GetString("log_level") == "" {
		logger.SetLevel(logger.ParseLevel(cfg.Logging.ConsoleLevel))
	}
	if cfg.Logging.NoColor {
		logger.SetNoColor(true)
	}

	simName, _ := cmd.Flags().GetString("simulation")
	sim, err := simulation.DefaultRegistry.Get(simName)
	if err != nil {
		return fmt.Errorf("failed to get simulation: %w", err)
	}

	if err := sim.Configure(cfg); err != nil {
		return fmt.Errorf("failed to configure simulation: %w", err)
	}

	var bar *logger.ProgressBar
	if runner, ok := sim.(*simulation.Runner); ok && cfg.Simulation.Ticks > 0 && utils.IsInteractive() {
		bar = logger.NewProgressBar(cfg.Simulation.Ticks, "Ticks")
		runner.OnTick(func(report engine.TickReport) { bar.Update(int(report.Tick)) })
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if addr := viper.GetString("metrics_addr"); addr != "" {
		stop := serveMetrics(addr)
		defer stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			logger.Warn("Received interrupt signal, stopping simulation...")
			if err := sim.Stop(); err != nil {
				logger.Errorf("Failed to stop simulation: %v", err)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.LogSection(fmt.Sprintf("Starting %s: %s", sim.Name(), cfg.Simulation.Name))
	err = sim.Run(ctx)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	if runner, ok := sim.(*simulation.Runner); ok {
		printSummary(runner.Summary())
	}

	logger.Success("Simulation completed successfully")
	return nil
}

// loadScenario resolves the scenario file and applies env and flag overrides
func loadScenario(cmd *cobra.Command) (*config.SimulationConfig, error) {
	path := ""
	if name, _ := cmd.Flags().GetString("scenario"); name != "" {
		resolved, err := utils.FindScenario(viper.GetString("scenario_dir"), name)
		if err != nil {
			return nil, fmt.Errorf("failed to find scenario: %w", err)
		}
		path = resolved
	}

	cfg, err := config.LoadConfigWithOverrides(path, flagOverrides(cmd))
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario: %w", err)
	}
	return cfg, nil
}

// flagOverrides collects the run flags the user actually set
func flagOverrides(cmd *cobra.Command) map[string]interface{} {
	overrides := make(map[string]interface{})
	flags := cmd.Flags()

	if flags.Changed("ticks") {
		v, _ := flags.GetInt("ticks")
		overrides[config.KeyTicks] = v
	}
	if flags.Changed("tick-interval") {
		v, _ := flags.GetDuration("tick-interval")
		overrides[config.KeyTickInterval] = v
	}
	if flags.Changed("seed") {
		v, _ := flags.GetInt64("seed")
		overrides[config.KeySeed] = v
	}
	if flags.Changed("no-telemetry") {
		v, _ := flags.GetBool("no-telemetry")
		overrides[config.KeyTelemetry] = !v
	}

	for flag, key := range map[string]string{
		"backend":           config.KeyBackend,
		"device":            config.KeyDevice,
		"nearest-policy":    config.KeyNearest,
		"non-finite-policy": config.KeyNonFinite,
		"output-dir":        config.KeyOutputDir,
	} {
		if flags.Changed(flag) {
			v, _ := flags.GetString(flag)
			overrides[key] = v
		}
	}

	return overrides
}

// promptRunSettings asks for the run settings not already given as flags
func promptRunSettings(cmd *cobra.Command, cfg *config.SimulationConfig) error {
	if !utils.IsInteractive() {
		logger.Warn("Not a terminal, skipping prompts")
		return nil
	}

	var params []simulation.Parameter
	for _, p := range simulation.RunParameters(cfg) {
		if !cmd.Flags().Changed(flagFor(p.Name)) {
			params = append(params, p)
		}
	}

	values, err := utils.PromptForParameters(params)
	if err != nil {
		return fmt.Errorf("failed to get parameters: %w", err)
	}
	config.MergeWithCLIOverrides(cfg, values)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	if cfg.Telemetry.Enabled && !cmd.Flags().Changed("output-dir") {
		dir := cfg.Telemetry.OutputDir
		prompt := &survey.Input{
			Message: "Telemetry output directory:",
			Default: dir,
		}
		if err := survey.AskOne(prompt, &dir, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
		cfg.Telemetry.OutputDir = dir
	}
	return nil
}

// flagFor maps an override key to the run flag that sets it
func flagFor(key string) string {
	switch key {
	case config.KeyTelemetry:
		return "no-telemetry"
	case config.KeyTickInterval:
		return "tick-interval"
	default:
		return key
	}
}

func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server failed: %v", err)
		}
	}()
	logger.Infof("Serving metrics on http://%s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printSummary(s simulation.Summary) {
	logger.LogSection("Run Summary")
	logger.LogKeyValue("Run ID", s.RunID.String())
	logger.LogKeyValue("Backend", s.Backend)
	logger.LogKeyValue("Ticks", s.Ticks)
	logger.LogKeyValue("Agents", s.Agents)
	logger.LogKeyValue("Elapsed", s.Elapsed.Round(time.Millisecond))
	if s.Ticks > 0 {
		logger.LogKeyValue("Per Tick", (s.Elapsed / time.Duration(s.Ticks)).Round(time.Microsecond))
	}
	if s.NonFinite > 0 {
		logger.LogKeyValue("Non-finite Deltas", s.NonFinite)
	}
	if s.OutputDir != "" {
		logger.LogKeyValue("Output", s.OutputDir)
	}
	if s.Stopped {
		logger.Warn("Run was stopped before completing")
	}
}
