package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable read by MergeWithEnvironment
const EnvPrefix = "FLOCKSIM_"

func getenv(name string) string {
	return os.Getenv(EnvPrefix + name)
}

// MergeWithEnvironment merges config with FLOCKSIM_* environment variables.
// Unparseable values are ignored.
func MergeWithEnvironment(config *SimulationConfig) {
	// Override run parameters
	if ticks := getenv("TICKS"); ticks != "" {
		if n, err := strconv.Atoi(ticks); err == nil && n >= 0 {
			config.Simulation.Ticks = n
		}
	}

	if interval := getenv("TICK_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil && d >= 0 {
			config.Simulation.TickInterval = d
		}
	}

	if seed := getenv("SEED"); seed != "" {
		if n, err := strconv.ParseInt(seed, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}

	// Override engine selection
	if backend := getenv("BACKEND"); backend != "" {
		backend = strings.ToLower(backend)
		if oneOf(backend, validBackends) {
			config.Engine.Backend = backend
		}
	}

	if device := getenv("DEVICE"); device != "" {
		device = strings.ToUpper(device)
		if oneOf(device, validDevices) {
			config.Engine.Device = device
		}
	}

	if policy := getenv("NEAREST_POLICY"); policy != "" {
		policy = strings.ToLower(policy)
		if oneOf(policy, validNearestPolicies) {
			config.Engine.NearestPolicy = policy
		}
	}

	if policy := getenv("NON_FINITE_POLICY"); policy != "" {
		policy = strings.ToLower(policy)
		if oneOf(policy, validNonFinite) {
			config.Engine.NonFinitePolicy = policy
		}
	}

	// Override telemetry
	if enabled := getenv("TELEMETRY"); enabled != "" {
		if enable, err := strconv.ParseBool(enabled); err == nil {
			config.Telemetry.Enabled = enable
		}
	}

	if dir := getenv("OUTPUT_DIR"); dir != "" {
		config.Telemetry.OutputDir = dir
	}

	// Override logging level
	if logLevel := getenv("LOG_LEVEL"); logLevel != "" {
		logLevel = strings.ToLower(logLevel)
		if oneOf(logLevel, validLevels) {
			config.Logging.ConsoleLevel = logLevel
		}
	}

	if noColor := getenv("NO_COLOR"); noColor != "" {
		if b, err := strconv.ParseBool(noColor); err == nil {
			config.Logging.NoColor = b
		}
	}
}
