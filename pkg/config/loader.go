package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/picogrid/flock-simulations/pkg/logger"
)

// DefaultPaths are searched, in order, when no scenario path is given
var DefaultPaths = []string{
	"flocksim.yaml",
	"scenario.yaml",
	filepath.Join("scenarios", "default.yaml"),
}

// LoadConfig loads a scenario from a YAML file. Fields the file leaves out
// keep their default values; a flocks list in the file replaces the default
// flocks entirely.
func LoadConfig(path string) (*SimulationConfig, error) {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Relative agent files resolve against the scenario's directory
	dir := filepath.Dir(path)
	for i := range config.Flocks {
		if f := config.Flocks[i].AgentsFile; f != "" && !filepath.IsAbs(f) {
			config.Flocks[i].AgentsFile = filepath.Join(dir, f)
		}
	}

	return config, nil
}

// Parse decodes and validates a YAML scenario document
func Parse(data []byte) (*SimulationConfig, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config := GetDefaultConfig()
	config.Flocks = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if len(config.Flocks) == 0 {
		config.Flocks = GetDefaultConfig().Flocks
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadConfigOrDefault loads config from file or returns default, with environment overrides
func LoadConfigOrDefault(path string) (*SimulationConfig, error) {
	var config *SimulationConfig
	var err error

	if path != "" {
		config, err = LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}

	// Try default locations if no config loaded yet
	if config == nil {
		for _, p := range DefaultPaths {
			if _, statErr := os.Stat(p); statErr != nil {
				continue
			}
			config, err = LoadConfig(p)
			if err != nil {
				logger.Warnf("Could not load config from %s: %v", p, err)
				config = nil
				continue
			}
			logger.Debugf("Loaded config from: %s", p)
			break
		}
	}

	// Use default config if still no config loaded
	if config == nil {
		logger.Debug("Using default configuration")
		config = GetDefaultConfig()
	}

	// Always apply environment variable overrides
	MergeWithEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *SimulationConfig, path string) error {
	// Validate before saving
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Override keys accepted by MergeWithCLIOverrides
const (
	KeyTicks        = "ticks"
	KeyTickInterval = "tick_interval"
	KeySeed         = "seed"
	KeyBackend      = "backend"
	KeyDevice       = "device"
	KeyNearest      = "nearest_policy"
	KeyNonFinite    = "non_finite_policy"
	KeyOutputDir    = "output_dir"
	KeyTelemetry    = "telemetry"
	KeyLogLevel     = "log_level"
	KeyNoColor      = "no_color"
)

// MergeWithCLIOverrides applies CLI parameter overrides to the configuration.
// Values of the wrong type are ignored; validity is left to Validate.
func MergeWithCLIOverrides(config *SimulationConfig, overrides map[string]interface{}) {
	for key, value := range overrides {
		switch key {
		case KeyTicks:
			if ticks, ok := value.(int); ok && ticks >= 0 {
				config.Simulation.Ticks = ticks
			}
		case KeyTickInterval:
			if d, ok := value.(time.Duration); ok && d >= 0 {
				config.Simulation.TickInterval = d
			}
		case KeySeed:
			switch seed := value.(type) {
			case int64:
				config.Simulation.Seed = seed
			case int:
				config.Simulation.Seed = int64(seed)
			}
		case KeyBackend:
			if s, ok := value.(string); ok && s != "" {
				config.Engine.Backend = s
			}
		case KeyDevice:
			if s, ok := value.(string); ok && s != "" {
				config.Engine.Device = s
			}
		case KeyNearest:
			if s, ok := value.(string); ok && s != "" {
				config.Engine.NearestPolicy = s
			}
		case KeyNonFinite:
			if s, ok := value.(string); ok && s != "" {
				config.Engine.NonFinitePolicy = s
			}
		case KeyOutputDir:
			if s, ok := value.(string); ok && s != "" {
				config.Telemetry.OutputDir = s
			}
		case KeyTelemetry:
			if enable, ok := value.(bool); ok {
				config.Telemetry.Enabled = enable
			}
		case KeyLogLevel:
			if s, ok := value.(string); ok && oneOf(s, validLevels) {
				config.Logging.ConsoleLevel = s
			}
		case KeyNoColor:
			if noColor, ok := value.(bool); ok {
				config.Logging.NoColor = noColor
			}
		}
	}
}

// LoadConfigWithOverrides loads config and applies both environment and CLI overrides
func LoadConfigWithOverrides(path string, cliOverrides map[string]interface{}) (*SimulationConfig, error) {
	config, err := LoadConfigOrDefault(path)
	if err != nil {
		return nil, err
	}

	// Apply CLI overrides after environment variables
	if cliOverrides != nil {
		MergeWithCLIOverrides(config, cliOverrides)
	}

	// Final validation
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed after overrides: %w", err)
	}

	return config, nil
}
