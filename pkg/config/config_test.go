package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/flock-simulations/pkg/engine"
)

const sampleScenario = `
simulation:
  name: two-flocks
  description: prey and hunters
  ticks: 50
  tick_interval: 20ms
  seed: 7
engine:
  backend: offload
  device: GPU
  nearest_policy: nearest
  weights:
    hunt: 0.02
    align: 0.004
flocks:
  - name: prey
    agents: 30
    center: {x: 1, y: 2, z: 3}
    spread: 5
    speed: {min: 1, max: 2}
  - name: hunters
    agents_file: hunters.csv
telemetry:
  enabled: true
  output_dir: out
  every: 5
logging:
  console_level: debug
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeScenario(t, sampleScenario)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "two-flocks", config.Simulation.Name)
	assert.Equal(t, 50, config.Simulation.Ticks)
	assert.Equal(t, 20*time.Millisecond, config.Simulation.TickInterval)
	assert.Equal(t, int64(7), config.Simulation.Seed)

	assert.Equal(t, "offload", config.Engine.Backend)
	assert.Equal(t, "GPU", config.Engine.Device)
	assert.Equal(t, "nearest", config.Engine.NearestPolicy)
	// unset fields keep their defaults
	assert.Equal(t, "zero", config.Engine.NonFinitePolicy)
	assert.Equal(t, 0.02, config.Engine.Weights.Hunt)
	assert.Equal(t, 0.006, config.Engine.Weights.Cohere)

	require.Len(t, config.Flocks, 2)
	assert.Equal(t, Vector{X: 1, Y: 2, Z: 3}, config.Flocks[0].Center)
	assert.Equal(t, SpeedRange{Min: 1, Max: 2}, config.Flocks[0].Speed)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "hunters.csv"), config.Flocks[1].AgentsFile)

	assert.Equal(t, 5, config.Telemetry.Every)
	assert.Equal(t, "debug", config.Logging.ConsoleLevel)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestSchemaRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown device", "engine:\n  device: TPU\n"},
		{"unknown top-level key", "swarm: {}\n"},
		{"flock without agents", "flocks:\n  - name: a\n"},
		{"negative ticks", "simulation:\n  ticks: -1\n"},
		{"bad interval", "simulation:\n  tick_interval: soon\n"},
		{"negative weight", "engine:\n  weights:\n    hunt: -0.01\n"},
		{"short kernel list", "engine:\n  kernels:\n    sources: [a]\n    entries: [b]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			assert.ErrorContains(t, err, "schema validation failed")
		})
	}
}

func TestParseKeepsDefaultFlocks(t *testing.T) {
	config, err := Parse([]byte("simulation:\n  name: tiny\n  ticks: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, "tiny", config.Simulation.Name)
	assert.Equal(t, GetDefaultConfig().Flocks, config.Flocks)
}

func TestDefaultConfig(t *testing.T) {
	config := GetDefaultConfig()

	require.NoError(t, config.Validate())
	assert.Equal(t, "predator-chain", config.Simulation.Name)
	assert.Len(t, config.Flocks, 3)

	w := engine.DefaultWeights()
	opts := config.EngineOptions()
	assert.Equal(t, engine.BackendSerial, opts.Backend)
	assert.Equal(t, "CPU", opts.Device)
	assert.Equal(t, w, *opts.Weights)
	assert.Contains(t, config.String(), "Backend: serial")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *SimulationConfig)
		want   string
	}{
		{"missing name", func(c *SimulationConfig) { c.Simulation.Name = "" }, "name is required"},
		{"bad backend", func(c *SimulationConfig) { c.Engine.Backend = "cuda" }, "backend must be one of"},
		{"mismatched kernels", func(c *SimulationConfig) { c.Engine.Kernels.Sources = []string{"a"} }, "same length"},
		{"no flocks", func(c *SimulationConfig) { c.Flocks = nil }, "at least one flock"},
		{"duplicate flock", func(c *SimulationConfig) { c.Flocks[1].Name = c.Flocks[0].Name }, "duplicate name"},
		{"empty flock", func(c *SimulationConfig) { c.Flocks[0].Agents = 0 }, "agents must be positive"},
		{"inverted speed", func(c *SimulationConfig) { c.Flocks[0].Speed = SpeedRange{Min: 3, Max: 1} }, "speed range"},
		{"telemetry every", func(c *SimulationConfig) { c.Telemetry.Every = 0 }, "telemetry interval"},
		{"log level", func(c *SimulationConfig) { c.Logging.ConsoleLevel = "trace" }, "console level"},
		{"negative weight", func(c *SimulationConfig) { c.Engine.Weights.Hunt = -0.01 }, "weight hunt"},
		{"nan weight", func(c *SimulationConfig) { c.Engine.Weights.Cohere = math.NaN() }, "weight cohere"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := GetDefaultConfig()
			tt.mutate(config)
			assert.ErrorContains(t, config.Validate(), tt.want)
		})
	}

	config := GetDefaultConfig()
	config.Engine.Device = "FPGA"
	assert.True(t, errors.Is(config.Validate(), engine.ErrInvalidDevice))
}

func TestSaveAndReload(t *testing.T) {
	config := GetDefaultConfig()
	config.Simulation.TickInterval = 250 * time.Millisecond
	config.Engine.Kernels = KernelsConfig{Sources: engine.BuiltinSources(), Entries: engine.BuiltinEntries}

	path := filepath.Join(t.TempDir(), "nested", "flocksim.yaml")
	require.NoError(t, SaveConfig(config, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}

func TestMergeWithEnvironment(t *testing.T) {
	t.Setenv("FLOCKSIM_TICKS", "12")
	t.Setenv("FLOCKSIM_TICK_INTERVAL", "1s")
	t.Setenv("FLOCKSIM_BACKEND", "OFFLOAD")
	t.Setenv("FLOCKSIM_DEVICE", "acc")
	t.Setenv("FLOCKSIM_NEAREST_POLICY", "bogus")
	t.Setenv("FLOCKSIM_LOG_LEVEL", "WARN")
	t.Setenv("FLOCKSIM_TELEMETRY", "false")
	t.Setenv("FLOCKSIM_SEED", "not-a-number")

	config := GetDefaultConfig()
	MergeWithEnvironment(config)

	assert.Equal(t, 12, config.Simulation.Ticks)
	assert.Equal(t, time.Second, config.Simulation.TickInterval)
	assert.Equal(t, "offload", config.Engine.Backend)
	assert.Equal(t, "ACC", config.Engine.Device)
	assert.Equal(t, "last", config.Engine.NearestPolicy)
	assert.Equal(t, "warn", config.Logging.ConsoleLevel)
	assert.False(t, config.Telemetry.Enabled)
	assert.Equal(t, int64(1), config.Simulation.Seed)
}

func TestMergeWithCLIOverrides(t *testing.T) {
	config := GetDefaultConfig()
	MergeWithCLIOverrides(config, map[string]interface{}{
		KeyTicks:     9,
		KeySeed:      int64(42),
		KeyDevice:    "GPU",
		KeyBackend:   "",
		KeyOutputDir: "/tmp/run",
		KeyLogLevel:  "verbose",
		KeyTelemetry: "yes", // wrong type, ignored
	})

	assert.Equal(t, 9, config.Simulation.Ticks)
	assert.Equal(t, int64(42), config.Simulation.Seed)
	assert.Equal(t, "GPU", config.Engine.Device)
	assert.Equal(t, "serial", config.Engine.Backend)
	assert.Equal(t, "/tmp/run", config.Telemetry.OutputDir)
	assert.Equal(t, "info", config.Logging.ConsoleLevel)
	assert.True(t, config.Telemetry.Enabled)
}

func TestLoadConfigWithOverrides(t *testing.T) {
	path := writeScenario(t, "simulation:\n  name: layered\n  ticks: 5\n")
	t.Setenv("FLOCKSIM_TICKS", "8")

	config, err := LoadConfigWithOverrides(path, map[string]interface{}{KeyDevice: "GPU"})
	require.NoError(t, err)
	assert.Equal(t, 8, config.Simulation.Ticks)
	assert.Equal(t, "GPU", config.Engine.Device)

	_, err = LoadConfigWithOverrides(path, map[string]interface{}{KeyDevice: "TPU"})
	assert.ErrorIs(t, err, engine.ErrInvalidDevice)
}

func TestShippedScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	names := make(map[string]string)
	for _, path := range paths {
		cfg, err := LoadConfig(path)
		require.NoError(t, err, path)

		other, dup := names[cfg.Simulation.Name]
		assert.False(t, dup, "%s and %s share a name", path, other)
		names[cfg.Simulation.Name] = path
	}

	cfg, err := LoadConfig(filepath.Join("..", "..", "scenarios", "default.yaml"))
	require.NoError(t, err)
	def := GetDefaultConfig()
	assert.Equal(t, def.Engine, cfg.Engine)
	assert.Equal(t, def.Simulation.Ticks, cfg.Simulation.Ticks)
}
