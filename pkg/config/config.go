package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/picogrid/flock-simulations/pkg/engine"
)

// SimulationConfig holds the complete scenario configuration
type SimulationConfig struct {
	// Basic run settings
	Simulation SimulationSettings `yaml:"simulation"`

	// Compute backend and behavior tuning
	Engine EngineConfig `yaml:"engine"`

	// Flocks in chain order: each flock hunts the one before it
	Flocks []FlockConfig `yaml:"flocks"`

	// CSV output
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Console output
	Logging LoggingConfig `yaml:"logging"`
}

// SimulationSettings holds basic run settings
type SimulationSettings struct {
	Name         string        `yaml:"name"`
	Description  string        `yaml:"description"`
	Ticks        int           `yaml:"ticks"`         // 0 runs until interrupted
	TickInterval time.Duration `yaml:"tick_interval"` // 0 runs ticks back to back
	Seed         int64         `yaml:"seed"`
}

// KernelsConfig names the kernel source and entry point for each slot, in
// slot order. Both empty selects the builtin kernels.
type KernelsConfig struct {
	Sources []string `yaml:"sources,omitempty"`
	Entries []string `yaml:"entries,omitempty"`
}

// WeightsConfig scales each behavior's contribution to the per-tick turn
type WeightsConfig struct {
	Hunt         float64 `yaml:"hunt"`
	EvadeNearest float64 `yaml:"evade_nearest"`
	EvadePack    float64 `yaml:"evade_pack"`
	Align        float64 `yaml:"align"`
	Separate     float64 `yaml:"separate"`
	Cohere       float64 `yaml:"cohere"`
}

// EngineConfig selects the compute backend and behavior policies
type EngineConfig struct {
	Backend         string        `yaml:"backend"` // "serial", "offload"
	Device          string        `yaml:"device"`  // "CPU", "GPU", "ACC"
	Kernels         KernelsConfig `yaml:"kernels,omitempty"`
	NearestPolicy   string        `yaml:"nearest_policy"`    // "last", "nearest"
	NonFinitePolicy string        `yaml:"non_finite_policy"` // "zero", "propagate"
	Weights         WeightsConfig `yaml:"weights"`
}

// Vector is a point in world space
type Vector struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// SpeedRange bounds generated agent speeds
type SpeedRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// FlockConfig describes how a flock's agents are created. When AgentsFile is
// set the agents are read from that CSV snapshot and the generation fields
// are ignored.
type FlockConfig struct {
	Name       string     `yaml:"name"`
	Agents     int        `yaml:"agents,omitempty"`
	AgentsFile string     `yaml:"agents_file,omitempty"`
	Center     Vector     `yaml:"center"`
	Spread     float64    `yaml:"spread"` // half edge of the spawn cube
	Speed      SpeedRange `yaml:"speed"`
}

// TelemetryConfig controls CSV output
type TelemetryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	Every     int    `yaml:"every"`    // record a summary every N ticks
	Snapshot  bool   `yaml:"snapshot"` // write agents.csv when the run ends
}

// LoggingConfig controls console output
type LoggingConfig struct {
	ConsoleLevel string `yaml:"console_level"` // "debug", "info", "warn", "error"
	NoColor      bool   `yaml:"no_color"`
}

var (
	validBackends        = []string{string(engine.BackendSerial), string(engine.BackendOffload)}
	validDevices         = []string{string(engine.DeviceCPU), string(engine.DeviceGPU), string(engine.DeviceACC)}
	validNearestPolicies = []string{string(engine.NeighborLast), string(engine.NeighborNearest)}
	validNonFinite       = []string{string(engine.NonFiniteZero), string(engine.NonFinitePropagate)}
	validLevels          = []string{"debug", "info", "warn", "error"}
)

func oneOf(value string, valid []string) bool {
	for _, v := range valid {
		if value == v {
			return true
		}
	}
	return false
}

// Validate checks if the configuration is valid
func (c *SimulationConfig) Validate() error {
	if c.Simulation.Name == "" {
		return fmt.Errorf("simulation name is required")
	}

	if c.Simulation.Ticks < 0 {
		return fmt.Errorf("ticks must not be negative")
	}

	if c.Simulation.TickInterval < 0 {
		return fmt.Errorf("tick interval must not be negative")
	}

	if !oneOf(c.Engine.Backend, validBackends) {
		return fmt.Errorf("backend must be one of %s", strings.Join(validBackends, ", "))
	}

	if !oneOf(c.Engine.Device, validDevices) {
		return fmt.Errorf("%w: %q", engine.ErrInvalidDevice, c.Engine.Device)
	}

	if len(c.Engine.Kernels.Sources) != len(c.Engine.Kernels.Entries) {
		return fmt.Errorf("kernel sources and entries must have the same length")
	}
	if n := len(c.Engine.Kernels.Sources); n != 0 && n != len(engine.Slots()) {
		return fmt.Errorf("kernels must name all %d slots, got %d", len(engine.Slots()), n)
	}

	w := c.Engine.Weights
	for _, weight := range []struct {
		name  string
		value float64
	}{
		{"hunt", w.Hunt},
		{"evade_nearest", w.EvadeNearest},
		{"evade_pack", w.EvadePack},
		{"align", w.Align},
		{"separate", w.Separate},
		{"cohere", w.Cohere},
	} {
		if weight.value < 0 || math.IsNaN(weight.value) || math.IsInf(weight.value, 0) {
			return fmt.Errorf("weight %s must be a finite non-negative number, got %v", weight.name, weight.value)
		}
	}

	if !oneOf(c.Engine.NearestPolicy, validNearestPolicies) {
		return fmt.Errorf("nearest policy must be one of %s", strings.Join(validNearestPolicies, ", "))
	}

	if !oneOf(c.Engine.NonFinitePolicy, validNonFinite) {
		return fmt.Errorf("non-finite policy must be one of %s", strings.Join(validNonFinite, ", "))
	}

	if len(c.Flocks) == 0 {
		return fmt.Errorf("at least one flock is required")
	}

	names := make(map[string]bool, len(c.Flocks))
	for i, f := range c.Flocks {
		if f.Name == "" {
			return fmt.Errorf("flock %d: name is required", i)
		}
		if names[f.Name] {
			return fmt.Errorf("flock %s: duplicate name", f.Name)
		}
		names[f.Name] = true

		if f.AgentsFile != "" {
			continue
		}
		if f.Agents <= 0 {
			return fmt.Errorf("flock %s: number of agents must be positive", f.Name)
		}
		if f.Spread < 0 {
			return fmt.Errorf("flock %s: spread must not be negative", f.Name)
		}
		if f.Speed.Min < 0 || f.Speed.Min > f.Speed.Max {
			return fmt.Errorf("flock %s: speed range must satisfy 0 <= min <= max", f.Name)
		}
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.OutputDir == "" {
			return fmt.Errorf("telemetry output dir is required")
		}
		if c.Telemetry.Every <= 0 {
			return fmt.Errorf("telemetry interval must be positive")
		}
	}

	if !oneOf(c.Logging.ConsoleLevel, validLevels) {
		return fmt.Errorf("console level must be one of %s", strings.Join(validLevels, ", "))
	}

	return nil
}

// EngineOptions converts the engine section into engine options. The logger
// and registry are left for the caller.
func (c *SimulationConfig) EngineOptions() engine.Options {
	w := c.Engine.Weights
	return engine.Options{
		Backend:         engine.BackendKind(c.Engine.Backend),
		Device:          c.Engine.Device,
		KernelSources:   c.Engine.Kernels.Sources,
		KernelEntries:   c.Engine.Kernels.Entries,
		NeighborPolicy:  engine.NeighborPolicy(c.Engine.NearestPolicy),
		NonFinitePolicy: engine.NonFinitePolicy(c.Engine.NonFinitePolicy),
		Weights: &engine.Weights{
			Hunt:         w.Hunt,
			EvadeNearest: w.EvadeNearest,
			EvadePack:    w.EvadePack,
			Align:        w.Align,
			Separate:     w.Separate,
			Cohere:       w.Cohere,
		},
	}
}

// String returns a human-readable representation of the configuration
func (c *SimulationConfig) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, `Simulation Configuration:
  Name: %s
  Description: %s
  Ticks: %d
  Tick Interval: %v
  Seed: %d

Engine:
  Backend: %s
  Device: %s
  Nearest Policy: %s
  Non-finite Policy: %s
  Weights: hunt=%g evade_nearest=%g evade_pack=%g align=%g separate=%g cohere=%g

Flocks:
`,
		c.Simulation.Name,
		c.Simulation.Description,
		c.Simulation.Ticks,
		c.Simulation.TickInterval,
		c.Simulation.Seed,
		c.Engine.Backend,
		c.Engine.Device,
		c.Engine.NearestPolicy,
		c.Engine.NonFinitePolicy,
		c.Engine.Weights.Hunt,
		c.Engine.Weights.EvadeNearest,
		c.Engine.Weights.EvadePack,
		c.Engine.Weights.Align,
		c.Engine.Weights.Separate,
		c.Engine.Weights.Cohere,
	)
	for _, f := range c.Flocks {
		if f.AgentsFile != "" {
			fmt.Fprintf(&b, "  %s: from %s\n", f.Name, f.AgentsFile)
			continue
		}
		fmt.Fprintf(&b, "  %s: %d agents around (%g, %g, %g), spread %g, speed %g-%g\n",
			f.Name, f.Agents, f.Center.X, f.Center.Y, f.Center.Z, f.Spread, f.Speed.Min, f.Speed.Max)
	}
	fmt.Fprintf(&b, `
Telemetry:
  Enabled: %t
  Output Dir: %s
  Every: %d ticks
  Snapshot: %t

Logging:
  Console Level: %s`,
		c.Telemetry.Enabled,
		c.Telemetry.OutputDir,
		c.Telemetry.Every,
		c.Telemetry.Snapshot,
		c.Logging.ConsoleLevel,
	)
	return b.String()
}

// GetDefaultConfig returns a three-flock predator chain on the serial backend
func GetDefaultConfig() *SimulationConfig {
	w := engine.DefaultWeights()
	return &SimulationConfig{
		Simulation: SimulationSettings{
			Name:         "predator-chain",
			Description:  "Three flocks where each hunts the one before it",
			Ticks:        500,
			TickInterval: 0,
			Seed:         1,
		},

		Engine: EngineConfig{
			Backend:         string(engine.BackendSerial),
			Device:          string(engine.DeviceCPU),
			NearestPolicy:   string(engine.NeighborLast),
			NonFinitePolicy: string(engine.NonFiniteZero),
			Weights: WeightsConfig{
				Hunt:         w.Hunt,
				EvadeNearest: w.EvadeNearest,
				EvadePack:    w.EvadePack,
				Align:        w.Align,
				Separate:     w.Separate,
				Cohere:       w.Cohere,
			},
		},

		Flocks: []FlockConfig{
			{
				Name:   "sparrows",
				Agents: 200,
				Center: Vector{X: 0, Y: 0, Z: 0},
				Spread: 50,
				Speed:  SpeedRange{Min: 1, Max: 2},
			},
			{
				Name:   "hawks",
				Agents: 20,
				Center: Vector{X: 120, Y: 0, Z: 0},
				Spread: 20,
				Speed:  SpeedRange{Min: 2, Max: 3},
			},
			{
				Name:   "eagles",
				Agents: 4,
				Center: Vector{X: 200, Y: 40, Z: 10},
				Spread: 10,
				Speed:  SpeedRange{Min: 2.5, Max: 3.5},
			},
		},

		Telemetry: TelemetryConfig{
			Enabled:   true,
			OutputDir: "./output/",
			Every:     10,
			Snapshot:  true,
		},

		Logging: LoggingConfig{
			ConsoleLevel: "info",
		},
	}
}
