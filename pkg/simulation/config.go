package simulation

import (
	"github.com/picogrid/flock-simulations/pkg/config"
	"github.com/picogrid/flock-simulations/pkg/engine"
)

// Parameter defines a run setting that can be prompted for before a run.
// Name is one of the config.Key* override keys.
type Parameter struct {
	Name        string      `yaml:"name"`
	Type        string      `yaml:"type"` // integer, float, string, duration, boolean
	Description string      `yaml:"description"`
	Default     interface{} `yaml:"default"`
	Required    bool        `yaml:"required"`
	Min         interface{} `yaml:"min,omitempty"`
	Max         interface{} `yaml:"max,omitempty"`
	Options     []string    `yaml:"options,omitempty"` // For string enums
}

// RunParameters lists the settings offered for interactive override, with
// defaults taken from cfg.
func RunParameters(cfg *config.SimulationConfig) []Parameter {
	return []Parameter{
		{
			Name:        config.KeyBackend,
			Type:        "string",
			Description: "Compute backend",
			Default:     cfg.Engine.Backend,
			Required:    true,
			Options:     []string{string(engine.BackendSerial), string(engine.BackendOffload)},
		},
		{
			Name:        config.KeyDevice,
			Type:        "string",
			Description: "Device class",
			Default:     cfg.Engine.Device,
			Required:    true,
			Options:     []string{string(engine.DeviceCPU), string(engine.DeviceGPU), string(engine.DeviceACC)},
		},
		{
			Name:        config.KeyTicks,
			Type:        "integer",
			Description: "Number of ticks (0 runs until interrupted)",
			Default:     cfg.Simulation.Ticks,
			Required:    true,
			Min:         0,
		},
		{
			Name:        config.KeyTickInterval,
			Type:        "duration",
			Description: "Wall-clock interval between ticks",
			Default:     cfg.Simulation.TickInterval.String(),
		},
		{
			Name:        config.KeySeed,
			Type:        "integer",
			Description: "Random seed for generated flocks",
			Default:     int(cfg.Simulation.Seed),
		},
		{
			Name:        config.KeyTelemetry,
			Type:        "boolean",
			Description: "Write CSV telemetry",
			Default:     cfg.Telemetry.Enabled,
		},
	}
}
