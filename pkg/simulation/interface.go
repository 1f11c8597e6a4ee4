package simulation

import (
	"context"

	"github.com/picogrid/flock-simulations/pkg/config"
)

// Simulation defines the interface that all simulations must implement
type Simulation interface {
	// Name returns the name of the simulation
	Name() string

	// Description returns a brief description of what the simulation does
	Description() string

	// Configure sets up the simulation from a validated scenario
	Configure(cfg *config.SimulationConfig) error

	// Run executes the simulation until it completes or ctx is cancelled
	Run(ctx context.Context) error

	// Stop gracefully shuts down the simulation
	Stop() error
}
