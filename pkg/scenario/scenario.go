// Package scenario turns the flocks section of a configuration into a flock
// collection, either by seeded generation or by loading a CSV snapshot.
package scenario

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/picogrid/flock-simulations/pkg/config"
	"github.com/picogrid/flock-simulations/pkg/flock"
	"github.com/picogrid/flock-simulations/pkg/telemetry"
)

// Build creates every configured flock in order. Generated flocks draw from
// a single RNG seeded with cfg.Simulation.Seed, so the same configuration
// always produces the same agents.
func Build(cfg *config.SimulationConfig) (*flock.Collection, error) {
	rng := rand.New(rand.NewSource(cfg.Simulation.Seed))

	flocks := make([]*flock.Flock, 0, len(cfg.Flocks))
	for _, fc := range cfg.Flocks {
		var agents []flock.Agent
		var err error

		if fc.AgentsFile != "" {
			agents, err = LoadAgents(fc.AgentsFile, fc.Name)
			if err != nil {
				return nil, err
			}
		} else {
			agents = Generate(rng, fc)
		}

		f, err := flock.New(fc.Name, agents)
		if err != nil {
			return nil, fmt.Errorf("building flock %s: %w", fc.Name, err)
		}
		flocks = append(flocks, f)
	}

	return flock.NewCollection(flocks...)
}

// Generate places fc.Agents agents uniformly in a cube of half edge
// fc.Spread around fc.Center. Speed is uniform in the configured range,
// theta in [0, π) and epsilon in [0, 2π).
func Generate(rng *rand.Rand, fc config.FlockConfig) []flock.Agent {
	uniform := func(lo, hi float64) float64 {
		return lo + rng.Float64()*(hi-lo)
	}

	agents := make([]flock.Agent, fc.Agents)
	for i := range agents {
		agents[i] = flock.Agent{
			X:       uniform(fc.Center.X-fc.Spread, fc.Center.X+fc.Spread),
			Y:       uniform(fc.Center.Y-fc.Spread, fc.Center.Y+fc.Spread),
			Z:       uniform(fc.Center.Z-fc.Spread, fc.Center.Z+fc.Spread),
			Speed:   uniform(fc.Speed.Min, fc.Speed.Max),
			Theta:   uniform(0, math.Pi),
			Epsilon: uniform(0, 2*math.Pi),
		}
	}
	return agents
}

// LoadAgents reads a flock's agents from a CSV snapshot. Rows tagged with a
// flock name are filtered by name; a file without flock names is used whole.
func LoadAgents(path, name string) ([]flock.Agent, error) {
	records, err := telemetry.ReadAgents(path)
	if err != nil {
		return nil, err
	}

	tagged := false
	for _, r := range records {
		if r.Flock != "" {
			tagged = true
			break
		}
	}

	var agents []flock.Agent
	for _, r := range records {
		if tagged && r.Flock != name {
			continue
		}
		agents = append(agents, r.Agent())
	}

	if len(agents) == 0 {
		return nil, fmt.Errorf("no agents for flock %s in %s: %w", name, path, flock.ErrEmptyFlock)
	}
	return agents, nil
}
