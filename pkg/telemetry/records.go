// Package telemetry writes per-tick flock summaries and agent snapshots as
// CSV so runs can be analyzed or replayed.
package telemetry

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/picogrid/flock-simulations/pkg/engine"
	"github.com/picogrid/flock-simulations/pkg/flock"
)

// FlockRecord is one row of flocks.csv: the state of a flock after a tick.
type FlockRecord struct {
	RunID     string `csv:"run_id"`
	Tick      uint64 `csv:"tick"`
	Flock     string `csv:"flock"`
	Agents    int    `csv:"agents"`
	Hunted    bool   `csv:"hunted"`
	Evaded    bool   `csv:"evaded"`
	NonFinite int    `csv:"non_finite"`

	MeanX float64 `csv:"mean_x"`
	MeanY float64 `csv:"mean_y"`
	MeanZ float64 `csv:"mean_z"`

	// Largest axis-aligned extent of the flock
	Extent float64 `csv:"extent"`

	MeanTheta     float64 `csv:"mean_theta"`
	MeanEpsilon   float64 `csv:"mean_epsilon"`
	StdDevTheta   float64 `csv:"stddev_theta"`
	StdDevEpsilon float64 `csv:"stddev_epsilon"`
}

// AgentRecord is one row of agents.csv. Files with only the agent columns
// are also accepted when reading.
type AgentRecord struct {
	Tick    uint64  `csv:"tick"`
	Flock   string  `csv:"flock"`
	Index   int     `csv:"index"`
	X       float64 `csv:"x"`
	Y       float64 `csv:"y"`
	Z       float64 `csv:"z"`
	Speed   float64 `csv:"speed"`
	Theta   float64 `csv:"theta"`
	Epsilon float64 `csv:"epsilon"`
}

// Agent converts the record into an initial agent state
func (r AgentRecord) Agent() flock.Agent {
	return flock.Agent{
		X:       r.X,
		Y:       r.Y,
		Z:       r.Z,
		Speed:   r.Speed,
		Theta:   r.Theta,
		Epsilon: r.Epsilon,
	}
}

// Summarize builds the flocks.csv row for f. The report carries the roles
// and non-finite count from the tick that produced the current state.
func Summarize(runID string, tick uint64, f *flock.Flock, report engine.FlockReport) FlockRecord {
	x, y, z := f.PositionsX(), f.PositionsY(), f.PositionsZ()
	thetas, epsilons := f.Thetas(), f.Epsilons()

	extent := 0.0
	for _, axis := range [][]float64{x, y, z} {
		extent = math.Max(extent, floats.Max(axis)-floats.Min(axis))
	}

	return FlockRecord{
		RunID:         runID,
		Tick:          tick,
		Flock:         f.Name(),
		Agents:        f.Len(),
		Hunted:        report.Hunted,
		Evaded:        report.Evaded,
		NonFinite:     report.NonFinite,
		MeanX:         stat.Mean(x, nil),
		MeanY:         stat.Mean(y, nil),
		MeanZ:         stat.Mean(z, nil),
		Extent:        extent,
		MeanTheta:     stat.Mean(thetas, nil),
		MeanEpsilon:   stat.Mean(epsilons, nil),
		StdDevTheta:   math.Sqrt(stat.PopVariance(thetas, nil)),
		StdDevEpsilon: math.Sqrt(stat.PopVariance(epsilons, nil)),
	}
}

// Snapshot returns one AgentRecord per agent of every flock, in chain order
func Snapshot(tick uint64, flocks *flock.Collection) []AgentRecord {
	records := make([]AgentRecord, 0, flocks.TotalAgents())
	for _, f := range flocks.Flocks() {
		for i := 0; i < f.Len(); i++ {
			a := f.Agent(i)
			records = append(records, AgentRecord{
				Tick:    tick,
				Flock:   f.Name(),
				Index:   i,
				X:       a.X,
				Y:       a.Y,
				Z:       a.Z,
				Speed:   a.Speed,
				Theta:   a.Theta,
				Epsilon: a.Epsilon,
			})
		}
	}
	return records
}
