package engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/picogrid/flock-simulations/pkg/flock"
)

// NeighborPolicy selects how the target agent of hunt and evade-nearest is chosen.
type NeighborPolicy string

const (
	// NeighborLast picks the last target agent closer than the sentinel
	// distance. The running minimum is never tightened, so for any
	// realistic layout this is the last agent of the target flock.
	NeighborLast NeighborPolicy = "last"
	// NeighborNearest picks the true closest agent, lowest index on ties.
	NeighborNearest NeighborPolicy = "nearest"
)

// neighborSentinel is the distance every candidate is compared against
// under NeighborLast.
const neighborSentinel = 99999999.9

// ParseNeighborPolicy converts a config string into a policy
func ParseNeighborPolicy(s string) (NeighborPolicy, error) {
	switch NeighborPolicy(s) {
	case "":
		return NeighborLast, nil
	case NeighborLast, NeighborNearest:
		return NeighborPolicy(s), nil
	}
	return "", fmt.Errorf("unknown neighbor policy %q (want %s or %s)", s, NeighborLast, NeighborNearest)
}

// Find returns the index of the target agent selected for source under
// the policy. Brute force over every target agent.
func (p NeighborPolicy) Find(source r3.Vec, target *flock.Flock) int {
	if p == NeighborNearest {
		return nearestIndex(source, target)
	}
	return lastBelowSentinel(source, target)
}

func lastBelowSentinel(source r3.Vec, target *flock.Flock) int {
	index := 0
	for j := 0; j < target.Len(); j++ {
		if r3.Norm(r3.Sub(source, target.Position(j))) < neighborSentinel {
			index = j
		}
	}
	return index
}

func nearestIndex(source r3.Vec, target *flock.Flock) int {
	index := 0
	best := math.Inf(1)
	for j := 0; j < target.Len(); j++ {
		d := r3.Norm(r3.Sub(source, target.Position(j)))
		if d < best {
			best = d
			index = j
		}
	}
	return index
}
