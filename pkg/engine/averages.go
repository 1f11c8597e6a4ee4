package engine

import (
	"fmt"

	"github.com/picogrid/flock-simulations/pkg/flock"
)

// AverageCache holds the mean state of every flock for the current tick.
// It is refreshed once per tick before any behavior runs and is read-only
// for the rest of the tick.
type AverageCache struct {
	flocks  *flock.Collection
	backend Backend
	states  []AverageState
}

// NewAverageCache creates a zeroed cache for flocks
func NewAverageCache(flocks *flock.Collection, backend Backend) *AverageCache {
	c := &AverageCache{flocks: flocks, backend: backend}
	c.Reset()
	return c
}

// Reset zeroes every cached value, sized to the current flock count
func (c *AverageCache) Reset() {
	c.states = make([]AverageState, c.flocks.Len())
}

// Refresh recomputes the mean state of every flock from its own agents
func (c *AverageCache) Refresh() error {
	c.Reset()
	for i, f := range c.flocks.Flocks() {
		avg, err := c.backend.Averages(f)
		if err != nil {
			return fmt.Errorf("averages for flock %q: %w", f.Name(), err)
		}
		c.states[i] = avg
	}
	return nil
}

// At returns the cached mean state of flock i
func (c *AverageCache) At(i int) AverageState {
	return c.states[i]
}

// Len returns the number of cached flocks
func (c *AverageCache) Len() int {
	return len(c.states)
}
