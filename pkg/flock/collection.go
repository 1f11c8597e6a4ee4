package flock

import (
	"errors"
	"fmt"
)

// ErrNoFlocks is returned when a collection is built without flocks.
var ErrNoFlocks = errors.New("collection must contain at least one flock")

// Collection is the ordered set of flocks taking part in a simulation.
// Order defines the threat chain: flock i hunts flock i-1 and is hunted by
// flock i+1.
type Collection struct {
	flocks []*Flock
	index  map[string]int
}

// NewCollection creates an ordered collection. Flock names must be unique.
func NewCollection(flocks ...*Flock) (*Collection, error) {
	if len(flocks) == 0 {
		return nil, ErrNoFlocks
	}

	c := &Collection{
		flocks: make([]*Flock, 0, len(flocks)),
		index:  make(map[string]int, len(flocks)),
	}
	for i, f := range flocks {
		if f == nil {
			return nil, fmt.Errorf("flock at position %d is nil", i)
		}
		if f.Len() == 0 {
			return nil, fmt.Errorf("flock %q: %w", f.Name(), ErrEmptyFlock)
		}
		if _, exists := c.index[f.Name()]; exists {
			return nil, fmt.Errorf("flock %s already registered", f.Name())
		}
		c.index[f.Name()] = i
		c.flocks = append(c.flocks, f)
	}

	return c, nil
}

// Len returns the number of flocks
func (c *Collection) Len() int { return len(c.flocks) }

// At returns the flock at position i
func (c *Collection) At(i int) *Flock { return c.flocks[i] }

// Flocks returns the flocks in chain order. The slice must not be modified.
func (c *Collection) Flocks() []*Flock { return c.flocks }

// Lookup returns the position of the named flock
func (c *Collection) Lookup(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// TotalAgents returns the sum of agent counts over all flocks
func (c *Collection) TotalAgents() int {
	total := 0
	for _, f := range c.flocks {
		total += f.Len()
	}
	return total
}
