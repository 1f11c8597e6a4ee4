package simulation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownSimulation is returned by Get for names nothing registered
	ErrUnknownSimulation = errors.New("unknown simulation")
	// ErrDuplicateSimulation is returned by Register when a name is taken
	ErrDuplicateSimulation = errors.New("simulation already registered")
)

// Factory creates a fresh, unconfigured simulation
type Factory func() Simulation

// Registry maps simulation names to factories. Every Get returns a new
// instance, so a simulation is configured and run at most once.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds factory under name
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("simulation needs a name and a factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.factories[name]; taken {
		return fmt.Errorf("%w: %s", ErrDuplicateSimulation, name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is Register for package init, panicking on error
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Get returns a new instance of the named simulation
func (r *Registry) Get(name string) (Simulation, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSimulation, name)
	}
	return factory(), nil
}

// List returns the registered names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the simulations shipped with flocksim
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.MustRegister(FlockingName, func() Simulation { return NewRunner() })
	DefaultRegistry.MustRegister(BenchmarkName, func() Simulation { return NewBenchmark() })
}
