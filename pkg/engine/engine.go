// Package engine computes the per-tick orientation change of every agent in
// an ordered chain of flocks. Each flock hunts the flock before it, the
// first flock evades the flock after it, and every flock aligns, separates
// and coheres with itself.
package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/picogrid/flock-simulations/pkg/flock"
	"github.com/picogrid/flock-simulations/pkg/logger"
)

// Weights scales each behavior's contribution to the per-tick turn.
type Weights struct {
	Hunt         float64
	EvadeNearest float64
	EvadePack    float64
	Align        float64
	Separate     float64
	Cohere       float64
}

// DefaultWeights returns the standard behavior weights
func DefaultWeights() Weights {
	return Weights{
		Hunt:         0.01,
		EvadeNearest: 0.01,
		EvadePack:    0.01,
		Align:        0.004,
		Separate:     0.004,
		Cohere:       0.006,
	}
}

// NonFinitePolicy decides what happens to NaN or infinite behavior deltas,
// which arise from coincident positions or zero speed.
type NonFinitePolicy string

const (
	// NonFiniteZero treats a non-finite delta component as no turn.
	NonFiniteZero NonFinitePolicy = "zero"
	// NonFinitePropagate commits the value unchanged, so the agent's
	// orientation becomes NaN for all later ticks.
	NonFinitePropagate NonFinitePolicy = "propagate"
)

// ParseNonFinitePolicy converts a config string into a policy
func ParseNonFinitePolicy(s string) (NonFinitePolicy, error) {
	switch NonFinitePolicy(s) {
	case "":
		return NonFiniteZero, nil
	case NonFiniteZero, NonFinitePropagate:
		return NonFinitePolicy(s), nil
	}
	return "", fmt.Errorf("unknown non-finite policy %q (want %s or %s)", s, NonFiniteZero, NonFinitePropagate)
}

// Options configures an Engine. The zero value selects the serial backend on
// device CPU with the default weights and policies.
type Options struct {
	Backend BackendKind
	Device  string

	// KernelSources and KernelEntries are paired positionally with the
	// kernel slots. Only used by the offload backend; empty selects the
	// builtin kernels.
	KernelSources []string
	KernelEntries []string
	Registry      *KernelRegistry

	// Strategy, when set, is used instead of building a backend from
	// Backend. Device is still validated.
	Strategy Backend

	Weights         *Weights
	NeighborPolicy  NeighborPolicy
	NonFinitePolicy NonFinitePolicy
	Logger          logger.Logger
}

// FlockReport summarizes one flock's last processed tick.
type FlockReport struct {
	Name      string
	Agents    int
	Hunted    bool
	Evaded    bool
	NonFinite int // agents with at least one non-finite behavior delta
}

// TickReport summarizes the last completed tick.
type TickReport struct {
	Tick     uint64
	Duration time.Duration
	Flocks   []FlockReport
}

// Engine advances the orientation of every flock once per tick.
type Engine struct {
	flocks    *flock.Collection
	chain     *flock.ThreatChain
	cache     *AverageCache
	backend   Backend
	weights   Weights
	policy    NeighborPolicy
	nonFinite NonFinitePolicy
	log       logger.Logger

	tick uint64
	last TickReport
}

// New creates an engine over flocks. The engine does not own the flocks; it
// mutates their orientation in place on every tick.
func New(flocks *flock.Collection, opts Options) (*Engine, error) {
	if flocks == nil || flocks.Len() == 0 {
		return nil, flock.ErrNoFlocks
	}

	device := opts.Device
	if device == "" {
		device = string(DeviceCPU)
	}
	if _, err := ParseDeviceClass(device); err != nil {
		return nil, err
	}

	policy, err := ParseNeighborPolicy(string(opts.NeighborPolicy))
	if err != nil {
		return nil, err
	}
	nonFinite, err := ParseNonFinitePolicy(string(opts.NonFinitePolicy))
	if err != nil {
		return nil, err
	}

	backend := opts.Strategy
	if backend == nil {
		backend, err = buildBackend(device, opts)
		if err != nil {
			return nil, err
		}
	}

	weights := DefaultWeights()
	if opts.Weights != nil {
		weights = *opts.Weights
	}

	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	e := &Engine{
		flocks:    flocks,
		chain:     flock.NewThreatChain(flocks),
		cache:     NewAverageCache(flocks, backend),
		backend:   backend,
		weights:   weights,
		policy:    policy,
		nonFinite: nonFinite,
		log:       log.WithPrefix("engine"),
	}

	e.log.WithFields(map[string]interface{}{
		"backend":   backend.Name(),
		"flocks":    flocks.Len(),
		"agents":    flocks.TotalAgents(),
		"neighbors": string(policy),
	}).Debug("engine ready")

	return e, nil
}

func buildBackend(device string, opts Options) (Backend, error) {
	kind, err := ParseBackendKind(string(opts.Backend))
	if err != nil {
		return nil, err
	}
	if kind == BackendSerial {
		return NewSerialBackend(), nil
	}

	sources, entries := opts.KernelSources, opts.KernelEntries
	if len(sources) == 0 && len(entries) == 0 {
		sources, entries = BuiltinSources(), BuiltinEntries
	}
	return NewOffloadBackend(device, sources, entries, opts.Registry)
}

// Backend returns the active execution strategy
func (e *Engine) Backend() Backend { return e.backend }

// Averages returns the average-state cache
func (e *Engine) Averages() *AverageCache { return e.cache }

// Chain returns the threat chain derived from flock order
func (e *Engine) Chain() *flock.ThreatChain { return e.chain }

// Flocks returns the flock collection
func (e *Engine) Flocks() *flock.Collection { return e.flocks }

// Tick returns the number of completed ticks
func (e *Engine) Tick() uint64 { return e.tick }

// LastTick returns the report of the last completed tick
func (e *Engine) LastTick() TickReport { return e.last }

// AdvanceOneTick refreshes the average cache, then processes and commits
// every flock in chain order. Cross-flock reads only touch positions, which
// a tick never changes, so committing flock i before processing flock i+1
// does not affect i+1's result.
//
// A dispatch failure aborts the tick; flocks committed earlier in the same
// tick stay mutated.
func (e *Engine) AdvanceOneTick() error {
	start := time.Now()
	next := e.tick + 1

	if err := e.cache.Refresh(); err != nil {
		return fmt.Errorf("tick %d: %w", next, err)
	}

	reports := make([]FlockReport, e.flocks.Len())
	for i := range reports {
		report, err := e.processFlock(i)
		if err != nil {
			return fmt.Errorf("tick %d: flock %q: %w", next, e.flocks.At(i).Name(), err)
		}
		reports[i] = report
	}

	e.tick = next
	elapsed := time.Since(start)
	e.last = TickReport{Tick: next, Duration: elapsed, Flocks: reports}

	ticksTotal.Inc()
	tickDuration.WithLabelValues(e.backend.Name()).Observe(elapsed.Seconds())
	e.log.Debugf("tick %d done in %s", next, elapsed)

	return nil
}

// RefreshAverages recomputes the average cache outside of a tick
func (e *Engine) RefreshAverages() error {
	return e.cache.Refresh()
}

func (e *Engine) processFlock(i int) (FlockReport, error) {
	f := e.flocks.At(i)
	rel := e.chain.Of(i)
	acc := newDeltas(f.Len())
	bad := make([]bool, f.Len())
	report := FlockReport{Name: f.Name(), Agents: f.Len()}

	type step struct {
		slot   KernelSlot
		weight float64
		run    func() (Deltas, error)
	}
	var steps []step

	switch {
	case rel.Prey.Valid:
		report.Hunted = true
		steps = append(steps, step{SlotHunt, e.weights.Hunt, func() (Deltas, error) {
			return e.Hunt(i, rel.Prey.Index)
		}})
	case rel.Predator.Valid:
		report.Evaded = true
		steps = append(steps,
			step{SlotEvadeNearest, e.weights.EvadeNearest, func() (Deltas, error) {
				return e.EvadeNearest(i, rel.Predator.Index)
			}},
			step{SlotEvadePack, e.weights.EvadePack, func() (Deltas, error) {
				return e.EvadePack(i, rel.Predator.Index)
			}},
		)
	}
	steps = append(steps,
		step{SlotAlign, e.weights.Align, func() (Deltas, error) { return e.Align(i) }},
		step{SlotSeparate, e.weights.Separate, func() (Deltas, error) { return e.Separate(i) }},
		step{SlotCohere, e.weights.Cohere, func() (Deltas, error) { return e.Cohere(i) }},
	)

	for _, s := range steps {
		d, err := s.run()
		if err != nil {
			return report, fmt.Errorf("%s: %w", s.slot, err)
		}
		e.accumulate(acc, d, s.weight, s.slot, bad)
	}

	for j := range acc.Theta {
		f.AddTheta(WrapTheta(acc.Theta[j]), j)
		f.AddEpsilon(WrapEpsilon(acc.Epsilon[j]), j)
		// stored angles go through the same wrap as the deltas
		f.SetTheta(WrapTheta(f.ThetaAt(j)), j)
		f.SetEpsilon(WrapEpsilon(f.EpsilonAt(j)), j)
		if bad[j] {
			report.NonFinite++
		}
	}

	if report.NonFinite > 0 {
		e.log.WithField("flock", f.Name()).Warnf("%d agents produced non-finite deltas (policy %s)",
			report.NonFinite, e.nonFinite)
	}
	return report, nil
}

// accumulate adds w*d onto acc, applying the non-finite policy per component.
func (e *Engine) accumulate(acc, d Deltas, w float64, slot KernelSlot, bad []bool) {
	count := 0
	for j := range acc.Theta {
		t, ep := d.Theta[j], d.Epsilon[j]
		tBad, eBad := !isFinite(t), !isFinite(ep)
		if tBad || eBad {
			count++
			bad[j] = true
			if e.nonFinite == NonFiniteZero {
				if tBad {
					t = 0
				}
				if eBad {
					ep = 0
				}
			}
		}
		acc.Theta[j] += t * w
		acc.Epsilon[j] += ep * w
	}
	if count > 0 {
		nonFiniteDeltas.WithLabelValues(slot.String()).Add(float64(count))
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ErrFlockIndex is returned for a flock index outside the collection.
var ErrFlockIndex = errors.New("flock index out of range")

func (e *Engine) flockAt(i int) (*flock.Flock, error) {
	if i < 0 || i >= e.flocks.Len() {
		return nil, fmt.Errorf("%w: %d", ErrFlockIndex, i)
	}
	return e.flocks.At(i), nil
}
