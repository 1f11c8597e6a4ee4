package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/picogrid/flock-simulations/pkg/config"
	"github.com/picogrid/flock-simulations/pkg/engine"
	"github.com/picogrid/flock-simulations/pkg/flock"
	"github.com/picogrid/flock-simulations/pkg/logger"
	"github.com/picogrid/flock-simulations/pkg/scenario"
	"github.com/picogrid/flock-simulations/pkg/telemetry"
)

// FlockingName is the registry name of the flocking runner
const FlockingName = "flocking"

// Summary describes a finished run
type Summary struct {
	RunID     uuid.UUID
	Backend   string
	Ticks     uint64
	Agents    int
	Elapsed   time.Duration
	NonFinite int // agent-ticks with a non-finite behavior delta
	OutputDir string
	Stopped   bool // ended by Stop or cancellation rather than tick count
}

// Runner advances a flock engine tick by tick, recording telemetry as it
// goes.
type Runner struct {
	cfg      *config.SimulationConfig
	flocks   *flock.Collection
	engine   *engine.Engine
	registry *engine.KernelRegistry
	log      logger.Logger
	runID    uuid.UUID
	onTick   []func(engine.TickReport)

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	summary Summary
}

// NewRunner creates an unconfigured runner
func NewRunner() *Runner {
	return &Runner{
		log: logger.Default().WithPrefix(FlockingName),
	}
}

// Name returns the name of the simulation
func (r *Runner) Name() string { return FlockingName }

// Description returns a brief description of what the simulation does
func (r *Runner) Description() string {
	return "Predator-prey flocking over an ordered chain of flocks"
}

// SetLogger replaces the runner and engine logger. Call before Configure.
func (r *Runner) SetLogger(l logger.Logger) {
	r.log = l.WithPrefix(FlockingName)
}

// SetKernelRegistry selects where offload kernel names are resolved.
// Call before Configure; nil means the builtin kernels.
func (r *Runner) SetKernelRegistry(reg *engine.KernelRegistry) {
	r.registry = reg
}

// OnTick adds a hook called after every completed tick
func (r *Runner) OnTick(fn func(engine.TickReport)) {
	r.onTick = append(r.onTick, fn)
}

// Configure builds the flocks and engine described by cfg
func (r *Runner) Configure(cfg *config.SimulationConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	flocks, err := scenario.Build(cfg)
	if err != nil {
		return fmt.Errorf("failed to build flocks: %w", err)
	}

	opts := cfg.EngineOptions()
	opts.Registry = r.registry
	opts.Logger = r.log

	eng, err := engine.New(flocks, opts)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	r.cfg = cfg
	r.flocks = flocks
	r.engine = eng
	r.runID = uuid.New()
	return nil
}

// Engine returns the configured engine
func (r *Runner) Engine() *engine.Engine { return r.engine }

// RunID returns the identifier of the configured run
func (r *Runner) RunID() uuid.UUID { return r.runID }

// Summary returns the summary of the last run
func (r *Runner) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// Run advances the engine for the configured number of ticks, or until ctx
// is cancelled or Stop is called when the tick count is 0. Cancellation is
// checked between ticks and ends the run without error.
func (r *Runner) Run(ctx context.Context) error {
	if r.engine == nil {
		return fmt.Errorf("simulation not configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.cancel = cancel
	r.mu.Unlock()

	recorder, err := r.openRecorder()
	if err != nil {
		return err
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			r.log.Errorf("Failed to close telemetry: %v", err)
		}
	}()

	runLog := r.log.WithField("run", r.runID.String()[:8])
	runLog.Infof("Running %d flocks, %d agents on %s",
		r.flocks.Len(), r.flocks.TotalAgents(), r.engine.Backend().Name())

	var ticker *time.Ticker
	if r.cfg.Simulation.TickInterval > 0 {
		ticker = time.NewTicker(r.cfg.Simulation.TickInterval)
		defer ticker.Stop()
	}

	start := time.Now()
	target := uint64(r.cfg.Simulation.Ticks)
	nonFinite := 0
	stopped := false

loop:
	for target == 0 || r.engine.Tick() < target {
		if ticker != nil {
			select {
			case <-ctx.Done():
				stopped = true
				break loop
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			stopped = true
			break loop
		}

		if err := r.engine.AdvanceOneTick(); err != nil {
			r.finish(start, nonFinite, true, recorder)
			return fmt.Errorf("simulation failed: %w", err)
		}

		report := r.engine.LastTick()
		for _, fr := range report.Flocks {
			nonFinite += fr.NonFinite
		}

		if err := recorder.RecordTick(r.flocks, report); err != nil {
			runLog.Warnf("Telemetry write failed: %v", err)
		}
		for _, fn := range r.onTick {
			fn(report)
		}
	}

	summary := r.finish(start, nonFinite, stopped, recorder)
	if r.cfg.Telemetry.Snapshot {
		if err := recorder.WriteSnapshot(r.engine.Tick(), r.flocks); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
	}

	runLog.Infof("Finished %d ticks in %s", summary.Ticks, summary.Elapsed.Round(time.Millisecond))
	return nil
}

func (r *Runner) openRecorder() (*telemetry.Recorder, error) {
	if !r.cfg.Telemetry.Enabled {
		return nil, nil
	}

	recorder, err := telemetry.NewRecorder(r.cfg.Telemetry.OutputDir, r.runID, r.cfg.Telemetry.Every)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry: %w", err)
	}
	if err := recorder.WriteConfig(r.cfg); err != nil {
		_ = recorder.Close()
		return nil, fmt.Errorf("failed to write config: %w", err)
	}
	// initial state
	if err := recorder.RecordTick(r.flocks, engine.TickReport{Tick: r.engine.Tick()}); err != nil {
		_ = recorder.Close()
		return nil, fmt.Errorf("failed to record initial state: %w", err)
	}
	return recorder, nil
}

func (r *Runner) finish(start time.Time, nonFinite int, stopped bool, recorder *telemetry.Recorder) Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.summary = Summary{
		RunID:     r.runID,
		Backend:   r.engine.Backend().Name(),
		Ticks:     r.engine.Tick(),
		Agents:    r.flocks.TotalAgents(),
		Elapsed:   time.Since(start),
		NonFinite: nonFinite,
		OutputDir: recorder.Dir(),
		Stopped:   stopped,
	}
	r.cancel = nil
	return r.summary
}

// Stop ends a running simulation after its current tick. Stopping before
// Run makes the next Run return immediately.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}
