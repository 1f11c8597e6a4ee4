package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/picogrid/flock-simulations/pkg/config"
	"github.com/picogrid/flock-simulations/pkg/engine"
	"github.com/picogrid/flock-simulations/pkg/logger"
	"github.com/picogrid/flock-simulations/pkg/scenario"
)

// BenchmarkName is the registry name of the backend benchmark
const BenchmarkName = "benchmark"

// defaultBenchmarkTicks is used when the scenario runs until interrupted
const defaultBenchmarkTicks = 100

// BenchmarkResult holds the tick timings of one backend and device
type BenchmarkResult struct {
	Backend string
	Ticks   int
	Mean    time.Duration
	Min     time.Duration
	Max     time.Duration
}

// Benchmark runs the same scenario on every backend and device class and
// compares tick durations. Each target starts from a freshly built copy of
// the flocks.
type Benchmark struct {
	cfg     *config.SimulationConfig
	targets []engine.Options
	log     logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	results []BenchmarkResult
}

// NewBenchmark creates an unconfigured benchmark
func NewBenchmark() *Benchmark {
	return &Benchmark{
		log: logger.Default().WithPrefix(BenchmarkName),
	}
}

// Name returns the name of the simulation
func (b *Benchmark) Name() string { return BenchmarkName }

// Description returns a brief description of what the simulation does
func (b *Benchmark) Description() string {
	return "Compare tick times of the serial and offload backends"
}

// SetLogger replaces the benchmark logger
func (b *Benchmark) SetLogger(l logger.Logger) {
	b.log = l.WithPrefix(BenchmarkName)
}

// Configure selects the scenario and builds the backend targets
func (b *Benchmark) Configure(cfg *config.SimulationConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	base := cfg.EngineOptions()
	targets := make([]engine.Options, 0, 4)

	serial := base
	serial.Backend = engine.BackendSerial
	serial.Device = string(engine.DeviceCPU)
	targets = append(targets, serial)

	for _, device := range []engine.DeviceClass{engine.DeviceCPU, engine.DeviceGPU, engine.DeviceACC} {
		opts := base
		opts.Backend = engine.BackendOffload
		opts.Device = string(device)
		targets = append(targets, opts)
	}

	b.cfg = cfg
	b.targets = targets
	return nil
}

// Results returns the results of the last run in target order
func (b *Benchmark) Results() []BenchmarkResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]BenchmarkResult(nil), b.results...)
}

// Run times every target in turn and prints a comparison table
func (b *Benchmark) Run(ctx context.Context) error {
	if b.cfg == nil {
		return fmt.Errorf("simulation not configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.cancel = cancel
	b.results = nil
	b.mu.Unlock()

	ticks := b.cfg.Simulation.Ticks
	if ticks == 0 {
		ticks = defaultBenchmarkTicks
	}

	for _, opts := range b.targets {
		if ctx.Err() != nil {
			break
		}
		result, err := b.runTarget(ctx, opts, ticks)
		if err != nil {
			return err
		}
		b.mu.Lock()
		b.results = append(b.results, result)
		b.mu.Unlock()
	}

	table := logger.NewTable("BACKEND", "TICKS", "MEAN", "MIN", "MAX")
	for _, r := range b.Results() {
		table.AddRow(r.Backend, fmt.Sprint(r.Ticks), r.Mean.String(), r.Min.String(), r.Max.String())
	}
	table.Print()
	return nil
}

func (b *Benchmark) runTarget(ctx context.Context, opts engine.Options, ticks int) (BenchmarkResult, error) {
	flocks, err := scenario.Build(b.cfg)
	if err != nil {
		return BenchmarkResult{}, fmt.Errorf("failed to build flocks: %w", err)
	}

	opts.Logger = b.log
	eng, err := engine.New(flocks, opts)
	if err != nil {
		return BenchmarkResult{}, fmt.Errorf("failed to create engine: %w", err)
	}

	b.log.Debugf("Timing %s for %d ticks", eng.Backend().Name(), ticks)

	seconds := make([]float64, 0, ticks)
	for i := 0; i < ticks && ctx.Err() == nil; i++ {
		if err := eng.AdvanceOneTick(); err != nil {
			return BenchmarkResult{}, fmt.Errorf("%s: %w", eng.Backend().Name(), err)
		}
		seconds = append(seconds, eng.LastTick().Duration.Seconds())
	}

	result := BenchmarkResult{Backend: eng.Backend().Name(), Ticks: len(seconds)}
	if len(seconds) > 0 {
		result.Mean = toDuration(stat.Mean(seconds, nil))
		result.Min = toDuration(floats.Min(seconds))
		result.Max = toDuration(floats.Max(seconds))
	}
	return result, nil
}

func toDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// Stop ends the benchmark after the current tick
func (b *Benchmark) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}
