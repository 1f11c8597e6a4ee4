package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"github.com/picogrid/flock-simulations/pkg/config"
	"github.com/picogrid/flock-simulations/pkg/engine"
	"github.com/picogrid/flock-simulations/pkg/flock"
)

// Output file names inside a run directory
const (
	FlocksFile = "flocks.csv"
	AgentsFile = "agents.csv"
	ConfigFile = "config.yaml"
)

// Recorder writes the CSV output of a single run. A nil *Recorder is valid
// and records nothing, so callers need not check whether telemetry is on.
type Recorder struct {
	runID uuid.UUID
	dir   string
	every int

	flocksFile          *os.File
	flocksHeaderWritten bool
	rows                int
}

// NewRecorder creates the run directory <dir>/<runID> and opens flocks.csv.
// Returns nil if dir is empty (output disabled). every is the tick interval
// between summaries; values below 1 record every tick.
func NewRecorder(dir string, runID uuid.UUID, every int) (*Recorder, error) {
	if dir == "" {
		return nil, nil
	}
	if every < 1 {
		every = 1
	}

	runDir := filepath.Join(dir, runID.String())
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	f, err := os.Create(filepath.Join(runDir, FlocksFile))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", FlocksFile, err)
	}

	return &Recorder{
		runID:      runID,
		dir:        runDir,
		every:      every,
		flocksFile: f,
	}, nil
}

// RunID returns the identifier of the recorded run
func (r *Recorder) RunID() uuid.UUID {
	if r == nil {
		return uuid.Nil
	}
	return r.runID
}

// Dir returns the run directory path
func (r *Recorder) Dir() string {
	if r == nil {
		return ""
	}
	return r.dir
}

// Rows returns the number of flock summaries written so far
func (r *Recorder) Rows() int {
	if r == nil {
		return 0
	}
	return r.rows
}

// WriteConfig saves the resolved configuration next to the CSV files
func (r *Recorder) WriteConfig(cfg *config.SimulationConfig) error {
	if r == nil {
		return nil
	}
	return config.SaveConfig(cfg, filepath.Join(r.dir, ConfigFile))
}

// RecordTick writes one summary row per flock when tick falls on the
// recording interval. Tick 0 records the initial state.
func (r *Recorder) RecordTick(flocks *flock.Collection, report engine.TickReport) error {
	if r == nil || report.Tick%uint64(r.every) != 0 {
		return nil
	}

	records := make([]FlockRecord, flocks.Len())
	for i, f := range flocks.Flocks() {
		var fr engine.FlockReport
		if i < len(report.Flocks) {
			fr = report.Flocks[i]
		}
		records[i] = Summarize(r.runID.String(), report.Tick, f, fr)
	}

	if !r.flocksHeaderWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, r.flocksFile); err != nil {
			return fmt.Errorf("writing flock summaries: %w", err)
		}
		r.flocksHeaderWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, r.flocksFile); err != nil {
			return fmt.Errorf("writing flock summaries: %w", err)
		}
	}

	r.rows += len(records)
	return nil
}

// WriteSnapshot writes the full state of every agent to agents.csv,
// replacing any earlier snapshot.
func (r *Recorder) WriteSnapshot(tick uint64, flocks *flock.Collection) error {
	if r == nil {
		return nil
	}
	return WriteAgents(filepath.Join(r.dir, AgentsFile), Snapshot(tick, flocks))
}

// Close flushes and closes the output files
func (r *Recorder) Close() error {
	if r == nil || r.flocksFile == nil {
		return nil
	}
	err := r.flocksFile.Close()
	r.flocksFile = nil
	return err
}

// WriteAgents writes agent records to path with a header row
func WriteAgents(path string, records []AgentRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&records, f); err != nil {
		return fmt.Errorf("writing agents: %w", err)
	}
	return nil
}

// ReadAgents reads agent records written by WriteAgents, or any CSV with
// x, y, z, speed, theta and epsilon columns.
func ReadAgents(path string) ([]AgentRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening agents file: %w", err)
	}
	defer f.Close()

	var records []AgentRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("reading agents file %s: %w", path, err)
	}
	return records, nil
}
