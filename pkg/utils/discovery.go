package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/picogrid/flock-simulations/pkg/config"
	"github.com/picogrid/flock-simulations/pkg/logger"
)

// ScenarioInfo contains information about a discovered scenario file
type ScenarioInfo struct {
	Path   string
	Config *config.SimulationConfig
}

// Agents returns the number of generated agents in the scenario. Flocks
// loaded from a file are not counted.
func (s ScenarioInfo) Agents() int {
	n := 0
	for _, f := range s.Config.Flocks {
		n += f.Agents
	}
	return n
}

// DefaultScenarioDir is searched when no directory is given
const DefaultScenarioDir = "scenarios"

// DiscoverScenarios finds all valid scenario files below dir. An empty dir
// means the scenarios directory of the project root. Invalid files are
// skipped with a warning.
func DiscoverScenarios(dir string) ([]ScenarioInfo, error) {
	if dir == "" {
		rootDir, err := findProjectRoot()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(rootDir, DefaultScenarioDir)
	}

	var scenarios []ScenarioInfo

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(path) {
			return nil
		}

		cfg, err := config.LoadConfig(path)
		if err != nil {
			// Log error but continue scanning
			logger.Warnf("Skipping %s: %v", path, err)
			return nil
		}
		scenarios = append(scenarios, ScenarioInfo{Path: path, Config: cfg})
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan for scenarios: %w", err)
	}

	sort.Slice(scenarios, func(i, j int) bool {
		return scenarios[i].Config.Simulation.Name < scenarios[j].Config.Simulation.Name
	})
	return scenarios, nil
}

// FindScenario resolves name to a scenario file. A name that is an existing
// path is returned as is; otherwise it is matched against the simulation
// names of the discovered scenarios in dir.
func FindScenario(dir, name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}

	scenarios, err := DiscoverScenarios(dir)
	if err != nil {
		return "", err
	}
	for _, s := range scenarios {
		if s.Config.Simulation.Name == name {
			return s.Path, nil
		}
	}
	return "", fmt.Errorf("scenario %s not found", name)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// findProjectRoot finds the project root by looking for go.mod
func findProjectRoot() (string, error) {
	// Start from current directory
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up until we find go.mod
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root without finding go.mod
			return "", fmt.Errorf("could not find project root (no go.mod found)")
		}
		dir = parent
	}
}
