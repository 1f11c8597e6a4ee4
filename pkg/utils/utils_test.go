package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/flock-simulations/pkg/config"
	"github.com/picogrid/flock-simulations/pkg/simulation"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func TestDiscoverScenarios(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.yaml"), "simulation:\n  name: zeta\n")
	writeFile(t, filepath.Join(dir, "nested", "a.yml"), `
simulation:
  name: alpha
flocks:
  - name: only
    agents: 7
`)
	writeFile(t, filepath.Join(dir, "broken.yaml"), "engine:\n  device: TPU\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a scenario")

	scenarios, err := DiscoverScenarios(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)

	assert.Equal(t, "alpha", scenarios[0].Config.Simulation.Name)
	assert.Equal(t, 7, scenarios[0].Agents())
	assert.Equal(t, "zeta", scenarios[1].Config.Simulation.Name)
	assert.Equal(t, config.GetDefaultConfig().Flocks, scenarios[1].Config.Flocks)

	path, err := FindScenario(dir, "alpha")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nested", "a.yml"), path)

	path, err = FindScenario(dir, filepath.Join(dir, "b.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b.yaml"), path)

	_, err = FindScenario(dir, "omega")
	assert.Error(t, err)
}

func TestDiscoverScenariosMissingDir(t *testing.T) {
	_, err := DiscoverScenarios(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestResolveParameters(t *testing.T) {
	t.Setenv("FLOCKSIM_DEVICE", "GPU")
	t.Setenv("FLOCKSIM_TICK_INTERVAL", "")

	cfg := config.GetDefaultConfig()
	cfg.Simulation.TickInterval = 50 * time.Millisecond
	values, err := ResolveParameters(simulation.RunParameters(cfg))
	require.NoError(t, err)

	assert.Equal(t, "GPU", values[config.KeyDevice])
	assert.Equal(t, "serial", values[config.KeyBackend])
	assert.Equal(t, 500, values[config.KeyTicks])
	assert.Equal(t, 50*time.Millisecond, values[config.KeyTickInterval])
	assert.Equal(t, 1, values[config.KeySeed])
	assert.Equal(t, true, values[config.KeyTelemetry])

	config.MergeWithCLIOverrides(cfg, values)
	assert.Equal(t, "GPU", cfg.Engine.Device)
	require.NoError(t, cfg.Validate())
}

func TestResolveParametersErrors(t *testing.T) {
	t.Setenv("FLOCKSIM_TICKS", "many")
	_, err := ResolveParameters([]simulation.Parameter{{Name: "ticks", Type: "integer"}})
	assert.ErrorContains(t, err, "FLOCKSIM_TICKS")

	_, err = ResolveParameters([]simulation.Parameter{{Name: "device", Type: "string", Required: true}})
	assert.ErrorContains(t, err, "required parameter device")
}

func TestPromptForParametersWithoutTerminal(t *testing.T) {
	t.Setenv(SkipPromptsEnv, "true")
	assert.False(t, IsInteractive())

	values, err := PromptForParameters([]simulation.Parameter{
		{Name: "backend", Type: "string", Default: "offload"},
	})
	require.NoError(t, err)
	assert.Equal(t, "offload", values["backend"])
}
