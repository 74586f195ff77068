package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "stationd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoad_ValidGraphLoadsDefaults(t *testing.T) {
	path := writeConfig(t, `
station:
  graph:
    - id: LIQUID_SOAP
      process:
        exe: /usr/bin/liquidsoap
        args: ["station.liq"]
    - id: HLS
      parents: ["LIQUID_SOAP"]
      process:
        exe: /usr/bin/ffmpeg
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "/var/run/stationd.pid", cfg.Control.PIDFile)
	assert.Len(t, cfg.Graph, 2)
	assert.Equal(t, "HLS", cfg.Graph[1].ID)
	assert.Equal(t, []string{"LIQUID_SOAP"}, cfg.Graph[1].Parents)
}

func TestLoad_RejectsUnknownNodeID(t *testing.T) {
	path := writeConfig(t, `
station:
  graph:
    - id: NOT_A_REAL_NODE
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsDuplicateNodeID(t *testing.T) {
	path := writeConfig(t, `
station:
  graph:
    - id: DB
    - id: DB
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestBackoffConfig_ToPolicy_FallsBackToDefaultsForZeroFields(t *testing.T) {
	b := BackoffConfig{BaseSec: 1}
	policy := b.ToPolicy()
	assert.Equal(t, time.Second, policy.Base)
	assert.Equal(t, 2.0, policy.Factor) // default factor preserved
}

func TestNodeConfig_ToTunables_AppliesOverridesAndDefaults(t *testing.T) {
	n := NodeConfig{ReadyTimeoutSec: 5, HealthIntervalSec: 2}
	tunables := n.ToTunables()
	assert.Equal(t, 5*time.Second, tunables.ReadyTimeout)
	assert.Equal(t, 2*time.Second, tunables.HealthInterval)
	assert.Equal(t, 15*time.Second, tunables.StopTimeout) // default
	assert.Equal(t, 3, tunables.HealthFailThreshold)      // default
}

func TestNodeConfig_ToProcessCommand(t *testing.T) {
	n := NodeConfig{Process: &ProcessConfig{Exe: "/bin/echo", Args: []string{"hi"}}}
	cmd := n.ToProcessCommand()
	assert.Equal(t, "/bin/echo", cmd.Exe)
	assert.Equal(t, []string{"hi"}, cmd.Args)
}
