package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "forensics.tasks", cfg.NATS.TaskSubject)
	assert.Equal(t, 10, cfg.Analysis.DefaultMaxDepth)
	assert.Equal(t, 100, cfg.Analysis.DefaultMaxPaths)
	assert.Equal(t, 10, cfg.Analysis.DefaultTaintMaxHops)
	assert.Equal(t, 60*time.Second, cfg.Analysis.TaskTimeout)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forensics.yaml")
	content := []byte(`
app:
  log_level: debug
analysis:
  default_max_paths: 25
  neighborhood_hops: 2
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("ANALYSIS_NEIGHBORHOOD_HOPS", "4")
	t.Setenv("NATS_URL", "nats://broker:4222")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 25, cfg.Analysis.DefaultMaxPaths)
	assert.Equal(t, 4, cfg.Analysis.NeighborhoodHops)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
}

func TestLoadFileRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  default_max_depth: 0\n"), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis.default_max_depth")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
