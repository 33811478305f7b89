package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 4, cfg.MaxConcurrentTasks)
	assert.Equal(t, 60*time.Second, cfg.CallTimeout)
	assert.Equal(t, 5*time.Minute, cfg.DispatchTimeout)
	assert.Equal(t, "sqlite", cfg.CacheBackend)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 4096, cfg.CacheSize)
	assert.Zero(t, cfg.Quorum)
	assert.Equal(t, 2, cfg.ConsensusThreshold)
	assert.Equal(t, 0.55, cfg.SimilarityThreshold)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Contains(t, cfg.DataDir, ".ensemble")
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().CacheBackend, cfg.CacheBackend)
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
max_concurrent_tasks: 8
cache_backend: memory
cache_ttl: 30m
similarity_threshold: 0.7
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxConcurrentTasks)
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.Equal(t, 30*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 0.7, cfg.SimilarityThreshold)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched keys keep their defaults.
	assert.Equal(t, 60*time.Second, cfg.CallTimeout)
	assert.Equal(t, 2, cfg.ConsensusThreshold)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{max_concurrent_tasks: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENSEMBLE_DATA_DIR", "/tmp/ensemble-test")
	t.Setenv("ENSEMBLE_LOG_LEVEL", "warn")
	t.Setenv("ENSEMBLE_CACHE_BACKEND", "memory")
	t.Setenv("ENSEMBLE_MAX_TASKS", "2")
	t.Setenv("ENSEMBLE_CALL_TIMEOUT", "15s")
	t.Setenv("ENSEMBLE_CACHE_TTL", "10m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ensemble-test", cfg.DataDir)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.Equal(t, 2, cfg.MaxConcurrentTasks)
	assert.Equal(t, 15*time.Second, cfg.CallTimeout)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))
	t.Setenv("ENSEMBLE_LOG_LEVEL", "error")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestUnknownCacheBackendRejected(t *testing.T) {
	t.Setenv("ENSEMBLE_CACHE_BACKEND", "redis")
	_, err := Load("")
	assert.ErrorContains(t, err, "cache backend")
}

func TestMaxConcurrentTasksFloor(t *testing.T) {
	t.Setenv("ENSEMBLE_MAX_TASKS", "0")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxConcurrentTasks)
}
