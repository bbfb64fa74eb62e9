package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"RUN_MODE", "PORT", "OBJECT_STORAGE_MODE", "STORAGE_EMULATOR_HOST", "CONFIG_FILE", "DEFAULT_CATEGORY_NAME"} {
		t.Setenv(k, "")
	}

	cfg, err := LoadConfig(logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, RunModeAll, cfg.RunMode)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "gcs", cfg.ObjectStorageMode)
	assert.False(t, cfg.StorageModeCompatFallback)
	assert.Equal(t, "Uncategorized", cfg.DefaultCategoryName)
	assert.True(t, cfg.ServesAPI())
	assert.True(t, cfg.RunsWorkers())
}

func TestLoadConfigEmulatorFallback(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")

	cfg, err := LoadConfig(logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "gcs_emulator", cfg.ObjectStorageMode)
	assert.True(t, cfg.StorageModeCompatFallback)
}

func TestLoadConfigRejectsUnknownRunMode(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RUN_MODE", "batch")

	_, err := LoadConfig(logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUN_MODE")
}

func TestLoadConfigWorkerOnly(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RUN_MODE", "Worker")

	cfg, err := LoadConfig(logger.Nop())
	require.NoError(t, err)
	assert.False(t, cfg.ServesAPI())
	assert.True(t, cfg.RunsWorkers())
}

func TestConfigFileOverlay(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "playhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  local_size: 2500\n  local_ttl: 45s\nworker:\n  concurrency: 9\n"), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CACHE_LOCAL_SIZE", "")
	t.Setenv("CACHE_LOCAL_TTL", "")
	// already set in the environment, so the file must not override it
	t.Setenv("WORKER_CONCURRENCY", "2")
	// t.Setenv above registers cleanup; clear the empties so the file can fill them
	require.NoError(t, os.Unsetenv("CACHE_LOCAL_SIZE"))
	require.NoError(t, os.Unsetenv("CACHE_LOCAL_TTL"))

	cfg, err := LoadConfig(logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2500, cfg.Cache.LocalSize)
	assert.Equal(t, 45*time.Second, cfg.Cache.LocalTTL)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
}

func TestConfigFileInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache: [unterminated"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := LoadConfig(logger.Nop())
	require.Error(t, err)
}
