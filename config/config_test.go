package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "SERVER_PORT", "SHUTDOWN_TIMEOUT", "AWS_REGION", "RUN_SPEC", "LOG_DIR"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Equal(t, "run.yaml", cfg.RunSpecPath)
	assert.Empty(t, cfg.LogDir)
	assert.False(t, cfg.DatabaseEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/train?sslmode=disable")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("RUN_SPEC", "/etc/train/run.yaml")
	t.Setenv("LOG_DIR", "/var/log/train")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.DatabaseEnabled())
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/etc/train/run.yaml", cfg.RunSpecPath)
	assert.Equal(t, "/var/log/train", cfg.LogDir)
}

func TestLoadError(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}
