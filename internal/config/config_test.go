package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_LayersFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9090"
store: memory
session_ttl: 2h
worker_count: 3
jwt_secret: from-file
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("QUEUE_SIZE", "42")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 3, cfg.WorkerCount)
	assert.Equal(t, 42, cfg.QueueSize)
	assert.Equal(t, "from-env", cfg.JWTSecret)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")

	t.Setenv("STORE", "cassandra")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE", "memory")
	t.Setenv("SESSION_TTL", "soon")
	_, err = Load()
	assert.Error(t, err)
}

func TestValidate_RequiresSecret(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate())

	cfg.JWTSecret = "s"
	assert.NoError(t, cfg.Validate())
}
