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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 5*time.Second, cfg.Store.TxTimeout)
	assert.Equal(t, BackendMemory, cfg.Lock.Backend)
	assert.Equal(t, "en", cfg.DefaultLocale)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TERMREPO_STORE_BACKEND", "postgres")
	t.Setenv("TERMREPO_STORE_POSTGRES_HOST", "db.internal")
	t.Setenv("TERMREPO_STORE_POSTGRES_PORT", "6543")
	t.Setenv("TERMREPO_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "db.internal", cfg.Store.Postgres.Host)
	assert.Equal(t, 6543, cfg.Store.Postgres.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Contains(t, cfg.Store.Postgres.DSN(), "host=db.internal port=6543")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termrepo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\ndefault_locale: fr\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "fr", cfg.DefaultLocale)
}

func TestLoadRejectsInvalidBackends(t *testing.T) {
	t.Run("unknown store", func(t *testing.T) {
		t.Setenv("TERMREPO_STORE_BACKEND", "mongo")
		_, err := Load("")
		require.Error(t, err)
	})

	t.Run("redis lock without url", func(t *testing.T) {
		t.Setenv("TERMREPO_LOCK_BACKEND", "redis")
		_, err := Load("")
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}
