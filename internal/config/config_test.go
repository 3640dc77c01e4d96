package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DOCSYNC_TRANSPORT_BASE_URL", "http://localhost:8080")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, int64(30000), cfg.Orchestrator.SyncIntervalMs)
	assert.Equal(t, 50, cfg.Orchestrator.BatchSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_MissingConfigFileIsTolerated(t *testing.T) {
	t.Setenv("DOCSYNC_TRANSPORT_BASE_URL", "http://localhost:8080")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeTempYAML(t, `
orchestrator:
  sync_interval_ms: 5000
  batch_size: 10
store:
  backend: sqlite
  sqlite_path: /var/lib/docsync/sync.db
transport:
  base_url: "http://sync.example.com"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(5000), cfg.Orchestrator.SyncIntervalMs)
	assert.Equal(t, 10, cfg.Orchestrator.BatchSize)
	assert.Equal(t, StoreSQLite, cfg.Store.Backend)
	assert.Equal(t, "/var/lib/docsync/sync.db", cfg.Store.SQLitePath)
	assert.Equal(t, "http://sync.example.com", cfg.Transport.BaseURL)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeTempYAML(t, `
transport:
  base_url: "http://from-yaml.example.com"
`)
	t.Setenv("DOCSYNC_TRANSPORT_BASE_URL", "http://from-env.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env.example.com", cfg.Transport.BaseURL)
}

func TestLoad_RejectsMissingBaseURL(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport.base_url")
}

func TestValidate_SQLiteRequiresPath(t *testing.T) {
	cfg := Config{
		Store:     StoreConfig{Backend: StoreSQLite},
		Transport: TransportConfig{BaseURL: "http://localhost"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite_path")
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	cfg := Config{
		Store:     StoreConfig{Backend: StorePostgres},
		Transport: TransportConfig{BaseURL: "http://localhost"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres_dsn")
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := Config{
		Store:     StoreConfig{Backend: "mongo"},
		Transport: TransportConfig{BaseURL: "http://localhost"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store.backend")
}

func TestValidate_RedisEnabledRequiresAddr(t *testing.T) {
	cfg := Config{
		Store:     StoreConfig{Backend: StoreMemory},
		Transport: TransportConfig{BaseURL: "http://localhost"},
		Redis:     RedisConfig{Enabled: true},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.addr")
}

func TestOrchestratorConfig_ToOrchestratorConfig_FillsZerosWithDefaults(t *testing.T) {
	oc := OrchestratorConfig{BatchSize: 25}
	cfg := oc.ToOrchestratorConfig()

	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 3, cfg.RetryAttempts)
}
