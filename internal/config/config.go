// Package config loads the engine's tuning knobs via viper into a typed
// Config, the way the teacher's internal/config package loads its own
// Config: SetDefault calls first, then an optional YAML file, then
// environment variables (REPLACER "." -> "_"), then Unmarshal + Validate.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kestrel-sync/docsync/orchestrator"
)

// StoreBackend selects which contract.Store implementation syncd wires up.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StoreSQLite   StoreBackend = "sqlite"
	StorePostgres StoreBackend = "postgres"
)

// OrchestratorConfig mirrors orchestrator.Config's knobs with mapstructure
// tags so it can be loaded from YAML/env and then converted.
type OrchestratorConfig struct {
	SyncIntervalMs        int64 `mapstructure:"sync_interval_ms"`
	BatchSize             int   `mapstructure:"batch_size"`
	RetryAttempts         int   `mapstructure:"retry_attempts"`
	RetryDelayMs          int64 `mapstructure:"retry_delay_ms"`
	DebounceDelayMs       int64 `mapstructure:"debounce_delay_ms"`
	OnlineProbeIntervalMs int64 `mapstructure:"online_probe_interval_ms"`
	PostOnlineSyncDelayMs int64 `mapstructure:"post_online_sync_delay_ms"`
}

// ToOrchestratorConfig converts the loaded, millisecond-typed knobs to the
// orchestrator's time.Duration-based Config, filling any zero values with
// orchestrator.DefaultConfig()'s defaults.
func (c OrchestratorConfig) ToOrchestratorConfig() orchestrator.Config {
	def := orchestrator.DefaultConfig()
	cfg := def

	if c.SyncIntervalMs > 0 {
		cfg.SyncInterval = time.Duration(c.SyncIntervalMs) * time.Millisecond
	}
	if c.BatchSize > 0 {
		cfg.BatchSize = c.BatchSize
	}
	if c.RetryAttempts > 0 {
		cfg.RetryAttempts = c.RetryAttempts
	}
	if c.RetryDelayMs > 0 {
		cfg.RetryDelay = time.Duration(c.RetryDelayMs) * time.Millisecond
	}
	if c.DebounceDelayMs > 0 {
		cfg.DebounceDelay = time.Duration(c.DebounceDelayMs) * time.Millisecond
	}
	if c.OnlineProbeIntervalMs > 0 {
		cfg.OnlineProbeInterval = time.Duration(c.OnlineProbeIntervalMs) * time.Millisecond
	}
	if c.PostOnlineSyncDelayMs > 0 {
		cfg.PostOnlineSyncDelay = time.Duration(c.PostOnlineSyncDelayMs) * time.Millisecond
	}
	return cfg
}

// StoreConfig selects and configures the durable Store backend.
type StoreConfig struct {
	Backend     StoreBackend `mapstructure:"backend"`
	SQLitePath  string       `mapstructure:"sqlite_path"`
	PostgresDSN string       `mapstructure:"postgres_dsn"`
	MaxConns    int32        `mapstructure:"max_conns"`
}

// TransportConfig configures the reference HTTP transport client.
type TransportConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	HealthTimeout  time.Duration `mapstructure:"health_timeout"`
}

// RedisConfig configures the optional two-tier cache decorator.
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	L1Size    int           `mapstructure:"l1_size"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// LogConfig mirrors logger.Config's mapstructure shape.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Config is the engine's top-level configuration.
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Store        StoreConfig        `mapstructure:"store"`
	Transport    TransportConfig    `mapstructure:"transport"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
}

// Validate cross-checks the backend choice against its required fields,
// mirroring the teacher's profile validation in internal/config/config.go.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required when store.backend is %q", StoreSQLite)
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required when store.backend is %q", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown store.backend %q (want memory, sqlite, or postgres)", c.Store.Backend)
	}

	if c.Transport.BaseURL == "" {
		return fmt.Errorf("transport.base_url is required")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis.enabled is true")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("orchestrator.sync_interval_ms", 30000)
	v.SetDefault("orchestrator.batch_size", 50)
	v.SetDefault("orchestrator.retry_attempts", 3)
	v.SetDefault("orchestrator.retry_delay_ms", 1000)
	v.SetDefault("orchestrator.debounce_delay_ms", 2000)
	v.SetDefault("orchestrator.online_probe_interval_ms", 10000)
	v.SetDefault("orchestrator.post_online_sync_delay_ms", 1000)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.sqlite_path", "")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.max_conns", 0)

	v.SetDefault("transport.base_url", "")
	v.SetDefault("transport.api_key", "")
	v.SetDefault("transport.request_timeout", "30s")
	v.SetDefault("transport.health_timeout", "5s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.l1_size", 1000)
	v.SetDefault("redis.ttl", "5m")
	v.SetDefault("redis.key_prefix", "docsync")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
}

// Load reads configPath (if non-empty) as YAML, overlays environment
// variables (DOCSYNC_SECTION_KEY, "." replaced with "_"), unmarshals into a
// Config, and validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("docsync")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}
