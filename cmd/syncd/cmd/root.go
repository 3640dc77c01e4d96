package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kestrel-sync/docsync/contract"
	"github.com/kestrel-sync/docsync/internal/config"
	"github.com/kestrel-sync/docsync/orchestrator"
	"github.com/kestrel-sync/docsync/pkg/logger"
	"github.com/kestrel-sync/docsync/store/memorystore"
	"github.com/kestrel-sync/docsync/store/postgresstore"
	"github.com/kestrel-sync/docsync/store/rediscache"
	"github.com/kestrel-sync/docsync/store/sqlitestore"
	"github.com/kestrel-sync/docsync/transporthttp"
)

var configPath string

// NewRootCommand builds the syncd cobra command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "syncd",
		Short: "Offline-first document sync daemon",
		Long:  "syncd runs the sync orchestrator against a remote endpoint and inspects its local state.",
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (optional; env vars and defaults still apply)")

	root.AddCommand(
		newRunCommand(),
		newStatusCommand(),
		newExportCommand(),
		newImportCommand(),
	)
	return root
}

// docPayload is the document payload type the reference binary operates
// on: schema-agnostic JSON, since syncd doesn't know its callers' shapes.
type docPayload = json.RawMessage

// buildStore constructs the configured Store backend, optionally wrapped
// in the two-tier Redis cache decorator.
func buildStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (contract.Store[docPayload], error) {
	var base contract.Store[docPayload]

	switch cfg.Store.Backend {
	case config.StoreMemory:
		base = memorystore.New[docPayload](log)
	case config.StoreSQLite:
		store, err := sqlitestore.New[docPayload](ctx, cfg.Store.SQLitePath, log)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		base = store
	case config.StorePostgres:
		store, err := postgresstore.New[docPayload](ctx, postgresstore.Config{
			DSN:      cfg.Store.PostgresDSN,
			MaxConns: cfg.Store.MaxConns,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		base = store
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if !cfg.Redis.Enabled {
		return base, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	cached, err := rediscache.New[docPayload](base, client, cfg.Redis.L1Size, cfg.Redis.TTL, cfg.Redis.KeyPrefix, log)
	if err != nil {
		return nil, fmt.Errorf("wrapping store with redis cache: %w", err)
	}
	return cached, nil
}

// buildOrchestrator wires a Store, the reference HTTP+WebSocket Transport,
// and the tuned Config into a ready-to-Start Orchestrator.
func buildOrchestrator(ctx context.Context, cfg *config.Config, log *slog.Logger) (*orchestrator.Orchestrator[docPayload], contract.Store[docPayload], error) {
	store, err := buildStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	transport := transporthttp.NewClient[docPayload](transporthttp.ClientConfig{
		BaseURL:        cfg.Transport.BaseURL,
		APIKey:         cfg.Transport.APIKey,
		RequestTimeout: cfg.Transport.RequestTimeout,
		HealthTimeout:  cfg.Transport.HealthTimeout,
	}, log)

	orch := orchestrator.New[docPayload](cfg.Orchestrator.ToOrchestratorConfig(), orchestrator.Options[docPayload]{
		Store:     store,
		Transport: transport,
		Logger:    log,
	})
	return orch, store, nil
}

func loadConfigOrExit() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		cobra.CheckErr(fmt.Errorf("loading config: %w", err))
	}
	return cfg
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
}
