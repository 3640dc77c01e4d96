package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show local sync state: last sync timestamp, unsynced change count and stored document count",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrExit()
			log := newLogger(cfg)
			ctx := context.Background()

			store, err := buildStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close(ctx) }()

			lastSync, err := store.GetLastSyncTimestamp(ctx)
			if err != nil {
				return fmt.Errorf("reading last sync timestamp: %w", err)
			}
			pending, err := store.GetChangesSince(ctx, lastSync)
			if err != nil {
				return fmt.Errorf("reading pending changes: %w", err)
			}
			docs, err := store.GetAllIDs(ctx)
			if err != nil {
				return fmt.Errorf("reading document ids: %w", err)
			}

			fmt.Printf("store backend:        %s\n", cfg.Store.Backend)
			fmt.Printf("last sync timestamp:  %d\n", lastSync)
			fmt.Printf("unsynced changes:     %d\n", len(pending))
			fmt.Printf("documents stored:     %d\n", len(docs))
			return nil
		},
	}
}
