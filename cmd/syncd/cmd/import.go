package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kestrel-sync/docsync/changetracker"
)

func newImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Restore a change log previously dumped with export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrExit()
			log := newLogger(cfg)
			ctx := context.Background()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			var state changetracker.State[docPayload]
			if err := yaml.Unmarshal(data, &state); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			store, err := buildStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close(ctx) }()

			for _, change := range state.Queue {
				if err := store.PutChange(ctx, change); err != nil {
					return fmt.Errorf("restoring change for %s: %w", change.ID, err)
				}
			}

			fmt.Printf("restored %d change(s)\n", len(state.Queue))
			return nil
		},
	}
	return cmd
}
