package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kestrel-sync/docsync/changetracker"
)

func newExportCommand() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump the local change log as YAML for operator debugging",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrExit()
			log := newLogger(cfg)
			ctx := context.Background()

			store, err := buildStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close(ctx) }()

			changes, err := store.GetChangesSince(ctx, 0)
			if err != nil {
				return fmt.Errorf("reading change log: %w", err)
			}
			state := changetracker.State[docPayload]{Queue: changes}

			out, err := yaml.Marshal(state)
			if err != nil {
				return fmt.Errorf("marshalling state: %w", err)
			}

			if outPath == "" {
				_, err = os.Stdout.Write(out)
				return err
			}
			return os.WriteFile(outPath, out, 0o644)
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "file to write to (defaults to stdout)")
	return cmd
}
