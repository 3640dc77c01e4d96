package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrel-sync/docsync/internal/config"
)

func newRunCommand() *cobra.Command {
	var k8sNamespace, k8sConfigMap string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the sync orchestrator and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrExit()
			log := newLogger(cfg)
			ctx := context.Background()

			orch, _, err := buildOrchestrator(ctx, cfg, log)
			if err != nil {
				return err
			}

			if err := orch.Start(ctx); err != nil {
				return err
			}
			log.Info("syncd started", "store_backend", cfg.Store.Backend, "transport", cfg.Transport.BaseURL)

			if k8sConfigMap != "" {
				watcher, err := config.NewConfigMapWatcher(config.ConfigMapWatcherConfig{
					Namespace: k8sNamespace,
					Name:      k8sConfigMap,
				}, orch.UpdateTuning, log)
				if err != nil {
					log.Warn("config map watcher disabled", "error", err)
				} else {
					watcherCtx, cancel := context.WithCancel(ctx)
					defer cancel()
					go func() {
						if err := watcher.Run(watcherCtx); err != nil {
							log.Warn("config map watcher stopped", "error", err)
						}
					}()
				}
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			<-quit
			log.Info("shutting down")

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := orch.Stop(stopCtx); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&k8sNamespace, "k8s-namespace", "default", "namespace of the tuning ConfigMap")
	cmd.Flags().StringVar(&k8sConfigMap, "k8s-configmap", "", "name of a ConfigMap to watch for live sync_interval_ms/batch_size tuning (requires in-cluster credentials)")

	return cmd
}
