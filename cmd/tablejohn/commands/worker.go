package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Garmelon/tablejohn/internal/config"
	"github.com/Garmelon/tablejohn/internal/observability"
	"github.com/Garmelon/tablejohn/internal/worker"
)

// NewWorkerCommand builds the `tablejohn worker` subcommand.
func NewWorkerCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a tablejohn worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "tablejohn-worker.toml", "path to the worker's TOML config file")

	return cmd
}

func runWorker(parentCtx context.Context, configPath string) error {
	cfg, err := config.LoadWorkerConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.Config{Level: slog.LevelInfo, JSON: cfg.LogJSON})

	client, err := worker.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("build worker client: %w", err)
	}

	ctx := withShutdown(parentCtx)

	logger.Info("worker starting", "name", cfg.Name, "servers", len(cfg.Servers))
	client.Run(ctx)
	logger.Info("worker stopped")

	return nil
}
