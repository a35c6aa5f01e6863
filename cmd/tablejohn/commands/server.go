package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Garmelon/tablejohn/internal/config"
	"github.com/Garmelon/tablejohn/internal/gitlib"
	"github.com/Garmelon/tablejohn/internal/httpapi"
	"github.com/Garmelon/tablejohn/internal/ingest"
	"github.com/Garmelon/tablejohn/internal/observability"
	"github.com/Garmelon/tablejohn/internal/queue"
	"github.com/Garmelon/tablejohn/internal/registry"
	"github.com/Garmelon/tablejohn/internal/store"
	"github.com/Garmelon/tablejohn/internal/wire"
)

// readHeaderTimeout bounds how long the admin HTTP server waits for a
// client's request headers.
const readHeaderTimeout = 10 * time.Second

// NewServerCommand builds the `tablejohn server` subcommand.
func NewServerCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the tablejohn server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "tablejohn-server.toml", "path to the server's TOML config file")

	return cmd
}

func runServer(parentCtx context.Context, configPath string) error {
	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.Config{Level: slog.LevelInfo, JSON: cfg.LogJSON})

	// A repository that can't be opened is fatal at startup. With a
	// repo_fetch_url configured, the first ingest tick creates it instead.
	if cfg.RepoFetchURL == "" {
		repo, err := gitlib.Open(cfg.RepoPath)
		if err != nil {
			return fmt.Errorf("open repository: %w", err)
		}

		repo.Free()
	}

	ctx := withShutdown(parentCtx)

	s, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	metrics := observability.NewMetrics()
	q := queue.New(s)
	reg := registry.New(s, s, cfg.WorkerTimeout, benchMethodResolver(cfg.BenchRepoPath))

	// Buffered by one: a poke that arrives while ingest is mid-tick is
	// remembered and triggers exactly one extra tick, rather than blocking
	// the admin request or piling up redundant re-ingests.
	ingestPoke := make(chan struct{}, 1)

	srv := httpapi.NewServer(s, q, reg, metrics, logger, httpapi.Config{
		RepoPath:      cfg.RepoPath,
		BenchRepoPath: cfg.BenchRepoPath,
		WorkerToken:   cfg.WorkerToken,
		IngestPoke:    ingestPoke,
	})

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("server listening", "addr", cfg.Listen)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)

			return
		}

		errCh <- nil
	}()

	go runIngestLoop(ctx, s, metrics, cfg, logger, ingestPoke)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), readHeaderTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", "error", err)
		}

		return <-errCh
	case err := <-errCh:
		return err
	}
}

// runIngestLoop runs the ingestor on cfg.IngestPeriod until ctx is
// cancelled, recording each tick's duration and discovered-commit count
// on metrics. A receive on poke runs a tick immediately instead of
// waiting out the rest of the current period, for the admin "update now"
// action.
func runIngestLoop(ctx context.Context, s *store.Store, metrics *observability.Metrics, cfg *config.ServerConfig, logger *slog.Logger, poke <-chan struct{}) {
	in := ingest.New(s, cfg.RepoPath, cfg.RepoFetchURL, logger)

	ticker := time.NewTicker(cfg.IngestPeriod)
	defer ticker.Stop()

	for {
		start := time.Now()

		commits, err := in.TickCount(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error("ingest tick failed", "error", err)
		}

		metrics.ObserveIngest(time.Since(start), commits)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-poke:
			ticker.Reset(cfg.IngestPeriod)
		}
	}
}

// benchMethodResolver resolves the Repo bench method to the bench
// repository's current HEAD on every assignment, or always returns
// Internal when no bench repo is configured. The registry calls this
// outside its mutex, so the blocking git2go open+HEAD-resolve here never
// stalls a heartbeat that isn't requesting a run.
func benchMethodResolver(benchRepoPath string) registry.BenchMethodResolver {
	if benchRepoPath == "" {
		return func() (wire.BenchMethod, error) { return wire.Internal(), nil }
	}

	return func() (wire.BenchMethod, error) {
		head, err := gitlib.ResolveHead(benchRepoPath)
		if err != nil {
			return wire.BenchMethod{}, fmt.Errorf("resolve bench repo head: %w", err)
		}

		return wire.Repo(head.String()), nil
	}
}
