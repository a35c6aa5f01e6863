// Package httpapi implements the server HTTP surface: the worker
// heartbeat endpoint, the tar/gzip tree-stream endpoints, the admin
// queue/ref mutation endpoints, and the metrics endpoint.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Garmelon/tablejohn/internal/observability"
	"github.com/Garmelon/tablejohn/internal/queue"
	"github.com/Garmelon/tablejohn/internal/registry"
	"github.com/Garmelon/tablejohn/internal/store"
)

// Server holds every dependency the HTTP surface dispatches into. It owns
// no state of its own beyond the worker_token and repository paths.
type Server struct {
	store    *store.Store
	queue    *queue.Manager
	registry *registry.Registry
	metrics  *observability.Metrics
	logger   *slog.Logger

	repoPath      string
	benchRepoPath string // empty when no Repo bench method is configured
	workerToken   string
	ingestPoke    chan<- struct{} // nil if no on-demand ingest is wired up
}

// Config carries everything NewServer needs beyond the shared component
// handles.
type Config struct {
	RepoPath      string
	BenchRepoPath string
	WorkerToken   string
	IngestPoke    chan<- struct{}
}

// NewServer wires the HTTP surface against the given components.
func NewServer(
	s *store.Store,
	q *queue.Manager,
	reg *registry.Registry,
	metrics *observability.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		store:         s,
		queue:         q,
		registry:      reg,
		metrics:       metrics,
		logger:        logger,
		repoPath:      cfg.RepoPath,
		benchRepoPath: cfg.BenchRepoPath,
		workerToken:   cfg.WorkerToken,
		ingestPoke:    cfg.IngestPoke,
	}
}

// Router builds the full mux.Router for the worker, admin, and metrics
// endpoints, wrapped in the access-log/panic-recovery middleware.
func (srv *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/worker/status", srv.requireWorkerAuth(srv.handleHeartbeat)).Methods(http.MethodPost)
	r.HandleFunc("/api/worker/repo/{hash}/tree.tar.gz", srv.handleTree(srv.repoPath)).Methods(http.MethodGet)
	r.HandleFunc("/api/worker/bench_repo/{hash}/tree.tar.gz", srv.handleTree(srv.benchRepoPath)).Methods(http.MethodGet)

	r.HandleFunc("/admin/queue/add", srv.handleQueueAdd).Methods(http.MethodPost)
	r.HandleFunc("/admin/queue/add_batch", srv.handleQueueAddBatch).Methods(http.MethodPost)
	r.HandleFunc("/admin/queue/delete", srv.handleQueueDelete).Methods(http.MethodPost)
	r.HandleFunc("/admin/queue/increase", srv.handleQueueIncrease).Methods(http.MethodPost)
	r.HandleFunc("/admin/queue/decrease", srv.handleQueueDecrease).Methods(http.MethodPost)

	r.HandleFunc("/admin/refs/track", srv.handleRefSetTracked(true)).Methods(http.MethodPost)
	r.HandleFunc("/admin/refs/untrack", srv.handleRefSetTracked(false)).Methods(http.MethodPost)
	r.HandleFunc("/admin/refs/update", srv.handleIngestUpdate).Methods(http.MethodPost)

	r.HandleFunc("/", srv.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/commit/{hash}", srv.handleCommitDetail).Methods(http.MethodGet)

	r.Handle("/metrics", srv.metrics.Handler()).Methods(http.MethodGet)

	return observability.HTTPMiddleware(srv.logger, r)
}
