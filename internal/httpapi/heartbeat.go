package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Garmelon/tablejohn/internal/observability"
	"github.com/Garmelon/tablejohn/internal/registry"
	"github.com/Garmelon/tablejohn/internal/wire"
)

// handleHeartbeat implements POST /api/worker/status: decode the
// WorkerRequest, run it through the registry's heartbeat handling, and
// reply with the resulting ServerResponse.
func (srv *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request, workerName string) {
	var req wire.WorkerRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)

		return
	}

	resp, err := srv.registry.Heartbeat(r.Context(), workerName, req)
	if err != nil {
		if errors.Is(err, registry.ErrWrongSecret) {
			http.Error(w, "wrong secret", http.StatusUnauthorized)

			return
		}

		srv.logger.Error("heartbeat failed", "worker", workerName, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	if req.SubmitRun != nil {
		srv.metrics.RunsSubmitted.WithLabelValues(observability.ExitStatusLabel(req.SubmitRun.ExitCode)).Inc()
	}

	known, busy := srv.registry.Count()
	srv.metrics.SetWorkers(known, busy)

	if queued, err := srv.queue.Ordered(r.Context()); err == nil {
		srv.metrics.QueueDepth.Set(float64(len(queued)))
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		srv.logger.Error("encode heartbeat response failed", "worker", workerName, "error", fmt.Errorf("%w", err))
	}
}
