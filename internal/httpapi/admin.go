package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Garmelon/tablejohn/internal/store"
)

// Admin endpoints are unauthenticated: the server binds to localhost by
// default, and hardening (reverse-proxy auth) is left to the deployer.

func (srv *Server) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	hash := r.FormValue("hash")

	priority, err := strconv.Atoi(defaultString(r.FormValue("priority"), "0"))
	if err != nil {
		http.Error(w, "bad priority", http.StatusBadRequest)

		return
	}

	if err := srv.queue.Add(r.Context(), hash, priority); err != nil {
		if errors.Is(err, store.ErrCommitNotFound) {
			http.Error(w, "commit not tracked-reachable", http.StatusNotFound)

			return
		}

		srv.logger.Error("queue add failed", "hash", hash, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	srv.redirectToCommit(w, r, hash)
}

func (srv *Server) handleQueueAddBatch(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.Atoi(defaultString(r.FormValue("amount"), "1"))
	if err != nil {
		http.Error(w, "bad amount", http.StatusBadRequest)

		return
	}

	priority, err := strconv.Atoi(defaultString(r.FormValue("priority"), "0"))
	if err != nil {
		http.Error(w, "bad priority", http.StatusBadRequest)

		return
	}

	if _, err := srv.queue.AddBatch(r.Context(), amount, priority); err != nil {
		srv.logger.Error("queue add_batch failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	srv.redirectToIndex(w, r)
}

func (srv *Server) handleQueueDelete(w http.ResponseWriter, r *http.Request) {
	hash := r.FormValue("hash")

	if err := srv.queue.Delete(r.Context(), hash); err != nil {
		srv.logger.Error("queue delete failed", "hash", hash, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	srv.redirectToCommit(w, r, hash)
}

func (srv *Server) handleQueueIncrease(w http.ResponseWriter, r *http.Request) {
	hash := r.FormValue("hash")

	if err := srv.queue.Increase(r.Context(), hash); err != nil {
		srv.logger.Error("queue increase failed", "hash", hash, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	srv.redirectToCommit(w, r, hash)
}

func (srv *Server) handleQueueDecrease(w http.ResponseWriter, r *http.Request) {
	hash := r.FormValue("hash")

	if err := srv.queue.Decrease(r.Context(), hash); err != nil {
		srv.logger.Error("queue decrease failed", "hash", hash, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	srv.redirectToCommit(w, r, hash)
}

// handleRefSetTracked builds the /admin/refs/{track,untrack} handler pair;
// both mutate the same underlying SetTracked and differ only in the value.
func (srv *Server) handleRefSetTracked(tracked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.FormValue("name")

		if err := srv.store.SetTracked(r.Context(), name, tracked); err != nil {
			srv.logger.Error("ref set tracked failed", "name", name, "tracked", tracked, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)

			return
		}

		srv.redirectToIndex(w, r)
	}
}

// handleIngestUpdate pokes the ingest loop to run a tick now instead of
// waiting out the rest of its ingest_period. The send is non-blocking: a
// poke already pending makes this one a no-op, and a server with no
// ingest loop wired up (ingestPoke == nil) just redirects without doing
// anything.
func (srv *Server) handleIngestUpdate(w http.ResponseWriter, r *http.Request) {
	if srv.ingestPoke != nil {
		select {
		case srv.ingestPoke <- struct{}{}:
		default:
		}
	}

	srv.redirectToIndex(w, r)
}

func (srv *Server) redirectToIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

func (srv *Server) redirectToCommit(w http.ResponseWriter, r *http.Request, hash string) {
	http.Redirect(w, r, "/commit/"+hash, http.StatusFound)
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}

	return s
}
