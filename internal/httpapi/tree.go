package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"runtime"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/Garmelon/tablejohn/internal/gitlib"
)

// handleTree implements GET /api/worker/{repo|bench_repo}/{hash}/tree.tar.gz:
// the tar/gzip producer runs on its own OS-thread-pinned goroutine
// (libgit2 handles are not safe to share across
// arbitrary goroutines) and is joined through an io.Pipe with the response
// writer, so a slow client backpressures the producer instead of the
// producer buffering the whole worktree in memory.
func (srv *Server) handleTree(repoPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repoPath == "" {
			http.Error(w, "not configured", http.StatusNotFound)

			return
		}

		hashStr := mux.Vars(r)["hash"]

		hash, err := gitlib.ParseHash(hashStr)
		if err != nil {
			http.Error(w, "malformed hash", http.StatusBadRequest)

			return
		}

		pr, pw := io.Pipe()
		group, _ := errgroup.WithContext(r.Context())

		group.Go(func() error {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			return produceTree(repoPath, hash, pw)
		})

		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Disposition", `attachment; filename="tree.tar.gz"`)
		w.WriteHeader(http.StatusOK)

		if _, err := io.Copy(w, pr); err != nil {
			srv.logger.Error("stream tree to client failed", "hash", hashStr, "error", err)
		}

		if err := group.Wait(); err != nil {
			srv.logger.Error("produce tree stream failed", "hash", hashStr, "error", err)
		}
	}
}

// produceTree opens repoPath, looks up hash, and streams its worktree into
// pw, closing pw (with error, if any) when done so the reading side of the
// pipe always terminates.
func produceTree(repoPath string, hash gitlib.Hash, pw *io.PipeWriter) error {
	repo, err := gitlib.Open(repoPath)
	if err != nil {
		err = fmt.Errorf("open repository: %w", err)
		_ = pw.CloseWithError(err)

		return err
	}
	defer repo.Free()

	commit, err := repo.LookupCommit(hash)
	if err != nil {
		err = fmt.Errorf("lookup commit %s: %w", hash, err)
		_ = pw.CloseWithError(err)

		return err
	}
	defer commit.Free()

	if err := repo.StreamWorktree(pw, commit); err != nil {
		_ = pw.CloseWithError(err)

		return err
	}

	return pw.Close()
}
