// Package ingest walks a Git repository for newly discovered commits on
// each tick, records them transactionally alongside the current ref set,
// recomputes reachability, and auto-admits newly tracked-reachable
// commits into the queue.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Garmelon/tablejohn/internal/gitlib"
	"github.com/Garmelon/tablejohn/internal/queue"
	"github.com/Garmelon/tablejohn/internal/store"
)

// progressEvery controls how often a progress line is logged during a
// large revision walk.
const progressEvery = 100_000

// Ingestor drives one repository's commit store against its on-disk Git
// mirror.
type Ingestor struct {
	store        *store.Store
	repoPath     string
	repoFetchURL string
	logger       *slog.Logger
}

// New returns an Ingestor for the repository at repoPath, persisting into
// s. repoFetchURL may be empty, disabling the fetch-before-ingest step.
func New(s *store.Store, repoPath, repoFetchURL string, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Ingestor{store: s, repoPath: repoPath, repoFetchURL: repoFetchURL, logger: logger}
}

// walkResult carries everything the Git-facing goroutine of Tick produces,
// handed back to the transactional store phase.
type walkResult struct {
	refs          []store.Ref
	commits       []store.NewCommit
	defaultBranch string // only set when the store was empty before this tick
}

// Tick runs one ingest pass. The Git-touching work (optional fetch,
// ref peeling, revision walk) runs on a single goroutine pinned to its OS
// thread via runtime.LockOSThread, because libgit2 handles are not safe to
// use from arbitrary goroutines; it never runs inline on a goroutine that
// also services HTTP requests or heartbeats.
func (in *Ingestor) Tick(ctx context.Context) error {
	_, err := in.TickCount(ctx)

	return err
}

// TickCount runs one ingest pass like Tick, additionally returning the
// number of newly discovered commits for callers that report it (the
// admin metrics surface's tablejohn_ingest_commits_total counter).
func (in *Ingestor) TickCount(ctx context.Context) (int, error) {
	known, err := in.store.KnownHashes(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingest tick: snapshot known hashes: %w", err)
	}

	wasEmpty, err := in.store.IsEmpty(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingest tick: check empty: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)

	var result walkResult

	group.Go(func() error {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		return in.walk(gctx, known, wasEmpty, &result)
	})

	if err := group.Wait(); err != nil {
		return 0, fmt.Errorf("ingest tick: walk: %w", err)
	}

	if err := in.commitResult(ctx, result, wasEmpty); err != nil {
		return 0, fmt.Errorf("ingest tick: commit: %w", err)
	}

	return len(result.commits), nil
}

// walk performs every libgit2-touching step of a tick: an optional
// fetch-before-ingest, ref peeling, and the revision walk over
// everything not already in known.
func (in *Ingestor) walk(ctx context.Context, known map[string]bool, wasEmpty bool, result *walkResult) error {
	repo, defaultBranch, err := in.openAndFetch(wasEmpty)
	if err != nil {
		return err
	}
	defer repo.Free()

	result.defaultBranch = defaultBranch

	refs, err := repo.ListRefsPeeled()
	if err != nil {
		return fmt.Errorf("list refs: %w", err)
	}

	result.refs = make([]store.Ref, len(refs))
	for i, r := range refs {
		result.refs[i] = store.Ref{Name: r.Name, Hash: r.Hash.String()}
	}

	walker, err := repo.NewRevWalk()
	if err != nil {
		return fmt.Errorf("new revwalk: %w", err)
	}
	defer walker.Close()

	walker.Sorting()

	for _, r := range refs {
		if err := walker.Push(r.Hash); err != nil {
			return fmt.Errorf("push ref %s: %w", r.Name, err)
		}
	}

	for hash := range known {
		parsed, err := gitlib.ParseHash(hash)
		if err != nil {
			continue
		}

		if err := walker.Hide(parsed); err != nil {
			return fmt.Errorf("hide %s: %w", hash, err)
		}
	}

	return in.collectCommits(ctx, repo, walker, result)
}

// openAndFetch opens the repository, running the fetch-before-ingest
// pre-step when a repoFetchURL is configured. A first-time empty
// directory is initialized as a bare repo and its default branch
// symbolic ref is set from the remote's advertised HEAD before the walk.
func (in *Ingestor) openAndFetch(wasEmpty bool) (repo *gitlib.Repository, defaultBranch string, err error) {
	if in.repoFetchURL != "" {
		firstFetch := gitlib.IsEmptyDir(in.repoPath)

		if firstFetch {
			repo, err = gitlib.InitBare(in.repoPath)
		} else {
			repo, err = gitlib.Open(in.repoPath)
		}

		if err != nil {
			return nil, "", fmt.Errorf("open repository: %w", err)
		}

		remoteDefault, fetchErr := repo.FetchPrune(in.repoFetchURL)
		if fetchErr != nil {
			repo.Free()

			return nil, "", fmt.Errorf("fetch %s: %w", in.repoFetchURL, fetchErr)
		}

		if firstFetch && remoteDefault != "" {
			if err := repo.SetSymbolicHead(remoteDefault); err != nil {
				repo.Free()

				return nil, "", fmt.Errorf("set default branch: %w", err)
			}
		}
	} else {
		repo, err = gitlib.Open(in.repoPath)
		if err != nil {
			return nil, "", fmt.Errorf("open repository: %w", err)
		}
	}

	if wasEmpty {
		if name, headErr := repo.HeadRefName(); headErr == nil {
			defaultBranch = name
		}
	}

	return repo, defaultBranch, nil
}

// collectCommits drains the revision walk, extracting the fields the store
// needs for every newly discovered commit, and logs progress every
// progressEvery insertions.
func (in *Ingestor) collectCommits(ctx context.Context, repo *gitlib.Repository, walker *gitlib.RevWalk, result *walkResult) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hash, err := walker.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return fmt.Errorf("revwalk next: %w", err)
		}

		commit, err := repo.LookupCommit(hash)
		if err != nil {
			return fmt.Errorf("lookup commit %s: %w", hash, err)
		}

		author := commit.Author()
		committer := commit.Committer()

		nc := store.NewCommit{
			Hash:          commit.Hash().String(),
			Author:        formatSignature(author),
			AuthorDate:    author.When,
			Committer:     formatSignature(committer),
			CommitterDate: committer.When,
			Message:       commit.Message(),
		}

		for _, p := range commit.ParentHashes() {
			nc.ParentHashes = append(nc.ParentHashes, p.String())
		}

		commit.Free()

		result.commits = append(result.commits, nc)

		if len(result.commits)%progressEvery == 0 {
			in.logger.Info("ingest progress", "commits_discovered", len(result.commits))
		}
	}

	return nil
}

func formatSignature(sig gitlib.Signature) string {
	return fmt.Sprintf("%s <%s>", sig.Name, sig.Email)
}

// commitResult runs the transactional phase of a tick: insert commits
// and edges, replace the ref set, auto-track the default branch on
// first import, recompute reachability, and auto-admit newly
// tracked-reachable commits into the queue.
func (in *Ingestor) commitResult(ctx context.Context, result walkResult, wasEmpty bool) error {
	tx, err := in.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	commitErr := func() error {
		if err := in.store.InsertCommitsAndEdges(ctx, tx, result.commits, wasEmpty); err != nil {
			return err
		}

		if err := in.store.ReplaceRefs(ctx, tx, result.refs); err != nil {
			return err
		}

		if wasEmpty && result.defaultBranch != "" {
			if err := in.store.SetTrackedTx(ctx, tx, result.defaultBranch, true); err != nil {
				return fmt.Errorf("auto-track default branch %s: %w", result.defaultBranch, err)
			}
		}

		if err := in.store.RecomputeReachability(ctx, tx); err != nil {
			return err
		}

		return queue.AutoAdmit(ctx, in.store, tx)
	}()

	if commitErr != nil {
		_ = tx.Rollback()

		return commitErr
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ingest tx: %w", err)
	}

	in.logger.Info("ingest tick complete", "commits_discovered", len(result.commits), "refs", len(result.refs))

	return nil
}
