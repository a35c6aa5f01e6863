package gitlib

import (
	"fmt"
	"runtime"
	"strings"

	git2go "github.com/libgit2/git2go/v34"
)

// Repository wraps a libgit2 repository. All methods must be called from
// the same goroutine that opened it (libgit2 handles are not safe to share
// across OS threads without external synchronization); callers that need
// concurrent access should serialize through a single goroutine, as
// internal/ingest and internal/httpapi do.
type Repository struct {
	repo *git2go.Repository
	path string
}

// Open opens an existing repository (bare or not) at path.
func Open(path string) (*Repository, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %q: %w", path, err)
	}

	return &Repository{repo: repo, path: path}, nil
}

// InitBare creates a new bare repository at path, for first-time ingest of
// a repo_fetch_url.
func InitBare(path string) (*Repository, error) {
	repo, err := git2go.InitRepository(path, true)
	if err != nil {
		return nil, fmt.Errorf("init bare repository %q: %w", path, err)
	}

	return &Repository{repo: repo, path: path}, nil
}

// Path returns the repository's on-disk path.
func (r *Repository) Path() string { return r.path }

// Free releases the repository handle.
func (r *Repository) Free() {
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
}

// RefInfo is one reference as reported by ListRefsPeeled: its name and the
// hash of the commit it peels to (refs that don't peel to a commit are
// omitted).
type RefInfo struct {
	Name string
	Hash Hash
}

// ListRefsPeeled returns every reference in the repository, peeled to the
// commit it resolves to. References that don't peel to a commit (tags of
// blobs, broken symrefs, etc.) are silently skipped rather than failing
// the whole walk.
func (r *Repository) ListRefsPeeled() ([]RefInfo, error) {
	iter, err := r.repo.NewReferenceIterator()
	if err != nil {
		return nil, fmt.Errorf("new reference iterator: %w", err)
	}
	defer iter.Free()

	var refs []RefInfo

	for {
		ref, nextErr := iter.Next()
		if nextErr != nil {
			break // iterator exhausted
		}

		name := ref.Name()

		obj, peelErr := ref.Peel(git2go.ObjectCommit)
		if peelErr != nil {
			continue
		}

		commit, asErr := obj.AsCommit()
		if asErr != nil {
			continue
		}

		refs = append(refs, RefInfo{Name: name, Hash: hashFromOid(commit.Id())})
		commit.Free()
	}

	return refs, nil
}

// Head returns the hash HEAD currently resolves to.
func (r *Repository) Head() (Hash, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return Hash{}, fmt.Errorf("get HEAD: %w", err)
	}
	defer ref.Free()

	return hashFromOid(ref.Target()), nil
}

// HeadRefName returns the fully-qualified name of the branch HEAD points
// to (e.g. "refs/heads/main"), used to auto-track the default branch on
// first import.
func (r *Repository) HeadRefName() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	defer ref.Free()

	return ref.Name(), nil
}

// LookupCommit looks up a commit by hash.
func (r *Repository) LookupCommit(hash Hash) (*Commit, error) {
	commit, err := r.repo.LookupCommit(hash.toOid())
	if err != nil {
		return nil, fmt.Errorf("lookup commit %s: %w", hash, err)
	}

	return &Commit{commit: commit, repo: r}, nil
}

// LookupBlobBytes returns the full contents of a blob by hash. Used both
// for worktree streaming and for the internal benchmark's line counter.
func (r *Repository) LookupBlobBytes(hash Hash) ([]byte, error) {
	blob, err := r.repo.LookupBlob(hash.toOid())
	if err != nil {
		return nil, fmt.Errorf("lookup blob %s: %w", hash, err)
	}
	defer blob.Free()

	contents := blob.Contents()
	out := make([]byte, len(contents))
	copy(out, contents)

	return out, nil
}

// NewRevWalk creates a revision walker over this repository.
func (r *Repository) NewRevWalk() (*RevWalk, error) {
	walk, err := r.repo.Walk()
	if err != nil {
		return nil, fmt.Errorf("create revwalk: %w", err)
	}

	return &RevWalk{walk: walk}, nil
}

// FetchPrune fetches all refs from remoteURL into the repository, pruning
// remote-tracking refs that no longer exist upstream, and returns the
// remote's advertised default branch (HEAD symref target), if any.
func (r *Repository) FetchPrune(remoteURL string) (defaultBranch string, err error) {
	remote, err := r.repo.Remotes.CreateAnonymous(remoteURL)
	if err != nil {
		return "", fmt.Errorf("create anonymous remote %q: %w", remoteURL, err)
	}
	defer remote.Free()

	opts := &git2go.FetchOptions{
		Prune:           git2go.FetchPruneOn,
		DownloadTags:    git2go.DownloadTagsAuto,
		UpdateFetchhead: true,
	}

	refspecs := []string{"+refs/*:refs/*"}

	if fetchErr := remote.Fetch(refspecs, opts, "tablejohn fetch"); fetchErr != nil {
		return "", fmt.Errorf("fetch %q: %w", remoteURL, fetchErr)
	}

	heads, lsErr := remote.Ls()
	if lsErr != nil {
		return "", nil //nolint:nilerr // default-branch detection is best-effort
	}

	for _, head := range heads {
		if head.Name == "HEAD" && head.SymrefTarget != "" {
			return head.SymrefTarget, nil
		}
	}

	return "", nil
}

// SetSymbolicHead points the repository's HEAD at the given branch ref
// (e.g. "refs/heads/main"), used to record a freshly-fetched repo's
// default branch before the first ingest tick.
func (r *Repository) SetSymbolicHead(target string) error {
	if _, err := r.repo.References.CreateSymbolic("HEAD", target, true, "tablejohn: set default branch"); err != nil {
		return fmt.Errorf("set HEAD to %s: %w", target, err)
	}

	return nil
}

// IsEmptyDir reports whether path does not yet contain a repository,
// distinguishing "needs InitBare" from "open existing".
func IsEmptyDir(path string) bool {
	_, err := git2go.OpenRepository(path)

	return err != nil
}

// ShortBranchName strips the refs/heads/ prefix from a fully-qualified
// branch ref name, returning name unchanged if it isn't one.
func ShortBranchName(name string) string {
	return strings.TrimPrefix(name, "refs/heads/")
}

// ResolveHead opens the repository at path, reads the hash its HEAD
// currently resolves to, and frees the handle, all on a single goroutine
// pinned to its OS thread for the duration (libgit2 handles are not safe
// to use from arbitrary goroutines). For callers such as the bench method
// resolver that only need a one-off read and have no long-lived handle of
// their own to pin a goroutine around.
func ResolveHead(path string) (Hash, error) {
	type result struct {
		hash Hash
		err  error
	}

	done := make(chan result, 1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		repo, err := Open(path)
		if err != nil {
			done <- result{err: err}

			return
		}
		defer repo.Free()

		hash, err := repo.Head()
		done <- result{hash: hash, err: err}
	}()

	r := <-done

	return r.hash, r.err
}
