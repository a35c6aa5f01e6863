package gitlib

import (
	"errors"
	"fmt"
	"io"

	git2go "github.com/libgit2/git2go/v34"
)

// RevWalk wraps a libgit2 revision walker. It is used by the ingestor to
// discover commits reachable from a set of ref tips but not from a set of
// already-known tips (push the new, hide the old).
type RevWalk struct {
	walk *git2go.RevWalk
}

// Sorting sets the walk order. Topological+time order avoids ever diffing
// against a descendant during ingest.
func (w *RevWalk) Sorting() {
	w.walk.Sorting(git2go.SortTopological | git2go.SortTime)
}

// Push adds a starting point to walk from.
func (w *RevWalk) Push(hash Hash) error {
	if err := w.walk.Push(hash.toOid()); err != nil {
		return fmt.Errorf("push %s to revwalk: %w", hash, err)
	}

	return nil
}

// Hide marks a commit (and everything reachable from it) as already seen,
// so the walk will not yield it.
func (w *RevWalk) Hide(hash Hash) error {
	if err := w.walk.Hide(hash.toOid()); err != nil {
		// A hash that's no longer reachable/valid as a hide point is not
		// fatal: it just means nothing is hidden on that branch.
		return nil //nolint:nilerr
	}

	return nil
}

// Next returns the next commit hash in the walk, or io.EOF when exhausted.
func (w *RevWalk) Next() (Hash, error) {
	oid := new(git2go.Oid)

	err := w.walk.Next(oid)
	if err != nil {
		var gitErr *git2go.GitError
		if errors.As(err, &gitErr) && gitErr.Code == git2go.ErrorCodeIterOver {
			return Hash{}, io.EOF
		}

		return Hash{}, fmt.Errorf("revwalk next: %w", err)
	}

	return hashFromOid(oid), nil
}

// Close releases the underlying libgit2 walker.
func (w *RevWalk) Close() {
	if w.walk != nil {
		w.walk.Free()
		w.walk = nil
	}
}
