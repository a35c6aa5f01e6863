package gitlib

import (
	"fmt"
	"path"

	git2go "github.com/libgit2/git2go/v34"
)

// Tree wraps a libgit2 tree. Callers must call Free when done.
type Tree struct {
	tree *git2go.Tree
	repo *Repository
}

// Hash returns the tree's object hash.
func (t *Tree) Hash() Hash {
	return hashFromOid(t.tree.Id())
}

// Free releases the underlying libgit2 tree.
func (t *Tree) Free() {
	if t.tree != nil {
		t.tree.Free()
		t.tree = nil
	}
}

// EntryKind classifies a flattened tree entry for the worktree streamer.
type EntryKind int

// Entry kinds produced by WalkEntries.
const (
	EntryFile EntryKind = iota
	EntryExecutable
	EntrySymlink
	EntryDir
	EntrySubmodule
)

// Entry is one flattened, path-qualified entry of a commit's worktree.
type Entry struct {
	Path string
	Kind EntryKind
	Hash Hash
}

// WalkEntries recursively flattens the tree into a slice of Entry, in tree
// order, suitable for streaming into a tar archive. Directories are
// included explicitly (with zero size, per the tar/gzip stream format) so
// that empty directories still round-trip.
func (t *Tree) WalkEntries() ([]Entry, error) {
	var entries []Entry

	walkErr := t.tree.Walk(func(dirPath string, te *git2go.TreeEntry) int {
		full := path.Join(dirPath, te.Name)

		switch te.Type {
		case git2go.ObjectTree:
			entries = append(entries, Entry{Path: full, Kind: EntryDir, Hash: hashFromOid(te.Id)})
		case git2go.ObjectCommit:
			// Submodule reference: recorded as a directory marker, not
			// recursed into (it lives in another repository).
			entries = append(entries, Entry{Path: full, Kind: EntrySubmodule, Hash: hashFromOid(te.Id)})

			return 1 // skip recursing into the submodule gitlink
		default:
			kind := EntryFile

			switch {
			case te.Filemode == git2go.FilemodeLink:
				kind = EntrySymlink
			case te.Filemode == git2go.FilemodeBlobExecutable:
				kind = EntryExecutable
			}

			entries = append(entries, Entry{Path: full, Kind: kind, Hash: hashFromOid(te.Id)})
		}

		return 0
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk tree: %w", walkErr)
	}

	return entries, nil
}
