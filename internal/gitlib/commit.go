package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// Commit wraps a libgit2 commit. Callers must call Free when done.
type Commit struct {
	commit *git2go.Commit
	repo   *Repository
}

// Hash returns the commit's object hash.
func (c *Commit) Hash() Hash {
	return hashFromOid(c.commit.Id())
}

// Author returns the commit's author identity.
func (c *Commit) Author() Signature {
	sig := c.commit.Author()

	return Signature{Name: sig.Name, Email: sig.Email, When: sig.When}
}

// Committer returns the commit's committer identity.
func (c *Commit) Committer() Signature {
	sig := c.commit.Committer()

	return Signature{Name: sig.Name, Email: sig.Email, When: sig.When}
}

// Message returns the full commit message.
func (c *Commit) Message() string {
	return c.commit.Message()
}

// NumParents returns the number of parent commits.
func (c *Commit) NumParents() int {
	return int(c.commit.ParentCount())
}

// ParentHash returns the hash of the nth parent.
func (c *Commit) ParentHash(n int) Hash {
	return hashFromOid(c.commit.ParentId(uint(n)))
}

// ParentHashes returns the hashes of all parents, in order.
func (c *Commit) ParentHashes() []Hash {
	n := c.NumParents()
	out := make([]Hash, n)

	for i := range n {
		out[i] = c.ParentHash(i)
	}

	return out
}

// TreeHash returns the hash of the commit's root tree, without needing a
// full Tree lookup.
func (c *Commit) TreeHash() Hash {
	return hashFromOid(c.commit.TreeId())
}

// Tree looks up and returns the commit's root tree.
func (c *Commit) Tree() (*Tree, error) {
	tree, err := c.commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("get commit tree: %w", err)
	}

	return &Tree{tree: tree, repo: c.repo}, nil
}

// Free releases the underlying libgit2 commit.
func (c *Commit) Free() {
	if c.commit != nil {
		c.commit.Free()
		c.commit = nil
	}
}
