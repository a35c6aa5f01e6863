// Package gitlib is the Git reader facade consumed by the commit store,
// the ingestor, and the tree-stream HTTP handlers. It wraps libgit2
// through git2go so that the rest of tablejohn never imports git2go
// directly.
package gitlib

import (
	git2go "github.com/libgit2/git2go/v34"
)

// HashSize is the size of a SHA-1 object hash in bytes.
const HashSize = 20

// Hash is a Git object hash.
type Hash [HashSize]byte

// ZeroHash is the all-zero hash, used as a sentinel for "no parent"/"no
// previous commit".
func ZeroHash() Hash { return Hash{} }

// ParseHash decodes a 40-character hex string into a Hash.
func ParseHash(hex string) (Hash, error) {
	oid, err := git2go.NewOid(hex)
	if err != nil {
		return Hash{}, ErrBadHash
	}

	return hashFromOid(oid), nil
}

// String renders the hash as lowercase hex.
func (h Hash) String() string {
	return git2go.NewOidFromBytes(h[:]).String()
}

// IsZero reports whether this is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func hashFromOid(oid *git2go.Oid) Hash {
	var h Hash

	copy(h[:], oid[:])

	return h
}

func (h Hash) toOid() *git2go.Oid {
	return git2go.NewOidFromBytes(h[:])
}
