package gitlib

import "errors"

// Sentinel errors returned by the gitlib facade.
var (
	ErrBadHash       = errors.New("gitlib: malformed object hash")
	ErrNotACommit    = errors.New("gitlib: ref does not peel to a commit")
	ErrNoSuchParent  = errors.New("gitlib: parent index out of range")
	ErrNoDefaultHEAD = errors.New("gitlib: remote advertised no default branch")
)
