package store

import "errors"

// Sentinel errors returned by store operations.
var (
	ErrRefNotFound   = errors.New("store: ref not found")
	ErrQueueNotFound = errors.New("store: queue entry not found")
)
