// Package queue is a thin layer over internal/store providing the admin
// mutations and the post-ingest auto-admit step.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Garmelon/tablejohn/internal/store"
)

// defaultPriority is the priority assigned to commits auto-admitted by
// the ingestor.
const defaultPriority = 0

// Manager wraps a *store.Store with the queue admin operations.
type Manager struct {
	store *store.Store
}

// New returns a queue Manager backed by s.
func New(s *store.Store) *Manager {
	return &Manager{store: s}
}

// AutoAdmit runs the auto-admit step inside the ingest transaction
// tx: every commit with new=1 and reachable=FromTrackedRef is enqueued at
// default priority, then new is cleared on every FromTrackedRef commit
// (not on all commits, so an untracked commit that later becomes tracked
// still enters the queue).
func AutoAdmit(ctx context.Context, s *store.Store, tx *sql.Tx) error {
	hashes, err := s.NewTrackedReachableHashes(ctx, tx)
	if err != nil {
		return fmt.Errorf("auto-admit: list new tracked-reachable commits: %w", err)
	}

	now := time.Now()

	for _, hash := range hashes {
		if err := s.Enqueue(ctx, tx, hash, now, defaultPriority, store.Ignore); err != nil {
			return fmt.Errorf("auto-admit: enqueue %s: %w", hash, err)
		}
	}

	if err := s.ClearNewForTrackedReachable(ctx, tx); err != nil {
		return fmt.Errorf("auto-admit: clear new flags: %w", err)
	}

	return nil
}

// Add enqueues hash at priority, replacing the existing entry's priority
// only if the new one is larger.
func (m *Manager) Add(ctx context.Context, hash string, priority int) error {
	reachable, err := m.store.IsTrackedReachable(ctx, hash)
	if err != nil {
		return fmt.Errorf("add %s: %w", hash, err)
	}

	if !reachable {
		return fmt.Errorf("add %s: %w", hash, store.ErrCommitNotFound)
	}

	return m.store.EnqueueAutocommit(ctx, hash, time.Now(), priority, store.KeepHigherPriority)
}

// AddBatch enqueues the `amount` most recent un-run tracked commits at
// priority.
func (m *Manager) AddBatch(ctx context.Context, amount, priority int) (int, error) {
	hashes, err := m.store.MostRecentUnqueuedTrackedCommits(ctx, amount)
	if err != nil {
		return 0, fmt.Errorf("add batch: %w", err)
	}

	now := time.Now()

	for _, hash := range hashes {
		if err := m.store.EnqueueAutocommit(ctx, hash, now, priority, store.Replace); err != nil {
			return 0, fmt.Errorf("add batch: enqueue %s: %w", hash, err)
		}
	}

	return len(hashes), nil
}

// Delete removes hash's queue entry.
func (m *Manager) Delete(ctx context.Context, hash string) error {
	return m.store.Dequeue(ctx, hash)
}

// Increase raises hash's priority by one.
func (m *Manager) Increase(ctx context.Context, hash string) error {
	return m.store.AdjustPriority(ctx, hash, 1)
}

// Decrease lowers hash's priority by one.
func (m *Manager) Decrease(ctx context.Context, hash string) error {
	return m.store.AdjustPriority(ctx, hash, -1)
}

// Ordered returns the queue in its canonical total order.
func (m *Manager) Ordered(ctx context.Context) ([]store.QueueEntry, error) {
	return m.store.QueueOrdered(ctx)
}
