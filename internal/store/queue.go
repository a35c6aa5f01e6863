package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Enqueue inserts or updates a queue entry for hash under the given
// conflict policy. The caller is responsible for having verified the
// commit's reachability before calling this for admin mutations; the
// auto-admit path (internal/queue) always calls it with a hash already
// filtered to FromTrackedRef.
func (s *Store) Enqueue(ctx context.Context, tx *sql.Tx, hash string, date time.Time, priority int, policy EnqueuePolicy) error {
	switch policy {
	case Ignore:
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO queue_entries (hash, date, priority) VALUES (?, ?, ?)`,
			hash, date.Unix(), priority)
		if err != nil {
			return fmt.Errorf("enqueue (ignore) %s: %w", hash, err)
		}

	case Replace:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO queue_entries (hash, date, priority) VALUES (?, ?, ?)
			ON CONFLICT(hash) DO UPDATE SET date = excluded.date, priority = excluded.priority`,
			hash, date.Unix(), priority)
		if err != nil {
			return fmt.Errorf("enqueue (replace) %s: %w", hash, err)
		}

	case KeepHigherPriority:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO queue_entries (hash, date, priority) VALUES (?, ?, ?)
			ON CONFLICT(hash) DO UPDATE SET
				priority = MAX(queue_entries.priority, excluded.priority),
				date = excluded.date`,
			hash, date.Unix(), priority)
		if err != nil {
			return fmt.Errorf("enqueue (keep higher priority) %s: %w", hash, err)
		}

	default:
		return fmt.Errorf("enqueue %s: unknown policy %d", hash, policy)
	}

	return nil
}

// EnqueueAutocommit is the non-transactional convenience wrapper used by
// admin endpoints that don't need to batch with other writes.
func (s *Store) EnqueueAutocommit(ctx context.Context, hash string, date time.Time, priority int, policy EnqueuePolicy) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}

	if err := s.Enqueue(ctx, tx, hash, date, priority, policy); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enqueue: %w", err)
	}

	return nil
}

// Dequeue removes the queue entry for hash, returning ErrQueueNotFound if
// there is none. Deleting a queue entry does not cascade to runs already
// started.
func (s *Store) Dequeue(ctx context.Context, hash string) error {
	res, err := s.writer.ExecContext(ctx, "DELETE FROM queue_entries WHERE hash = ?", hash)
	if err != nil {
		return fmt.Errorf("dequeue %s: %w", hash, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrQueueNotFound, hash)
	}

	return nil
}

// dequeueTx is the transaction-scoped variant used inside RecordRun so
// that a successful run submission atomically clears the queue entry.
func dequeueTx(ctx context.Context, tx *sql.Tx, hash string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM queue_entries WHERE hash = ?", hash); err != nil {
		return fmt.Errorf("dequeue (tx) %s: %w", hash, err)
	}

	return nil
}

// QueueOrdered returns every queue entry in the canonical total order:
// (priority DESC, date DESC, hash ASC).
func (s *Store) QueueOrdered(ctx context.Context) ([]QueueEntry, error) {
	rows, err := s.reader.QueryContext(ctx, `
		SELECT hash, date, priority FROM queue_entries
		ORDER BY priority DESC, date DESC, hash ASC`)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	defer rows.Close()

	var entries []QueueEntry

	for rows.Next() {
		var (
			e        QueueEntry
			dateUnix int64
		)

		if err := rows.Scan(&e.Hash, &dateUnix, &e.Priority); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}

		e.Date = time.Unix(dateUnix, 0).UTC()
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// AdjustPriority shifts hash's queue priority by delta (±1 for the
// increase/decrease admin mutations,).
func (s *Store) AdjustPriority(ctx context.Context, hash string, delta int) error {
	res, err := s.writer.ExecContext(ctx,
		"UPDATE queue_entries SET priority = priority + ? WHERE hash = ?", delta, hash)
	if err != nil {
		return fmt.Errorf("adjust priority for %s: %w", hash, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrQueueNotFound, hash)
	}

	return nil
}

// MostRecentUnqueuedTrackedCommits returns up to limit tracked-reachable
// commit hashes (most recent author date first) that currently have no
// queue entry and have never been run, for the admin add_batch mutation
//.
func (s *Store) MostRecentUnqueuedTrackedCommits(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.reader.QueryContext(ctx, `
		SELECT c.hash FROM commits c
		WHERE c.reachable = ?
		  AND NOT EXISTS (SELECT 1 FROM queue_entries q WHERE q.hash = c.hash)
		  AND NOT EXISTS (SELECT 1 FROM runs r WHERE r.hash = c.hash)
		ORDER BY c.author_date DESC, c.hash ASC
		LIMIT ?`, int(FromTrackedRef), limit)
	if err != nil {
		return nil, fmt.Errorf("query unqueued tracked commits: %w", err)
	}
	defer rows.Close()

	var hashes []string

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}

		hashes = append(hashes, hash)
	}

	return hashes, rows.Err()
}

// IsTrackedReachable reports whether hash currently classifies as
// FromTrackedRef, the check admin Add must pass before enqueueing.
func (s *Store) IsTrackedReachable(ctx context.Context, hash string) (bool, error) {
	c, err := s.LoadCommit(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrCommitNotFound) {
			return false, nil
		}

		return false, err
	}

	return c.Reachable == FromTrackedRef, nil
}
