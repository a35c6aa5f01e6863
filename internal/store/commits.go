package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrCommitNotFound is returned when a commit hash has no matching row.
var ErrCommitNotFound = errors.New("store: commit not found")

// commitBatchSize bounds how many commits are inserted per multi-row
// INSERT statement, to stay well under SQLite's default host-parameter
// limit (999) with 7 bound parameters per row.
const commitBatchSize = 100

// IsEmpty reports whether the store has not yet ingested any commits, used
// by the ingestor to detect a first-time import.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	var count int

	err := s.reader.QueryRowContext(ctx, "SELECT COUNT(*) FROM commits").Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count commits: %w", err)
	}

	return count == 0, nil
}

// KnownHashes returns the set of every commit hash currently in the store,
// used by the ingestor to compute the revision-walk's skip set.
func (s *Store) KnownHashes(ctx context.Context) (map[string]bool, error) {
	rows, err := s.reader.QueryContext(ctx, "SELECT hash FROM commits")
	if err != nil {
		return nil, fmt.Errorf("query known hashes: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool)

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}

		known[hash] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate known hashes: %w", err)
	}

	return known, nil
}

// LoadCommit returns a single commit by hash.
func (s *Store) LoadCommit(ctx context.Context, hash string) (*Commit, error) {
	row := s.reader.QueryRowContext(ctx, `
		SELECT hash, author, author_date, committer, committer_date, message, reachable, new
		FROM commits WHERE hash = ?`, hash)

	c, err := scanCommit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCommitNotFound
		}

		return nil, err
	}

	return c, nil
}

func scanCommit(row *sql.Row) (*Commit, error) {
	var (
		c                            Commit
		authorDate, committerDate    int64
		reachable                    int
		isNew                        int
	)

	err := row.Scan(&c.Hash, &c.Author, &authorDate, &c.Committer, &committerDate,
		&c.Message, &reachable, &isNew)
	if err != nil {
		return nil, fmt.Errorf("scan commit: %w", err)
	}

	c.AuthorDate = time.Unix(authorDate, 0).UTC()
	c.CommitterDate = time.Unix(committerDate, 0).UTC()
	c.Reachable = Reachability(reachable)
	c.New = isNew != 0

	return &c, nil
}

// InsertCommitsAndEdges batch-inserts newly discovered commits and their
// parent-child edges within tx, ignoring duplicates. Commits are
// inserted before any edges so that a deferred foreign-key check at
// commit time sees every referenced hash, and because grouping writes
// this way is materially faster than interleaving.
//
// markNotNew controls the "new" flag seeded on insertion: a first-time
// import seeds every commit with new=0 so only commits discovered on
// later ticks are auto-queued.
func (s *Store) InsertCommitsAndEdges(ctx context.Context, tx *sql.Tx, commits []NewCommit, markNotNew bool) error {
	newFlag := 1
	if markNotNew {
		newFlag = 0
	}

	if err := insertCommits(ctx, tx, commits, newFlag); err != nil {
		return err
	}

	return insertEdges(ctx, tx, commits)
}

func insertCommits(ctx context.Context, tx *sql.Tx, commits []NewCommit, newFlag int) error {
	for start := 0; start < len(commits); start += commitBatchSize {
		end := min(start+commitBatchSize, len(commits))
		batch := commits[start:end]

		query := "INSERT OR IGNORE INTO commits (hash, author, author_date, committer, committer_date, message, reachable, new) VALUES "
		args := make([]any, 0, len(batch)*8)

		for i, c := range batch {
			if i > 0 {
				query += ", "
			}

			query += "(?, ?, ?, ?, ?, ?, 0, ?)"
			args = append(args, c.Hash, c.Author, c.AuthorDate.Unix(), c.Committer,
				c.CommitterDate.Unix(), c.Message, newFlag)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert commits batch: %w", err)
		}
	}

	return nil
}

func insertEdges(ctx context.Context, tx *sql.Tx, commits []NewCommit) error {
	var edges []CommitEdge

	for _, c := range commits {
		for _, parent := range c.ParentHashes {
			edges = append(edges, CommitEdge{ParentHash: parent, ChildHash: c.Hash})
		}
	}

	for start := 0; start < len(edges); start += commitBatchSize {
		end := min(start+commitBatchSize, len(edges))
		batch := edges[start:end]

		query := "INSERT OR IGNORE INTO commit_edges (parent_hash, child_hash) VALUES "
		args := make([]any, 0, len(batch)*2)

		for i, e := range batch {
			if i > 0 {
				query += ", "
			}

			query += "(?, ?)"
			args = append(args, e.ParentHash, e.ChildHash)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert edges batch: %w", err)
		}
	}

	return nil
}

// BeginTx starts a write transaction for multi-step ingest operations
// (insert, replace refs, recompute reachability, admit queue entries).
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.beginTx(ctx)
}
