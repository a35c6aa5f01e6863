package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
)

// Store holds two *sql.DB handles over the same database file: a
// single-connection writer (SQLite allows exactly one writer at a time)
// and an unbounded-pool reader, so reads never queue behind a write.
type Store struct {
	writer *sql.DB
	reader *sql.DB
}

// dsn builds the sqlite3 DSN with WAL journaling and foreign keys
// enabled.
func dsn(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	writer, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open writer handle: %w", err)
	}

	writer.SetMaxOpenConns(1)

	reader, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		_ = writer.Close()

		return nil, fmt.Errorf("open reader handle: %w", err)
	}

	s := &Store{writer: writer, reader: reader}

	if migrateErr := s.migrate(ctx); migrateErr != nil {
		_ = s.Close()

		return nil, migrateErr
	}

	return s, nil
}

// Close releases both database handles.
func (s *Store) Close() error {
	writerErr := s.writer.Close()
	readerErr := s.reader.Close()

	if writerErr != nil {
		return fmt.Errorf("close writer handle: %w", writerErr)
	}

	if readerErr != nil {
		return fmt.Errorf("close reader handle: %w", readerErr)
	}

	return nil
}

// beginTx starts a write transaction with deferred foreign key checking,
// so a multi-statement insert sees its foreign keys checked once at
// commit rather than after every statement.
func (s *Store) beginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys = ON"); err != nil {
		_ = tx.Rollback()

		return nil, fmt.Errorf("defer foreign keys: %w", err)
	}

	return tx, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS commits (
	hash           TEXT PRIMARY KEY,
	author         TEXT NOT NULL,
	author_date    INTEGER NOT NULL,
	committer      TEXT NOT NULL,
	committer_date INTEGER NOT NULL,
	message        TEXT NOT NULL,
	reachable      INTEGER NOT NULL DEFAULT 0,
	new            INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS commit_edges (
	parent_hash TEXT NOT NULL REFERENCES commits(hash),
	child_hash  TEXT NOT NULL REFERENCES commits(hash),
	PRIMARY KEY (parent_hash, child_hash)
);
CREATE INDEX IF NOT EXISTS idx_commit_edges_child ON commit_edges(child_hash);
CREATE INDEX IF NOT EXISTS idx_commit_edges_parent ON commit_edges(parent_hash);

CREATE TABLE IF NOT EXISTS refs (
	name    TEXT PRIMARY KEY,
	hash    TEXT NOT NULL,
	tracked INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS queue_entries (
	hash     TEXT PRIMARY KEY REFERENCES commits(hash),
	date     INTEGER NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_queue_order ON queue_entries(priority DESC, date DESC, hash ASC);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	hash         TEXT NOT NULL REFERENCES commits(hash),
	bench_method TEXT NOT NULL,
	worker_name  TEXT NOT NULL,
	worker_info  TEXT NOT NULL DEFAULT '',
	start        INTEGER NOT NULL,
	end          INTEGER,
	exit_code    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_hash ON runs(hash);

CREATE TABLE IF NOT EXISTS metrics (
	name TEXT PRIMARY KEY,
	unit TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS measurements (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	metric_name TEXT NOT NULL REFERENCES metrics(name),
	value       REAL NOT NULL,
	unit        TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, metric_name)
);

CREATE TABLE IF NOT EXISTS run_output (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	line_index INTEGER NOT NULL,
	source     INTEGER NOT NULL,
	text       TEXT NOT NULL,
	PRIMARY KEY (run_id, line_index)
);
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.writer.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	return nil
}
