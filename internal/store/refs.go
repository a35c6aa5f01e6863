package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ReplaceRefs deletes every ref not present in refs, and upserts every ref
// present in refs, preserving the existing tracked flag on upsert.
// Tracking state is changed only through SetTracked and SetTrackedTx.
func (s *Store) ReplaceRefs(ctx context.Context, tx *sql.Tx, refs []Ref) error {
	keep := make(map[string]bool, len(refs))
	for _, r := range refs {
		keep[r.Name] = true
	}

	existing, err := queryRefNames(ctx, tx)
	if err != nil {
		return err
	}

	for _, name := range existing {
		if !keep[name] {
			if _, err := tx.ExecContext(ctx, "DELETE FROM refs WHERE name = ?", name); err != nil {
				return fmt.Errorf("delete stale ref %s: %w", name, err)
			}
		}
	}

	for _, r := range refs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO refs (name, hash, tracked) VALUES (?, ?, 0)
			ON CONFLICT(name) DO UPDATE SET hash = excluded.hash`,
			r.Name, r.Hash)
		if err != nil {
			return fmt.Errorf("upsert ref %s: %w", r.Name, err)
		}
	}

	return nil
}

func queryRefNames(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT name FROM refs")
	if err != nil {
		return nil, fmt.Errorf("query ref names: %w", err)
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan ref name: %w", err)
		}

		names = append(names, name)
	}

	return names, rows.Err()
}

// SetTracked updates whether a named ref is tracked. Admin track/untrack
// goes through this method; auto-tracking the default branch on first
// import uses SetTrackedTx instead.
func (s *Store) SetTracked(ctx context.Context, name string, tracked bool) error {
	res, err := s.writer.ExecContext(ctx, "UPDATE refs SET tracked = ? WHERE name = ?", tracked, name)
	if err != nil {
		return fmt.Errorf("set tracked for %s: %w", name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRefNotFound, name)
	}

	return nil
}

// SetTrackedTx is the transaction-scoped variant, used when auto-tracking
// the default branch inside the same transaction as the first import's
// commit/edge insert.
func (s *Store) SetTrackedTx(ctx context.Context, tx *sql.Tx, name string, tracked bool) error {
	if _, err := tx.ExecContext(ctx, "UPDATE refs SET tracked = ? WHERE name = ?", tracked, name); err != nil {
		return fmt.Errorf("set tracked (tx) for %s: %w", name, err)
	}

	return nil
}

// Refs returns every ref currently stored, ordered by name, for the admin
// HTML view.
func (s *Store) Refs(ctx context.Context) ([]Ref, error) {
	rows, err := s.reader.QueryContext(ctx, "SELECT name, hash, tracked FROM refs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query refs: %w", err)
	}
	defer rows.Close()

	var refs []Ref

	for rows.Next() {
		var (
			r       Ref
			tracked int
		)

		if err := rows.Scan(&r.Name, &r.Hash, &tracked); err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}

		r.Tracked = tracked != 0
		refs = append(refs, r)
	}

	return refs, rows.Err()
}
