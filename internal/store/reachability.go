package store

import (
	"context"
	"database/sql"
	"fmt"
)

// reachabilityBatchSize bounds the number of hashes per IN(...) clause
// when bulk-updating reachability.
const reachabilityBatchSize = 400

// RecomputeReachability recomputes every commit's reachability tier:
// every commit reachable (via child→parent edges) from a tracked ref is
// FromTrackedRef; of the remainder, those reachable from any ref are
// FromAnyRef; everything else is Unreachable. It is implemented as two
// BFS passes over an in-memory adjacency map built from commit_edges,
// which keeps the traversal testable without driving it through SQL
// recursion.
func (s *Store) RecomputeReachability(ctx context.Context, tx *sql.Tx) error {
	childToParents, err := loadAdjacency(ctx, tx)
	if err != nil {
		return err
	}

	trackedSeeds, allSeeds, err := loadRefSeeds(ctx, tx)
	if err != nil {
		return err
	}

	trackedSet := bfsReachable(childToParents, trackedSeeds)
	anySet := bfsReachable(childToParents, allSeeds)

	if err := setReachabilityBulk(ctx, tx, Unreachable, nil, true); err != nil {
		return err
	}

	anyOnly := make([]string, 0, len(anySet))

	for hash := range anySet {
		if !trackedSet[hash] {
			anyOnly = append(anyOnly, hash)
		}
	}

	if err := setReachabilityBulk(ctx, tx, FromAnyRef, anyOnly, false); err != nil {
		return err
	}

	trackedList := make([]string, 0, len(trackedSet))
	for hash := range trackedSet {
		trackedList = append(trackedList, hash)
	}

	return setReachabilityBulk(ctx, tx, FromTrackedRef, trackedList, false)
}

// loadAdjacency returns, for every commit, the hashes of its parents (the
// direction needed to walk "reachable from a ref" via child→parent edges).
func loadAdjacency(ctx context.Context, tx *sql.Tx) (map[string][]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT child_hash, parent_hash FROM commit_edges")
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	adj := make(map[string][]string)

	for rows.Next() {
		var child, parent string
		if err := rows.Scan(&child, &parent); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}

		adj[child] = append(adj[child], parent)
	}

	return adj, rows.Err()
}

// loadRefSeeds returns the set of commit hashes pointed to by tracked
// refs, and separately by all refs.
func loadRefSeeds(ctx context.Context, tx *sql.Tx) (tracked, all []string, err error) {
	rows, err := tx.QueryContext(ctx, "SELECT hash, tracked FROM refs")
	if err != nil {
		return nil, nil, fmt.Errorf("query ref seeds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			hash        string
			trackedFlag int
		)

		if err := rows.Scan(&hash, &trackedFlag); err != nil {
			return nil, nil, fmt.Errorf("scan ref seed: %w", err)
		}

		all = append(all, hash)

		if trackedFlag != 0 {
			tracked = append(tracked, hash)
		}
	}

	return tracked, all, rows.Err()
}

// bfsReachable walks child→parent edges from seeds, returning every
// visited hash (including the seeds themselves).
func bfsReachable(childToParents map[string][]string, seeds []string) map[string]bool {
	visited := make(map[string]bool, len(seeds))
	queue := make([]string, 0, len(seeds))

	for _, seed := range seeds {
		if !visited[seed] {
			visited[seed] = true

			queue = append(queue, seed)
		}
	}

	for len(queue) > 0 {
		hash := queue[0]
		queue = queue[1:]

		for _, parent := range childToParents[hash] {
			if !visited[parent] {
				visited[parent] = true

				queue = append(queue, parent)
			}
		}
	}

	return visited
}

// setReachabilityBulk updates the reachable column for the given hashes,
// or for every commit when all is true.
func setReachabilityBulk(ctx context.Context, tx *sql.Tx, value Reachability, hashes []string, all bool) error {
	if all {
		if _, err := tx.ExecContext(ctx, "UPDATE commits SET reachable = ?", int(value)); err != nil {
			return fmt.Errorf("reset reachability: %w", err)
		}

		return nil
	}

	for start := 0; start < len(hashes); start += reachabilityBatchSize {
		end := min(start+reachabilityBatchSize, len(hashes))
		batch := hashes[start:end]

		placeholders := ""
		args := make([]any, 0, len(batch)+1)
		args = append(args, int(value))

		for i, h := range batch {
			if i > 0 {
				placeholders += ", "
			}

			placeholders += "?"
			args = append(args, h)
		}

		query := fmt.Sprintf("UPDATE commits SET reachable = ? WHERE hash IN (%s)", placeholders)

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("bulk update reachability: %w", err)
		}
	}

	return nil
}

// ClearNewForTrackedReachable clears the `new` flag on every commit whose
// reachability is FromTrackedRef, per the algorithm: a commit that is
// currently only reachable from an untracked branch must remain `new` so
// that if the branch is tracked later, the commit still enters the queue.
func (s *Store) ClearNewForTrackedReachable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "UPDATE commits SET new = 0 WHERE reachable = ?", int(FromTrackedRef))
	if err != nil {
		return fmt.Errorf("clear new flag: %w", err)
	}

	return nil
}

// NewTrackedReachableHashes returns the hashes of every commit that is
// both new and FromTrackedRef, the admission set for auto-queueing.
func (s *Store) NewTrackedReachableHashes(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT hash FROM commits WHERE new = 1 AND reachable = ?", int(FromTrackedRef))
	if err != nil {
		return nil, fmt.Errorf("query new tracked reachable: %w", err)
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
