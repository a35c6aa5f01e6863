package queue_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Garmelon/tablejohn/internal/queue"
	"github.com/Garmelon/tablejohn/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tablejohn.db")

	s, err := store.Open(ctx, path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

// seedLinearHistory mirrors internal/store's own test helper: a←b←c, main
// tracked at c, imported as a first-time seed.
func seedLinearHistory(t *testing.T, s *store.Store) {
	t.Helper()

	ctx := context.Background()
	now := time.Now()

	commits := []store.NewCommit{
		{Hash: "a", Author: "alice", AuthorDate: now, Committer: "alice", CommitterDate: now, Message: "a"},
		{Hash: "b", Author: "alice", AuthorDate: now, Committer: "alice", CommitterDate: now, Message: "b", ParentHashes: []string{"a"}},
		{Hash: "c", Author: "alice", AuthorDate: now, Committer: "alice", CommitterDate: now, Message: "c", ParentHashes: []string{"b"}},
	}

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.InsertCommitsAndEdges(ctx, tx, commits, true))
	require.NoError(t, s.ReplaceRefs(ctx, tx, []store.Ref{{Name: "refs/heads/main", Hash: "c"}}))
	require.NoError(t, tx.Commit())

	require.NoError(t, s.SetTracked(ctx, "refs/heads/main", true))

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.RecomputeReachability(ctx, tx))
	require.NoError(t, tx.Commit())
}

func TestAddRejectsUnreachableCommit(t *testing.T) {
	s := openTestStore(t)
	seedLinearHistory(t, s)
	m := queue.New(s)

	err := m.Add(context.Background(), "does-not-exist", 0)
	require.ErrorIs(t, err, store.ErrCommitNotFound)
}

func TestAddThenIncreaseThenDecrease(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedLinearHistory(t, s)
	m := queue.New(s)

	require.NoError(t, m.Add(ctx, "a", 0))

	entries, err := m.Ordered(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 0, entries[0].Priority)

	require.NoError(t, m.Increase(ctx, "a"))
	require.NoError(t, m.Increase(ctx, "a"))
	require.NoError(t, m.Decrease(ctx, "a"))

	entries, err = m.Ordered(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, entries[0].Priority)
}

func TestAddDoesNotLowerExistingPriority(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedLinearHistory(t, s)
	m := queue.New(s)

	require.NoError(t, m.Add(ctx, "a", 5))
	require.NoError(t, m.Add(ctx, "a", 1))

	entries, err := m.Ordered(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, entries[0].Priority)
}

func TestAddBatchEnqueuesMostRecentTrackedCommits(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedLinearHistory(t, s)
	m := queue.New(s)

	n, err := m.AddBatch(ctx, 2, 3)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	entries, err := m.Ordered(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Equal(t, 3, e.Priority)
	}
}

func TestDeleteRemovesQueueEntry(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedLinearHistory(t, s)
	m := queue.New(s)

	require.NoError(t, m.Add(ctx, "a", 0))
	require.NoError(t, m.Delete(ctx, "a"))

	entries, err := m.Ordered(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestAutoAdmitEnqueuesNewTrackedReachableCommitsOnce(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedLinearHistory(t, s)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, s.InsertCommitsAndEdges(ctx, tx, []store.NewCommit{
		{Hash: "d", Author: "alice", AuthorDate: now, Committer: "alice", CommitterDate: now, Message: "d", ParentHashes: []string{"c"}},
	}, false))
	require.NoError(t, s.ReplaceRefs(ctx, tx, []store.Ref{{Name: "refs/heads/main", Hash: "d"}}))
	require.NoError(t, s.RecomputeReachability(ctx, tx))
	require.NoError(t, queue.AutoAdmit(ctx, s, tx))
	require.NoError(t, tx.Commit())

	entries, err := s.QueueOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "d", entries[0].Hash)

	// A second auto-admit pass over the same state must not re-enqueue d,
	// since new was cleared on the first pass.
	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.RecomputeReachability(ctx, tx))
	require.NoError(t, queue.AutoAdmit(ctx, s, tx))
	require.NoError(t, tx.Commit())

	entries, err = s.QueueOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
