package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

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

// ingestLinearHistory seeds a←b←c, with main tracked at c, mimicking a
// first-time import.
func ingestLinearHistory(t *testing.T, s *store.Store, markNotNew bool) {
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

	require.NoError(t, s.InsertCommitsAndEdges(ctx, tx, commits, markNotNew))
	require.NoError(t, s.ReplaceRefs(ctx, tx, []store.Ref{{Name: "refs/heads/main", Hash: "c"}}))
	require.NoError(t, tx.Commit())

	require.NoError(t, s.SetTracked(ctx, "refs/heads/main", true))

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.RecomputeReachability(ctx, tx))
	require.NoError(t, tx.Commit())
}

func TestFirstImportSeed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	ingestLinearHistory(t, s, true)

	for _, hash := range []string{"a", "b", "c"} {
		c, err := s.LoadCommit(ctx, hash)
		require.NoError(t, err)
		require.Equal(t, store.FromTrackedRef, c.Reachable)
		require.False(t, c.New)
	}

	queue, err := s.QueueOrdered(ctx)
	require.NoError(t, err)
	require.Empty(t, queue)
}

func TestIncrementalCommitEntersQueueOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ingestLinearHistory(t, s, true)

	// Add D as a child of C, discovered on a later tick (new=1).
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, s.InsertCommitsAndEdges(ctx, tx, []store.NewCommit{
		{Hash: "d", Author: "alice", AuthorDate: now, Committer: "alice", CommitterDate: now, Message: "d", ParentHashes: []string{"c"}},
	}, false))
	require.NoError(t, s.ReplaceRefs(ctx, tx, []store.Ref{{Name: "refs/heads/main", Hash: "d"}}))
	require.NoError(t, s.RecomputeReachability(ctx, tx))

	newHashes, err := s.NewTrackedReachableHashes(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, []string{"d"}, newHashes)

	for _, h := range newHashes {
		require.NoError(t, s.Enqueue(ctx, tx, h, now, 0, store.Ignore))
	}

	require.NoError(t, s.ClearNewForTrackedReachable(ctx, tx))
	require.NoError(t, tx.Commit())

	queue, err := s.QueueOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, "d", queue[0].Hash)

	dCommit, err := s.LoadCommit(ctx, "d")
	require.NoError(t, err)
	require.False(t, dCommit.New)

	// A second tick with no new commits must not re-admit d.
	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.RecomputeReachability(ctx, tx))

	newHashes, err = s.NewTrackedReachableHashes(ctx, tx)
	require.NoError(t, err)
	require.Empty(t, newHashes)
	require.NoError(t, tx.Commit())
}

func TestRecordRunDequeuesAndPersistsMeasurements(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ingestLinearHistory(t, s, true)

	require.NoError(t, s.EnqueueAutocommit(ctx, "c", time.Now(), 0, store.Ignore))

	err := s.RecordRun(ctx, store.FinishedRun{
		ID:          "r-abc",
		Hash:        "c",
		BenchMethod: "internal",
		Start:       time.Now(),
		ExitCode:    0,
		Output: []store.OutputLineInput{
			{Source: store.OutputStdout, Text: "line 0"},
			{Source: store.OutputStdout, Text: "line 1"},
		},
		Measurements: map[string]store.MeasurementInput{
			"files": {Value: 10, Unit: "count"},
		},
	}, "worker-1", "go1.23/linux")
	require.NoError(t, err)

	queue, err := s.QueueOrdered(ctx)
	require.NoError(t, err)
	require.Empty(t, queue)

	runs, err := s.RunsForHash(ctx, "c")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "r-abc", runs[0].ID)

	output, err := s.OutputForRun(ctx, "r-abc")
	require.NoError(t, err)
	require.Len(t, output, 2)
	require.Equal(t, 0, output[0].LineIndex)
	require.Equal(t, 1, output[1].LineIndex)

	measurements, err := s.MeasurementsForRun(ctx, "r-abc")
	require.NoError(t, err)
	require.Len(t, measurements, 1)
	require.Equal(t, float64(10), measurements[0].Value)
}

func TestQueueOrderIsTotalAndDeterministic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ingestLinearHistory(t, s, true)

	now := time.Now()
	require.NoError(t, s.EnqueueAutocommit(ctx, "a", now, 0, store.Ignore))
	require.NoError(t, s.EnqueueAutocommit(ctx, "b", now, 5, store.Ignore))
	require.NoError(t, s.EnqueueAutocommit(ctx, "c", now, 5, store.Ignore))

	queue, err := s.QueueOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 3)
	// priority DESC, date DESC, hash ASC: b and c tie on priority/date, so
	// hash ASC breaks the tie (b < c).
	require.Equal(t, []string{"b", "c", "a"}, []string{queue[0].Hash, queue[1].Hash, queue[2].Hash})
}

func TestAdjustPriority(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ingestLinearHistory(t, s, true)

	require.NoError(t, s.EnqueueAutocommit(ctx, "a", time.Now(), 0, store.Ignore))
	require.NoError(t, s.AdjustPriority(ctx, "a", 1))
	require.NoError(t, s.AdjustPriority(ctx, "a", 1))

	queue, err := s.QueueOrdered(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, queue[0].Priority)
}

func TestEnqueueKeepHigherPriorityPolicy(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ingestLinearHistory(t, s, true)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(ctx, tx, "a", time.Now(), 5, store.Ignore))
	require.NoError(t, tx.Commit())

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(ctx, tx, "a", time.Now(), 1, store.KeepHigherPriority))
	require.NoError(t, tx.Commit())

	queue, err := s.QueueOrdered(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, queue[0].Priority)
}
