package httpapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Garmelon/tablejohn/internal/store"
)

func seedTrackedCommit(t *testing.T, s *store.Store, hash string) {
	t.Helper()

	ctx := context.Background()
	now := time.Now()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.InsertCommitsAndEdges(ctx, tx, []store.NewCommit{
		{Hash: hash, Author: "a", AuthorDate: now, Committer: "a", CommitterDate: now, Message: "m"},
	}, true))
	require.NoError(t, s.ReplaceRefs(ctx, tx, []store.Ref{{Name: "refs/heads/main", Hash: hash}}))
	require.NoError(t, tx.Commit())

	require.NoError(t, s.SetTracked(ctx, "refs/heads/main", true))

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.RecomputeReachability(ctx, tx))
	require.NoError(t, tx.Commit())
}

func postForm(t *testing.T, handler http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	return rr
}

func TestQueueAddRedirectsToCommitOnSuccess(t *testing.T) {
	srv, s := openTestServer(t)
	seedTrackedCommit(t, s, "c1")

	rr := postForm(t, srv.Router(), "/admin/queue/add", url.Values{"hash": {"c1"}, "priority": {"3"}})

	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, "/commit/c1", rr.Header().Get("Location"))

	entries, err := s.QueueOrdered(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 3, entries[0].Priority)
}

func TestQueueAddUnreachableCommitReturnsNotFound(t *testing.T) {
	srv, _ := openTestServer(t)

	rr := postForm(t, srv.Router(), "/admin/queue/add", url.Values{"hash": {"missing"}})

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestQueueDeleteRedirectsToCommit(t *testing.T) {
	srv, s := openTestServer(t)
	seedTrackedCommit(t, s, "c1")
	require.NoError(t, s.EnqueueAutocommit(context.Background(), "c1", time.Now(), 0, store.Ignore))

	rr := postForm(t, srv.Router(), "/admin/queue/delete", url.Values{"hash": {"c1"}})

	require.Equal(t, http.StatusFound, rr.Code)

	entries, err := s.QueueOrdered(context.Background())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRefSetTrackedRedirectsToIndex(t *testing.T) {
	srv, s := openTestServer(t)
	seedTrackedCommit(t, s, "c1")

	rr := postForm(t, srv.Router(), "/admin/refs/untrack", url.Values{"name": {"refs/heads/main"}})

	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, "/", rr.Header().Get("Location"))

	refs, err := s.Refs(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.False(t, refs[0].Tracked)
}
