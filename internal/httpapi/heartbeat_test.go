package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Garmelon/tablejohn/internal/httpapi"
	"github.com/Garmelon/tablejohn/internal/observability"
	"github.com/Garmelon/tablejohn/internal/queue"
	"github.com/Garmelon/tablejohn/internal/registry"
	"github.com/Garmelon/tablejohn/internal/store"
	"github.com/Garmelon/tablejohn/internal/wire"
)

func openTestServer(t *testing.T) (*httpapi.Server, *store.Store) {
	t.Helper()

	ctx := context.Background()

	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "tablejohn.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	q := queue.New(s)
	reg := registry.New(s, s, time.Minute, func() (wire.BenchMethod, error) { return wire.Internal(), nil })
	metrics := observability.NewMetrics()

	srv := httpapi.NewServer(s, q, reg, metrics, nil, httpapi.Config{WorkerToken: "tok"})

	return srv, s
}

func basicAuthHeader(user, pass string) string {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.SetBasicAuth(user, pass)

	return req.Header.Get("Authorization")
}

func TestHeartbeatRejectsWrongToken(t *testing.T) {
	srv, _ := openTestServer(t)

	body, err := json.Marshal(wire.WorkerRequest{Secret: "s", Status: wire.Idle()})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/worker/status", bytes.NewReader(body))
	req.Header.Set("Authorization", basicAuthHeader("w1", "wrong-token"))

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHeartbeatAcceptsAndReturnsResponse(t *testing.T) {
	srv, _ := openTestServer(t)

	body, err := json.Marshal(wire.WorkerRequest{Secret: "s", Status: wire.Idle(), RequestRun: true})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/worker/status", bytes.NewReader(body))
	req.Header.Set("Authorization", basicAuthHeader("w1", "tok"))

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp wire.ServerResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Nil(t, resp.Run) // empty queue
}

func TestIndexRendersEmptyState(t *testing.T) {
	srv, _ := openTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Queue")
}
