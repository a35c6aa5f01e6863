package worker

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Garmelon/tablejohn/internal/config"
	"github.com/Garmelon/tablejohn/internal/wire"
)

// emptyTarGz returns a valid, empty gzip+tar archive, standing in for a
// worktree download response.
func emptyTarGz(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	return buf.Bytes()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientSendsIdleHeartbeatAndRequestsRun(t *testing.T) {
	var gotRequest atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "worker1", user)
		assert.Equal(t, "tok", pass)

		var req wire.WorkerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.RequestRun {
			gotRequest.Store(true)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(wire.ServerResponse{})
	}))
	defer server.Close()

	cfg := &config.WorkerConfig{
		Name:  "worker1",
		Ping:  10 * time.Millisecond,
		Batch: time.Minute,
		Servers: []config.WorkerServerConfig{
			{Name: "main", URL: server.URL, Token: "tok"},
		},
	}

	client, err := NewClient(cfg, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	client.Run(ctx)

	assert.True(t, gotRequest.Load())
}

func TestClientAcceptsAssignedRunAndEventuallyGoesIdle(t *testing.T) {
	var assigned, wentIdle atomic.Bool

	archive := emptyTarGz(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/gzip")
			_, _ = w.Write(archive)

			return
		}

		var req wire.WorkerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")

		// Back to idle after the run: the heartbeat that submits it reports idle.
		if req.Status.Type == "idle" && req.SubmitRun != nil {
			wentIdle.Store(true)
		}

		if req.Status.Type == "idle" && !assigned.Load() {
			assigned.Store(true)
			_ = json.NewEncoder(w).Encode(wire.ServerResponse{
				Run: &wire.Run{
					ID:          "run-1",
					Hash:        "deadbeef",
					BenchMethod: wire.Internal(),
					Start:       time.Now(),
				},
			})

			return
		}

		_ = json.NewEncoder(w).Encode(wire.ServerResponse{})
	}))
	defer server.Close()

	cfg := &config.WorkerConfig{
		Name:  "worker1",
		Ping:  5 * time.Millisecond,
		Batch: time.Minute,
		Servers: []config.WorkerServerConfig{
			{Name: "main", URL: server.URL, Token: "tok"},
		},
	}

	client, err := NewClient(cfg, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	client.Run(ctx)

	assert.True(t, assigned.Load())
	assert.True(t, wentIdle.Load())
}

func TestMaybeRotateAdvancesAfterBatchWhenIdle(t *testing.T) {
	client := &Client{
		servers: []serverHandle{{name: "a"}, {name: "b"}},
		batch:   time.Millisecond,
	}
	client.activeServer = 0
	client.activeSince = time.Now().Add(-time.Hour)

	client.maybeRotate(0)

	assert.Equal(t, 1, client.activeServer)
}

func TestMaybeRotateSkipsSingleServerSetups(t *testing.T) {
	client := &Client{
		servers: []serverHandle{{name: "a"}},
		batch:   time.Millisecond,
	}
	client.activeSince = time.Now().Add(-time.Hour)

	client.maybeRotate(0)

	assert.Equal(t, 0, client.activeServer)
}
