package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Garmelon/tablejohn/internal/config"
	"github.com/Garmelon/tablejohn/internal/wire"
)

// serverHandle is one configured server's connection details.
type serverHandle struct {
	name    string
	baseURL string
	token   string
}

// activeRun is the worker's single shared run slot: at most one
// benchmark executes at a time, system-wide.
type activeRun struct {
	serverIdx int
	run       wire.Run
	out       *outputBuffer
	cancel    context.CancelFunc
	result    chan wire.FinishedRun // buffered 1; written once by the executor goroutine
}

// Client is a tablejohn worker process: one heartbeat loop per configured
// server, coordinating over a single shared run slot guarded by
// status_lock.
type Client struct {
	name    string
	info    string
	secret  string
	ping    time.Duration
	batch   time.Duration
	servers []serverHandle

	httpClient *http.Client
	logger     *slog.Logger

	statusLock sync.Mutex
	slot       *activeRun

	rotationMu   sync.Mutex
	activeServer int
	activeSince  time.Time
}

// NewClient builds a worker Client from cfg. secret is generated fresh
// per process (not read from cfg): it exists only to let the server
// detect two independently started processes sharing the same worker
// name, which the static worker_token can't do since it is shared
// across every legitimate worker.
func NewClient(cfg *config.WorkerConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	secret, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate worker secret: %w", err)
	}

	servers := make([]serverHandle, len(cfg.Servers))
	for i, s := range cfg.Servers {
		servers[i] = serverHandle{name: s.Name, baseURL: s.URL, token: s.Token}
	}

	return &Client{
		name:       cfg.Name,
		info:       cfg.Info,
		secret:     secret.String(),
		ping:       cfg.Ping,
		batch:      cfg.Batch,
		servers:    servers,
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

// Run drives every server's heartbeat loop until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	c.rotationMu.Lock()
	c.activeSince = time.Now()
	c.rotationMu.Unlock()

	var wg sync.WaitGroup

	wg.Add(len(c.servers))

	for idx := range c.servers {
		go func(idx int) {
			defer wg.Done()
			c.serverLoop(ctx, idx)
		}(idx)
	}

	wg.Wait()
}

// serverLoop implements the per-server loop and main loop together: it
// sends one heartbeat, acts on the response, considers rotation, then
// sleeps ping (or returns early on cancellation).
func (c *Client) serverLoop(ctx context.Context, idx int) {
	for {
		if ctx.Err() != nil {
			return
		}

		c.tick(ctx, idx)

		c.maybeRotate(idx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.ping):
		}
	}
}

// tick performs one heartbeat round trip for server idx: build the
// current status, decide whether to request a run, submit any finished
// run for this server, then act on the response (assign or abort).
func (c *Client) tick(ctx context.Context, idx int) {
	status, submit, requestRun := c.prepareHeartbeat(idx)

	req := wire.WorkerRequest{
		Info:       c.info,
		Secret:     c.secret,
		Status:     status,
		RequestRun: requestRun,
		SubmitRun:  submit,
	}

	resp, err := c.sendHeartbeat(ctx, idx, req)
	if err != nil {
		c.logger.Error("heartbeat failed", "server", c.servers[idx].name, "error", err)

		return
	}

	c.handleHeartbeatResponse(ctx, idx, resp)
}

// prepareHeartbeat builds this tick's status, any run ready for
// submission, and whether to request new work, all under status_lock so
// a concurrent run completion can't race with it.
func (c *Client) prepareHeartbeat(idx int) (wire.WorkerStatus, *wire.FinishedRun, bool) {
	c.statusLock.Lock()
	defer c.statusLock.Unlock()

	if c.slot == nil {
		return wire.Idle(), nil, c.isActiveServerLocked(idx)
	}

	if c.slot.serverIdx != idx {
		return wire.Busy(), nil, false
	}

	select {
	case finished := <-c.slot.result:
		c.slot = nil

		return wire.Idle(), &finished, false
	default:
	}

	unfinished := wire.UnfinishedRun{
		ID:          c.slot.run.ID,
		Hash:        c.slot.run.Hash,
		BenchMethod: c.slot.run.BenchMethod.String(),
		Start:       c.slot.run.Start,
		LastOutput:  c.slot.out.Tail(),
	}

	return wire.Working(unfinished), nil, false
}

func (c *Client) sendHeartbeat(ctx context.Context, idx int, req wire.WorkerRequest) (wire.ServerResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return wire.ServerResponse{}, fmt.Errorf("marshal heartbeat: %w", err)
	}

	server := c.servers[idx]

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, server.baseURL+"/api/worker/status", bytes.NewReader(body))
	if err != nil {
		return wire.ServerResponse{}, fmt.Errorf("build heartbeat request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.name, server.token)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return wire.ServerResponse{}, fmt.Errorf("send heartbeat: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return wire.ServerResponse{}, fmt.Errorf("heartbeat to %s returned %s", server.name, httpResp.Status)
	}

	var resp wire.ServerResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return wire.ServerResponse{}, fmt.Errorf("decode heartbeat response: %w", err)
	}

	return resp, nil
}

// handleHeartbeatResponse places an assigned run into the slot or aborts
// the in-flight one, under status_lock.
func (c *Client) handleHeartbeatResponse(ctx context.Context, idx int, resp wire.ServerResponse) {
	c.statusLock.Lock()
	defer c.statusLock.Unlock()

	if resp.AbortRun && c.slot != nil && c.slot.serverIdx == idx {
		c.slot.cancel()

		return
	}

	if resp.Run == nil || c.slot != nil {
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())

	slot := &activeRun{
		serverIdx: idx,
		run:       *resp.Run,
		out:       newOutputBuffer(),
		cancel:    cancel,
		result:    make(chan wire.FinishedRun, 1),
	}
	c.slot = slot

	go c.execute(runCtx, idx, slot)
}

// execute runs the assigned benchmark to completion (or abort) off the
// heartbeat goroutine.
func (c *Client) execute(ctx context.Context, idx int, slot *activeRun) {
	finished := executeRun(ctx, runConfig{
		id:            slot.run.ID,
		hash:          slot.run.Hash,
		benchMethod:   slot.run.BenchMethod,
		start:         slot.run.Start,
		serverBaseURL: c.servers[idx].baseURL,
		httpClient:    c.httpClient,
		out:           slot.out,
	})

	if ctx.Err() != nil {
		// Aborted: the slot is cleared without submission and the result
		// channel is left empty.
		c.statusLock.Lock()
		if c.slot == slot {
			c.slot = nil
		}
		c.statusLock.Unlock()

		return
	}

	slot.result <- finished
}

// isActiveServerLocked reports whether idx is the server currently bound
// by the fairness rotation. Caller must hold statusLock; rotationMu is
// acquired internally.
func (c *Client) isActiveServerLocked(idx int) bool {
	c.rotationMu.Lock()
	defer c.rotationMu.Unlock()

	return c.activeServer == idx
}

// maybeRotate advances the active-server pointer once batch has elapsed
// and the slot is empty: a worker bound to an idle server does not hold
// up the others past one batch window.
func (c *Client) maybeRotate(idx int) {
	if len(c.servers) < 2 {
		return
	}

	c.rotationMu.Lock()
	defer c.rotationMu.Unlock()

	if c.activeServer != idx || time.Since(c.activeSince) < c.batch {
		return
	}

	c.statusLock.Lock()
	slotEmpty := c.slot == nil
	c.statusLock.Unlock()

	if !slotEmpty {
		return
	}

	c.activeServer = (c.activeServer + 1) % len(c.servers)
	c.activeSince = time.Now()
}
