// Package registry implements the worker registry and run assignment:
// an in-memory, mutex-guarded map of worker states, with a single
// Heartbeat entry point implementing admission, run assignment, and
// abort computation under one lock.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Garmelon/tablejohn/internal/store"
	"github.com/Garmelon/tablejohn/internal/wire"
)

// ErrWrongSecret is returned when a heartbeat's secret does not match the
// secret pinned by that worker name's first contact.
var ErrWrongSecret = errors.New("registry: wrong secret")

// runIDDigits is the length of the random suffix of a run id, matching the
// wire format "r-" + 30 base-36 characters.
const runIDDigits = 30

// QueueSource is the subset of the commit store the registry needs to scan
// for assignable work.
type QueueSource interface {
	QueueOrdered(ctx context.Context) ([]store.QueueEntry, error)
}

// Recorder is the subset of the commit store the registry needs to
// persist a submitted run.
type Recorder interface {
	RecordRun(ctx context.Context, run store.FinishedRun, workerName, workerInfo string) error
}

// BenchMethodResolver chooses the bench method assigned to newly started
// runs, resolved at assignment time so a Repo bench method always carries
// the bench repo's current HEAD.
type BenchMethodResolver func() (wire.BenchMethod, error)

type workerState struct {
	secret    string
	info      string
	firstSeen time.Time
	lastSeen  time.Time
	status    wire.WorkerStatus
}

// Registry holds every worker currently known to a server instance.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*workerState

	timeout     time.Duration
	queue       QueueSource
	recorder    Recorder
	benchMethod BenchMethodResolver
}

// New returns an empty Registry. timeout is worker_timeout: registrations
// not heard from within this duration are evicted on the next heartbeat.
func New(queue QueueSource, recorder Recorder, timeout time.Duration, benchMethod BenchMethodResolver) *Registry {
	return &Registry{
		workers:     make(map[string]*workerState),
		timeout:     timeout,
		queue:       queue,
		recorder:    recorder,
		benchMethod: benchMethod,
	}
}

// Heartbeat implements the seven-step algorithm: eviction, secret
// pinning, status upsert, run submission, run assignment, and abort
// computation. Everything that touches worker state runs under the
// registry's mutex; bench method resolution, the one step that can block
// on a git2go call, is resolved first so the lock itself stays
// synchronous.
func (r *Registry) Heartbeat(ctx context.Context, name string, req wire.WorkerRequest) (wire.ServerResponse, error) {
	var method wire.BenchMethod

	if req.RequestRun {
		m, err := r.benchMethod()
		if err != nil {
			return wire.ServerResponse{}, fmt.Errorf("resolve bench method: %w", err)
		}

		method = m
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	r.evictLocked(now)

	ws, exists := r.workers[name]
	if exists && ws.secret != req.Secret {
		return wire.ServerResponse{}, ErrWrongSecret
	}

	if !exists {
		ws = &workerState{secret: req.Secret, firstSeen: now}
		r.workers[name] = ws
	}

	ws.lastSeen = now
	ws.info = req.Info
	ws.status = req.Status

	if req.SubmitRun != nil {
		if err := r.recorder.RecordRun(ctx, toStoreFinishedRun(*req.SubmitRun), name, req.Info); err != nil {
			return wire.ServerResponse{}, fmt.Errorf("record submitted run: %w", err)
		}
	}

	var resp wire.ServerResponse

	if req.RequestRun {
		run, err := r.assignLocked(ctx, name, now, method)
		if err != nil {
			return wire.ServerResponse{}, err
		}

		resp.Run = run
	}

	resp.AbortRun = r.abortLocked(ctx, name)

	return resp, nil
}

// evictLocked drops every worker whose last_seen is older than the
// configured worker_timeout. Caller must hold mu.
func (r *Registry) evictLocked(now time.Time) {
	for name, ws := range r.workers {
		if now.Sub(ws.lastSeen) > r.timeout {
			delete(r.workers, name)
		}
	}
}

// assignLocked scans the queue in canonical order for the first hash not
// currently Working on any worker, reserving it for name under the same
// lock acquisition that performed the scan. Returns a nil run when
// nothing is assignable. method is the bench method to attach to the run,
// already resolved by the caller outside the lock.
func (r *Registry) assignLocked(ctx context.Context, name string, now time.Time, method wire.BenchMethod) (*wire.Run, error) {
	covered := make(map[string]bool)

	for _, ws := range r.workers {
		if ws.status.Type == "working" {
			covered[ws.status.Hash] = true
		}
	}

	entries, err := r.queue.QueueOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan queue for assignment: %w", err)
	}

	var hash string

	for _, e := range entries {
		if !covered[e.Hash] {
			hash = e.Hash

			break
		}
	}

	if hash == "" {
		return nil, nil
	}

	id, err := newRunID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	run := &wire.Run{ID: id, Hash: hash, BenchMethod: method, Start: now}

	r.workers[name].status = wire.Working(wire.UnfinishedRun{
		ID:          run.ID,
		Hash:        run.Hash,
		BenchMethod: method.String(),
		Start:       run.Start,
	})

	return run, nil
}

// abortLocked reports whether name's current Working run should be told
// to abort: its hash left the queue, or another worker is also Working
// it with an earlier start time.
func (r *Registry) abortLocked(ctx context.Context, name string) bool {
	ws, ok := r.workers[name]
	if !ok || ws.status.Type != "working" {
		return false
	}

	hash := ws.status.Hash
	start := ws.status.Start

	entries, err := r.queue.QueueOrdered(ctx)
	if err != nil {
		// Treat a transient queue read failure as "don't abort"; the next
		// heartbeat will retry.
		return false
	}

	inQueue := false

	for _, e := range entries {
		if e.Hash == hash {
			inQueue = true

			break
		}
	}

	if !inQueue {
		return true
	}

	for otherName, other := range r.workers {
		if otherName == name || other.status.Type != "working" || other.status.Hash != hash {
			continue
		}

		if other.status.Start.Before(start) {
			return true
		}
	}

	return false
}

func toStoreFinishedRun(run wire.FinishedRun) store.FinishedRun {
	output := make([]store.OutputLineInput, len(run.Output))
	for i, line := range run.Output {
		output[i] = store.OutputLineInput{Source: store.OutputSource(line.Source), Text: line.Text}
	}

	measurements := make(map[string]store.MeasurementInput, len(run.Measurements))
	for name, m := range run.Measurements {
		measurements[name] = store.MeasurementInput{Value: m.Value, Unit: m.Unit}
	}

	return store.FinishedRun{
		ID:           run.ID,
		Hash:         run.Hash,
		BenchMethod:  run.BenchMethod,
		Start:        run.Start,
		End:          run.End,
		ExitCode:     run.ExitCode,
		Output:       output,
		Measurements: measurements,
	}
}

// newRunID generates a run id in the wire format "r-" + 30 base-36
// characters, using a random (version 4) UUID as the entropy source.
func newRunID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}

	n := new(big.Int).SetBytes(u[:])
	digits := n.Text(36)

	for len(digits) < runIDDigits {
		digits = "0" + digits
	}

	if len(digits) > runIDDigits {
		digits = digits[len(digits)-runIDDigits:]
	}

	return "r-" + digits, nil
}

// Snapshot returns a point-in-time copy of every known worker's name and
// status, for the admin HTML view.
func (r *Registry) Snapshot() map[string]wire.WorkerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]wire.WorkerStatus, len(r.workers))
	for name, ws := range r.workers {
		out[name] = ws.status
	}

	return out
}

// Count returns the number of known workers and the number currently
// Working, for the observability gauges.
func (r *Registry) Count() (known, busy int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	known = len(r.workers)

	for _, ws := range r.workers {
		if ws.status.Type == "working" {
			busy++
		}
	}

	return known, busy
}
