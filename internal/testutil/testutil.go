// Package testutil provides engine fixtures and delivery recorders shared by
// the bridge's package tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/modelbridge/core"
	"github.com/hupe1980/modelbridge/engine"
)

// Hanging is an engine whose generations never finish on their own: it
// emits one partial and then waits for cancellation. Tests use it to drive
// the cancellation paths deterministically.
type Hanging struct {
	// Started receives one value per generation after the first partial has
	// been emitted, so tests can synchronize on generation start.
	Started chan struct{}
}

// NewHanging creates a Hanging engine.
func NewHanging() *Hanging {
	return &Hanging{Started: make(chan struct{}, 16)}
}

// Availability implements engine.Engine.
func (h *Hanging) Availability(ctx context.Context) engine.Availability {
	return engine.Available
}

// Info implements engine.Engine.
func (h *Hanging) Info() engine.Info {
	return engine.Info{Name: "hanging", Provider: "testutil"}
}

// Generate implements engine.Engine.
func (h *Hanging) Generate(ctx context.Context, req engine.Request) (<-chan engine.Response, <-chan error) {
	respCh := make(chan engine.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		respCh <- engine.Response{Partial: true, Text: "partial "}
		h.Started <- struct{}{}

		<-ctx.Done()
		errCh <- ctx.Err()
	}()

	return respCh, errCh
}

// SnapshotRecorder collects streaming deliveries for later assertions. Safe
// for the concurrent callback goroutine.
type SnapshotRecorder struct {
	mu        sync.Mutex
	snapshots []string
	statuses  []core.Status
	sentinels int
}

// Record is the SnapshotCallback to hand to Iterate.
func (r *SnapshotRecorder) Record(status core.Status, snapshot *string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.statuses = append(r.statuses, status)

	if snapshot == nil {
		// A nil payload with a nonzero status is a failure delivery, not the
		// end-of-stream sentinel.
		if status.OK() {
			r.sentinels++
		}

		return
	}

	r.snapshots = append(r.snapshots, *snapshot)
}

// Snapshots returns the non-nil deliveries in order.
func (r *SnapshotRecorder) Snapshots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.snapshots))
	copy(out, r.snapshots)

	return out
}

// Statuses returns every delivered status in order, sentinel included.
func (r *SnapshotRecorder) Statuses() []core.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]core.Status, len(r.statuses))
	copy(out, r.statuses)

	return out
}

// Sentinels returns how many nil-snapshot deliveries arrived.
func (r *SnapshotRecorder) Sentinels() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sentinels
}

// WaitTimeout is the default bound tests place on asynchronous deliveries.
const WaitTimeout = 2 * time.Second
