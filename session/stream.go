package session

import (
	"context"
	"sync"

	"github.com/hupe1980/modelbridge/core"
)

// Stream represents one in-flight incremental request. Conceptually it is a
// sequence of snapshots of the response built so far: each delivery carries
// the full accumulated content, each a strict prefix-extension of the last,
// terminated by exactly one nil-snapshot sentinel. A receiver with no state
// beyond the previously observed length recovers exactly the unseen suffix.
//
// Iteration is caller-driven: generation starts on Iterate, which may be
// activated once per stream.
type Stream struct {
	session *Session
	ctx     context.Context
	task    *Task
	prompt  string

	// mu serializes activation against pre-activation cancellation so the
	// turn has exactly one owner of its terminal transition.
	mu        sync.Mutex
	activated bool
	cancelled bool
}

// Task returns the task representing the stream's request.
func (st *Stream) Task() *Task { return st.task }

// Iterate activates delivery. The callback runs on an engine-managed
// goroutine: zero or more snapshot invocations with status 0, then one nil
// sentinel; a nonzero status is terminal with no sentinel after it. A second
// activation fails.
func (st *Stream) Iterate(cb SnapshotCallback) error {
	if cb == nil {
		return core.NewBridgeError(core.StatusUnknown, "iterate requires a callback")
	}

	st.mu.Lock()

	if st.activated {
		st.mu.Unlock()
		return core.NewBridgeError(core.StatusConcurrentRequests, "stream is already being iterated")
	}

	st.activated = true
	cancelled := st.cancelled

	st.mu.Unlock()

	// Cancelled before activation: the turn slot is already released and the
	// task already finished, so only the terminal delivery remains.
	if cancelled {
		go func() {
			cb(core.StatusCancelled, nil)
		}()

		return nil
	}

	go func() {
		var last string

		onSnapshot := func(snapshot string) {
			// Deliveries are strictly growing; an empty delta is not a new
			// snapshot.
			if len(snapshot) <= len(last) {
				return
			}

			last = snapshot
			cb(core.StatusOK, &snapshot)
		}

		entries, text, runErr := st.session.run(st.ctx, st.prompt, nil, "", true, onSnapshot)

		st.session.settle(st.task, entries, runErr, func(status core.Status) {
			if !status.OK() {
				cb(status, nil)
				return
			}

			// Engines that never emitted partials, or whose final text
			// differs from the accumulated partials, still owe the final
			// snapshot before the sentinel.
			if text != last {
				cb(core.StatusOK, &text)
			}

			cb(core.StatusOK, nil)
		})
	}()

	return nil
}

// Cancel requests cooperative cancellation of the stream's request. On a
// stream that was never iterated there is no pump to observe the request,
// so the turn ends here; its terminal delivery fires if Iterate is called
// later. Cancel is idempotent.
func (st *Stream) Cancel() {
	st.mu.Lock()

	if st.activated || st.cancelled {
		st.mu.Unlock()
		st.task.Cancel()

		return
	}

	st.cancelled = true

	st.mu.Unlock()

	st.task.Cancel()
	st.session.endTurn(st.task)

	if st.task.finish(TaskCancelled) {
		st.task.settled()
	}
}
