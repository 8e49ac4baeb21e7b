package session

import (
	"context"
	"sync/atomic"

	"github.com/hupe1980/modelbridge/core"
)

// TaskState is the lifecycle state of an asynchronous request.
type TaskState int32

// Task states. A task is terminal once it leaves TaskRunning and never
// transitions again.
const (
	TaskRunning TaskState = iota
	TaskCompleted
	TaskCancelled
)

// String returns the symbolic name of the state.
func (s TaskState) String() string {
	switch s {
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Task represents one in-flight asynchronous request. Cancellation is
// cooperative: Cancel requests it, the turn observes it, and the terminal
// callback fires exactly once with StatusCancelled. Cancelling a task that
// already reached a terminal state is a no-op.
type Task struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Int32
}

func newTask(cancel context.CancelFunc) *Task {
	return &Task{
		id:     core.NewID(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the task's unique identifier.
func (t *Task) ID() string { return t.id }

// Cancel requests cooperative cancellation. Idempotent; a race with
// completion resolves to at most one terminal callback either way.
func (t *Task) Cancel() { t.cancel() }

// Done returns a channel closed when the task reaches a terminal state,
// after its terminal callback has fired.
func (t *Task) Done() <-chan struct{} { return t.done }

// State returns the task's current lifecycle state.
func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

// Wait blocks until the task is terminal or ctx expires.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return nil
	}
}

// finish performs the exactly-once terminal transition. It returns true for
// the caller that won the race and may deliver the terminal callback.
func (t *Task) finish(state TaskState) bool {
	return t.state.CompareAndSwap(int32(TaskRunning), int32(state))
}

// settled marks delivery complete and releases waiters. Called by the turn
// runner after the terminal callback returned.
func (t *Task) settled() {
	close(t.done)
}
