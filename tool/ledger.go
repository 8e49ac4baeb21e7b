package tool

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/modelbridge/content"
	"github.com/hupe1980/modelbridge/core"
)

// Contract violations the ledger detects on the finish path.
var (
	// ErrNoSuchCall is returned for a call id that was never dispatched.
	ErrNoSuchCall = errors.New("tool: no such call id")
	// ErrCallFinished is returned when a call id is finished a second time.
	ErrCallFinished = errors.New("tool: call already finished")
)

// Result is the completion of one dispatched call.
type Result struct {
	Output string
}

// CallError reports a failure inside a tool round, carrying the tool name
// and a status code so sessions can surface it through a callback.
type CallError struct {
	Tool    string
	Message string
	Code    core.Status
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return "tool " + e.Tool + ": " + e.Message
}

// Status returns the status code the failure maps to, so core.StatusOf can
// project it onto a callback.
func (e *CallError) Status() core.Status { return e.Code }

// Ledger tracks the outstanding tool calls of one session. Call ids are
// allocated from a counter scoped to the ledger, so they correlate only
// within the session that issued them. The ledger is safe for concurrent
// dispatch and finish from any goroutine and supports out-of-order
// completion across parallel calls.
type Ledger struct {
	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]chan Result
	finished map[uint64]struct{}
	tools    []*Tool
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		pending:  make(map[uint64]chan Result),
		finished: make(map[uint64]struct{}),
	}
}

// Register binds a tool to this ledger so its FinishCall resolves here. It
// fails if the tool is still bound to another live ledger.
func (l *Ledger) Register(t *Tool) error {
	if err := t.bind(l); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.tools = append(l.tools, t)

	return nil
}

// Close unbinds every registered tool. Outstanding calls stay finishable so
// a racing FinishCall degrades to ErrNoSuchCall only after its tool unbinds.
func (l *Ledger) Close() {
	l.mu.Lock()
	tools := l.tools
	l.tools = nil
	l.mu.Unlock()

	for _, t := range tools {
		t.unbind(l)
	}
}

// Dispatch allocates a call id, notifies the tool's callable, and returns a
// channel carrying the eventual result. The callable is invoked with the id
// already registered, so finishing synchronously from inside it is legal.
func (l *Ledger) Dispatch(t *Tool, args *content.Content) (uint64, <-chan Result) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	ch := make(chan Result, 1)
	l.pending[id] = ch
	l.mu.Unlock()

	t.dispatch(args, id)

	return id, ch
}

// Await blocks until the call completes or ctx is cancelled. On
// cancellation the call is abandoned: a late finish is absorbed by the
// buffered channel and reported as already finished.
func (l *Ledger) Await(ctx context.Context, callID uint64, ch <-chan Result) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		return res, nil
	}
}

// Outstanding returns the number of dispatched, unfinished calls.
func (l *Ledger) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.pending)
}

// finish resolves a call id to its waiting channel, exactly once.
func (l *Ledger) finish(callID uint64, res Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.pending[callID]
	if !ok {
		if _, done := l.finished[callID]; done {
			return ErrCallFinished
		}

		return ErrNoSuchCall
	}

	delete(l.pending, callID)
	l.finished[callID] = struct{}{}

	ch <- res

	return nil
}
