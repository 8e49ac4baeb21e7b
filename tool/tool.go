package tool

import (
	"fmt"
	"sync"

	"github.com/hupe1980/modelbridge/content"
	"github.com/hupe1980/modelbridge/core"
	"github.com/hupe1980/modelbridge/engine"
	"github.com/hupe1980/modelbridge/schema"
)

// Callable receives a dispatched tool call. It must return immediately: it
// is a notification, not the computation itself. The owner performs the work
// elsewhere and reports the result with Tool.FinishCall(callID, output),
// exactly once per dispatched id, from any goroutine.
type Callable func(args *content.Content, callID uint64)

// Tool is a named, described callable with a schema constraining its
// arguments. A tool is registered with at most one session at a time; the
// session binds it to its call ledger at creation and unbinds it on close.
type Tool struct {
	name        string
	description string
	params      *schema.Schema

	mu       sync.Mutex
	callable Callable
	ledger   *Ledger
}

// New creates a tool. The parameters schema is frozen on first use. It fails
// with a coded error on an empty name, nil schema, or nil callable.
func New(name, description string, params *schema.Schema, callable Callable) (*Tool, error) {
	if name == "" {
		return nil, core.NewBridgeError(core.StatusInvalidSchema, "tool name must not be empty")
	}

	if params == nil {
		return nil, core.NewBridgeError(core.StatusInvalidSchema, "tool %q requires a parameters schema", name)
	}

	if callable == nil {
		return nil, core.NewBridgeError(core.StatusInvalidSchema, "tool %q requires a callable", name)
	}

	return &Tool{
		name:        name,
		description: description,
		params:      params,
		callable:    callable,
	}, nil
}

// NewFunc wraps a plain Go function as a tool. The dispatch notification
// spawns a goroutine that runs fn and finishes the call with its output, or
// with a "Tool error: ..." payload when fn fails, so generation can continue
// with the failure visible to the model.
func NewFunc(name, description string, params *schema.Schema, fn func(args *content.Content) (string, error)) (*Tool, error) {
	if fn == nil {
		return nil, core.NewBridgeError(core.StatusInvalidSchema, "tool %q requires a function", name)
	}

	// The callable closes over t; dispatch only happens after construction.
	var t *Tool

	callable := func(args *content.Content, callID uint64) {
		go func() {
			output, err := fn(args)
			if err != nil {
				output = fmt.Sprintf("Tool error: %v", err)
			}

			// The ledger flags a double finish; nothing to do here if the
			// function's own finish already raced a teardown.
			_ = t.FinishCall(callID, output)
		}()
	}

	t, err := New(name, description, params, callable)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// Name returns the tool's unique name.
func (t *Tool) Name() string { return t.name }

// Description returns the natural-language description shown to the model.
func (t *Tool) Description() string { return t.description }

// Schema returns the parameters schema.
func (t *Tool) Schema() *schema.Schema { return t.params }

// Definition renders the tool in the declarative form engines consume.
func (t *Tool) Definition() (engine.ToolDefinition, error) {
	value, err := t.params.Value()
	if err != nil {
		return engine.ToolDefinition{}, err
	}

	return engine.ToolDefinition{
		Name:        t.name,
		Description: t.description,
		Parameters:  value,
	}, nil
}

// FinishCall reports the result of a dispatched call. It fails with
// ErrNoSuchCall for a call id never dispatched to this tool's session, and
// with ErrCallFinished when the id was already finished.
func (t *Tool) FinishCall(callID uint64, output string) error {
	t.mu.Lock()
	ledger := t.ledger
	t.mu.Unlock()

	if ledger == nil {
		return ErrNoSuchCall
	}

	return ledger.finish(callID, Result{Output: output})
}

// bind attaches the tool to a session's call ledger. A tool already bound to
// a different live ledger cannot be shared; create a second tool instance
// instead.
func (t *Tool) bind(l *Ledger) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ledger != nil && t.ledger != l {
		return core.NewBridgeError(core.StatusConcurrentRequests, "tool %q is already registered with another session", t.name)
	}

	t.ledger = l

	return nil
}

// unbind detaches the tool from its ledger. Called on session close.
func (t *Tool) unbind(l *Ledger) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ledger == l {
		t.ledger = nil
	}
}

// dispatch notifies the callable. The ledger calls it with the id already
// registered so a synchronous finish inside the callable is legal.
func (t *Tool) dispatch(args *content.Content, callID uint64) {
	t.mu.Lock()
	callable := t.callable
	t.mu.Unlock()

	callable(args, callID)
}
