package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/modelbridge/core"
)

// scriptedTurn is one canned reaction, keyed by the text of the message
// that triggers it.
type scriptedTurn struct {
	text      string
	toolCalls []ToolCall
	err       error
}

// Scripted is a deterministic in-memory Engine for tests and examples. It
// reacts to the text of the newest message: canned completions stream
// rune by rune, tool-call scripts surface calls for the session to
// dispatch, and failure scripts terminate with a coded error.
type Scripted struct {
	mu           sync.Mutex
	info         Info
	turns        map[string]scriptedTurn
	availability Availability
	requests     []Request
}

// NewScripted constructs a Scripted engine that reports itself available
// and supports tools and guided generation.
func NewScripted(name string) *Scripted {
	return &Scripted{
		info: Info{
			Name:                     name,
			Provider:                 "scripted",
			SupportsTools:            true,
			SupportsGuidedGeneration: true,
		},
		turns:        make(map[string]scriptedTurn),
		availability: Available,
	}
}

// AddResponse registers a canned completion for an input text.
func (s *Scripted) AddResponse(input, response string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns[input] = scriptedTurn{text: response}
}

// AddToolCalls registers a canned tool-call turn for an input text. The
// session dispatches the calls and feeds their outputs back as the next
// input.
func (s *Scripted) AddToolCalls(input string, calls ...ToolCall) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns[input] = scriptedTurn{toolCalls: calls}
}

// AddFailure registers a coded failure for an input text.
func (s *Scripted) AddFailure(input string, status core.Status, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns[input] = scriptedTurn{err: core.NewBridgeError(status, "%s", description)}
}

// SetUnavailable makes the engine report itself unavailable.
func (s *Scripted) SetUnavailable(reason core.UnavailableReason) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.availability = Unavailable(reason)
}

// Requests returns a copy of every request the engine has served, oldest
// first. Tests use it to assert on what a session actually sent.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Request, len(s.requests))
	copy(out, s.requests)

	return out
}

// Availability implements Engine.
func (s *Scripted) Availability(ctx context.Context) Availability {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.availability
}

// Info implements Engine.
func (s *Scripted) Info() Info {
	return s.info
}

// Generate implements Engine; emits optional streaming rune chunks then the
// final response.
func (s *Scripted) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	turn, scripted := s.turns[lastText(req)]
	s.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if len(req.Messages) == 0 {
			errCh <- core.NewBridgeError(core.StatusUnknown, "no messages provided")
			return
		}

		if !scripted {
			turn = scriptedTurn{text: fmt.Sprintf("Scripted response to: %s", lastText(req))}
		}

		if turn.err != nil {
			errCh <- turn.err
			return
		}

		if len(turn.toolCalls) > 0 {
			respCh <- Response{
				ToolCalls:    turn.toolCalls,
				FinishReason: "tool_calls",
			}

			return
		}

		if req.Stream {
			for _, r := range turn.text {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: string(r)}:
				}
			}
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Text: turn.text, FinishReason: "stop"}:
		}
	}()

	return respCh, errCh
}

// lastText is the scripting key: the text of the newest message.
func lastText(req Request) string {
	if len(req.Messages) == 0 {
		return ""
	}

	return req.Messages[len(req.Messages)-1].Text
}
