package engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/modelbridge/core"
)

func collect(t *testing.T, respCh <-chan Response, errCh <-chan error) ([]Response, error) {
	t.Helper()

	var responses []Response
	for resp := range respCh {
		responses = append(responses, resp)
	}

	return responses, <-errCh
}

func TestScriptedGenerate(t *testing.T) {
	s := NewScripted("test-engine")
	s.AddResponse("Hello", "Hi there!")

	respCh, errCh := s.Generate(context.Background(), Request{
		Messages: []Message{{Role: RolePrompt, Text: "Hello"}},
	})

	responses, err := collect(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, "Hi there!", responses[0].Text)
	assert.Equal(t, "stop", responses[0].FinishReason)
	assert.False(t, responses[0].Partial)
}

func TestScriptedGenerateStream(t *testing.T) {
	s := NewScripted("test-engine")
	s.AddResponse("Hello", "Hi!")

	respCh, errCh := s.Generate(context.Background(), Request{
		Messages: []Message{{Role: RolePrompt, Text: "Hello"}},
		Stream:   true,
	})

	responses, err := collect(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 4) // three rune chunks plus the final

	var assembled strings.Builder
	for _, resp := range responses[:len(responses)-1] {
		assert.True(t, resp.Partial)
		assembled.WriteString(resp.Text)
	}

	final := responses[len(responses)-1]
	assert.False(t, final.Partial)
	assert.Equal(t, "Hi!", assembled.String())
	assert.Equal(t, "Hi!", final.Text)
}

func TestScriptedToolCalls(t *testing.T) {
	s := NewScripted("test-engine")
	s.AddToolCalls("What's the weather?", ToolCall{
		ID:        "call_1",
		Name:      "getWeather",
		Arguments: json.RawMessage(`{"city":"Paris"}`),
	})

	respCh, errCh := s.Generate(context.Background(), Request{
		Messages: []Message{{Role: RolePrompt, Text: "What's the weather?"}},
	})

	responses, err := collect(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, "tool_calls", responses[0].FinishReason)
	require.Len(t, responses[0].ToolCalls, 1)
	assert.Equal(t, "getWeather", responses[0].ToolCalls[0].Name)
}

func TestScriptedFailure(t *testing.T) {
	s := NewScripted("test-engine")
	s.AddFailure("secret", core.StatusGuardrailViolation, "prompt rejected")

	respCh, errCh := s.Generate(context.Background(), Request{
		Messages: []Message{{Role: RolePrompt, Text: "secret"}},
	})

	responses, err := collect(t, respCh, errCh)
	assert.Empty(t, responses)
	require.Error(t, err)
	assert.Equal(t, core.StatusGuardrailViolation, core.StatusOf(err))
}

func TestScriptedCancellation(t *testing.T) {
	s := NewScripted("test-engine")
	s.AddResponse("Hello", strings.Repeat("chunk ", 200))

	ctx, cancel := context.WithCancel(context.Background())

	respCh, errCh := s.Generate(ctx, Request{
		Messages: []Message{{Role: RolePrompt, Text: "Hello"}},
		Stream:   true,
	})

	// Take a few chunks, then cancel mid-stream.
	for i := 0; i < 3; i++ {
		<-respCh
	}
	cancel()

	for range respCh {
	}

	err := <-errCh
	require.Error(t, err)
	assert.Equal(t, core.StatusCancelled, core.StatusOf(err))
}

func TestScriptedAvailability(t *testing.T) {
	s := NewScripted("test-engine")
	assert.True(t, s.Availability(context.Background()).Available)

	s.SetUnavailable(core.UnavailableModelNotReady)

	avail := s.Availability(context.Background())
	assert.False(t, avail.Available)
	assert.Equal(t, core.UnavailableModelNotReady, avail.Reason)
}

func TestScriptedDefaultResponse(t *testing.T) {
	s := NewScripted("test-engine")

	respCh, errCh := s.Generate(context.Background(), Request{
		Messages: []Message{{Role: RolePrompt, Text: "anything"}},
	})

	responses, err := collect(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Text, "anything")
}

func TestScriptedRecordsRequests(t *testing.T) {
	s := NewScripted("test-engine")
	s.AddResponse("Hello", "Hi!")

	respCh, errCh := s.Generate(context.Background(), Request{
		Instructions: "Be terse.",
		Messages:     []Message{{Role: RolePrompt, Text: "Hello"}},
	})
	_, err := collect(t, respCh, errCh)
	require.NoError(t, err)

	requests := s.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "Be terse.", requests[0].Instructions)
}
