package engine

import (
	"context"
	"encoding/json"

	"github.com/hupe1980/modelbridge/core"
)

// Role classifies a transcript message by who produced it.
type Role string

const (
	// RoleInstructions is the system prompt fixed at session creation.
	RoleInstructions Role = "instructions"
	// RolePrompt is input from the driving runtime.
	RolePrompt Role = "prompt"
	// RoleResponse is output produced by the engine.
	RoleResponse Role = "response"
	// RoleTool is the output of a bridged tool call, fed back to the engine.
	RoleTool Role = "tool"
)

// Message is one entry of the conversation history handed to an engine.
// Response messages may carry tool calls; tool messages answer them and
// correlate through ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Text       string     `json:"text,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolName   string     `json:"toolName,omitempty"`
	ToolCallID string     `json:"toolCallID,omitempty"`
}

// ToolCall is a function call request surfaced by an engine. Unified across
// vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"` // JSON object of arguments
}

// ToolDefinition declaratively exposes a callable function to the engine.
// Parameters is a JSON Schema object, the canonical form a generation
// schema serializes to.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Options carries per-request generation tuning. Nil fields leave the
// engine's defaults in place.
type Options struct {
	Temperature           *float64 `json:"temperature,omitempty"`
	MaximumResponseTokens *int     `json:"maximumResponseTokens,omitempty"`
}

// Request captures the normalized engine input produced by a session turn.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`

	// ResponseSchema, when set, constrains the response to a JSON document
	// matching the canonical schema value. SchemaName names its root type.
	ResponseSchema map[string]any `json:"responseSchema,omitempty"`
	SchemaName     string         `json:"schemaName,omitempty"`

	Stream  bool    `json:"stream,omitempty"`
	Options Options `json:"options"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by an engine. Partial
// responses carry incremental text; the final response carries the complete
// text, any tool calls, and the finish reason.
type Response struct {
	Partial      bool        `json:"partial"`
	Text         string      `json:"text"`
	ToolCalls    []ToolCall  `json:"toolCalls,omitempty"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Availability reports whether an engine can serve requests right now, and
// why not when it cannot.
type Availability struct {
	Available bool
	Reason    core.UnavailableReason
}

// Info contains metadata about an engine implementation.
type Info struct {
	Name                     string `json:"name"`
	Provider                 string `json:"provider"` // "openai", "anthropic", "fm", etc.
	SupportsTools            bool   `json:"supports_tools"`
	SupportsGuidedGeneration bool   `json:"supports_guided_generation"`
}

// Engine is the minimal interface the bridge requires to drive generation.
type Engine interface {
	// Availability reports whether the engine can serve requests. Engines
	// that are always ready return a zero-reason available result.
	Availability(ctx context.Context) Availability

	// Generate runs one model turn. Responses stream over the first
	// channel until it closes; a terminal failure arrives on the second.
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the engine implementation.
	Info() Info
}

// Available is the Availability of an engine ready to serve.
var Available = Availability{Available: true}

// Unavailable builds the Availability for an engine that cannot serve.
func Unavailable(reason core.UnavailableReason) Availability {
	return Availability{Reason: reason}
}
