// Package anthropic drives generation through the Anthropic Messages API,
// with streaming and tool calling. Structured output is enforced by
// instruction, since the API has no native schema-constrained mode.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/modelbridge/core"
	"github.com/hupe1980/modelbridge/engine"
)

// Options configures the Anthropic engine adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Engine wraps the Anthropic Messages API behind the generic engine.Engine
// interface.
type Engine struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// New creates a new Anthropic engine using the official client.
func New(optFns ...func(o *Options)) *Engine {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Engine{client: &client, opts: opts}
}

// NewFromClient creates a new Anthropic engine from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Engine {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{client: client, opts: opts}
}

// Availability implements engine.Engine.
func (e *Engine) Availability(ctx context.Context) engine.Availability {
	return engine.Available
}

// Generate implements unified streaming / non-streaming generation.
func (e *Engine) Generate(ctx context.Context, req engine.Request) (<-chan engine.Response, <-chan error) {
	out := make(chan engine.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := e.buildParams(req)

		if req.Stream {
			e.handleStreaming(ctx, params, out, errCh)
			return
		}

		resp, err := e.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- wrapErr(err)
			return
		}

		out <- responseFromMessage(resp)
	}()

	return out, errCh
}

func (e *Engine) buildParams(req engine.Request) anthropic.MessageNewParams {
	temperature := e.opts.Temperature
	if req.Options.Temperature != nil {
		temperature = *req.Options.Temperature
	}

	maxTokens := e.opts.MaxTokens
	if req.Options.MaximumResponseTokens != nil {
		maxTokens = int64(*req.Options.MaximumResponseTokens)
	}

	params := anthropic.MessageNewParams{
		Model:       e.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}

	if system := buildSystem(req); len(system) > 0 {
		params.System = system
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	return params
}

// buildSystem assembles the system blocks: session instructions, any
// instructions messages in the history, and the schema constraint for
// guided generation.
func buildSystem(req engine.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam

	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}

	for _, msg := range req.Messages {
		if msg.Role == engine.RoleInstructions && msg.Text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: msg.Text})
		}
	}

	if req.ResponseSchema != nil {
		if raw, err := json.Marshal(req.ResponseSchema); err == nil {
			blocks = append(blocks, anthropic.TextBlockParam{
				Text: fmt.Sprintf(
					"Respond with a single JSON object conforming to this JSON Schema, with no surrounding prose or code fences:\n%s",
					raw,
				),
			})
		}
	}

	return blocks
}

// buildMessages converts normalized messages to the Anthropic format. Tool
// outputs become tool_result blocks in a user message; consecutive tool
// outputs merge into one, as the API expects all results for a turn
// together.
func buildMessages(msgs []engine.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			messages = append(messages, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range msgs {
		if msg.Role == engine.RoleTool {
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Text, false))
			continue
		}

		flushResults()

		switch msg.Role {
		case engine.RoleInstructions:
			// Handled as system blocks.
		case engine.RolePrompt:
			if msg.Text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))
			}
		case engine.RoleResponse:
			var content []anthropic.ContentBlockParamUnion

			if msg.Text != "" {
				content = append(content, anthropic.NewTextBlock(msg.Text))
			}

			for _, tc := range msg.ToolCalls {
				var input any
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &input); err != nil {
						input = string(tc.Arguments)
					}
				}

				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}

			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		default:
			if msg.Text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))
			}
		}
	}

	flushResults()

	return messages
}

// buildTools converts neutral tool definitions to the Anthropic tool format.
func buildTools(tools []engine.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if tool.Parameters != nil {
			if properties, exists := tool.Parameters["properties"]; exists {
				inputSchema.Properties = properties
			}

			switch required := tool.Parameters["required"].(type) {
			case []string:
				inputSchema.Required = required
			case []any:
				for _, r := range required {
					if s, ok := r.(string); ok {
						inputSchema.Required = append(inputSchema.Required, s)
					}
				}
			}
		}

		anthropicTools[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
	}

	return anthropicTools
}

// handleStreaming forwards text deltas as they arrive and emits the final
// accumulated response, including any tool calls, when the stream ends.
func (e *Engine) handleStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- engine.Response,
	errCh chan<- error,
) {
	stream := e.client.Messages.NewStreaming(ctx, params)

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()

		if err := message.Accumulate(event); err != nil {
			errCh <- wrapErr(err)
			return
		}

		if eventVariant, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta, ok := eventVariant.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				out <- engine.Response{Partial: true, Text: delta.Text}
			}
		}
	}

	if err := stream.Err(); err != nil {
		errCh <- wrapErr(err)
		return
	}

	out <- responseFromMessage(&message)
}

// responseFromMessage flattens an Anthropic message into the neutral final
// response.
func responseFromMessage(msg *anthropic.Message) engine.Response {
	var textBuilder strings.Builder
	var toolCalls []engine.ToolCall

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			textBuilder.WriteString(block.AsText().Text)
		case "tool_use":
			toolBlock := block.AsToolUse()

			args := json.RawMessage(`{}`)
			if toolBlock.Input != nil {
				if raw, err := json.Marshal(toolBlock.Input); err == nil {
					args = raw
				}
			}

			toolCalls = append(toolCalls, engine.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			})
		}
	}

	finishReason := "stop"
	if msg.StopReason != "" {
		finishReason = string(msg.StopReason)
	}

	return engine.Response{
		Text:         textBuilder.String(),
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
		Usage: &engine.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

// wrapErr projects SDK failures onto the bridge's closed status set.
func wrapErr(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429 || apierr.StatusCode == 529:
			return core.NewBridgeError(core.StatusRateLimited, "anthropic: %v", err)
		case strings.Contains(apierr.Error(), "prompt is too long"):
			return core.NewBridgeError(core.StatusExceededContextWindowSize, "anthropic: %v", err)
		}
	}

	return core.NewBridgeError(core.StatusOf(err), "anthropic api error: %v", err)
}

// Info returns metadata describing this Anthropic engine implementation.
func (e *Engine) Info() engine.Info {
	return engine.Info{
		Name:                     string(e.opts.Model),
		Provider:                 "anthropic",
		SupportsTools:            true,
		SupportsGuidedGeneration: true,
	}
}
