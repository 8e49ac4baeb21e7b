// Package openai drives generation through the OpenAI Chat Completions API
// (including streaming, function/tool calling, and structured outputs). It
// adapts the bridge's normalized Request/Response structures into the SDK's
// message format and back.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/hupe1980/modelbridge/core"
	"github.com/hupe1980/modelbridge/engine"
)

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// allowing reconstruction of complete calls when the finish reason arrives.
type aggCall struct{ id, name, args string }

// Options configure the OpenAI engine adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal; extend via
// functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Engine wraps the OpenAI Chat Completions API behind the generic
// engine.Engine interface.
type Engine struct {
	client *openai.Client
	opts   Options
}

// New creates a new OpenAI engine using the official client.
func New(optFns ...func(o *Options)) *Engine {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new OpenAI engine from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{client: client, opts: opts}
}

// Availability implements engine.Engine. A remote API has no device-local
// readiness gate; transport failures surface per call instead.
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
		e.handleNonStreaming(ctx, params, out, errCh)
	}()

	return out, errCh
}

// buildMessages converts normalized messages into OpenAI chat messages,
// with the session instructions leading as the system message.
func buildMessages(req engine.Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion

	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case engine.RoleInstructions:
			messages = append(messages, openai.SystemMessage(msg.Text))
		case engine.RolePrompt:
			messages = append(messages, openai.UserMessage(msg.Text))
		case engine.RoleResponse:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Text))
				continue
			}

			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				}
			}
			messages = append(
				messages,
				openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				}},
			)
		case engine.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Text, msg.ToolCallID))
		default:
			if msg.Text != "" {
				messages = append(messages, openai.UserMessage(msg.Text))
			}
		}
	}

	return messages
}

// buildParams assembles the OpenAI request parameters including tool
// definitions and the structured-output response format.
func (e *Engine) buildParams(req engine.Request) openai.ChatCompletionNewParams {
	temperature := e.opts.Temperature
	if req.Options.Temperature != nil {
		temperature = *req.Options.Temperature
	}

	maxTokens := e.opts.MaxCompletionTokens
	if req.Options.MaximumResponseTokens != nil {
		maxTokens = int64(*req.Options.MaximumResponseTokens)
	}

	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               e.opts.Model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, tdef := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tdef.Name,
					Description: openai.String(tdef.Description),
					Parameters:  tdef.Parameters,
				},
			}
		}
		params.Tools = tools
	}

	if req.ResponseSchema != nil {
		name := req.SchemaName
		if name == "" {
			name = "response"
		}

		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: req.ResponseSchema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	return params
}

// handleStreaming processes streaming responses and forwards partial / final
// events. Tool-call deltas are aggregated silently and surface only on the
// final response.
func (e *Engine) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- engine.Response,
	errCh chan<- error,
) {
	stream := e.client.Chat.Completions.NewStreaming(ctx, params)

	var textBuilder strings.Builder
	toolAgg := map[int64]*aggCall{}

	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				textBuilder.WriteString(ch.Delta.Content)
				out <- engine.Response{Partial: true, Text: ch.Delta.Content}
			}

			for _, tc := range ch.Delta.ToolCalls {
				ac, ok := toolAgg[tc.Index]
				if !ok {
					ac = &aggCall{}
					toolAgg[tc.Index] = ac
				}
				if tc.ID != "" {
					ac.id = tc.ID
				}
				if tc.Function.Name != "" {
					ac.name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					ac.args += tc.Function.Arguments
				}
			}

			if ch.FinishReason != "" {
				out <- engine.Response{
					Text:         textBuilder.String(),
					ToolCalls:    assembleToolCalls(toolAgg),
					FinishReason: ch.FinishReason,
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		errCh <- wrapErr(err)
	}
}

// assembleToolCalls flattens the aggregation map in stream index order.
func assembleToolCalls(toolAgg map[int64]*aggCall) []engine.ToolCall {
	if len(toolAgg) == 0 {
		return nil
	}

	indexes := make([]int64, 0, len(toolAgg))
	for i := range toolAgg {
		indexes = append(indexes, i)
	}
	sort.Slice(indexes, func(a, b int) bool { return indexes[a] < indexes[b] })

	calls := make([]engine.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		ac := toolAgg[i]
		calls = append(calls, engine.ToolCall{
			ID:        ac.id,
			Name:      ac.name,
			Arguments: json.RawMessage(ac.args),
		})
	}

	return calls
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (e *Engine) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- engine.Response,
	errCh chan<- error,
) {
	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- wrapErr(err)
		return
	}

	if len(resp.Choices) == 0 {
		errCh <- core.NewBridgeError(core.StatusUnknown, "openai returned no choices")
		return
	}

	ch0 := resp.Choices[0]

	toolCalls := make([]engine.ToolCall, 0, len(ch0.Message.ToolCalls))
	for _, tc := range ch0.Message.ToolCalls {
		toolCalls = append(toolCalls, engine.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	out <- engine.Response{
		Text:         ch0.Message.Content,
		ToolCalls:    toolCalls,
		FinishReason: ch0.FinishReason,
		Usage: &engine.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
}

// wrapErr projects SDK failures onto the bridge's closed status set.
func wrapErr(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429:
			return core.NewBridgeError(core.StatusRateLimited, "openai: %v", err)
		case strings.Contains(apierr.Error(), "context_length_exceeded"):
			return core.NewBridgeError(core.StatusExceededContextWindowSize, "openai: %v", err)
		}
	}

	return core.NewBridgeError(core.StatusOf(err), "openai api error: %v", err)
}

// Info returns metadata describing this OpenAI engine implementation.
func (e *Engine) Info() engine.Info {
	return engine.Info{
		Name:                     e.opts.Model,
		Provider:                 "openai",
		SupportsTools:            true,
		SupportsGuidedGeneration: true,
	}
}
