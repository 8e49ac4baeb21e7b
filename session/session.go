package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/modelbridge/content"
	"github.com/hupe1980/modelbridge/core"
	"github.com/hupe1980/modelbridge/engine"
	"github.com/hupe1980/modelbridge/logging"
	"github.com/hupe1980/modelbridge/schema"
	"github.com/hupe1980/modelbridge/tool"
)

// maxToolRounds caps the number of tool-call rounds within one turn before
// the turn fails rather than looping.
const maxToolRounds = 8

// closeWait bounds how long Close waits for an active turn to observe its
// cancellation before giving up on it.
const closeWait = time.Second

// TextCallback receives the terminal delivery of a non-streaming request:
// exactly one invocation, status 0 with the full response text, or a nonzero
// status with a nil payload.
type TextCallback func(status core.Status, text *string)

// SnapshotCallback receives streaming deliveries: zero or more invocations
// with status 0 and the full content accumulated so far, then exactly one
// invocation with a nil snapshot marking end-of-stream. A nonzero status is
// terminal and no sentinel follows it.
type SnapshotCallback func(status core.Status, snapshot *string)

// ContentCallback receives the terminal delivery of a guided request, with
// the parsed content in place of raw text.
type ContentCallback func(status core.Status, c *content.Content)

// Options configures a session at creation. The tool list is fixed for the
// session's lifetime.
type Options struct {
	// Instructions guide the model's behavior for every request of the
	// session.
	Instructions string
	// Tools the engine may invoke mid-generation.
	Tools []*tool.Tool
	// Logger receives session diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Session is a conversation bound to exactly one model. It accumulates a
// transcript as turns complete and executes at most one request at a time;
// starting a second request while responding fails with
// StatusConcurrentRequests rather than queueing.
//
// Callbacks run on session-managed goroutines of unspecified identity.
// Callback code must be safe to run concurrently with other host activity
// and must not assume the goroutine that issued the request.
type Session struct {
	id           string
	model        *Model
	instructions string
	tools        []*tool.Tool
	defs         []engine.ToolDefinition
	ledger       *tool.Ledger
	logger       logging.Logger
	transcript   *Transcript

	mu         sync.Mutex
	responding bool
	active     *Task
	closed     bool
}

// New creates a session over the given model. Registering a tool that is
// still bound to another live session fails.
func New(model *Model, optFns ...func(o *Options)) (*Session, error) {
	if model == nil {
		return nil, core.NewBridgeError(core.StatusUnknown, "session requires a model")
	}

	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	ledger := tool.NewLedger()

	defs := make([]engine.ToolDefinition, 0, len(opts.Tools))

	for _, t := range opts.Tools {
		if err := ledger.Register(t); err != nil {
			ledger.Close()
			return nil, err
		}

		def, err := t.Definition()
		if err != nil {
			ledger.Close()
			return nil, err
		}

		defs = append(defs, def)
	}

	return &Session{
		id:           core.NewID(),
		model:        model,
		instructions: opts.Instructions,
		tools:        opts.Tools,
		defs:         defs,
		ledger:       ledger,
		logger:       opts.Logger,
		transcript:   NewTranscript(opts.Instructions, defs),
	}, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Model returns the model the session is bound to.
func (s *Session) Model() *Model { return s.model }

// Tools returns the session's tool list, fixed at creation.
func (s *Session) Tools() []*tool.Tool {
	out := make([]*tool.Tool, len(s.tools))
	copy(out, s.tools)

	return out
}

// Transcript returns the session history.
func (s *Session) Transcript() *Transcript { return s.transcript }

// IsResponding reports whether a request is currently in flight.
func (s *Session) IsResponding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.responding
}

// TranscriptJSON serializes the full exchange history.
func (s *Session) TranscriptJSON() (string, error) {
	return s.transcript.JSON()
}

// Reset clears the transcript while keeping instructions and tools. It is
// rejected while a request is in flight.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.responding {
		return core.NewBridgeError(core.StatusConcurrentRequests, "cannot reset a session while it is responding")
	}

	s.transcript.reset()

	return nil
}

// Respond starts one non-streaming asynchronous request. It returns the
// task immediately; the callback fires exactly once on an engine-managed
// goroutine, with the full response text or a failure status.
func (s *Session) Respond(prompt string, cb TextCallback) (*Task, error) {
	if cb == nil {
		return nil, core.NewBridgeError(core.StatusUnknown, "respond requires a callback")
	}

	ctx, task, err := s.begin()
	if err != nil {
		return nil, err
	}

	go func() {
		entries, text, runErr := s.run(ctx, prompt, nil, "", false, nil)

		s.settle(task, entries, runErr, func(status core.Status) {
			if status.OK() {
				cb(status, &text)
			} else {
				cb(status, nil)
			}
		})
	}()

	return task, nil
}

// StreamResponse starts one streaming request and returns the stream
// synchronously. Generation begins when the stream is iterated; the session
// counts as responding from this call on.
func (s *Session) StreamResponse(prompt string) (*Stream, error) {
	ctx, task, err := s.begin()
	if err != nil {
		return nil, err
	}

	return &Stream{session: s, ctx: ctx, task: task, prompt: prompt}, nil
}

// RespondWithSchema starts one guided request constrained by the schema,
// freezing it. The callback carries parsed content validated against the
// schema, or a failure status.
func (s *Session) RespondWithSchema(prompt string, sch *schema.Schema, cb ContentCallback) (*Task, error) {
	if cb == nil {
		return nil, core.NewBridgeError(core.StatusUnknown, "respond requires a callback")
	}

	if sch == nil {
		return nil, core.NewBridgeError(core.StatusInvalidSchema, "guided generation requires a schema")
	}

	value, err := sch.Value()
	if err != nil {
		return nil, err
	}

	ctx, task, err := s.begin()
	if err != nil {
		return nil, err
	}

	go func() {
		entries, text, runErr := s.run(ctx, prompt, value, sch.Name(), false, nil)

		var payload *content.Content

		if runErr == nil {
			payload, runErr = content.FromJSON(text)
		}

		if runErr == nil {
			if verr := content.Validate(payload, sch); verr != nil {
				payload = nil
				runErr = core.NewBridgeError(core.StatusDecodingFailure, "generated content does not match schema %q: %v", sch.Name(), verr)
			}
		}

		s.settle(task, entries, runErr, func(status core.Status) {
			if status.OK() {
				cb(status, payload)
			} else {
				cb(status, nil)
			}
		})
	}()

	return task, nil
}

// RespondWithSchemaJSON is the raw variant of RespondWithSchema for hosts
// that carry schemas as serialized JSON. The document must be a JSON
// object; its "title" names the target type.
func (s *Session) RespondWithSchemaJSON(prompt, schemaJSON string, cb ContentCallback) (*Task, error) {
	if cb == nil {
		return nil, core.NewBridgeError(core.StatusUnknown, "respond requires a callback")
	}

	if err := schema.ValidateJSON(schemaJSON); err != nil {
		return nil, err
	}

	var value map[string]any
	if err := json.Unmarshal([]byte(schemaJSON), &value); err != nil {
		return nil, core.NewBridgeError(core.StatusInvalidSchema, "schema document does not decode: %v", err)
	}

	name := gjson.Get(schemaJSON, "title").Str

	ctx, task, err := s.begin()
	if err != nil {
		return nil, err
	}

	go func() {
		entries, text, runErr := s.run(ctx, prompt, value, name, false, nil)

		var payload *content.Content

		if runErr == nil {
			payload, runErr = content.FromJSON(text)
		}

		s.settle(task, entries, runErr, func(status core.Status) {
			if status.OK() {
				cb(status, payload)
			} else {
				cb(status, nil)
			}
		})
	}()

	return task, nil
}

// Close cancels any active task, waits briefly for it to observe the
// cancellation, and unbinds the session's tools. The session accepts no
// further requests.
func (s *Session) Close() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	active := s.active
	s.mu.Unlock()

	if active != nil {
		active.Cancel()

		ctx, cancel := context.WithTimeout(context.Background(), closeWait)
		defer cancel()

		if err := active.Wait(ctx); err != nil {
			s.logger.Warn("session.close.task_still_running", "session_id", s.id, "task_id", active.ID())
		}
	}

	s.ledger.Close()

	return nil
}

// begin reserves the session's single request slot and allocates the task
// representing the turn.
func (s *Session) begin() (context.Context, *Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, core.NewBridgeError(core.StatusUnknown, "session is closed")
	}

	if s.responding {
		return nil, nil, core.NewBridgeError(core.StatusConcurrentRequests, "session already has an active request")
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := newTask(cancel)

	s.responding = true
	s.active = task

	return ctx, task, nil
}

// endTurn releases the request slot held by task.
func (s *Session) endTurn(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == task {
		s.responding = false
		s.active = nil
	}
}

// settle resolves a turn exactly once: it releases the request slot, commits
// the turn's entries on success, performs the terminal state transition, and
// invokes deliver with the terminal status. A turn that lost the transition
// race (an unactivated stream cancelled from another goroutine) delivers
// nothing.
func (s *Session) settle(task *Task, entries []Entry, err error, deliver func(status core.Status)) {
	s.endTurn(task)

	status := core.StatusOf(err)

	state := TaskCompleted
	if status == core.StatusCancelled {
		state = TaskCancelled
	}

	if !task.finish(state) {
		return
	}

	if err == nil {
		s.transcript.append(entries...)
	} else {
		s.logger.Warn("session.turn.failed", "session_id", s.id, "task_id", task.ID(), "status", int(status), "error", err.Error())
	}

	deliver(status)
	task.settled()
}

// run executes one turn against the engine: it pumps response channels,
// accumulates streamed text, dispatches tool-call rounds through the ledger,
// and returns the transcript entries the turn produced together with the
// final response text. It never touches the transcript itself; settle
// commits on success.
func (s *Session) run(
	ctx context.Context,
	prompt string,
	responseSchema map[string]any,
	schemaName string,
	stream bool,
	onSnapshot func(snapshot string),
) ([]Entry, string, error) {
	entries := []Entry{textEntry(EntryRoleUser, prompt)}
	messages := append(s.transcript.messages(), engine.Message{Role: engine.RolePrompt, Text: prompt})

	start := time.Now()

	for round := 0; round < maxToolRounds; round++ {
		req := engine.Request{
			Instructions:   s.instructions,
			Messages:       messages,
			Tools:          s.defs,
			ResponseSchema: responseSchema,
			SchemaName:     schemaName,
			Stream:         stream,
			Options:        s.model.generationOptions(),
		}

		// Partials emitted before a tool-call response never become part of
		// the final text. With tools registered, each round buffers its
		// snapshots and replays them once the round proves to be the answer;
		// rounds that end in tool calls drop theirs.
		forward := onSnapshot

		var buffered []string

		if onSnapshot != nil && len(s.defs) > 0 {
			forward = func(snapshot string) {
				buffered = append(buffered, snapshot)
			}
		}

		final, accumulated, err := s.pump(ctx, req, forward)
		if err != nil {
			return nil, "", err
		}

		if len(final.ToolCalls) == 0 {
			text := final.Text
			if text == "" {
				text = accumulated
			}

			if onSnapshot != nil {
				for _, snapshot := range buffered {
					onSnapshot(snapshot)
				}
			}

			entries = append(entries, textEntry(EntryRoleResponse, text))

			s.logger.Debug("session.turn.completed", "session_id", s.id, "rounds", round+1, "duration", time.Since(start))

			return entries, text, nil
		}

		roundEntries, roundMessages, err := s.runToolRound(ctx, final)
		if err != nil {
			return nil, "", err
		}

		entries = append(entries, roundEntries...)
		messages = append(messages, roundMessages...)
	}

	return nil, "", core.NewBridgeError(core.StatusUnknown, "turn exceeded %d tool-call rounds", maxToolRounds)
}

// pump drains one Generate activation, forwarding full-so-far snapshots and
// returning the final response.
func (s *Session) pump(ctx context.Context, req engine.Request, onSnapshot func(string)) (engine.Response, string, error) {
	respCh, errCh := s.model.engine.Generate(ctx, req)

	var (
		builder strings.Builder
		final   engine.Response
	)

	for resp := range respCh {
		if resp.Partial {
			builder.WriteString(resp.Text)

			if onSnapshot != nil && builder.Len() > 0 {
				onSnapshot(builder.String())
			}

			continue
		}

		final = resp
	}

	if err := <-errCh; err != nil {
		return engine.Response{}, "", err
	}

	if err := ctx.Err(); err != nil {
		return engine.Response{}, "", err
	}

	return final, builder.String(), nil
}

// runToolRound dispatches every call of a tool-call response through the
// ledger, awaits the out-of-order completions, and renders the round as
// transcript entries plus the messages the next engine activation consumes.
func (s *Session) runToolRound(ctx context.Context, final engine.Response) ([]Entry, []engine.Message, error) {
	records := make([]ToolCallRecord, 0, len(final.ToolCalls))
	for _, call := range final.ToolCalls {
		records = append(records, ToolCallRecord{ID: call.ID, Name: call.Name, Arguments: call.Arguments})
	}

	responseEntry := Entry{ID: core.NewID(), Role: EntryRoleResponse, ToolCalls: records}
	if final.Text != "" {
		responseEntry.Contents = []ContentPart{{Type: "text", ID: core.NewID(), Text: final.Text}}
	}

	entries := []Entry{responseEntry}

	responseMsg := engine.Message{Role: engine.RoleResponse, Text: final.Text, ToolCalls: final.ToolCalls}
	messages := []engine.Message{responseMsg}

	type dispatched struct {
		call engine.ToolCall
		tl   *tool.Tool
		id   uint64
		ch   <-chan tool.Result
	}

	// Dispatch every call before awaiting any, so parallel calls complete
	// out of order.
	pending := make([]dispatched, 0, len(final.ToolCalls))

	for _, call := range final.ToolCalls {
		tl, ok := s.toolByName(call.Name)
		if !ok {
			return nil, nil, &tool.CallError{Tool: call.Name, Message: "engine requested a tool the session does not have", Code: core.StatusUnknown}
		}

		rawArgs := string(call.Arguments)
		if strings.TrimSpace(rawArgs) == "" {
			rawArgs = "{}"
		}

		args, err := content.FromJSON(rawArgs)
		if err != nil {
			return nil, nil, &tool.CallError{Tool: call.Name, Message: "tool call arguments are not valid JSON", Code: core.StatusDecodingFailure}
		}

		id, ch := s.ledger.Dispatch(tl, args)

		s.logger.Debug("session.tool.dispatched", "session_id", s.id, "tool", call.Name, "call_id", id)

		pending = append(pending, dispatched{call: call, tl: tl, id: id, ch: ch})
	}

	for _, d := range pending {
		res, err := s.ledger.Await(ctx, d.id, d.ch)
		if err != nil {
			return nil, nil, err
		}

		entry := textEntry(EntryRoleTool, res.Output)
		entry.ToolName = d.call.Name
		entry.ToolCallID = d.call.ID
		entries = append(entries, entry)

		messages = append(messages, engine.Message{
			Role:       engine.RoleTool,
			Text:       res.Output,
			ToolName:   d.call.Name,
			ToolCallID: d.call.ID,
		})
	}

	return entries, messages, nil
}

func (s *Session) toolByName(name string) (*tool.Tool, bool) {
	for _, t := range s.tools {
		if t.Name() == name {
			return t, true
		}
	}

	return nil, false
}
