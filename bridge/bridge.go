package bridge

import (
	"context"
	"sync"

	"github.com/hupe1980/modelbridge/content"
	"github.com/hupe1980/modelbridge/core"
	"github.com/hupe1980/modelbridge/engine"
	"github.com/hupe1980/modelbridge/engine/fm"
	"github.com/hupe1980/modelbridge/logging"
	"github.com/hupe1980/modelbridge/schema"
	"github.com/hupe1980/modelbridge/session"
	"github.com/hupe1980/modelbridge/tool"
)

// TextCallback receives single-shot deliveries; see session.TextCallback.
type TextCallback = session.TextCallback

// SnapshotCallback receives streaming deliveries; see
// session.SnapshotCallback.
type SnapshotCallback = session.SnapshotCallback

// ContentCallback receives the terminal delivery of a guided request as a
// content reference. Ownership of a non-nil reference transfers to the
// callback's receiver, which must release it. On failure the reference is
// NilRef.
type ContentCallback func(status core.Status, contentRef Ref)

// ToolCallable receives a dispatched tool call with the arguments as a
// content reference (ownership transfers to the receiver) and the numeric
// call identifier. It must return immediately; the owner later reports the
// result through FinishCall, exactly once.
type ToolCallable func(args Ref, callID uint64)

// Options configures a Bridge.
type Options struct {
	// Engine backs the default model. Defaults to the on-device Foundation
	// Models adapter, which reports itself unavailable off Apple platforms.
	Engine engine.Engine
	// Logger receives bridge diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Bridge owns a handle registry and exposes the boundary operations over
// it. All methods are safe for concurrent use from multiple host threads.
type Bridge struct {
	opts     Options
	registry *Registry

	defaultOnce  sync.Once
	defaultModel Ref
}

// New creates a Bridge.
func New(optFns ...func(o *Options)) *Bridge {
	opts := Options{
		Engine: fm.New(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Bridge{opts: opts, registry: NewRegistry()}
}

// Registry exposes the handle registry, mainly for leak assertions in
// tests.
func (b *Bridge) Registry() *Registry { return b.registry }

// Retain adds a shared owner to a reference of any kind.
func (b *Bridge) Retain(ref Ref) error { return b.registry.Retain(ref) }

// Release drops one owner; the last release tears the object down.
func (b *Bridge) Release(ref Ref) error { return b.registry.Release(ref) }

// KindOf reports the kind of a live reference.
func (b *Bridge) KindOf(ref Ref) (Kind, error) { return b.registry.KindOf(ref) }

// AcquireDefaultModel returns a reference to the process-wide default
// model, lazily initialized over the bridge's engine and never torn down
// before the bridge goes away. Every acquisition adds an owner the caller
// must release.
func (b *Bridge) AcquireDefaultModel() Ref {
	b.defaultOnce.Do(func() {
		model := session.NewModel(b.opts.Engine, func(o *session.ModelOptions) {
			o.Logger = b.opts.Logger
		})

		// The bridge holds the base count so caller releases never reach
		// zero.
		b.defaultModel = b.registry.Add(KindModel, model)
	})

	// Cannot fail: the base count keeps the entry alive.
	_ = b.registry.Retain(b.defaultModel)

	return b.defaultModel
}

// CreateModel creates an explicitly configured model instance over eng, or
// over the bridge's engine when eng is nil. The caller owns the returned
// reference.
func (b *Bridge) CreateModel(eng engine.Engine, optFns ...func(o *session.ModelOptions)) Ref {
	if eng == nil {
		eng = b.opts.Engine
	}

	return b.registry.Add(KindModel, session.NewModel(eng, optFns...))
}

// IsAvailable reports whether the model's engine can serve requests right
// now. Synchronous and side-effect-free; the reason is meaningful only when
// ok is false.
func (b *Bridge) IsAvailable(model Ref) (bool, core.UnavailableReason, error) {
	m, err := b.model(model)
	if err != nil {
		return false, core.UnavailableUnknown, err
	}

	ok, reason := m.IsAvailable(context.Background())

	return ok, reason, nil
}

// CreateSession binds a session to a model (NilRef selects the default
// model), optional instructions, and an ordered tool list fixed for the
// session's lifetime. The caller owns the returned reference.
func (b *Bridge) CreateSession(model Ref, instructions string, toolRefs ...Ref) (Ref, error) {
	if model == NilRef {
		model = b.AcquireDefaultModel()
		defer func() { _ = b.registry.Release(model) }()
	}

	m, err := b.model(model)
	if err != nil {
		return NilRef, err
	}

	tools := make([]*tool.Tool, 0, len(toolRefs))

	for _, ref := range toolRefs {
		t, err := b.tool(ref)
		if err != nil {
			return NilRef, err
		}

		tools = append(tools, t)
	}

	s, err := session.New(m, func(o *session.Options) {
		o.Instructions = instructions
		o.Tools = tools
		o.Logger = b.opts.Logger
	})
	if err != nil {
		return NilRef, err
	}

	return b.registry.Add(KindSession, s), nil
}

// IsResponding reports whether the session has a request in flight.
func (b *Bridge) IsResponding(sessionRef Ref) (bool, error) {
	s, err := b.session(sessionRef)
	if err != nil {
		return false, err
	}

	return s.IsResponding(), nil
}

// Reset clears the session transcript; rejected while responding.
func (b *Bridge) Reset(sessionRef Ref) error {
	s, err := b.session(sessionRef)
	if err != nil {
		return err
	}

	return s.Reset()
}

// TranscriptJSON serializes the session's full exchange history.
func (b *Bridge) TranscriptJSON(sessionRef Ref) (string, error) {
	s, err := b.session(sessionRef)
	if err != nil {
		return "", err
	}

	return s.TranscriptJSON()
}

// Respond starts one non-streaming request and returns the task reference
// immediately; the callback fires exactly once. The caller owns the task
// reference.
func (b *Bridge) Respond(sessionRef Ref, prompt string, cb TextCallback) (Ref, error) {
	s, err := b.session(sessionRef)
	if err != nil {
		return NilRef, err
	}

	task, err := s.Respond(prompt, cb)
	if err != nil {
		return NilRef, err
	}

	return b.registry.Add(KindTask, task), nil
}

// StreamResponse starts one streaming request and returns the stream
// reference synchronously; IterateStream drives delivery. The caller owns
// the stream reference.
func (b *Bridge) StreamResponse(sessionRef Ref, prompt string) (Ref, error) {
	s, err := b.session(sessionRef)
	if err != nil {
		return NilRef, err
	}

	stream, err := s.StreamResponse(prompt)
	if err != nil {
		return NilRef, err
	}

	return b.registry.Add(KindStream, stream), nil
}

// IterateStream activates snapshot delivery for a stream, once.
func (b *Bridge) IterateStream(streamRef Ref, cb SnapshotCallback) error {
	st, err := b.stream(streamRef)
	if err != nil {
		return err
	}

	return st.Iterate(cb)
}

// RespondWithSchema starts one guided request constrained by a schema
// reference; the callback carries a content reference the receiver owns.
// The caller owns the returned task reference.
func (b *Bridge) RespondWithSchema(sessionRef Ref, prompt string, schemaRef Ref, cb ContentCallback) (Ref, error) {
	if cb == nil {
		return NilRef, core.NewBridgeError(core.StatusUnknown, "respond requires a callback")
	}

	s, err := b.session(sessionRef)
	if err != nil {
		return NilRef, err
	}

	sch, err := b.schema(schemaRef)
	if err != nil {
		return NilRef, err
	}

	task, err := s.RespondWithSchema(prompt, sch, b.contentDelivery(cb))
	if err != nil {
		return NilRef, err
	}

	return b.registry.Add(KindTask, task), nil
}

// RespondWithSchemaJSON is the raw-JSON variant of RespondWithSchema.
func (b *Bridge) RespondWithSchemaJSON(sessionRef Ref, prompt, schemaJSON string, cb ContentCallback) (Ref, error) {
	if cb == nil {
		return NilRef, core.NewBridgeError(core.StatusUnknown, "respond requires a callback")
	}

	s, err := b.session(sessionRef)
	if err != nil {
		return NilRef, err
	}

	task, err := s.RespondWithSchemaJSON(prompt, schemaJSON, b.contentDelivery(cb))
	if err != nil {
		return NilRef, err
	}

	return b.registry.Add(KindTask, task), nil
}

// contentDelivery adapts a boundary content callback: the payload enters
// the registry and its ownership transfers to the receiver.
func (b *Bridge) contentDelivery(cb ContentCallback) session.ContentCallback {
	return func(status core.Status, c *content.Content) {
		if c == nil {
			cb(status, NilRef)
			return
		}

		cb(status, b.registry.Add(KindContent, c))
	}
}

// CancelTask requests cooperative cancellation of a task or stream
// reference. Idempotent; cancelling a terminal task is a no-op.
func (b *Bridge) CancelTask(ref Ref) error {
	kind, err := b.registry.KindOf(ref)
	if err != nil {
		return err
	}

	switch kind {
	case KindTask:
		t, err := b.task(ref)
		if err != nil {
			return err
		}

		t.Cancel()
	case KindStream:
		st, err := b.stream(ref)
		if err != nil {
			return err
		}

		st.Cancel()
	default:
		_, err := b.registry.lookup(ref, KindTask)
		return err
	}

	return nil
}

// CreateSchema creates an empty schema. The caller owns the reference.
func (b *Bridge) CreateSchema(name, description string) Ref {
	return b.registry.Add(KindSchema, schema.New(name, description))
}

// CreateProperty creates a schema property. The caller owns the reference.
func (b *Bridge) CreateProperty(name, description, typeName string, optional bool) Ref {
	return b.registry.Add(KindProperty, schema.NewProperty(name, description, typeName, optional))
}

// AddGuide attaches a validation guide to a property reference.
func (b *Bridge) AddGuide(propertyRef Ref, g schema.Guide) error {
	p, err := b.property(propertyRef)
	if err != nil {
		return err
	}

	return p.AddGuide(g)
}

// AddProperty appends a property to a schema.
func (b *Bridge) AddProperty(schemaRef, propertyRef Ref) error {
	sch, err := b.schema(schemaRef)
	if err != nil {
		return err
	}

	p, err := b.property(propertyRef)
	if err != nil {
		return err
	}

	return sch.AddProperty(p)
}

// AddSchemaReference registers target as referenceable from schemaRef by
// name, enabling composition and recursion.
func (b *Bridge) AddSchemaReference(schemaRef, target Ref) error {
	sch, err := b.schema(schemaRef)
	if err != nil {
		return err
	}

	ref, err := b.schema(target)
	if err != nil {
		return err
	}

	return sch.AddReference(ref)
}

// SchemaJSON freezes the schema and serializes its canonical form.
func (b *Bridge) SchemaJSON(schemaRef Ref) (string, error) {
	sch, err := b.schema(schemaRef)
	if err != nil {
		return "", err
	}

	return sch.JSON()
}

// ContentFromJSON parses a raw JSON document into a content reference the
// caller owns.
func (b *Bridge) ContentFromJSON(doc string) (Ref, error) {
	c, err := content.FromJSON(doc)
	if err != nil {
		return NilRef, err
	}

	return b.registry.Add(KindContent, c), nil
}

// Content resolves a content reference to its typed accessor.
func (b *Bridge) Content(ref Ref) (*content.Content, error) {
	return b.content(ref)
}

// ContentJSON returns the content's canonical textual form.
func (b *Bridge) ContentJSON(ref Ref) (string, error) {
	c, err := b.content(ref)
	if err != nil {
		return "", err
	}

	return c.JSON(), nil
}

// ContentIsComplete distinguishes fully-validated content from a partial
// parse still being refined.
func (b *Bridge) ContentIsComplete(ref Ref) (bool, error) {
	c, err := b.content(ref)
	if err != nil {
		return false, err
	}

	return c.Complete(), nil
}

// ContentText returns the string property at path.
func (b *Bridge) ContentText(ref Ref, path string) (string, error) {
	c, err := b.content(ref)
	if err != nil {
		return "", err
	}

	return c.Text(path)
}

// ContentInt returns the integer property at path.
func (b *Bridge) ContentInt(ref Ref, path string) (int64, error) {
	c, err := b.content(ref)
	if err != nil {
		return 0, err
	}

	return c.Int(path)
}

// ContentFloat returns the numeric property at path.
func (b *Bridge) ContentFloat(ref Ref, path string) (float64, error) {
	c, err := b.content(ref)
	if err != nil {
		return 0, err
	}

	return c.Float(path)
}

// ContentBool returns the boolean property at path.
func (b *Bridge) ContentBool(ref Ref, path string) (bool, error) {
	c, err := b.content(ref)
	if err != nil {
		return false, err
	}

	return c.Bool(path)
}

// CreateTool registers a foreign callable with a parameters schema. The
// callable receives its arguments as a content reference it owns. The
// caller owns the returned tool reference.
func (b *Bridge) CreateTool(name, description string, paramsRef Ref, callable ToolCallable) (Ref, error) {
	if callable == nil {
		return NilRef, core.NewBridgeError(core.StatusInvalidSchema, "tool %q requires a callable", name)
	}

	params, err := b.schema(paramsRef)
	if err != nil {
		return NilRef, err
	}

	t, err := tool.New(name, description, params, func(args *content.Content, callID uint64) {
		callable(b.registry.Add(KindContent, args), callID)
	})
	if err != nil {
		return NilRef, err
	}

	return b.registry.Add(KindTool, t), nil
}

// FinishCall reports the result of a dispatched tool call, exactly once per
// call identifier, from any goroutine.
func (b *Bridge) FinishCall(toolRef Ref, callID uint64, output string) error {
	t, err := b.tool(toolRef)
	if err != nil {
		return err
	}

	return t.FinishCall(callID, output)
}

// Typed lookups. Each asserts the expected kind and fails fast on
// mismatch.

func (b *Bridge) model(ref Ref) (*session.Model, error) {
	v, err := b.registry.lookup(ref, KindModel)
	if err != nil {
		return nil, err
	}

	return v.(*session.Model), nil
}

func (b *Bridge) session(ref Ref) (*session.Session, error) {
	v, err := b.registry.lookup(ref, KindSession)
	if err != nil {
		return nil, err
	}

	return v.(*session.Session), nil
}

func (b *Bridge) task(ref Ref) (*session.Task, error) {
	v, err := b.registry.lookup(ref, KindTask)
	if err != nil {
		return nil, err
	}

	return v.(*session.Task), nil
}

func (b *Bridge) stream(ref Ref) (*session.Stream, error) {
	v, err := b.registry.lookup(ref, KindStream)
	if err != nil {
		return nil, err
	}

	return v.(*session.Stream), nil
}

func (b *Bridge) schema(ref Ref) (*schema.Schema, error) {
	v, err := b.registry.lookup(ref, KindSchema)
	if err != nil {
		return nil, err
	}

	return v.(*schema.Schema), nil
}

func (b *Bridge) property(ref Ref) (*schema.Property, error) {
	v, err := b.registry.lookup(ref, KindProperty)
	if err != nil {
		return nil, err
	}

	return v.(*schema.Property), nil
}

func (b *Bridge) content(ref Ref) (*content.Content, error) {
	v, err := b.registry.lookup(ref, KindContent)
	if err != nil {
		return nil, err
	}

	return v.(*content.Content), nil
}

func (b *Bridge) tool(ref Ref) (*tool.Tool, error) {
	v, err := b.registry.lookup(ref, KindTool)
	if err != nil {
		return nil, err
	}

	return v.(*tool.Tool), nil
}
