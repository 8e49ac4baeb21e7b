//go:build darwin

package fm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/hupe1980/modelbridge/core"
	"github.com/hupe1980/modelbridge/engine"
)

// bindings holds the dylib handle and resolved FM symbols. Loaded once per
// process; every Engine shares it.
type bindings struct {
	systemModelCreate      uintptr
	systemModelIsAvailable uintptr

	sessionCreate        uintptr
	sessionRespond       uintptr
	sessionStream        uintptr
	sessionStreamIterate uintptr
	sessionRespondSchema uintptr

	contentGetJSON uintptr

	taskCancel uintptr
	release    uintptr
	freeString uintptr
}

var (
	loadOnce sync.Once
	loaded   *bindings
	loadErr  error
)

func load(libraryPath string) (*bindings, error) {
	loadOnce.Do(func() {
		path := libraryPath
		if env := os.Getenv("FM_BRIDGE_LIBRARY"); path == "" && env != "" {
			path = env
		}

		candidates := []string{
			path,
			"libFoundationModelsCBindings.dylib",
			"/usr/local/lib/libFoundationModelsCBindings.dylib",
			"/opt/homebrew/lib/libFoundationModelsCBindings.dylib",
		}

		var lib uintptr
		var err error
		for _, candidate := range candidates {
			if candidate == "" {
				continue
			}
			lib, err = purego.Dlopen(candidate, purego.RTLD_NOW|purego.RTLD_GLOBAL)
			if err == nil {
				break
			}
		}
		if lib == 0 {
			loadErr = fmt.Errorf("cannot load Foundation Models bindings: %v", err)
			return
		}

		b := &bindings{}
		symbols := map[string]*uintptr{
			"FMSystemLanguageModelCreate":                      &b.systemModelCreate,
			"FMSystemLanguageModelIsAvailable":                 &b.systemModelIsAvailable,
			"FMLanguageModelSessionCreateFromSystemLanguageModel": &b.sessionCreate,
			"FMLanguageModelSessionRespond":                    &b.sessionRespond,
			"FMLanguageModelSessionStreamResponse":             &b.sessionStream,
			"FMLanguageModelSessionResponseStreamIterate":      &b.sessionStreamIterate,
			"FMLanguageModelSessionRespondWithSchemaFromJSON":  &b.sessionRespondSchema,
			"FMGeneratedContentGetJSONString":                  &b.contentGetJSON,
			"FMTaskCancel":                                     &b.taskCancel,
			"FMRelease":                                        &b.release,
			"FMFreeString":                                     &b.freeString,
		}
		for name, slot := range symbols {
			*slot, err = purego.Dlsym(lib, name)
			if err != nil {
				loadErr = fmt.Errorf("cannot resolve %s: %v", name, err)
				return
			}
		}

		loaded = b
		registerCallbacks()
	})

	return loaded, loadErr
}

// delivery is one callback invocation forwarded to the Go side.
type delivery struct {
	status  int32
	content *string // nil marks the end of a stream
}

// inflight routes callback invocations to their waiting generation by an
// opaque token passed through the bindings' userInfo pointer.
var inflight = struct {
	sync.Mutex
	next  uintptr
	chans map[uintptr]chan delivery
}{chans: make(map[uintptr]chan delivery)}

func registerDelivery() (uintptr, chan delivery) {
	inflight.Lock()
	defer inflight.Unlock()

	inflight.next++
	token := inflight.next
	ch := make(chan delivery, 64)
	inflight.chans[token] = ch

	return token, ch
}

func unregisterDelivery(token uintptr) {
	inflight.Lock()
	defer inflight.Unlock()

	delete(inflight.chans, token)
}

func deliver(token uintptr, d delivery) {
	inflight.Lock()
	ch, ok := inflight.chans[token]
	inflight.Unlock()

	if !ok {
		return
	}

	// Never block the framework's callback thread; an abandoned
	// generation simply stops listening.
	select {
	case ch <- d:
	default:
	}
}

var (
	textCallbackPtr       uintptr
	structuredCallbackPtr uintptr
)

// registerCallbacks installs the two process-wide callback trampolines the
// bindings invoke. Demultiplexing happens through the userInfo token.
func registerCallbacks() {
	textCallbackPtr = purego.NewCallback(func(status int32, content unsafe.Pointer, length uintptr, userInfo unsafe.Pointer) {
		var snapshot *string
		if content != nil {
			s := goStringN(content, length)
			snapshot = &s
		}
		deliver(uintptr(userInfo), delivery{status: status, content: snapshot})
	})

	structuredCallbackPtr = purego.NewCallback(func(status int32, content unsafe.Pointer, userInfo unsafe.Pointer) {
		var payload *string
		if content != nil {
			raw, _, _ := purego.SyscallN(loaded.contentGetJSON, uintptr(content))
			if raw != 0 {
				s := goString(unsafe.Pointer(raw))
				purego.SyscallN(loaded.freeString, raw)
				payload = &s
			}
		}
		deliver(uintptr(userInfo), delivery{status: status, content: payload})
	})
}

// Engine drives the on-device system language model.
type Engine struct {
	opts Options
}

// New creates a Foundation Models engine. The bindings load lazily on the
// first availability check or generation.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		UseCase:    core.UseCaseGeneral,
		Guardrails: core.GuardrailsDefault,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{opts: opts}
}

// Availability implements engine.Engine by asking the system model itself.
// A missing framework reports the device not eligible.
func (e *Engine) Availability(ctx context.Context) engine.Availability {
	b, err := load(e.opts.LibraryPath)
	if err != nil {
		return engine.Unavailable(core.UnavailableDeviceNotEligible)
	}

	model, _, _ := purego.SyscallN(b.systemModelCreate, uintptr(e.opts.UseCase), uintptr(e.opts.Guardrails))
	defer purego.SyscallN(b.release, model)

	var reason int32
	ok, _, _ := purego.SyscallN(b.systemModelIsAvailable, model, uintptr(unsafe.Pointer(&reason)))
	if ok != 0 {
		return engine.Available
	}

	return engine.Unavailable(core.UnavailableReason(reason))
}

// Info implements engine.Engine.
func (e *Engine) Info() engine.Info {
	return engine.Info{
		Name:                     "system-language-model",
		Provider:                 "fm",
		SupportsTools:            false,
		SupportsGuidedGeneration: true,
	}
}

// Generate implements engine.Engine. Each call runs on a fresh native
// session seeded with the instructions and the flattened history, since the
// bridge session owns the durable transcript.
func (e *Engine) Generate(ctx context.Context, req engine.Request) (<-chan engine.Response, <-chan error) {
	out := make(chan engine.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		b, err := load(e.opts.LibraryPath)
		if err != nil {
			errCh <- core.NewBridgeError(core.StatusAssetsUnavailable, "%v", err)
			return
		}

		if len(req.Tools) > 0 {
			errCh <- core.NewBridgeError(core.StatusUnknown, "bridged tools are not supported by the fm adapter")
			return
		}

		model, _, _ := purego.SyscallN(b.systemModelCreate, uintptr(e.opts.UseCase), uintptr(e.opts.Guardrails))
		defer purego.SyscallN(b.release, model)

		instructions := cString(req.Instructions)
		session, _, _ := purego.SyscallN(b.sessionCreate, model, uintptr(unsafe.Pointer(instructions)), 0, 0)
		defer purego.SyscallN(b.release, session)

		prompt := cString(flattenPrompt(req.Messages))
		token, ch := registerDelivery()
		defer unregisterDelivery(token)

		switch {
		case req.ResponseSchema != nil:
			e.respondWithSchema(ctx, b, session, prompt, req, token, ch, out, errCh)
		case req.Stream:
			e.streamResponse(ctx, b, session, prompt, token, ch, out, errCh)
		default:
			e.respond(ctx, b, session, prompt, token, ch, out, errCh)
		}
	}()

	return out, errCh
}

func (e *Engine) respond(
	ctx context.Context,
	b *bindings,
	session uintptr,
	prompt *byte,
	token uintptr,
	ch <-chan delivery,
	out chan<- engine.Response,
	errCh chan<- error,
) {
	task, _, _ := purego.SyscallN(b.sessionRespond, session, uintptr(unsafe.Pointer(prompt)), token, textCallbackPtr)

	select {
	case <-ctx.Done():
		purego.SyscallN(b.taskCancel, task)
		errCh <- ctx.Err()
	case d := <-ch:
		finishDelivery(d, out, errCh)
	}
}

func (e *Engine) respondWithSchema(
	ctx context.Context,
	b *bindings,
	session uintptr,
	prompt *byte,
	req engine.Request,
	token uintptr,
	ch <-chan delivery,
	out chan<- engine.Response,
	errCh chan<- error,
) {
	doc, err := marshalSchema(req.ResponseSchema)
	if err != nil {
		errCh <- err
		return
	}

	schema := cString(doc)
	task, _, _ := purego.SyscallN(b.sessionRespondSchema, session, uintptr(unsafe.Pointer(prompt)), uintptr(unsafe.Pointer(schema)), token, structuredCallbackPtr)

	select {
	case <-ctx.Done():
		purego.SyscallN(b.taskCancel, task)
		errCh <- ctx.Err()
	case d := <-ch:
		finishDelivery(d, out, errCh)
	}
}

// streamResponse pumps full-so-far snapshots from the bindings and converts
// them into the deltas the engine contract expects.
func (e *Engine) streamResponse(
	ctx context.Context,
	b *bindings,
	session uintptr,
	prompt *byte,
	token uintptr,
	ch <-chan delivery,
	out chan<- engine.Response,
	errCh chan<- error,
) {
	stream, _, _ := purego.SyscallN(b.sessionStream, session, uintptr(unsafe.Pointer(prompt)))
	defer purego.SyscallN(b.release, stream)

	// Iterate blocks while the framework pumps the callback, so it runs
	// on its own goroutine while this one drains deliveries.
	go purego.SyscallN(b.sessionStreamIterate, stream, token, textCallbackPtr)

	var last string
	for {
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		case d := <-ch:
			if d.status != 0 {
				errCh <- core.NewBridgeError(core.Status(d.status), "generation failed")
				return
			}

			if d.content == nil {
				out <- engine.Response{Text: last, FinishReason: "stop"}
				return
			}

			if delta := strings.TrimPrefix(*d.content, last); delta != "" {
				out <- engine.Response{Partial: true, Text: delta}
			}
			last = *d.content
		}
	}
}

// finishDelivery converts a single-shot delivery into the final response or
// a coded error.
func finishDelivery(d delivery, out chan<- engine.Response, errCh chan<- error) {
	if d.status != 0 {
		errCh <- core.NewBridgeError(core.Status(d.status), "generation failed")
		return
	}

	if d.content == nil {
		errCh <- core.NewBridgeError(core.StatusUnknown, "generation returned no content")
		return
	}

	out <- engine.Response{Text: *d.content, FinishReason: "stop"}
}

// flattenPrompt folds the history into a single prompt, since each call
// runs on a fresh native session.
func flattenPrompt(msgs []engine.Message) string {
	if len(msgs) == 1 {
		return msgs[0].Text
	}

	var sb strings.Builder
	for _, msg := range msgs {
		switch msg.Role {
		case engine.RolePrompt:
			fmt.Fprintf(&sb, "User: %s\n", msg.Text)
		case engine.RoleResponse:
			fmt.Fprintf(&sb, "Assistant: %s\n", msg.Text)
		}
	}
	sb.WriteString("Assistant:")

	return sb.String()
}

func marshalSchema(value map[string]any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", core.NewBridgeError(core.StatusInvalidSchema, "cannot serialize response schema: %v", err)
	}

	return string(raw), nil
}

// cString creates a null-terminated C string from a Go string.
func cString(str string) *byte {
	bytes := append([]byte(str), 0)
	return &bytes[0]
}

// goStringN copies a length-delimited C string.
func goStringN(cstr unsafe.Pointer, length uintptr) string {
	return string(unsafe.Slice((*byte)(cstr), length))
}

// goString copies a null-terminated C string.
func goString(cstr unsafe.Pointer) string {
	if cstr == nil {
		return ""
	}

	length := uintptr(0)
	for *(*byte)(unsafe.Add(cstr, length)) != 0 {
		length++
	}

	return string(unsafe.Slice((*byte)(cstr), length))
}
