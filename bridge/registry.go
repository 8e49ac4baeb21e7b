package bridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/modelbridge/session"
)

// Kind tags the concrete type behind an opaque reference.
type Kind uint8

// Reference kinds.
const (
	KindInvalid Kind = iota
	KindModel
	KindSession
	KindTask
	KindStream
	KindSchema
	KindProperty
	KindContent
	KindTool
)

// String returns the symbolic name of the kind.
func (k Kind) String() string {
	switch k {
	case KindModel:
		return "model"
	case KindSession:
		return "session"
	case KindTask:
		return "task"
	case KindStream:
		return "stream"
	case KindSchema:
		return "schema"
	case KindProperty:
		return "property"
	case KindContent:
		return "content"
	case KindTool:
		return "tool"
	default:
		return "invalid"
	}
}

// Ref is an opaque reference to an engine-side object. Callers never
// dereference it; every operation resolves it through the registry and
// asserts its kind.
type Ref uint64

// NilRef is the zero reference, signaling absence.
const NilRef Ref = 0

// Contract violations the registry detects.
var (
	// ErrUnknownRef is returned for a reference that was never issued or
	// has already been fully released.
	ErrUnknownRef = errors.New("bridge: unknown or released reference")
	// ErrKindMismatch is returned when a reference of the wrong kind is
	// passed to an operation.
	ErrKindMismatch = errors.New("bridge: reference has the wrong kind")
)

type entry struct {
	kind  Kind
	value any
	count int
}

// Registry assigns opaque references and tracks their shared ownership
// counts. It is safe for concurrent use; retain/release races never
// double-free because the terminal decrement removes the entry under the
// same lock that guards every lookup.
type Registry struct {
	mu      sync.Mutex
	next    uint64
	entries map[Ref]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Ref]*entry)}
}

// Add registers a value and returns its reference, born with count 1.
func (r *Registry) Add(kind Kind, value any) Ref {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	ref := Ref(r.next)
	r.entries[ref] = &entry{kind: kind, value: value, count: 1}

	return ref
}

// Retain increments the reference's ownership count.
func (r *Registry) Retain(ref Ref) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[ref]
	if !ok {
		return ErrUnknownRef
	}

	e.count++

	return nil
}

// Release decrements the ownership count and, at zero, removes the entry
// and tears the underlying object down. Releasing an unknown or already
// fully released reference fails with ErrUnknownRef.
func (r *Registry) Release(ref Ref) error {
	r.mu.Lock()

	e, ok := r.entries[ref]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownRef
	}

	e.count--
	if e.count > 0 {
		r.mu.Unlock()
		return nil
	}

	delete(r.entries, ref)
	r.mu.Unlock()

	// Teardown runs outside the lock: closing a session waits for its
	// active task.
	teardown(e.kind, e.value)

	return nil
}

// teardown runs the kind-specific cleanup when the last owner releases.
func teardown(kind Kind, value any) {
	switch kind {
	case KindSession:
		if s, ok := value.(*session.Session); ok {
			_ = s.Close()
		}
	case KindTask:
		if t, ok := value.(*session.Task); ok {
			t.Cancel()
		}
	case KindStream:
		if st, ok := value.(*session.Stream); ok {
			st.Cancel()
		}
	default:
		// Models, schemas, properties, content and tools hold no engine
		// resources beyond their Go values.
	}
}

// KindOf returns the kind of a live reference.
func (r *Registry) KindOf(ref Ref) (Kind, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[ref]
	if !ok {
		return KindInvalid, ErrUnknownRef
	}

	return e.kind, nil
}

// Count returns the current ownership count of a live reference.
func (r *Registry) Count(ref Ref) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[ref]
	if !ok {
		return 0, ErrUnknownRef
	}

	return e.count, nil
}

// Len returns the number of live references, for leak assertions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// lookup resolves a reference, asserting its kind.
func (r *Registry) lookup(ref Ref, kind Kind) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[ref]
	if !ok {
		return nil, ErrUnknownRef
	}

	if e.kind != kind {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrKindMismatch, e.kind, kind)
	}

	return e.value, nil
}
