package schema

import (
	"sync"

	"github.com/hupe1980/modelbridge/core"
)

// Schema is a named object type describing the shape of structured generated
// content. Build it by adding properties and referenced schemas, then pass
// it to a guided generation call; the first serialization freezes it, after
// which all mutation fails.
type Schema struct {
	mu          sync.Mutex
	name        string
	description string
	props       []*Property
	refs        []*Schema
	frozen      bool
}

// New creates an empty schema with the given name and natural-language
// description. The name doubles as the reference name other schemas use to
// point at this one.
func New(name, description string) *Schema {
	return &Schema{
		name:        name,
		description: description,
	}
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Description returns the schema's description.
func (s *Schema) Description() string { return s.description }

// AddProperty appends a property to the schema. Property order is
// preserved and carried through serialization. It fails on nil or unnamed
// properties, duplicate names, or a frozen schema.
func (s *Schema) AddProperty(p *Property) error {
	if p == nil {
		return core.NewBridgeError(core.StatusInvalidSchema, "cannot add a nil property to schema %q", s.name)
	}

	if p.Name() == "" {
		return core.NewBridgeError(core.StatusInvalidSchema, "cannot add an unnamed property to schema %q", s.name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return core.NewBridgeError(core.StatusInvalidSchema, "schema %q is frozen and cannot accept new properties", s.name)
	}

	for _, existing := range s.props {
		if existing.Name() == p.Name() {
			return core.NewBridgeError(core.StatusInvalidSchema, "schema %q already has a property named %q", s.name, p.Name())
		}
	}

	s.props = append(s.props, p)

	return nil
}

// AddReference registers another schema this one refers to by name, making
// its name legal as a property type. A schema may reference itself to build
// recursive shapes. It fails on nil or unnamed references, a second
// reference under the same name, or a frozen schema.
func (s *Schema) AddReference(ref *Schema) error {
	if ref == nil {
		return core.NewBridgeError(core.StatusInvalidSchema, "cannot add a nil reference to schema %q", s.name)
	}

	if ref.Name() == "" {
		return core.NewBridgeError(core.StatusInvalidSchema, "cannot reference an unnamed schema from schema %q", s.name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return core.NewBridgeError(core.StatusInvalidSchema, "schema %q is frozen and cannot accept new references", s.name)
	}

	if ref == s || ref.Name() == s.name {
		// Self-reference is implicit: a schema's own name is always in
		// scope for its properties.
		return nil
	}

	for _, existing := range s.refs {
		if existing.Name() == ref.Name() {
			if existing == ref {
				return nil
			}

			return core.NewBridgeError(core.StatusInvalidSchema, "schema %q already references a different schema named %q", s.name, ref.Name())
		}
	}

	s.refs = append(s.refs, ref)

	return nil
}

// Property returns the named property, if present. Useful for attaching
// guides to properties of an inferred schema before it freezes.
func (s *Schema) Property(name string) (*Property, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.props {
		if p.Name() == name {
			return p, true
		}
	}

	return nil, false
}

// Freeze marks the schema, its properties, and all transitively referenced
// schemas immutable. Freezing is idempotent and happens implicitly on first
// serialization.
func (s *Schema) Freeze() {
	s.freezeVisited(make(map[*Schema]struct{}))
}

func (s *Schema) freezeVisited(visited map[*Schema]struct{}) {
	if _, ok := visited[s]; ok {
		return
	}
	visited[s] = struct{}{}

	s.mu.Lock()
	s.frozen = true
	props := make([]*Property, len(s.props))
	copy(props, s.props)
	refs := make([]*Schema, len(s.refs))
	copy(refs, s.refs)
	s.mu.Unlock()

	for _, p := range props {
		p.freeze()
	}

	for _, ref := range refs {
		ref.freezeVisited(visited)
	}
}

// Frozen reports whether the schema has been frozen.
func (s *Schema) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.frozen
}

func (s *Schema) snapshot() (props []*Property, refs []*Schema) {
	s.mu.Lock()
	defer s.mu.Unlock()

	props = make([]*Property, len(s.props))
	copy(props, s.props)
	refs = make([]*Schema, len(s.refs))
	copy(refs, s.refs)

	return props, refs
}
