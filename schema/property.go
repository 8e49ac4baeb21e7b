package schema

import (
	"strings"
	"sync"

	"github.com/hupe1980/modelbridge/core"
)

// Type names accepted for properties. Anything else is treated as a
// reference to another schema by name.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// ArrayOf returns the type name of an array whose elements have the given
// type name, e.g. ArrayOf(TypeString) == "array<string>".
func ArrayOf(element string) string {
	return "array<" + element + ">"
}

func isPrimitiveType(name string) bool {
	switch name {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean:
		return true
	default:
		return false
	}
}

// arrayElement returns the element type name if name is an array type.
func arrayElement(name string) (string, bool) {
	inner, ok := strings.CutPrefix(name, "array<")
	if !ok || !strings.HasSuffix(inner, ">") {
		return "", false
	}

	return strings.TrimSuffix(inner, ">"), true
}

// Property is a single named, typed member of a schema. Properties are built
// separately from their schema so guides can be attached before the property
// is added; once the owning schema freezes, the property does too.
type Property struct {
	mu          sync.Mutex
	name        string
	description string
	typeName    string
	optional    bool
	guides      []Guide
	frozen      bool
}

// NewProperty creates a property with the given name, natural-language
// description, and type name. The type name is one of the Type constants,
// an ArrayOf composition, or the name of a referenced schema. Optional
// properties may be omitted from generated content.
func NewProperty(name, description, typeName string, optional bool) *Property {
	return &Property{
		name:        name,
		description: description,
		typeName:    typeName,
		optional:    optional,
	}
}

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// Description returns the property's description.
func (p *Property) Description() string { return p.description }

// TypeName returns the property's declared type name.
func (p *Property) TypeName() string { return p.typeName }

// Optional reports whether the property may be omitted from generated
// content.
func (p *Property) Optional() bool { return p.optional }

// AddGuide attaches a validation guide to the property. It fails if the
// guide is malformed or the property is already frozen; guide/type
// compatibility is checked when the owning schema serializes.
func (p *Property) AddGuide(g Guide) error {
	if err := g.validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frozen {
		return core.NewBridgeError(core.StatusInvalidSchema, "property %q is frozen and cannot accept new guides", p.name)
	}

	p.guides = append(p.guides, g)

	return nil
}

// Guides returns a copy of the guides attached to the property.
func (p *Property) Guides() []Guide {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Guide, len(p.guides))
	copy(out, p.guides)

	return out
}

// Frozen reports whether the property has been frozen.
func (p *Property) Frozen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.frozen
}

func (p *Property) freeze() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frozen = true
}
