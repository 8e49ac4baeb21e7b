package schema

import (
	"reflect"
	"strings"

	"github.com/hupe1980/modelbridge/core"
)

// FromStruct infers a schema from a struct type using reflection. Field
// names follow the json tag when present, descriptions come from the
// description tag, and pointer or omitempty fields become optional
// properties. Nested struct fields become referenced schemas named after
// their Go type, so recursive types infer into self-referential schemas.
//
// Guides cannot be expressed in struct tags; fetch the property with
// Schema.Property and attach them before the schema freezes.
func FromStruct(name, description string, v any) (*Schema, error) {
	t := reflect.TypeOf(v)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t == nil || t.Kind() != reflect.Struct {
		return nil, core.NewBridgeError(core.StatusInvalidSchema, "schema inference expects a struct type, got %v", t)
	}

	in := &inferrer{schemas: make(map[reflect.Type]*Schema)}

	return in.schemaFor(name, description, t)
}

type inferrer struct {
	schemas map[reflect.Type]*Schema
}

func (in *inferrer) schemaFor(name, description string, t reflect.Type) (*Schema, error) {
	if existing, ok := in.schemas[t]; ok {
		return existing, nil
	}

	s := New(name, description)
	// Register before walking fields so recursive types resolve to the
	// schema under construction instead of recursing forever.
	in.schemas[t] = s

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		if jsonTag != "" {
			if tagName, _, _ := strings.Cut(jsonTag, ","); tagName != "" {
				fieldName = tagName
			}
		}

		typeName, refs, err := in.typeNameFor(field.Type)
		if err != nil {
			return nil, core.NewBridgeError(core.StatusInvalidSchema, "field %q of %s: %v", field.Name, t, err)
		}

		for _, ref := range refs {
			if err := s.AddReference(ref); err != nil {
				return nil, err
			}
		}

		optional := hasOmitEmpty(jsonTag) || field.Type.Kind() == reflect.Ptr

		p := NewProperty(fieldName, field.Tag.Get("description"), typeName, optional)
		if err := s.AddProperty(p); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// typeNameFor maps a Go type onto a declared type name, returning any
// schemas the name refers to so the caller can register them.
func (in *inferrer) typeNameFor(t reflect.Type) (string, []*Schema, error) {
	switch t.Kind() {
	case reflect.Ptr:
		return in.typeNameFor(t.Elem())
	case reflect.String:
		return TypeString, nil, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger, nil, nil
	case reflect.Float32, reflect.Float64:
		return TypeNumber, nil, nil
	case reflect.Bool:
		return TypeBoolean, nil, nil
	case reflect.Slice, reflect.Array:
		element, refs, err := in.typeNameFor(t.Elem())
		if err != nil {
			return "", nil, err
		}

		return ArrayOf(element), refs, nil
	case reflect.Struct:
		refName := t.Name()
		if refName == "" {
			return "", nil, core.NewBridgeError(core.StatusInvalidSchema, "anonymous struct types cannot be inferred; declare a named type")
		}

		ref, err := in.schemaFor(refName, "", t)
		if err != nil {
			return "", nil, err
		}

		// The type may already be registered under a caller-chosen name,
		// e.g. the root schema of a recursive type.
		return ref.Name(), []*Schema{ref}, nil
	default:
		return "", nil, core.NewBridgeError(core.StatusInvalidSchema, "unsupported field type %s", t.Kind())
	}
}

func hasOmitEmpty(jsonTag string) bool {
	for _, part := range strings.Split(jsonTag, ",") {
		if part == "omitempty" {
			return true
		}
	}

	return false
}
