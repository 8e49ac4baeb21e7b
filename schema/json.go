package schema

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/modelbridge/core"
)

// JSON freezes the schema and serializes it to its canonical JSON document:
// a JSON-Schema-like object with title, description, properties, required,
// "additionalProperties": false, an "x-order" array preserving property
// order, and a $defs section holding every transitively referenced schema.
// References serialize as {"$ref": "#/$defs/Name"}; a self-reference
// serializes as {"$ref": "#"}.
func (s *Schema) JSON() (string, error) {
	value, err := s.Value()
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return "", core.NewBridgeError(core.StatusInvalidSchema, "cannot serialize schema %q: %v", s.name, err)
	}

	return string(raw), nil
}

// Value freezes the schema and returns its canonical form as a generic map,
// the shape engine adapters consume directly.
func (s *Schema) Value() (map[string]any, error) {
	s.Freeze()

	if s.name == "" {
		return nil, core.NewBridgeError(core.StatusInvalidSchema, "cannot serialize an unnamed schema")
	}

	defs, err := s.collectDefs()
	if err != nil {
		return nil, err
	}

	known := map[string]string{s.name: "#"}
	for _, def := range defs {
		known[def.name] = "#/$defs/" + def.name
	}

	root, err := s.objectValue(known)
	if err != nil {
		return nil, err
	}

	if len(defs) > 0 {
		defsValue := make(map[string]any, len(defs))

		for _, def := range defs {
			dv, err := def.objectValue(known)
			if err != nil {
				return nil, err
			}

			defsValue[def.name] = dv
		}

		root["$defs"] = defsValue
	}

	return root, nil
}

// collectDefs walks the reference graph breadth-first and returns every
// schema reachable from s, excluding s itself. Two distinct schemas sharing
// a name anywhere in the graph is an error, since references resolve by
// name.
func (s *Schema) collectDefs() ([]*Schema, error) {
	var defs []*Schema

	visited := map[*Schema]struct{}{s: {}}
	byName := map[string]*Schema{s.name: s}
	queue := []*Schema{s}

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		_, refs := next.snapshot()
		for _, ref := range refs {
			if _, ok := visited[ref]; ok {
				continue
			}
			visited[ref] = struct{}{}

			if other, ok := byName[ref.name]; ok && other != ref {
				return nil, core.NewBridgeError(core.StatusInvalidSchema, "schema graph of %q contains two distinct schemas named %q", s.name, ref.name)
			}
			byName[ref.name] = ref

			defs = append(defs, ref)
			queue = append(queue, ref)
		}
	}

	return defs, nil
}

func (s *Schema) objectValue(known map[string]string) (map[string]any, error) {
	obj := map[string]any{
		"type":  "object",
		"title": s.name,
	}

	if s.description != "" {
		obj["description"] = s.description
	}

	props, _ := s.snapshot()

	properties := make(map[string]any, len(props))
	order := make([]string, 0, len(props))
	required := make([]string, 0, len(props))

	for _, p := range props {
		pv, err := s.propertyValue(p, known)
		if err != nil {
			return nil, err
		}

		properties[p.Name()] = pv
		order = append(order, p.Name())

		if !p.Optional() {
			required = append(required, p.Name())
		}
	}

	obj["properties"] = properties
	obj["x-order"] = order

	if len(required) > 0 {
		obj["required"] = required
	}

	obj["additionalProperties"] = false

	return obj, nil
}

func (s *Schema) propertyValue(p *Property, known map[string]string) (map[string]any, error) {
	pv, err := s.typeValue(p.Name(), p.TypeName(), known)
	if err != nil {
		return nil, err
	}

	if p.Description() != "" {
		pv["description"] = p.Description()
	}

	for _, g := range p.Guides() {
		if err := applyGuide(pv, g, p.Name()); err != nil {
			return nil, err
		}
	}

	return pv, nil
}

// typeValue resolves a declared type name into its JSON form: primitive
// types map to {"type": ...}, arrays to {"type": "array", "items": ...},
// and anything else must be the name of a schema in scope, mapping to a
// $ref.
func (s *Schema) typeValue(propName, typeName string, known map[string]string) (map[string]any, error) {
	if isPrimitiveType(typeName) {
		return map[string]any{"type": typeName}, nil
	}

	if element, ok := arrayElement(typeName); ok {
		items, err := s.typeValue(propName, element, known)
		if err != nil {
			return nil, err
		}

		return map[string]any{"type": "array", "items": items}, nil
	}

	if pointer, ok := known[typeName]; ok {
		return map[string]any{"$ref": pointer}, nil
	}

	return nil, core.NewBridgeError(core.StatusInvalidSchema, "property %q of schema %q has unknown type %q; reference schemas must be added with AddReference", propName, s.name, typeName)
}

// applyGuide projects a guide onto the property's JSON form, enforcing
// guide/type compatibility. Wrapped guides apply to the "items" object of
// an array property.
func applyGuide(pv map[string]any, g Guide, propName string) error {
	target := pv

	if g.Wrapped {
		items, ok := pv["items"].(map[string]any)
		if !ok {
			return core.NewBridgeError(core.StatusUnsupportedGuide, "element-wrapped %s guide on property %q requires an array type", g.Kind, propName)
		}

		target = items
	}

	targetType, _ := target["type"].(string)

	requireType := func(want ...string) error {
		for _, w := range want {
			if targetType == w {
				return nil
			}
		}

		return core.NewBridgeError(core.StatusUnsupportedGuide, "%s guide on property %q requires type %v, got %q", g.Kind, propName, want, targetType)
	}

	switch g.Kind {
	case GuideAnyOf, GuideConstant:
		if err := requireType(TypeString); err != nil {
			return err
		}

		choices := make([]any, len(g.Choices))
		for i, c := range g.Choices {
			choices[i] = c
		}

		target["enum"] = choices
	case GuideCount:
		if err := requireType("array"); err != nil {
			return err
		}

		target["minItems"] = g.Count
		target["maxItems"] = g.Count
	case GuideMinItems:
		if err := requireType("array"); err != nil {
			return err
		}

		target["minItems"] = g.Count
	case GuideMaxItems:
		if err := requireType("array"); err != nil {
			return err
		}

		target["maxItems"] = g.Count
	case GuideMinimum:
		if err := requireType(TypeInteger, TypeNumber); err != nil {
			return err
		}

		target["minimum"] = numberValue(targetType, g.Min)
	case GuideMaximum:
		if err := requireType(TypeInteger, TypeNumber); err != nil {
			return err
		}

		target["maximum"] = numberValue(targetType, g.Max)
	case GuideRange:
		if err := requireType(TypeInteger, TypeNumber); err != nil {
			return err
		}

		target["minimum"] = numberValue(targetType, g.Min)
		target["maximum"] = numberValue(targetType, g.Max)
	case GuidePattern:
		if err := requireType(TypeString); err != nil {
			return err
		}

		target["pattern"] = g.Pattern
	default:
		return core.NewBridgeError(core.StatusUnsupportedGuide, "unknown guide kind %d on property %q", int(g.Kind), propName)
	}

	return nil
}

// numberValue keeps integer bounds integral in the serialized document.
func numberValue(targetType string, v float64) any {
	if targetType == TypeInteger && v == float64(int64(v)) {
		return int64(v)
	}

	return v
}

// ValidateJSON checks that doc is a well-formed JSON object, the minimum a
// raw schema document must satisfy before it is handed to an engine.
func ValidateJSON(doc string) error {
	if !gjson.Valid(doc) {
		return core.NewBridgeError(core.StatusInvalidSchema, "schema document is not valid JSON")
	}

	if !gjson.Parse(doc).IsObject() {
		return core.NewBridgeError(core.StatusInvalidSchema, "schema document must be a JSON object")
	}

	return nil
}
