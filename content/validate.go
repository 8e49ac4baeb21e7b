package content

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/hupe1980/modelbridge/core"
	"github.com/hupe1980/modelbridge/schema"
)

// ValidationError reports the first place a document diverged from its
// schema.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}

	return fmt.Sprintf("validation failed at %s: %s", e.Path, e.Message)
}

// Validate checks a finished document against the schema that guided its
// generation. Mismatches surface as *ValidationError.
func Validate(c *Content, s *schema.Schema) error {
	if !c.Complete() {
		return core.NewBridgeError(core.StatusDecodingFailure, "cannot validate an in-flight snapshot")
	}

	schemaValue, err := s.Value()
	if err != nil {
		return err
	}

	var value map[string]any
	if err := json.Unmarshal([]byte(c.raw), &value); err != nil {
		return core.NewBridgeError(core.StatusDecodingFailure, "generated content is not a JSON object: %v", err)
	}

	return ValidateValue(value, schemaValue)
}

// ValidateValue checks a decoded object against a canonical schema value,
// the map form schema.Schema.Value produces. Tool runtimes use it to vet
// call arguments before dispatch.
func ValidateValue(value, schemaValue map[string]any) error {
	v := &validator{root: schemaValue}
	if defs, ok := schemaValue["$defs"].(map[string]any); ok {
		v.defs = defs
	}

	return v.validateObject("", value, schemaValue)
}

type validator struct {
	root map[string]any
	defs map[string]any
}

func (v *validator) resolve(path, ref string) (map[string]any, error) {
	if ref == "#" {
		return v.root, nil
	}

	const defsPrefix = "#/$defs/"
	if len(ref) > len(defsPrefix) && ref[:len(defsPrefix)] == defsPrefix {
		if def, ok := v.defs[ref[len(defsPrefix):]].(map[string]any); ok {
			return def, nil
		}
	}

	return nil, &ValidationError{Path: path, Message: fmt.Sprintf("unresolvable schema reference %q", ref)}
}

func (v *validator) validateObject(path string, value, schemaValue map[string]any) error {
	properties, _ := schemaValue["properties"].(map[string]any)

	for _, name := range stringSlice(schemaValue["required"]) {
		if raw, ok := value[name]; !ok || raw == nil {
			return &ValidationError{Path: joinPath(path, name), Message: "required property is missing"}
		}
	}

	for name, raw := range value {
		propSchema, ok := properties[name].(map[string]any)
		if !ok {
			return &ValidationError{Path: joinPath(path, name), Message: "unexpected property"}
		}

		if raw == nil {
			continue
		}

		if err := v.validateProperty(joinPath(path, name), raw, propSchema); err != nil {
			return err
		}
	}

	return nil
}

func (v *validator) validateProperty(path string, value any, propSchema map[string]any) error {
	if ref, ok := propSchema["$ref"].(string); ok {
		resolved, err := v.resolve(path, ref)
		if err != nil {
			return err
		}

		obj, ok := value.(map[string]any)
		if !ok {
			return &ValidationError{Path: path, Message: "expected an object"}
		}

		return v.validateObject(path, obj, resolved)
	}

	declared, _ := propSchema["type"].(string)

	switch declared {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return &ValidationError{Path: path, Message: "expected an object"}
		}

		return v.validateObject(path, obj, propSchema)
	case "string":
		s, ok := value.(string)
		if !ok {
			return &ValidationError{Path: path, Message: "expected a string"}
		}

		if choices, ok := propSchema["enum"]; ok && !containsString(choices, s) {
			return &ValidationError{Path: path, Message: fmt.Sprintf("%q is not one of the allowed values", s)}
		}

		if pattern, ok := propSchema["pattern"].(string); ok {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return &ValidationError{Path: path, Message: fmt.Sprintf("schema pattern does not compile: %v", err)}
			}

			if !re.MatchString(s) {
				return &ValidationError{Path: path, Message: fmt.Sprintf("%q does not match pattern %q", s, pattern)}
			}
		}

		return nil
	case "integer":
		f, ok := floatValue(value)
		if !ok || f != float64(int64(f)) {
			return &ValidationError{Path: path, Message: "expected an integer"}
		}

		return checkBounds(path, f, propSchema)
	case "number":
		f, ok := floatValue(value)
		if !ok {
			return &ValidationError{Path: path, Message: "expected a number"}
		}

		return checkBounds(path, f, propSchema)
	case "boolean":
		if _, ok := value.(bool); !ok {
			return &ValidationError{Path: path, Message: "expected a boolean"}
		}

		return nil
	case "array":
		elements, ok := value.([]any)
		if !ok {
			return &ValidationError{Path: path, Message: "expected an array"}
		}

		if min, ok := intValue(propSchema["minItems"]); ok && len(elements) < min {
			return &ValidationError{Path: path, Message: fmt.Sprintf("expected at least %d elements, got %d", min, len(elements))}
		}

		if max, ok := intValue(propSchema["maxItems"]); ok && len(elements) > max {
			return &ValidationError{Path: path, Message: fmt.Sprintf("expected at most %d elements, got %d", max, len(elements))}
		}

		items, ok := propSchema["items"].(map[string]any)
		if !ok {
			return nil
		}

		for i, el := range elements {
			if err := v.validateProperty(fmt.Sprintf("%s[%d]", path, i), el, items); err != nil {
				return err
			}
		}

		return nil
	default:
		// No declared type constrains nothing.
		return nil
	}
}

func checkBounds(path string, f float64, propSchema map[string]any) error {
	if min, ok := anyFloat(propSchema["minimum"]); ok && f < min {
		return &ValidationError{Path: path, Message: fmt.Sprintf("%v is below the minimum %v", f, min)}
	}

	if max, ok := anyFloat(propSchema["maximum"]); ok && f > max {
		return &ValidationError{Path: path, Message: fmt.Sprintf("%v is above the maximum %v", f, max)}
	}

	return nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}

	return path + "." + name
}

// stringSlice tolerates both the []string a freshly built schema value
// carries and the []any a JSON round-trip produces.
func stringSlice(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))

		for _, el := range v {
			if s, ok := el.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}

func containsString(raw any, want string) bool {
	for _, s := range stringSlice(raw) {
		if s == want {
			return true
		}
	}

	return false
}

// floatValue accepts the numeric types a document value can arrive as.
func floatValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// anyFloat reads a schema bound, which may be stored integral.
func anyFloat(raw any) (float64, bool) {
	return floatValue(raw)
}

func intValue(raw any) (int, bool) {
	f, ok := floatValue(raw)
	if !ok {
		return 0, false
	}

	return int(f), true
}
