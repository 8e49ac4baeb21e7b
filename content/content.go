package content

import (
	"math"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/modelbridge/core"
)

// Content is one structured generation payload. Accessor paths use gjson
// syntax, so "cats.0.name" reaches into arrays and nested objects.
type Content struct {
	raw      string
	result   gjson.Result
	complete bool
}

// FromJSON wraps a finished generation payload. The document must be valid
// JSON; a payload the model failed to close off is a decoding failure.
func FromJSON(raw string) (*Content, error) {
	if !gjson.Valid(raw) {
		return nil, core.NewBridgeError(core.StatusDecodingFailure, "generated content is not valid JSON")
	}

	return &Content{raw: raw, result: gjson.Parse(raw), complete: true}, nil
}

// FromPartialJSON wraps an in-flight snapshot of a payload still being
// generated. The document may be truncated mid-value; accessors treat
// anything unreadable as absent.
func FromPartialJSON(raw string) *Content {
	return &Content{raw: raw, result: gjson.Parse(raw), complete: false}
}

// JSON returns the underlying document exactly as received.
func (c *Content) JSON() string { return c.raw }

// Complete reports whether this is a finished payload rather than a
// snapshot.
func (c *Content) Complete() bool { return c.complete }

// Exists reports whether the path resolves to a value.
func (c *Content) Exists(path string) bool {
	return c.result.Get(path).Exists()
}

func (c *Content) get(path string) (gjson.Result, error) {
	r := c.result.Get(path)
	if !r.Exists() {
		return r, core.NewBridgeError(core.StatusDecodingFailure, "generated content has no property %q", path)
	}

	return r, nil
}

// Text returns the string value at path.
func (c *Content) Text(path string) (string, error) {
	r, err := c.get(path)
	if err != nil {
		return "", err
	}

	if r.Type != gjson.String {
		return "", core.NewBridgeError(core.StatusDecodingFailure, "property %q is %s, not a string", path, r.Type)
	}

	return r.Str, nil
}

// Int returns the integer value at path.
func (c *Content) Int(path string) (int64, error) {
	r, err := c.get(path)
	if err != nil {
		return 0, err
	}

	if r.Type != gjson.Number || r.Num != math.Trunc(r.Num) {
		return 0, core.NewBridgeError(core.StatusDecodingFailure, "property %q is not an integer", path)
	}

	return r.Int(), nil
}

// Float returns the numeric value at path.
func (c *Content) Float(path string) (float64, error) {
	r, err := c.get(path)
	if err != nil {
		return 0, err
	}

	if r.Type != gjson.Number {
		return 0, core.NewBridgeError(core.StatusDecodingFailure, "property %q is %s, not a number", path, r.Type)
	}

	return r.Num, nil
}

// Bool returns the boolean value at path.
func (c *Content) Bool(path string) (bool, error) {
	r, err := c.get(path)
	if err != nil {
		return false, err
	}

	switch r.Type {
	case gjson.True:
		return true, nil
	case gjson.False:
		return false, nil
	default:
		return false, core.NewBridgeError(core.StatusDecodingFailure, "property %q is %s, not a boolean", path, r.Type)
	}
}

// Child returns the object or array at path as its own Content, inheriting
// this document's completeness.
func (c *Content) Child(path string) (*Content, error) {
	r, err := c.get(path)
	if err != nil {
		return nil, err
	}

	if !r.IsObject() && !r.IsArray() {
		return nil, core.NewBridgeError(core.StatusDecodingFailure, "property %q is %s, not an object or array", path, r.Type)
	}

	return &Content{raw: r.Raw, result: r, complete: c.complete}, nil
}

// Items returns the array at path as one Content per element.
func (c *Content) Items(path string) ([]*Content, error) {
	r, err := c.get(path)
	if err != nil {
		return nil, err
	}

	if !r.IsArray() {
		return nil, core.NewBridgeError(core.StatusDecodingFailure, "property %q is %s, not an array", path, r.Type)
	}

	elements := r.Array()
	items := make([]*Content, len(elements))

	for i, el := range elements {
		items[i] = &Content{raw: el.Raw, result: el, complete: c.complete}
	}

	return items, nil
}

// Texts returns the array of strings at path.
func (c *Content) Texts(path string) ([]string, error) {
	r, err := c.get(path)
	if err != nil {
		return nil, err
	}

	if !r.IsArray() {
		return nil, core.NewBridgeError(core.StatusDecodingFailure, "property %q is %s, not an array", path, r.Type)
	}

	elements := r.Array()
	out := make([]string, len(elements))

	for i, el := range elements {
		if el.Type != gjson.String {
			return nil, core.NewBridgeError(core.StatusDecodingFailure, "property %q element %d is %s, not a string", path, i, el.Type)
		}

		out[i] = el.Str
	}

	return out, nil
}

// Len returns the number of elements in the array at path.
func (c *Content) Len(path string) (int, error) {
	r, err := c.get(path)
	if err != nil {
		return 0, err
	}

	if !r.IsArray() {
		return 0, core.NewBridgeError(core.StatusDecodingFailure, "property %q is %s, not an array", path, r.Type)
	}

	return len(r.Array()), nil
}
