package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/modelbridge/core"
)

func decodeSchema(t *testing.T, s *Schema) map[string]any {
	t.Helper()

	doc, err := s.JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &decoded))

	return decoded
}

func TestSchemaJSON(t *testing.T) {
	s := New("Hedgehog", "A hedgehog and its favorite things")

	name := NewProperty("name", "What the hedgehog is called", TypeString, false)
	require.NoError(t, name.AddGuide(Constant("a hedge")))
	require.NoError(t, s.AddProperty(name))

	vegetable := NewProperty("favoriteVegetable", "", TypeString, false)
	require.NoError(t, vegetable.AddGuide(AnyOf("carrot", "turnip", "leek")))
	require.NoError(t, s.AddProperty(vegetable))

	hobbies := NewProperty("hobbies", "Exactly three hobbies", ArrayOf(TypeString), false)
	require.NoError(t, hobbies.AddGuide(Count(3)))
	require.NoError(t, s.AddProperty(hobbies))

	age := NewProperty("age", "", TypeInteger, true)
	require.NoError(t, age.AddGuide(Range(1, 7)))
	require.NoError(t, s.AddProperty(age))

	decoded := decodeSchema(t, s)

	assert.Equal(t, "object", decoded["type"])
	assert.Equal(t, "Hedgehog", decoded["title"])
	assert.Equal(t, "A hedgehog and its favorite things", decoded["description"])
	assert.Equal(t, false, decoded["additionalProperties"])
	assert.Equal(t, []any{"name", "favoriteVegetable", "hobbies", "age"}, decoded["x-order"])
	assert.Equal(t, []any{"name", "favoriteVegetable", "hobbies"}, decoded["required"])

	properties, ok := decoded["properties"].(map[string]any)
	require.True(t, ok)

	nameValue := properties["name"].(map[string]any)
	assert.Equal(t, "string", nameValue["type"])
	assert.Equal(t, []any{"a hedge"}, nameValue["enum"])

	vegetableValue := properties["favoriteVegetable"].(map[string]any)
	assert.Equal(t, []any{"carrot", "turnip", "leek"}, vegetableValue["enum"])

	hobbiesValue := properties["hobbies"].(map[string]any)
	assert.Equal(t, "array", hobbiesValue["type"])
	assert.Equal(t, float64(3), hobbiesValue["minItems"])
	assert.Equal(t, float64(3), hobbiesValue["maxItems"])
	assert.Equal(t, map[string]any{"type": "string"}, hobbiesValue["items"])

	ageValue := properties["age"].(map[string]any)
	assert.Equal(t, float64(1), ageValue["minimum"])
	assert.Equal(t, float64(7), ageValue["maximum"])
}

func TestSchemaJSONWithReferences(t *testing.T) {
	cat := New("Cat", "A cat living at the shelter")
	require.NoError(t, cat.AddProperty(NewProperty("name", "", TypeString, false)))

	catAge := NewProperty("age", "Age in years", TypeInteger, false)
	require.NoError(t, catAge.AddGuide(Minimum(0)))
	require.NoError(t, cat.AddProperty(catAge))

	shelter := New("Shelter", "A shelter and its residents")
	require.NoError(t, shelter.AddReference(cat))
	require.NoError(t, shelter.AddProperty(NewProperty("name", "", TypeString, false)))
	require.NoError(t, shelter.AddProperty(NewProperty("oldestCat", "", "Cat", true)))
	require.NoError(t, shelter.AddProperty(NewProperty("cats", "", ArrayOf("Cat"), false)))

	decoded := decodeSchema(t, shelter)

	properties := decoded["properties"].(map[string]any)
	assert.Equal(t, "#/$defs/Cat", properties["oldestCat"].(map[string]any)["$ref"])

	cats := properties["cats"].(map[string]any)
	assert.Equal(t, "array", cats["type"])
	assert.Equal(t, map[string]any{"$ref": "#/$defs/Cat"}, cats["items"])

	defs, ok := decoded["$defs"].(map[string]any)
	require.True(t, ok)

	catDef, ok := defs["Cat"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Cat", catDef["title"])
	assert.Equal(t, float64(0), catDef["properties"].(map[string]any)["age"].(map[string]any)["minimum"])
}

func TestSchemaJSONRecursive(t *testing.T) {
	person := New("Person", "A person, who may have children")
	require.NoError(t, person.AddProperty(NewProperty("name", "", TypeString, false)))

	age := NewProperty("age", "", TypeInteger, true)
	require.NoError(t, age.AddGuide(Range(18, 100)))
	require.NoError(t, person.AddProperty(age))

	children := NewProperty("children", "", ArrayOf("Person"), false)
	require.NoError(t, children.AddGuide(MaxItems(3)))
	require.NoError(t, person.AddProperty(children))

	// Self-reference needs no explicit AddReference, but tolerates one.
	require.NoError(t, person.AddReference(person))

	decoded := decodeSchema(t, person)

	childrenValue := decoded["properties"].(map[string]any)["children"].(map[string]any)
	assert.Equal(t, map[string]any{"$ref": "#"}, childrenValue["items"])
	assert.Equal(t, float64(3), childrenValue["maxItems"])

	_, hasDefs := decoded["$defs"]
	assert.False(t, hasDefs)
}

func TestSchemaElementGuide(t *testing.T) {
	s := New("Newsletter", "A shelter newsletter")

	topics := NewProperty("topics", "", ArrayOf(TypeString), false)
	require.NoError(t, topics.AddGuide(Element(AnyOf("adoptions", "events"))))
	require.NoError(t, topics.AddGuide(MinItems(1)))
	require.NoError(t, s.AddProperty(topics))

	decoded := decodeSchema(t, s)

	topicsValue := decoded["properties"].(map[string]any)["topics"].(map[string]any)
	assert.Equal(t, float64(1), topicsValue["minItems"])
	assert.Equal(t, []any{"adoptions", "events"}, topicsValue["items"].(map[string]any)["enum"])
}

func TestSchemaFreeze(t *testing.T) {
	s := New("Pet", "")
	name := NewProperty("name", "", TypeString, false)
	require.NoError(t, s.AddProperty(name))

	_, err := s.JSON()
	require.NoError(t, err)
	assert.True(t, s.Frozen())
	assert.True(t, name.Frozen())

	err = s.AddProperty(NewProperty("species", "", TypeString, false))
	require.Error(t, err)
	assert.Equal(t, core.StatusInvalidSchema, core.StatusOf(err))

	err = name.AddGuide(Constant("Rex"))
	require.Error(t, err)
	assert.Equal(t, core.StatusInvalidSchema, core.StatusOf(err))

	err = s.AddReference(New("Other", ""))
	require.Error(t, err)
	assert.Equal(t, core.StatusInvalidSchema, core.StatusOf(err))

	// Serialization stays repeatable after freezing.
	_, err = s.JSON()
	assert.NoError(t, err)
}

func TestSchemaInvalid(t *testing.T) {
	t.Run("duplicate property", func(t *testing.T) {
		s := New("Pet", "")
		require.NoError(t, s.AddProperty(NewProperty("name", "", TypeString, false)))

		err := s.AddProperty(NewProperty("name", "", TypeInteger, false))
		require.Error(t, err)
		assert.Equal(t, core.StatusInvalidSchema, core.StatusOf(err))
	})

	t.Run("unnamed property", func(t *testing.T) {
		err := New("Pet", "").AddProperty(NewProperty("", "", TypeString, false))
		require.Error(t, err)
		assert.Equal(t, core.StatusInvalidSchema, core.StatusOf(err))
	})

	t.Run("unnamed schema", func(t *testing.T) {
		s := New("", "")
		require.NoError(t, s.AddProperty(NewProperty("name", "", TypeString, false)))

		_, err := s.JSON()
		require.Error(t, err)
		assert.Equal(t, core.StatusInvalidSchema, core.StatusOf(err))
	})

	t.Run("unknown type name", func(t *testing.T) {
		s := New("Shelter", "")
		require.NoError(t, s.AddProperty(NewProperty("oldestCat", "", "Cat", false)))

		_, err := s.JSON()
		require.Error(t, err)
		assert.Equal(t, core.StatusInvalidSchema, core.StatusOf(err))
		assert.Contains(t, err.Error(), "AddReference")
	})

	t.Run("conflicting reference names", func(t *testing.T) {
		s := New("Club", "")
		require.NoError(t, s.AddReference(New("Cat", "first")))

		err := s.AddReference(New("Cat", "second"))
		require.Error(t, err)
		assert.Equal(t, core.StatusInvalidSchema, core.StatusOf(err))
	})

	t.Run("name conflict across graph", func(t *testing.T) {
		inner := New("Club", "")
		ref := New("Cat", "nested")
		require.NoError(t, inner.AddReference(ref))
		require.NoError(t, inner.AddProperty(NewProperty("mascot", "", "Cat", false)))

		s := New("Newsletter", "")
		require.NoError(t, s.AddReference(inner))
		require.NoError(t, s.AddReference(New("Cat", "top-level")))
		require.NoError(t, s.AddProperty(NewProperty("club", "", "Club", false)))

		_, err := s.JSON()
		require.Error(t, err)
		assert.Equal(t, core.StatusInvalidSchema, core.StatusOf(err))
	})
}

func TestGuideValidation(t *testing.T) {
	p := NewProperty("value", "", TypeString, false)

	tests := []struct {
		name  string
		guide Guide
	}{
		{"empty anyOf", AnyOf()},
		{"empty anyOf choice", AnyOf("a", "")},
		{"empty constant", Constant("")},
		{"zero count", Count(0)},
		{"negative count", Count(-2)},
		{"negative minItems", MinItems(-1)},
		{"inverted range", Range(10, 1)},
		{"empty pattern", Pattern("")},
		{"invalid pattern", Pattern("([")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.AddGuide(tt.guide)
			require.Error(t, err)
			assert.Equal(t, core.StatusInvalidSchema, core.StatusOf(err))
		})
	}

	assert.Empty(t, p.Guides())
}

func TestGuideTypeCompatibility(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		guide    Guide
	}{
		{"pattern on integer", TypeInteger, Pattern("^a+$")},
		{"anyOf on boolean", TypeBoolean, AnyOf("yes", "no")},
		{"count on string", TypeString, Count(2)},
		{"range on string", TypeString, Range(1, 2)},
		{"minItems on number", TypeNumber, MinItems(1)},
		{"element guide on scalar", TypeString, Element(Pattern("^a+$"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("Sample", "")
			p := NewProperty("value", "", tt.typeName, false)
			require.NoError(t, p.AddGuide(tt.guide))
			require.NoError(t, s.AddProperty(p))

			_, err := s.JSON()
			require.Error(t, err)
			assert.Equal(t, core.StatusUnsupportedGuide, core.StatusOf(err))
		})
	}
}

func TestValidateJSON(t *testing.T) {
	assert.NoError(t, ValidateJSON(`{"type":"object"}`))

	err := ValidateJSON(`{"type":`)
	require.Error(t, err)
	assert.Equal(t, core.StatusInvalidSchema, core.StatusOf(err))

	err = ValidateJSON(`["not", "an", "object"]`)
	require.Error(t, err)
	assert.Equal(t, core.StatusInvalidSchema, core.StatusOf(err))
}
