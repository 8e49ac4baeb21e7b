package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/modelbridge/core"
)

const shelterJSON = `{
	"name": "Northside Shelter",
	"capacity": 24,
	"rating": 4.5,
	"open": true,
	"topics": ["adoptions", "events"],
	"oldestCat": {"name": "Miso", "age": 17},
	"cats": [
		{"name": "Miso", "age": 17},
		{"name": "Pickle", "age": 2}
	]
}`

func TestFromJSON(t *testing.T) {
	c, err := FromJSON(shelterJSON)
	require.NoError(t, err)
	assert.True(t, c.Complete())
	assert.Equal(t, shelterJSON, c.JSON())

	_, err = FromJSON(`{"name": "Nor`)
	require.Error(t, err)
	assert.Equal(t, core.StatusDecodingFailure, core.StatusOf(err))
}

func TestAccessors(t *testing.T) {
	c, err := FromJSON(shelterJSON)
	require.NoError(t, err)

	name, err := c.Text("name")
	require.NoError(t, err)
	assert.Equal(t, "Northside Shelter", name)

	capacity, err := c.Int("capacity")
	require.NoError(t, err)
	assert.Equal(t, int64(24), capacity)

	rating, err := c.Float("rating")
	require.NoError(t, err)
	assert.Equal(t, 4.5, rating)

	open, err := c.Bool("open")
	require.NoError(t, err)
	assert.True(t, open)

	topics, err := c.Texts("topics")
	require.NoError(t, err)
	assert.Equal(t, []string{"adoptions", "events"}, topics)

	count, err := c.Len("cats")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Nested paths reach through objects and arrays.
	nested, err := c.Text("cats.1.name")
	require.NoError(t, err)
	assert.Equal(t, "Pickle", nested)

	oldest, err := c.Child("oldestCat")
	require.NoError(t, err)
	age, err := oldest.Int("age")
	require.NoError(t, err)
	assert.Equal(t, int64(17), age)
	assert.True(t, oldest.Complete())

	cats, err := c.Items("cats")
	require.NoError(t, err)
	require.Len(t, cats, 2)
	second, err := cats[1].Int("age")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second)
}

func TestAccessorFailures(t *testing.T) {
	c, err := FromJSON(shelterJSON)
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
	}{
		{"missing property", func() error { _, err := c.Text("mascot"); return err }},
		{"string as int", func() error { _, err := c.Int("name"); return err }},
		{"float as int", func() error { _, err := c.Int("rating"); return err }},
		{"bool as number", func() error { _, err := c.Float("open"); return err }},
		{"number as bool", func() error { _, err := c.Bool("capacity"); return err }},
		{"scalar as child", func() error { _, err := c.Child("name"); return err }},
		{"object as items", func() error { _, err := c.Items("oldestCat"); return err }},
		{"object as texts", func() error { _, err := c.Texts("oldestCat"); return err }},
		{"mixed texts", func() error { _, err := c.Texts("cats"); return err }},
		{"scalar length", func() error { _, err := c.Len("capacity"); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, core.StatusDecodingFailure, core.StatusOf(err))
		})
	}

	assert.False(t, c.Exists("mascot"))
	assert.True(t, c.Exists("oldestCat.name"))
}

func TestFromPartialJSON(t *testing.T) {
	c := FromPartialJSON(`{"name": "Northside Shelter", "capacity": 2`)
	assert.False(t, c.Complete())

	// Properties that are already well-formed in the snapshot resolve.
	name, err := c.Text("name")
	require.NoError(t, err)
	assert.Equal(t, "Northside Shelter", name)

	child := FromPartialJSON(`{"oldestCat": {"name": "Miso"}}`)
	oldest, err := child.Child("oldestCat")
	require.NoError(t, err)
	assert.False(t, oldest.Complete())
}
