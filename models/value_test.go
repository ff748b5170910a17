package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromTextsCardinality(t *testing.T) {
	assert.True(t, FromTexts(nil).IsNull())
	assert.True(t, FromTexts([]string{}).IsNull())

	one := FromTexts([]string{"Hello"})
	s, ok := one.Scalar()
	require.True(t, ok)
	assert.Equal(t, "Hello", s)

	many := FromTexts([]string{"a", "b"})
	items, ok := many.List()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, items)
	assert.Equal(t, ValueList, many.Kind())
}

func TestListDoesNotAliasInput(t *testing.T) {
	in := []string{"a", "b"}
	v := List(in)
	in[0] = "z"

	items, _ := v.List()
	assert.Equal(t, "a", items[0])

	items[1] = "y"
	again, _ := v.List()
	assert.Equal(t, "b", again[1])
}

func TestExtractedValueJSON(t *testing.T) {
	data := ExtractedData{
		"title":   Scalar("Hello"),
		"items":   List([]string{"a", "b"}),
		"missing": Null(),
	}
	b, err := json.Marshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Hello","items":["a","b"],"missing":null}`, string(b))

	var back ExtractedData
	require.NoError(t, json.Unmarshal(b, &back))
	for k, v := range data {
		assert.True(t, v.Equal(back[k]), k)
	}

	var bad ExtractedValue
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
}

func TestEqual(t *testing.T) {
	assert.True(t, Null().Equal(ExtractedValue{}))
	assert.False(t, Scalar("a").Equal(List([]string{"a"})))
	assert.False(t, List([]string{"a", "b"}).Equal(List([]string{"b", "a"})))
}
