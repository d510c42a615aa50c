package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocument_Get(t *testing.T) {
	d := New(Field{Name: "id", Value: "sku-42"}).
		AddField("title", "fancy widget").
		AddField("tag", "a").
		AddField("tag", "b")

	v, ok := d.Get("id")
	assert.True(t, ok)
	assert.Equal(t, "sku-42", v)

	// First value wins for multi-valued fields.
	v, ok = d.Get("tag")
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = d.Get("missing")
	assert.False(t, ok)
}

func TestDocument_TermsSorted(t *testing.T) {
	d := New(
		Field{Name: "b", Value: "2"},
		Field{Name: "a", Value: "1"},
		Field{Name: "a", Value: "0"},
	)

	assert.Equal(t, []Term{
		{Field: "a", Text: "0"},
		{Field: "a", Text: "1"},
		{Field: "b", Text: "2"},
	}, d.Terms())
}

func TestDocument_Clone(t *testing.T) {
	d := New(Field{Name: "id", Value: "1"})
	c := d.Clone()
	c.AddField("extra", "x")

	assert.Len(t, d.Fields(), 1)
	assert.Len(t, c.Fields(), 2)
}
