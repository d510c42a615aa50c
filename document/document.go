// Package document defines the field-oriented document model consumed by the
// write path. Analysis (tokenization, stemming) happens upstream; a Document
// here is the already-analyzed set of named field values handed to the index
// engine.
package document

import "sort"

// Field is a single named value of a document.
type Field struct {
	Name  string
	Value string
}

// Term identifies a single (field, text) pair in the inverted index. The
// unique-key term of a document is the handle used for update-by-term and
// delete-by-term operations.
type Term struct {
	Field string
	Text  string
}

// Schema declares the index-level document contract. Only the unique-key
// field matters to the write path; every document must carry exactly one
// value for it.
type Schema struct {
	// UniqueKeyField names the field whose value is the application key of
	// the document. Empty means the schema declares no unique key, which the
	// writer rejects.
	UniqueKeyField string
}

// Document is an ordered collection of fields. Field order is preserved as
// given; duplicate names are allowed for multi-valued fields, except for the
// unique-key field.
type Document struct {
	fields []Field
}

// New creates a Document from the given fields.
func New(fields ...Field) *Document {
	return &Document{fields: fields}
}

// AddField appends a field.
func (d *Document) AddField(name, value string) *Document {
	d.fields = append(d.fields, Field{Name: name, Value: value})
	return d
}

// Fields returns the document's fields in insertion order. The returned
// slice must not be mutated.
func (d *Document) Fields() []Field {
	return d.fields
}

// Get returns the first value of the named field.
func (d *Document) Get(name string) (string, bool) {
	for _, f := range d.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Terms returns one Term per field value, sorted for deterministic indexing.
func (d *Document) Terms() []Term {
	terms := make([]Term, 0, len(d.fields))
	for _, f := range d.fields {
		terms = append(terms, Term{Field: f.Name, Text: f.Value})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Field != terms[j].Field {
			return terms[i].Field < terms[j].Field
		}
		return terms[i].Text < terms[j].Text
	})
	return terms
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	fields := make([]Field, len(d.fields))
	copy(fields, d.fields)
	return &Document{fields: fields}
}
