package domain

import (
	"fmt"
	"sort"
)

// Representation is the schema-flexible record of one entity.
// Fields are keyed by URI; each field holds any number of values.
// A Representation is not safe for concurrent mutation.
type Representation struct {
	// ID is the absolute URI identifying the entity.
	ID string

	fields map[string][]Value
}

// NewRepresentation creates an empty representation for id.
func NewRepresentation(id string) *Representation {
	return &Representation{
		ID:     id,
		fields: make(map[string][]Value),
	}
}

// Add appends values to a field. Values equal to one already present are
// skipped; everything else is kept.
func (r *Representation) Add(field string, values ...Value) {
	if r.fields == nil {
		r.fields = make(map[string][]Value)
	}
	existing := r.fields[field]
	for _, v := range values {
		if v == nil || containsValue(existing, v) {
			continue
		}
		existing = append(existing, v)
	}
	if len(existing) > 0 {
		r.fields[field] = existing
	}
}

// Set replaces all values of a field.
func (r *Representation) Set(field string, values ...Value) {
	r.Remove(field)
	r.Add(field, values...)
}

// Remove deletes a field and its values.
func (r *Representation) Remove(field string) {
	delete(r.fields, field)
}

// Get returns the values of a field, or nil.
func (r *Representation) Get(field string) []Value {
	values := r.fields[field]
	if values == nil {
		return nil
	}
	out := make([]Value, len(values))
	copy(out, values)
	return out
}

// First returns the first value of a field, or nil.
func (r *Representation) First(field string) Value {
	if values := r.fields[field]; len(values) > 0 {
		return values[0]
	}
	return nil
}

// Has returns true if the field has at least one value.
func (r *Representation) Has(field string) bool {
	return len(r.fields[field]) > 0
}

// Fields returns the field URIs in sorted order.
func (r *Representation) Fields() []string {
	fields := make([]string, 0, len(r.fields))
	for f := range r.fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Len returns the number of fields.
func (r *Representation) Len() int {
	return len(r.fields)
}

// Clone returns a deep copy.
func (r *Representation) Clone() *Representation {
	c := NewRepresentation(r.ID)
	for f, values := range r.fields {
		c.fields[f] = append([]Value(nil), values...)
	}
	return c
}

// Project returns a copy restricted to the given fields.
// An empty selection keeps every field.
func (r *Representation) Project(fields []string) *Representation {
	if len(fields) == 0 {
		return r.Clone()
	}
	c := NewRepresentation(r.ID)
	for _, f := range fields {
		if values, ok := r.fields[f]; ok {
			c.fields[f] = append([]Value(nil), values...)
		}
	}
	return c
}

// Validate checks the id, field URIs and every value.
func (r *Representation) Validate() error {
	if !IsAbsoluteURI(r.ID) {
		return fmt.Errorf("%w: id %q is not an absolute URI", ErrInvalidInput, r.ID)
	}
	for f, values := range r.fields {
		if !IsAbsoluteURI(f) {
			return fmt.Errorf("%w: field %q is not an absolute URI", ErrInvalidInput, f)
		}
		for _, v := range values {
			if err := ValidateValue(v); err != nil {
				return fmt.Errorf("field %s: %w", f, err)
			}
		}
	}
	return nil
}

func containsValue(values []Value, v Value) bool {
	for _, existing := range values {
		if ValuesEqual(existing, v) {
			return true
		}
	}
	return false
}
