package domain

import "sort"

// IDField is the physical field holding the entity id.
const IDField = "id"

// FieldKey is the logical address of a physical index field:
// a field URI, the data type of the values and, for text types, a language.
type FieldKey struct {
	Field    string
	Type     IndexDataType
	Language string
}

// IndexValue is the physical, encode-ready form of a semantic value.
// Value holds the canonical lexical form for Type.
type IndexValue struct {
	Value string
	Type  IndexDataType
}

// IndexDocument is an entity as written to an index: the id plus stored
// values keyed by physical field name.
type IndexDocument struct {
	ID     string
	Fields map[string][]string
}

// NewIndexDocument creates an empty document for id.
func NewIndexDocument(id string) *IndexDocument {
	return &IndexDocument{ID: id, Fields: make(map[string][]string)}
}

// Add appends values to a physical field.
func (d *IndexDocument) Add(name string, values ...string) {
	d.Fields[name] = append(d.Fields[name], values...)
}

// FieldNames returns the physical field names in sorted order.
func (d *IndexDocument) FieldNames() []string {
	names := make([]string, 0, len(d.Fields))
	for name := range d.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (d *IndexDocument) Clone() *IndexDocument {
	c := NewIndexDocument(d.ID)
	for name, values := range d.Fields {
		c.Fields[name] = append([]string(nil), values...)
	}
	return c
}
