package domain

import "fmt"

// IndexDataType identifies how a value is encoded in the index.
// The set is closed; there is no runtime registration.
type IndexDataType int

// Available index data types.
const (
	// TypeUnknown is the zero value and never valid.
	TypeUnknown IndexDataType = iota

	// TypeString is an exact-match string. Index-only: it is written for
	// text values so value constraints can match whole values.
	TypeString

	// TypeText is tokenized, case-folded natural language text.
	TypeText

	// TypeReference is a pointer to another entity. Never tokenized.
	TypeReference

	// TypeInteger is a 64-bit signed integer.
	TypeInteger

	// TypeDouble is a 64-bit float.
	TypeDouble

	// TypeDate is a UTC instant with millisecond precision.
	TypeDate

	// TypeBoolean is true or false.
	TypeBoolean
)

var dataTypeTags = map[IndexDataType]string{
	TypeString:    "str",
	TypeText:      "txt",
	TypeReference: "ref",
	TypeInteger:   "int",
	TypeDouble:    "dbl",
	TypeDate:      "dat",
	TypeBoolean:   "bool",
}

var dataTypesByTag = func() map[string]IndexDataType {
	m := make(map[string]IndexDataType, len(dataTypeTags))
	for t, tag := range dataTypeTags {
		m[tag] = t
	}
	return m
}()

// AllDataTypes returns every valid data type in declaration order.
func AllDataTypes() []IndexDataType {
	return []IndexDataType{
		TypeString, TypeText, TypeReference, TypeInteger,
		TypeDouble, TypeDate, TypeBoolean,
	}
}

// ParseDataType resolves a wire tag (e.g. "txt") to its data type.
func ParseDataType(tag string) (IndexDataType, error) {
	t, ok := dataTypesByTag[tag]
	if !ok {
		return TypeUnknown, fmt.Errorf("%w: data type %q", ErrUnsupportedType, tag)
	}
	return t, nil
}

// IsValid returns true if the data type is one of the known types.
func (t IndexDataType) IsValid() bool {
	_, ok := dataTypeTags[t]
	return ok
}

// Tag returns the short wire tag used in physical field names.
func (t IndexDataType) Tag() string {
	return dataTypeTags[t]
}

// String returns the string representation.
func (t IndexDataType) String() string {
	if tag, ok := dataTypeTags[t]; ok {
		return tag
	}
	return "unknown"
}

// IsText returns true if values of this type carry a language.
func (t IndexDataType) IsText() bool {
	return t == TypeString || t == TypeText
}

// Stored returns true if the index field is decoded back into a value on read.
func (t IndexDataType) Stored() bool {
	return t.IsValid() && t != TypeString
}

// SupportsRange returns true if range constraints are meaningful for the type.
func (t IndexDataType) SupportsRange() bool {
	switch t {
	case TypeString, TypeInteger, TypeDouble, TypeDate:
		return true
	default:
		return false
	}
}

// SupportsWildcard returns true if text constraints can target the type.
func (t IndexDataType) SupportsWildcard() bool {
	switch t {
	case TypeString, TypeText, TypeReference:
		return true
	default:
		return false
	}
}
