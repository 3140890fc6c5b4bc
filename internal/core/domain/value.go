package domain

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

// AnyLanguage matches text in every language, including the none language.
// It is reserved for queries and the cross-language index fields; values
// cannot carry it.
const AnyLanguage = "*"

var languagePattern = regexp.MustCompile(`^[A-Za-z]{1,8}(-[A-Za-z0-9]{1,8})*$`)

// Value is a semantic value of a representation field.
// The set of implementations is closed: Text, Reference, Integer, Double,
// Boolean and DateTime.
type Value interface {
	// DataType returns the primary index data type of the value.
	DataType() IndexDataType

	// String returns a human readable lexical form.
	String() string

	isValue()
}

// Text is a natural language string with an optional language tag.
// An empty Language is the none language, which is matchable on its own.
type Text struct {
	Value    string
	Language string
}

// Reference points at another entity by URI.
type Reference struct {
	URI string
}

// Integer is a 64-bit integer value.
type Integer int64

// Double is a 64-bit float value.
type Double float64

// Boolean is a boolean value.
type Boolean bool

// DateTime is an instant in time. Use NewDateTime to normalise.
type DateTime struct {
	Time time.Time
}

func (Text) isValue()      {}
func (Reference) isValue() {}
func (Integer) isValue()   {}
func (Double) isValue()    {}
func (Boolean) isValue()   {}
func (DateTime) isValue()  {}

// NewText creates a text value in the given language ("" for none).
func NewText(value, language string) Text {
	return Text{Value: value, Language: language}
}

// NewReference creates a reference value.
func NewReference(uri string) Reference {
	return Reference{URI: uri}
}

// NewDateTime creates a date value normalised to UTC millisecond precision.
func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t.UTC().Truncate(time.Millisecond)}
}

// DataType implements Value.
func (Text) DataType() IndexDataType { return TypeText }

// DataType implements Value.
func (Reference) DataType() IndexDataType { return TypeReference }

// DataType implements Value.
func (Integer) DataType() IndexDataType { return TypeInteger }

// DataType implements Value.
func (Double) DataType() IndexDataType { return TypeDouble }

// DataType implements Value.
func (Boolean) DataType() IndexDataType { return TypeBoolean }

// DataType implements Value.
func (DateTime) DataType() IndexDataType { return TypeDate }

func (t Text) String() string {
	if t.Language == "" {
		return strconv.Quote(t.Value)
	}
	return strconv.Quote(t.Value) + "@" + t.Language
}

func (r Reference) String() string { return "<" + r.URI + ">" }

func (i Integer) String() string { return strconv.FormatInt(int64(i), 10) }

func (d Double) String() string { return strconv.FormatFloat(float64(d), 'g', -1, 64) }

func (b Boolean) String() string { return strconv.FormatBool(bool(b)) }

func (d DateTime) String() string { return d.Time.UTC().Format(time.RFC3339Nano) }

// IsValidLanguage returns true for the none language ("") and for
// BCP 47 style tags such as "en" or "de-AT".
func IsValidLanguage(tag string) bool {
	return tag == "" || languagePattern.MatchString(tag)
}

// IsAbsoluteURI returns true if s parses as a URI with a scheme.
func IsAbsoluteURI(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.IsAbs()
}

// ValidateValue checks that a value can be stored.
func ValidateValue(v Value) error {
	switch val := v.(type) {
	case Text:
		if !IsValidLanguage(val.Language) {
			return fmt.Errorf("%w: language %q", ErrInvalidInput, val.Language)
		}
	case Reference:
		if !IsAbsoluteURI(val.URI) {
			return fmt.Errorf("%w: reference %q is not an absolute URI", ErrInvalidInput, val.URI)
		}
	case Double:
		if math.IsNaN(float64(val)) {
			return fmt.Errorf("%w: NaN is not a storable double", ErrInvalidInput)
		}
	case Integer, Boolean, DateTime:
	case nil:
		return fmt.Errorf("%w: nil value", ErrInvalidInput)
	default:
		return fmt.Errorf("%w: value type %T", ErrUnsupportedType, v)
	}
	return nil
}

// ValuesEqual reports whether two values are the same semantic value.
func ValuesEqual(a, b Value) bool {
	if da, ok := a.(DateTime); ok {
		db, ok := b.(DateTime)
		return ok && da.Time.Equal(db.Time)
	}
	return a == b
}
