package codec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

// JoinMarker is the query parser's escaped space. Every whitespace rune of
// an exact-match string gets the same backslash prefix, so a multi-word
// value stays one token.
const JoinMarker = `\ `

// DateLayout is the fixed-width, sortable layout of date values.
const DateLayout = "2006-01-02T15:04:05.000Z"

// reservedQueryChars are escaped with a backslash when encoding for a query.
// Whitespace is handled by tokenization and JoinSpaces.
const reservedQueryChars = `\+-!():^[]"{}~*?|&;/`

// EncodeValue transforms an index value into index tokens.
//
// The order of steps is fixed:
//  1. escape reserved query characters (only when escape is true)
//  2. lower-case (string and text)
//  3. tokenize on whitespace (text) or join whitespace (string)
//
// Escaping first keeps escape markers out of the case folding and makes a
// literal reserved character in the data distinct from query syntax.
// Other types pass their canonical form through untouched, except that
// whitespace is escaped when encoding for a query.
func EncodeValue(v domain.IndexValue, escape bool) ([]string, error) {
	if !v.Type.IsValid() {
		return nil, fmt.Errorf("%w: data type %d", domain.ErrUnsupportedType, int(v.Type))
	}
	s := v.Value
	if escape {
		s = EscapeQueryChars(s)
	}
	switch v.Type {
	case domain.TypeText:
		return strings.Fields(strings.ToLower(s)), nil
	case domain.TypeString:
		return []string{JoinSpaces(strings.ToLower(s))}, nil
	default:
		if escape {
			s = JoinSpaces(s)
		}
		return []string{s}, nil
	}
}

// JoinSpaces prefixes every whitespace rune with a backslash. Spaces
// become JoinMarker.
func JoinSpaces(s string) string {
	if strings.IndexFunc(s, unicode.IsSpace) < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		if unicode.IsSpace(r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Analyze returns the tokens an index stores for a value.
func Analyze(v domain.IndexValue) []string {
	tokens, err := EncodeValue(v, false)
	if err != nil {
		return nil
	}
	return tokens
}

// MatchForm returns the form text patterns are matched against: the
// lower-cased value for string and text, the value itself otherwise.
func MatchForm(v domain.IndexValue) string {
	if v.Type.IsText() {
		return strings.ToLower(v.Value)
	}
	return v.Value
}

// EscapeQueryChars backslash-escapes reserved query syntax characters.
func EscapeQueryChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(reservedQueryChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToIndexValue converts a semantic value into its canonical index form,
// using the value's primary data type.
func ToIndexValue(v domain.Value) (domain.IndexValue, error) {
	switch val := v.(type) {
	case domain.Text:
		return domain.IndexValue{Value: val.Value, Type: domain.TypeText}, nil
	case domain.Reference:
		return domain.IndexValue{Value: val.URI, Type: domain.TypeReference}, nil
	case domain.Integer:
		return domain.IndexValue{Value: FormatInteger(int64(val)), Type: domain.TypeInteger}, nil
	case domain.Double:
		return domain.IndexValue{Value: FormatDouble(float64(val)), Type: domain.TypeDouble}, nil
	case domain.Boolean:
		return domain.IndexValue{Value: strconv.FormatBool(bool(val)), Type: domain.TypeBoolean}, nil
	case domain.DateTime:
		return domain.IndexValue{Value: FormatDate(val.Time), Type: domain.TypeDate}, nil
	default:
		return domain.IndexValue{}, fmt.Errorf("%w: value type %T", domain.ErrUnsupportedType, v)
	}
}

// FromIndexValue converts a stored index value back into a semantic value.
// Text values get the language of the field they were read from.
func FromIndexValue(v domain.IndexValue, language string) (domain.Value, error) {
	switch v.Type {
	case domain.TypeText:
		return domain.Text{Value: v.Value, Language: language}, nil
	case domain.TypeReference:
		return domain.Reference{URI: v.Value}, nil
	case domain.TypeInteger:
		i, err := ParseInteger(v.Value)
		if err != nil {
			return nil, err
		}
		return domain.Integer(i), nil
	case domain.TypeDouble:
		d, err := ParseDouble(v.Value)
		if err != nil {
			return nil, err
		}
		return domain.Double(d), nil
	case domain.TypeBoolean:
		b, err := strconv.ParseBool(v.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: boolean %q", domain.ErrInvalidInput, v.Value)
		}
		return domain.Boolean(b), nil
	case domain.TypeDate:
		t, err := ParseDate(v.Value)
		if err != nil {
			return nil, err
		}
		return domain.NewDateTime(t), nil
	default:
		return nil, fmt.Errorf("%w: %s is not a stored type", domain.ErrUnsupportedType, v.Type)
	}
}

// FormatInteger encodes i as 20 decimal digits of its offset-binary form,
// so lexical order equals numeric order.
func FormatInteger(i int64) string {
	return fmt.Sprintf("%020d", uint64(i)^(1<<63))
}

// ParseInteger reverses FormatInteger.
func ParseInteger(s string) (int64, error) {
	if len(s) != 20 {
		return 0, fmt.Errorf("%w: integer %q is not 20 digits", domain.ErrInvalidInput, s)
	}
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: integer %q", domain.ErrInvalidInput, s)
	}
	return int64(u ^ (1 << 63)), nil
}

// FormatDouble encodes f as 16 hex digits whose lexical order equals
// numeric order.
func FormatDouble(f float64) string {
	if f == 0 {
		// -0 and +0 compare equal, so they share one form.
		f = 0
	}
	bits := math.Float64bits(f)
	if bits>>63 == 1 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return fmt.Sprintf("%016x", bits)
}

// ParseDouble reverses FormatDouble.
func ParseDouble(s string) (float64, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("%w: double %q is not 16 hex digits", domain.ErrInvalidInput, s)
	}
	bits, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: double %q", domain.ErrInvalidInput, s)
	}
	if bits>>63 == 1 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), nil
}

// FormatDate encodes t in UTC with millisecond precision.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate reverses FormatDate.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", domain.ErrInvalidInput, s)
	}
	return t, nil
}
