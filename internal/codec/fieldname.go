package codec

import (
	"fmt"
	"strings"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

const (
	// separator splits the tag, language and field segments of a name.
	separator = "."

	// escapeByte introduces a two digit upper-case hex escape.
	escapeByte = '_'

	hexDigits = "0123456789ABCDEF"
)

// EncodeFieldName maps a logical field to its physical index field name.
//
// Text types encode as <tag>.<language>.<field>, other types as
// <tag>.<field>. The language and field segments are escaped so that only
// [A-Za-z0-9_] remain; the separator can never appear inside a segment.
func EncodeFieldName(key domain.FieldKey) (string, error) {
	prefix, err := FieldPrefix(key.Type, key.Language)
	if err != nil {
		return "", err
	}
	if !domain.IsAbsoluteURI(key.Field) {
		return "", fmt.Errorf("%w: field %q is not an absolute URI", domain.ErrInvalidInput, key.Field)
	}
	return prefix + EscapeSegment(key.Field), nil
}

// FieldPrefix returns the data type and language part of a field name,
// including the trailing separator.
func FieldPrefix(t domain.IndexDataType, language string) (string, error) {
	if !t.IsValid() {
		return "", fmt.Errorf("%w: data type %d", domain.ErrUnsupportedType, int(t))
	}
	if !t.IsText() {
		if language != "" {
			return "", fmt.Errorf("%w: %s fields carry no language", domain.ErrInvalidInput, t)
		}
		return t.Tag() + separator, nil
	}
	if language != domain.AnyLanguage && !domain.IsValidLanguage(language) {
		return "", fmt.Errorf("%w: language %q", domain.ErrInvalidInput, language)
	}
	return t.Tag() + separator + EscapeSegment(language) + separator, nil
}

// DecodeFieldName maps a physical field name back to its logical field.
// Names not produced by EncodeFieldName yield a *domain.DecodeError.
func DecodeFieldName(name string) (domain.FieldKey, error) {
	parts := strings.Split(name, separator)
	if len(parts) < 2 {
		return domain.FieldKey{}, &domain.DecodeError{Name: name, Reason: "missing separator"}
	}
	t, err := domain.ParseDataType(parts[0])
	if err != nil {
		return domain.FieldKey{}, &domain.DecodeError{Name: name, Reason: "unknown data type tag " + parts[0]}
	}

	var key domain.FieldKey
	key.Type = t
	switch {
	case t.IsText() && len(parts) == 3:
		lang, err := UnescapeSegment(parts[1])
		if err != nil {
			return domain.FieldKey{}, &domain.DecodeError{Name: name, Reason: err.Error()}
		}
		key.Language = lang
	case !t.IsText() && len(parts) == 2:
	default:
		return domain.FieldKey{}, &domain.DecodeError{
			Name:   name,
			Reason: fmt.Sprintf("%d segments for %s field", len(parts), t),
		}
	}

	field, err := UnescapeSegment(parts[len(parts)-1])
	if err != nil {
		return domain.FieldKey{}, &domain.DecodeError{Name: name, Reason: err.Error()}
	}
	key.Field = field

	// Only canonical names decode: the key must encode back to name.
	encoded, err := EncodeFieldName(key)
	if err != nil {
		return domain.FieldKey{}, &domain.DecodeError{Name: name, Reason: err.Error()}
	}
	if encoded != name {
		return domain.FieldKey{}, &domain.DecodeError{Name: name, Reason: "not in canonical form"}
	}
	return key, nil
}

// EscapeSegment keeps ASCII letters and digits and hex-escapes every other
// byte as _XX.
func EscapeSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAlnum(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte(escapeByte)
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

// UnescapeSegment reverses EscapeSegment.
func UnescapeSegment(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isAlnum(c):
			b.WriteByte(c)
		case c == escapeByte:
			if i+2 >= len(s) {
				return "", fmt.Errorf("truncated escape at offset %d", i)
			}
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if !ok1 || !ok2 {
				return "", fmt.Errorf("invalid escape %q at offset %d", s[i:i+3], i)
			}
			b.WriteByte(hi<<4 | lo)
			i += 2
		default:
			return "", fmt.Errorf("invalid character %q at offset %d", c, i)
		}
	}
	return b.String(), nil
}

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// unhex accepts upper-case hex digits only, so every byte has one escape.
func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
