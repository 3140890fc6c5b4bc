package codec

import (
	"fmt"

	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/logger"
)

// FieldValue is one index value bound to the field it is written to.
type FieldValue struct {
	Key   domain.FieldKey
	Value domain.IndexValue
}

// Expand returns the index values a semantic value is written as.
//
// Text expands to four: tokenized text in its language (the stored copy),
// the exact-match string in its language, and both again in the
// cross-language fields. Every other value expands to itself.
func Expand(field string, v domain.Value) ([]FieldValue, error) {
	if err := domain.ValidateValue(v); err != nil {
		return nil, err
	}
	iv, err := ToIndexValue(v)
	if err != nil {
		return nil, err
	}
	text, ok := v.(domain.Text)
	if !ok {
		return []FieldValue{{Key: domain.FieldKey{Field: field, Type: iv.Type}, Value: iv}}, nil
	}
	out := make([]FieldValue, 0, 4)
	for _, lang := range []string{text.Language, domain.AnyLanguage} {
		for _, t := range []domain.IndexDataType{domain.TypeText, domain.TypeString} {
			out = append(out, FieldValue{
				Key:   domain.FieldKey{Field: field, Type: t, Language: lang},
				Value: domain.IndexValue{Value: text.Value, Type: t},
			})
		}
	}
	return out, nil
}

// ToDocument encodes every field of a representation.
func ToDocument(rep *domain.Representation) (*domain.IndexDocument, error) {
	doc := domain.NewIndexDocument(rep.ID)
	for _, field := range rep.Fields() {
		for _, v := range rep.Get(field) {
			expanded, err := Expand(field, v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field, err)
			}
			for _, fv := range expanded {
				name, err := EncodeFieldName(fv.Key)
				if err != nil {
					return nil, fmt.Errorf("field %s: %w", field, err)
				}
				doc.Add(name, fv.Value.Value)
			}
		}
	}
	return doc, nil
}

// FromDocument decodes the stored fields of an index document. Names that
// do not decode, index-only fields and cross-language copies are skipped.
// A non-empty selection restricts the returned fields.
func FromDocument(doc *domain.IndexDocument, selected []string) *domain.Representation {
	var want map[string]bool
	if len(selected) > 0 {
		want = make(map[string]bool, len(selected))
		for _, f := range selected {
			want[f] = true
		}
	}

	rep := domain.NewRepresentation(doc.ID)
	for _, name := range doc.FieldNames() {
		if name == domain.IDField {
			continue
		}
		key, err := DecodeFieldName(name)
		if err != nil {
			logger.Debug("Skipping field: %v", err)
			continue
		}
		if !key.Type.Stored() || key.Language == domain.AnyLanguage {
			continue
		}
		if want != nil && !want[key.Field] {
			continue
		}
		for _, raw := range doc.Fields[name] {
			v, err := FromIndexValue(domain.IndexValue{Value: raw, Type: key.Type}, key.Language)
			if err != nil {
				logger.Warn("Skipping value of %s in %s: %v", name, doc.ID, err)
				continue
			}
			rep.Add(key.Field, v)
		}
	}
	return rep
}
