package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// jsonValue is the wire form of a single value.
type jsonValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Lang  string `json:"lang,omitempty"`
}

type jsonRepresentation struct {
	ID     string                 `json:"id"`
	Fields map[string][]jsonValue `json:"fields"`
}

// MarshalJSON encodes the representation as
// {"id": "...", "fields": {"<uri>": [{"type": "txt", "value": "...", "lang": "en"}]}}.
func (r *Representation) MarshalJSON() ([]byte, error) {
	out := jsonRepresentation{
		ID:     r.ID,
		Fields: make(map[string][]jsonValue, len(r.fields)),
	}
	for _, f := range r.Fields() {
		values := r.fields[f]
		encoded := make([]jsonValue, 0, len(values))
		for _, v := range values {
			jv, err := toJSONValue(v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f, err)
			}
			encoded = append(encoded, jv)
		}
		out.Fields[f] = encoded
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (r *Representation) UnmarshalJSON(data []byte) error {
	var in jsonRepresentation
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.ID = in.ID
	r.fields = make(map[string][]Value, len(in.Fields))
	for f, values := range in.Fields {
		for _, jv := range values {
			v, err := fromJSONValue(jv)
			if err != nil {
				return fmt.Errorf("field %s: %w", f, err)
			}
			r.Add(f, v)
		}
	}
	return nil
}

func toJSONValue(v Value) (jsonValue, error) {
	switch val := v.(type) {
	case Text:
		return jsonValue{Type: TypeText.Tag(), Value: val.Value, Lang: val.Language}, nil
	case Reference:
		return jsonValue{Type: TypeReference.Tag(), Value: val.URI}, nil
	case Integer, Double, Boolean, DateTime:
		return jsonValue{Type: v.DataType().Tag(), Value: v.String()}, nil
	default:
		return jsonValue{}, fmt.Errorf("%w: value type %T", ErrUnsupportedType, v)
	}
}

func fromJSONValue(jv jsonValue) (Value, error) {
	t, err := ParseDataType(jv.Type)
	if err != nil {
		return nil, err
	}
	switch t {
	case TypeText:
		return Text{Value: jv.Value, Language: jv.Lang}, nil
	case TypeReference:
		return Reference{URI: jv.Value}, nil
	case TypeInteger:
		i, err := strconv.ParseInt(jv.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: integer %q", ErrInvalidInput, jv.Value)
		}
		return Integer(i), nil
	case TypeDouble:
		d, err := strconv.ParseFloat(jv.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: double %q", ErrInvalidInput, jv.Value)
		}
		return Double(d), nil
	case TypeBoolean:
		b, err := strconv.ParseBool(jv.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: boolean %q", ErrInvalidInput, jv.Value)
		}
		return Boolean(b), nil
	case TypeDate:
		ts, err := time.Parse(time.RFC3339Nano, jv.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: date %q", ErrInvalidInput, jv.Value)
		}
		return NewDateTime(ts), nil
	default:
		return nil, fmt.Errorf("%w: %s values cannot be stored", ErrUnsupportedType, t)
	}
}
