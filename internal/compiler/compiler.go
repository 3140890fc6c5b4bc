package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/apache/stanbol-sub040/internal/codec"
	"github.com/apache/stanbol-sub040/internal/core/domain"
)

const (
	assignment = ":"
	matchAll   = "*:*"
	openBound  = "*"
)

// Compiler turns FieldQuery constraints into index clauses.
// It holds no mutable state and is safe for concurrent use.
type Compiler struct{}

// New creates a compiler.
func New() *Compiler {
	return &Compiler{}
}

// CompileQuery compiles every constraint of q, in field order, into a
// conjunction. Either every constraint compiles or an error is returned.
func (c *Compiler) CompileQuery(q *domain.FieldQuery) (*domain.CompiledQuery, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: nil query", domain.ErrInvalidInput)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	fields := q.ConstrainedFields()
	clauses := make([]domain.Clause, 0, len(fields))
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		clause, err := c.Compile(field, q.Constraints[field])
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
		parts = append(parts, clause.String())
	}

	query := matchAll
	if len(parts) > 0 {
		query = strings.Join(parts, " AND ")
	}
	return domain.NewCompiledQuery(clauses, query, q.SelectedFields(), q.Limit, q.Offset), nil
}

// Compile compiles one constraint on field.
func (c *Compiler) Compile(field string, constraint domain.Constraint) (domain.Clause, error) {
	if constraint == nil {
		return domain.Clause{}, fmt.Errorf("%w: nil constraint for %s", domain.ErrInvalidInput, field)
	}
	if err := constraint.Validate(); err != nil {
		return domain.Clause{}, err
	}
	switch con := constraint.(type) {
	case domain.ValueConstraint:
		return compileValue(field, con)
	case domain.RangeConstraint:
		return compileRange(field, con)
	case domain.TextConstraint:
		return compileText(field, con)
	default:
		return domain.Clause{}, &domain.UnsupportedConstraintError{
			Field:  field,
			Kind:   constraint.Kind(),
			Reason: fmt.Sprintf("constraint type %T", constraint),
		}
	}
}

// fieldFragments returns the prefix, field and assignment fragments.
func fieldFragments(key domain.FieldKey) ([]domain.Fragment, error) {
	prefix, err := codec.FieldPrefix(key.Type, key.Language)
	if err != nil {
		return nil, err
	}
	return []domain.Fragment{
		{Position: domain.NewPosition(domain.PositionPrefix, 0), Text: prefix},
		{Position: domain.NewPosition(domain.PositionField, 0), Text: codec.EscapeSegment(key.Field)},
		{Position: domain.NewPosition(domain.PositionAssignment, 0), Text: assignment},
	}, nil
}

func compileValue(field string, con domain.ValueConstraint) (domain.Clause, error) {
	key, iv, err := resolveValue(field, con)
	if err != nil {
		return domain.Clause{}, err
	}
	unsupported := func(reason string) error {
		return &domain.UnsupportedConstraintError{
			Field: field, Kind: domain.ConstraintValue, Type: key.Type, Reason: reason,
		}
	}

	tokens, err := codec.EncodeValue(iv, false)
	if err != nil {
		return domain.Clause{}, unsupported(err.Error())
	}
	escaped, err := codec.EncodeValue(iv, true)
	if err != nil {
		return domain.Clause{}, unsupported(err.Error())
	}
	if len(tokens) == 0 || len(tokens) != len(escaped) {
		return domain.Clause{}, unsupported("value encodes to no tokens")
	}

	fragments, err := fieldFragments(key)
	if err != nil {
		return domain.Clause{}, unsupported(err.Error())
	}
	for i, tok := range escaped {
		fragments = append(fragments, domain.Fragment{
			Position: domain.NewPosition(domain.PositionValue, i),
			Text:     tok,
		})
	}
	return newClause(domain.ClauseSpec{
		Field:     field,
		Kind:      domain.ConstraintValue,
		Key:       key,
		Fragments: fragments,
		Tokens:    tokens,
	})
}

// resolveValue picks the index field and value a value constraint targets.
func resolveValue(field string, con domain.ValueConstraint) (domain.FieldKey, domain.IndexValue, error) {
	t := con.Type
	mismatch := func() error {
		return &domain.UnsupportedConstraintError{
			Field:  field,
			Kind:   domain.ConstraintValue,
			Type:   t,
			Reason: fmt.Sprintf("cannot encode %s value as %s", con.Value.DataType(), t),
		}
	}

	if text, ok := con.Value.(domain.Text); ok {
		switch t {
		case domain.TypeUnknown:
			t = domain.TypeString
		case domain.TypeString, domain.TypeText:
		default:
			return domain.FieldKey{}, domain.IndexValue{}, mismatch()
		}
		key := domain.FieldKey{Field: field, Type: t, Language: text.Language}
		return key, domain.IndexValue{Value: text.Value, Type: t}, nil
	}

	if t != domain.TypeUnknown && t != con.Value.DataType() {
		return domain.FieldKey{}, domain.IndexValue{}, mismatch()
	}
	iv, err := codec.ToIndexValue(con.Value)
	if err != nil {
		return domain.FieldKey{}, domain.IndexValue{}, &domain.UnsupportedConstraintError{
			Field: field, Kind: domain.ConstraintValue, Type: t, Reason: err.Error(),
		}
	}
	return domain.FieldKey{Field: field, Type: iv.Type}, iv, nil
}

func compileRange(field string, con domain.RangeConstraint) (domain.Clause, error) {
	bound := con.Lower
	if bound == nil {
		bound = con.Upper
	}
	key := domain.FieldKey{Field: field, Type: bound.DataType()}
	if text, ok := bound.(domain.Text); ok {
		key.Type = domain.TypeString
		key.Language = text.Language
	}
	if !key.Type.SupportsRange() {
		return domain.Clause{}, &domain.UnsupportedConstraintError{
			Field: field, Kind: domain.ConstraintRange, Type: key.Type,
			Reason: "data type has no order",
		}
	}

	fragments, err := fieldFragments(key)
	if err != nil {
		return domain.Clause{}, err
	}
	spec := domain.ClauseSpec{Field: field, Kind: domain.ConstraintRange, Key: key}

	for i, b := range []domain.Value{con.Lower, con.Upper} {
		if b == nil {
			// Open bounds emit no fragment.
			continue
		}
		raw, esc, err := encodeBound(key.Type, b)
		if err != nil {
			return domain.Clause{}, &domain.UnsupportedConstraintError{
				Field: field, Kind: domain.ConstraintRange, Type: key.Type, Reason: err.Error(),
			}
		}
		fragments = append(fragments, domain.Fragment{
			Position: domain.NewPosition(domain.PositionValue, i),
			Text:     esc,
		})
		if i == 0 {
			spec.Lower, spec.HasLower = raw, true
		} else {
			spec.Upper, spec.HasUpper = raw, true
		}
	}
	spec.Fragments = fragments
	return newClause(spec)
}

// encodeBound returns the index token and the escaped query token of a bound.
func encodeBound(t domain.IndexDataType, b domain.Value) (raw, escaped string, err error) {
	var iv domain.IndexValue
	if text, ok := b.(domain.Text); ok {
		iv = domain.IndexValue{Value: text.Value, Type: t}
	} else {
		iv, err = codec.ToIndexValue(b)
		if err != nil {
			return "", "", err
		}
	}
	rawTokens, err := codec.EncodeValue(iv, false)
	if err != nil {
		return "", "", err
	}
	escTokens, err := codec.EncodeValue(iv, true)
	if err != nil {
		return "", "", err
	}
	if len(rawTokens) != 1 || len(escTokens) != 1 {
		return "", "", fmt.Errorf("bound %s is not a single token", b)
	}
	return rawTokens[0], escTokens[0], nil
}

func compileText(field string, con domain.TextConstraint) (domain.Clause, error) {
	key := domain.FieldKey{Field: field, Type: domain.TypeString, Language: con.Language}
	pattern := con.Pattern
	switch con.Type {
	case domain.TypeUnknown, domain.TypeString, domain.TypeText:
		pattern = strings.ToLower(pattern)
	case domain.TypeReference:
		key = domain.FieldKey{Field: field, Type: domain.TypeReference}
	default:
		return domain.Clause{}, &domain.UnsupportedConstraintError{
			Field: field, Kind: domain.ConstraintText, Type: con.Type,
			Reason: "wildcards apply to text and references only",
		}
	}

	body := TranslateWildcard(pattern)
	goPattern, lucene := body, ".*"+body+".*"
	if con.Strict {
		goPattern, lucene = "^"+body+"$", body
	}
	re, err := regexp.Compile(goPattern)
	if err != nil {
		return domain.Clause{}, &domain.UnsupportedConstraintError{
			Field: field, Kind: domain.ConstraintText, Type: key.Type, Reason: err.Error(),
		}
	}

	fragments, err := fieldFragments(key)
	if err != nil {
		return domain.Clause{}, &domain.UnsupportedConstraintError{
			Field: field, Kind: domain.ConstraintText, Type: key.Type, Reason: err.Error(),
		}
	}
	fragments = append(fragments, domain.Fragment{
		Position: domain.NewPosition(domain.PositionValue, 0),
		Text:     "/" + lucene + "/",
	})
	return newClause(domain.ClauseSpec{
		Field:     field,
		Kind:      domain.ConstraintText,
		Key:       key,
		Fragments: fragments,
		Pattern:   re,
	})
}

// newClause sorts the fragments, derives the field name and renders the
// clause.
func newClause(spec domain.ClauseSpec) (domain.Clause, error) {
	name, err := codec.EncodeFieldName(spec.Key)
	if err != nil {
		return domain.Clause{}, &domain.UnsupportedConstraintError{
			Field: spec.Field, Kind: spec.Kind, Type: spec.Key.Type, Reason: err.Error(),
		}
	}
	spec.Name = name
	domain.SortFragments(spec.Fragments)
	spec.Query = Render(spec.Kind, spec.Fragments)
	return domain.NewClause(spec), nil
}
