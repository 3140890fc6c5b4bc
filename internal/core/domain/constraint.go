package domain

import (
	"fmt"
	"sort"
)

// ConstraintKind identifies the variant of a Constraint.
type ConstraintKind int

// Available constraint kinds.
const (
	// ConstraintValue matches fields holding a given value.
	ConstraintValue ConstraintKind = iota + 1

	// ConstraintRange matches fields with a value in [lower, upper).
	ConstraintRange

	// ConstraintText matches fields against a wildcard pattern.
	ConstraintText
)

// String returns the string representation.
func (k ConstraintKind) String() string {
	switch k {
	case ConstraintValue:
		return "value"
	case ConstraintRange:
		return "range"
	case ConstraintText:
		return "text"
	default:
		return "unknown"
	}
}

// Constraint is a predicate on one field of a FieldQuery.
// The set of implementations is closed: ValueConstraint, RangeConstraint
// and TextConstraint.
type Constraint interface {
	// Kind returns the constraint variant.
	Kind() ConstraintKind

	// Validate checks the constraint is well formed.
	Validate() error

	isConstraint()
}

// ValueConstraint matches a field holding Value.
//
// Type selects the index encoding. The zero value picks the default for the
// value: exact match (TypeString) for Text, the value's own type otherwise.
// TypeText matches Text values token by token; every token must be present.
type ValueConstraint struct {
	Value Value
	Type  IndexDataType
}

// RangeConstraint matches values in [Lower, Upper). Either bound may be nil
// for an open range, but not both.
type RangeConstraint struct {
	Lower Value
	Upper Value
}

// TextConstraint matches a wildcard pattern: '*' is any sequence and '?' is
// exactly one character. Strict patterns must match the whole value;
// otherwise any substring may match.
//
// Language selects the text language: "" is the none language and
// AnyLanguage matches all. Type is TypeReference to match reference URIs;
// the zero value targets text.
type TextConstraint struct {
	Pattern  string
	Strict   bool
	Language string
	Type     IndexDataType
}

func (ValueConstraint) isConstraint() {}
func (RangeConstraint) isConstraint() {}
func (TextConstraint) isConstraint()  {}

// NewValueConstraint creates a constraint with the default encoding.
func NewValueConstraint(v Value) ValueConstraint {
	return ValueConstraint{Value: v}
}

// NewRangeConstraint creates a range constraint; pass nil for an open bound.
func NewRangeConstraint(lower, upper Value) RangeConstraint {
	return RangeConstraint{Lower: lower, Upper: upper}
}

// NewTextConstraint creates a text constraint matching any language.
func NewTextConstraint(pattern string, strict bool) TextConstraint {
	return TextConstraint{Pattern: pattern, Strict: strict, Language: AnyLanguage}
}

// Kind implements Constraint.
func (ValueConstraint) Kind() ConstraintKind { return ConstraintValue }

// Kind implements Constraint.
func (RangeConstraint) Kind() ConstraintKind { return ConstraintRange }

// Kind implements Constraint.
func (TextConstraint) Kind() ConstraintKind { return ConstraintText }

// Validate implements Constraint.
func (c ValueConstraint) Validate() error {
	if c.Value == nil {
		return fmt.Errorf("%w: value constraint without value", ErrInvalidInput)
	}
	if t, ok := c.Value.(Text); ok && t.Language == AnyLanguage {
		return nil
	}
	return ValidateValue(c.Value)
}

// Validate implements Constraint.
func (c RangeConstraint) Validate() error {
	if c.Lower == nil && c.Upper == nil {
		return fmt.Errorf("%w: range constraint without bounds", ErrInvalidInput)
	}
	for _, b := range []Value{c.Lower, c.Upper} {
		if b == nil {
			continue
		}
		if t, ok := b.(Text); ok && t.Language == AnyLanguage {
			continue
		}
		if err := ValidateValue(b); err != nil {
			return err
		}
	}
	if c.Lower != nil && c.Upper != nil {
		if c.Lower.DataType() != c.Upper.DataType() {
			return fmt.Errorf("%w: range bounds of different types %s and %s",
				ErrInvalidInput, c.Lower.DataType(), c.Upper.DataType())
		}
		lt, lok := c.Lower.(Text)
		ut, uok := c.Upper.(Text)
		if lok && uok && lt.Language != ut.Language {
			return fmt.Errorf("%w: range bounds in different languages", ErrInvalidInput)
		}
	}
	return nil
}

// Validate implements Constraint.
func (c TextConstraint) Validate() error {
	if c.Pattern == "" {
		return fmt.Errorf("%w: empty text pattern", ErrInvalidInput)
	}
	if c.Language != AnyLanguage && !IsValidLanguage(c.Language) {
		return fmt.Errorf("%w: language %q", ErrInvalidInput, c.Language)
	}
	return nil
}

// FieldQuery selects fields and constrains them. Each field has at most one
// constraint; setting another replaces it.
type FieldQuery struct {
	// Selected lists the fields returned for each hit. Empty selects all.
	Selected []string

	// Constraints maps field URIs to their constraint.
	Constraints map[string]Constraint

	// Limit is the maximum number of results. Zero uses the Yard default.
	Limit int

	// Offset is the number of results to skip.
	Offset int
}

// NewFieldQuery creates an empty query.
func NewFieldQuery() *FieldQuery {
	return &FieldQuery{Constraints: make(map[string]Constraint)}
}

// Select adds fields to the selection.
func (q *FieldQuery) Select(fields ...string) *FieldQuery {
	for _, f := range fields {
		if !containsString(q.Selected, f) {
			q.Selected = append(q.Selected, f)
		}
	}
	return q
}

// Constrain sets the constraint of a field, replacing any previous one.
func (q *FieldQuery) Constrain(field string, c Constraint) *FieldQuery {
	if q.Constraints == nil {
		q.Constraints = make(map[string]Constraint)
	}
	q.Constraints[field] = c
	return q
}

// ConstrainedFields returns the constrained field URIs in sorted order.
func (q *FieldQuery) ConstrainedFields() []string {
	fields := make([]string, 0, len(q.Constraints))
	for f := range q.Constraints {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// SelectedFields returns the fields to read back: the selection plus every
// constrained field, sorted. It is empty when the selection is empty, which
// means all fields.
func (q *FieldQuery) SelectedFields() []string {
	if len(q.Selected) == 0 {
		return nil
	}
	fields := append([]string(nil), q.Selected...)
	for f := range q.Constraints {
		if !containsString(fields, f) {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	return fields
}

// Validate checks every field URI and constraint.
func (q *FieldQuery) Validate() error {
	if q.Limit < 0 || q.Offset < 0 {
		return fmt.Errorf("%w: negative limit or offset", ErrInvalidInput)
	}
	for _, f := range q.Selected {
		if !IsAbsoluteURI(f) {
			return fmt.Errorf("%w: selected field %q is not an absolute URI", ErrInvalidInput, f)
		}
	}
	for _, f := range q.ConstrainedFields() {
		if !IsAbsoluteURI(f) {
			return fmt.Errorf("%w: constrained field %q is not an absolute URI", ErrInvalidInput, f)
		}
		c := q.Constraints[f]
		if c == nil {
			return fmt.Errorf("%w: nil constraint for %s", ErrInvalidInput, f)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("constraint on %s: %w", f, err)
		}
	}
	return nil
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
