package domain

import (
	"regexp"
	"sort"
)

// PositionType orders the parts of a compiled constraint.
// Declaration order is the serialization order.
type PositionType int

// Available position types.
const (
	// PositionPrefix holds the data type and language part of a field name.
	PositionPrefix PositionType = iota

	// PositionField holds the escaped field URI.
	PositionField

	// PositionSuffix holds anything appended to the field name.
	PositionSuffix

	// PositionAssignment separates the field name from the value.
	PositionAssignment

	// PositionValue holds the encoded value or bounds.
	PositionValue
)

// String returns the string representation.
func (p PositionType) String() string {
	switch p {
	case PositionPrefix:
		return "prefix"
	case PositionField:
		return "field"
	case PositionSuffix:
		return "suffix"
	case PositionAssignment:
		return "assignment"
	case PositionValue:
		return "value"
	default:
		return "unknown"
	}
}

// ConstraintTypePosition is a total order over the fragments of one
// constraint: first by Type, then by Index.
type ConstraintTypePosition struct {
	Type  PositionType
	Index int
}

// NewPosition creates a position.
func NewPosition(t PositionType, index int) ConstraintTypePosition {
	return ConstraintTypePosition{Type: t, Index: index}
}

// Compare returns -1, 0 or 1 as p sorts before, equal to or after o.
func (p ConstraintTypePosition) Compare(o ConstraintTypePosition) int {
	switch {
	case p.Type < o.Type:
		return -1
	case p.Type > o.Type:
		return 1
	case p.Index < o.Index:
		return -1
	case p.Index > o.Index:
		return 1
	default:
		return 0
	}
}

// Less reports whether p sorts before o.
func (p ConstraintTypePosition) Less(o ConstraintTypePosition) bool {
	return p.Compare(o) < 0
}

// Fragment is one positioned piece of a compiled constraint.
type Fragment struct {
	Position ConstraintTypePosition
	Text     string
}

// SortFragments orders fragments by position. The sort is stable so equal
// positions keep their emission order.
func SortFragments(fragments []Fragment) {
	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].Position.Less(fragments[j].Position)
	})
}

// Clause is one compiled constraint. It carries both the rendered query
// fragment for text-query backends and a structured match for backends that
// evaluate clauses directly. Clauses are immutable.
type Clause struct {
	field     string
	kind      ConstraintKind
	key       FieldKey
	name      string
	fragments []Fragment
	query     string

	tokens       []string
	lower, upper string
	hasLower     bool
	hasUpper     bool
	pattern      *regexp.Regexp
}

// ClauseSpec holds the parts of a Clause. Only the fields relevant to Kind
// are read.
type ClauseSpec struct {
	Field     string
	Kind      ConstraintKind
	Key       FieldKey
	Name      string
	Fragments []Fragment
	Query     string

	Tokens   []string
	Lower    string
	Upper    string
	HasLower bool
	HasUpper bool
	Pattern  *regexp.Regexp
}

// NewClause creates a clause from spec, copying its slices.
func NewClause(spec ClauseSpec) Clause {
	fragments := append([]Fragment(nil), spec.Fragments...)
	SortFragments(fragments)
	return Clause{
		field:     spec.Field,
		kind:      spec.Kind,
		key:       spec.Key,
		name:      spec.Name,
		fragments: fragments,
		query:     spec.Query,
		tokens:    append([]string(nil), spec.Tokens...),
		lower:     spec.Lower,
		upper:     spec.Upper,
		hasLower:  spec.HasLower,
		hasUpper:  spec.HasUpper,
		pattern:   spec.Pattern,
	}
}

// Field returns the logical field URI.
func (c Clause) Field() string { return c.field }

// Kind returns the constraint kind the clause was compiled from.
func (c Clause) Kind() ConstraintKind { return c.kind }

// Key returns the logical key of the targeted index field.
func (c Clause) Key() FieldKey { return c.key }

// Name returns the physical index field name.
func (c Clause) Name() string { return c.name }

// Fragments returns the sorted fragments.
func (c Clause) Fragments() []Fragment { return append([]Fragment(nil), c.fragments...) }

// Tokens returns the unescaped index tokens a value clause requires.
func (c Clause) Tokens() []string { return append([]string(nil), c.tokens...) }

// Bounds returns the unescaped range bounds and whether each is set.
func (c Clause) Bounds() (lower string, hasLower bool, upper string, hasUpper bool) {
	return c.lower, c.hasLower, c.upper, c.hasUpper
}

// Pattern returns the compiled pattern of a text clause.
func (c Clause) Pattern() *regexp.Regexp { return c.pattern }

// String returns the rendered query fragment.
func (c Clause) String() string { return c.query }

// CompiledQuery is the back-end form of a FieldQuery.
type CompiledQuery struct {
	clauses  []Clause
	query    string
	selected []string
	limit    int
	offset   int
}

// NewCompiledQuery creates a compiled query.
func NewCompiledQuery(clauses []Clause, query string, selected []string, limit, offset int) *CompiledQuery {
	return &CompiledQuery{
		clauses:  append([]Clause(nil), clauses...),
		query:    query,
		selected: append([]string(nil), selected...),
		limit:    limit,
		offset:   offset,
	}
}

// Clauses returns the clauses in field order. All must match.
func (q *CompiledQuery) Clauses() []Clause { return append([]Clause(nil), q.clauses...) }

// Selected returns the logical fields to read back; empty means all.
func (q *CompiledQuery) Selected() []string { return append([]string(nil), q.selected...) }

// Limit returns the maximum number of hits.
func (q *CompiledQuery) Limit() int { return q.limit }

// Offset returns the number of hits to skip.
func (q *CompiledQuery) Offset() int { return q.offset }

// String returns the rendered query.
func (q *CompiledQuery) String() string { return q.query }
