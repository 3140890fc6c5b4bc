package domain

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ==================== Constraints ====================

func TestConstraint_Kinds(t *testing.T) {
	assert.Equal(t, ConstraintValue, NewValueConstraint(Integer(1)).Kind())
	assert.Equal(t, ConstraintRange, NewRangeConstraint(Integer(1), nil).Kind())
	assert.Equal(t, ConstraintText, NewTextConstraint("par*", false).Kind())
	assert.Equal(t, "text", ConstraintText.String())
	assert.Equal(t, "unknown", ConstraintKind(0).String())
}

func TestConstraint_Validate(t *testing.T) {
	tests := []struct {
		name    string
		c       Constraint
		wantErr bool
	}{
		{"value", NewValueConstraint(NewText("Paris", "fr")), false},
		{"value any language", NewValueConstraint(NewText("Paris", AnyLanguage)), false},
		{"value nil", ValueConstraint{}, true},
		{"value bad reference", NewValueConstraint(NewReference("paris")), true},
		{"range open upper", NewRangeConstraint(Integer(1), nil), false},
		{"range open lower", NewRangeConstraint(nil, Double(2)), false},
		{"range unbounded", NewRangeConstraint(nil, nil), true},
		{"range mixed types", NewRangeConstraint(Integer(1), Double(2)), true},
		{"range mixed languages", NewRangeConstraint(NewText("a", "en"), NewText("z", "de")), true},
		{"text", NewTextConstraint("par?s", true), false},
		{"text empty", NewTextConstraint("", false), true},
		{"text bad language", TextConstraint{Pattern: "x", Language: "en_US"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ==================== FieldQuery ====================

func TestFieldQuery_ConstrainReplaces(t *testing.T) {
	q := NewFieldQuery().
		Constrain(fieldPop, NewRangeConstraint(Integer(1), nil)).
		Constrain(fieldPop, NewValueConstraint(Integer(5)))

	assert.Len(t, q.Constraints, 1)
	assert.Equal(t, NewValueConstraint(Integer(5)), q.Constraints[fieldPop])
}

func TestFieldQuery_SelectedFields(t *testing.T) {
	q := NewFieldQuery()
	q.Constrain(fieldPop, NewValueConstraint(Integer(5)))
	assert.Nil(t, q.SelectedFields())

	q.Select(fieldSince, fieldName, fieldName)
	assert.Equal(t, []string{fieldName, fieldSince}, q.Selected)
	assert.Equal(t, []string{fieldName, fieldPop, fieldSince}, q.SelectedFields())
}

func TestFieldQuery_Validate(t *testing.T) {
	valid := NewFieldQuery().Select(fieldName).Constrain(fieldPop, NewValueConstraint(Integer(5)))
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		q    *FieldQuery
	}{
		{"negative limit", &FieldQuery{Limit: -1}},
		{"relative selection", NewFieldQuery().Select("name")},
		{"relative constrained field", NewFieldQuery().Constrain("pop", NewValueConstraint(Integer(1)))},
		{"nil constraint", NewFieldQuery().Constrain(fieldPop, nil)},
		{"invalid constraint", NewFieldQuery().Constrain(fieldPop, NewRangeConstraint(nil, nil))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.q.Validate(), ErrInvalidInput)
		})
	}
}

// ==================== Compiled queries ====================

func TestConstraintTypePosition_Order(t *testing.T) {
	assert.True(t, NewPosition(PositionPrefix, 9).Less(NewPosition(PositionField, 0)))
	assert.True(t, NewPosition(PositionValue, 0).Less(NewPosition(PositionValue, 1)))
	assert.Equal(t, 0, NewPosition(PositionSuffix, 2).Compare(NewPosition(PositionSuffix, 2)))
	assert.Equal(t, 1, NewPosition(PositionValue, 0).Compare(NewPosition(PositionAssignment, 5)))
	assert.Equal(t, "assignment", PositionAssignment.String())
}

func TestNewClause_SortsFragments(t *testing.T) {
	fragments := []Fragment{
		{Position: NewPosition(PositionValue, 0), Text: "5"},
		{Position: NewPosition(PositionField, 0), Text: "pop"},
		{Position: NewPosition(PositionAssignment, 0), Text: ":"},
		{Position: NewPosition(PositionPrefix, 0), Text: "int."},
	}
	c := NewClause(ClauseSpec{
		Field:     fieldPop,
		Kind:      ConstraintValue,
		Fragments: fragments,
		Tokens:    []string{"5"},
		Pattern:   regexp.MustCompile("^5$"),
	})

	var texts []string
	for _, f := range c.Fragments() {
		texts = append(texts, f.Text)
	}
	assert.Equal(t, []string{"int.", "pop", ":", "5"}, texts)
	assert.Equal(t, "5", fragments[0].Text, "input fragments keep their order")
	assert.Equal(t, []string{"5"}, c.Tokens())
	assert.Equal(t, fieldPop, c.Field())
	assert.Equal(t, ConstraintValue, c.Kind())
	assert.NotNil(t, c.Pattern())

	_, hasLower, _, hasUpper := c.Bounds()
	assert.False(t, hasLower)
	assert.False(t, hasUpper)
}

func TestCompiledQuery_Accessors(t *testing.T) {
	clauses := []Clause{NewClause(ClauseSpec{Field: fieldPop, Query: "int.pop:5"})}
	q := NewCompiledQuery(clauses, "int.pop:5", []string{fieldName}, 10, 20)

	clauses[0] = Clause{}
	assert.Equal(t, fieldPop, q.Clauses()[0].Field())
	assert.Equal(t, "int.pop:5", q.String())
	assert.Equal(t, []string{fieldName}, q.Selected())
	assert.Equal(t, 10, q.Limit())
	assert.Equal(t, 20, q.Offset())
}
