package compiler

import (
	"strings"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

// Render serializes sorted fragments into a query clause.
//
// Value clauses with several tokens render as a parenthesised conjunction,
// range clauses as [lower TO upper} with "*" standing in for an open
// bound, and text clauses as the field name followed by the pattern.
func Render(kind domain.ConstraintKind, fragments []domain.Fragment) string {
	var head strings.Builder
	var values []domain.Fragment
	for _, f := range fragments {
		if f.Position.Type == domain.PositionValue {
			values = append(values, f)
			continue
		}
		head.WriteString(f.Text)
	}

	switch kind {
	case domain.ConstraintRange:
		lower, upper := openBound, openBound
		for _, v := range values {
			if v.Position.Index == 0 {
				lower = v.Text
			} else {
				upper = v.Text
			}
		}
		head.WriteString("[" + lower + " TO " + upper + "}")
	default:
		switch len(values) {
		case 0:
		case 1:
			head.WriteString(values[0].Text)
		default:
			parts := make([]string, len(values))
			for i, v := range values {
				parts[i] = v.Text
			}
			head.WriteString("(" + strings.Join(parts, " AND ") + ")")
		}
	}
	return head.String()
}
