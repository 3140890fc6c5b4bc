package compiler

import (
	"github.com/apache/stanbol-sub040/internal/codec"
	"github.com/apache/stanbol-sub040/internal/core/domain"
)

// Match evaluates a clause against the stored values of a document. It is
// the reference semantics of the rendered query for backends that do not
// speak the query grammar.
//
// Value clauses need every token somewhere in the field, range clauses one
// token inside [lower, upper), and text clauses one value whose match form
// the pattern matches.
func Match(clause domain.Clause, doc *domain.IndexDocument) bool {
	key := clause.Key()
	values := doc.Fields[clause.Name()]
	if len(values) == 0 {
		return false
	}

	switch clause.Kind() {
	case domain.ConstraintValue:
		have := make(map[string]struct{})
		for _, v := range values {
			for _, tok := range codec.Analyze(domain.IndexValue{Value: v, Type: key.Type}) {
				have[tok] = struct{}{}
			}
		}
		for _, tok := range clause.Tokens() {
			if _, ok := have[tok]; !ok {
				return false
			}
		}
		return len(clause.Tokens()) > 0

	case domain.ConstraintRange:
		lower, hasLower, upper, hasUpper := clause.Bounds()
		for _, v := range values {
			for _, tok := range codec.Analyze(domain.IndexValue{Value: v, Type: key.Type}) {
				if (!hasLower || tok >= lower) && (!hasUpper || tok < upper) {
					return true
				}
			}
		}
		return false

	case domain.ConstraintText:
		re := clause.Pattern()
		if re == nil {
			return false
		}
		for _, v := range values {
			if re.MatchString(codec.MatchForm(domain.IndexValue{Value: v, Type: key.Type})) {
				return true
			}
		}
		return false

	default:
		return false
	}
}

// MatchAll reports whether a document satisfies every clause of q.
func MatchAll(q *domain.CompiledQuery, doc *domain.IndexDocument) bool {
	for _, clause := range q.Clauses() {
		if !Match(clause, doc) {
			return false
		}
	}
	return true
}
