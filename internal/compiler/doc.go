// Package compiler translates field constraints into index queries.
//
// A constraint on one field compiles into a domain.Clause: a set of
// positioned fragments (prefix, field, suffix, assignment, value) that are
// sorted and rendered into a query string for text-query backends, plus a
// structured match (tokens, bounds or a regular expression) for backends
// that evaluate clauses themselves.
//
// Supported combinations:
//
//	value  text (str or txt), reference, integer, double, date, boolean
//	range  text (str), integer, double, date
//	text   str in a language, ref
//
// Anything else fails with *domain.UnsupportedConstraintError.
package compiler
