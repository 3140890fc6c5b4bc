// Package domain defines the core entities of the Yard.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Value: Text, Reference and typed scalars attached to entity fields
//   - Representation: the schema-flexible record of one entity
//   - IndexDataType, FieldKey, IndexValue, IndexDocument: the physical model
//   - Constraint, FieldQuery: the logical query model
//   - ConstraintTypePosition, Fragment, Clause, CompiledQuery: compiled queries
//   - CacheStrategy, CacheingLevel, YardConfig: Yard configuration
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
