// Package sqlite provides a SQLite-based implementation of the Index and
// IndexingStateStore driven ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. Both ports share a single database
// connection.
//
// # Schema
//
// Each entity is a row in entities. The raw values of its index fields live in
// entity_fields and their analysed tokens in entity_tokens, so value and range
// clauses are answered by token lookups. Text clauses are matched in Go
// against the raw values.
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.yard/data/index.db
//
// # Thread Safety
//
// All operations are thread-safe. Every entity is written in its own
// transaction and SQLite in WAL mode lets readers continue meanwhile.
package sqlite
