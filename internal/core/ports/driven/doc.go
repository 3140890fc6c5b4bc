// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Index: Physical document storage and clause evaluation (memory, sqlite, solr)
//   - IndexingStateStore: Per-source indexing progress
//   - ConfigStore: Yard configuration (TOML file)
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EntitySource: Upstream site the Yard caches. Without it, Get never falls through.
//   - IndexingSource: Dataset feeding the Indexer. Without one, nothing is indexed.
//   - EntityScoreProvider: Ranks entities while indexing. Without it, every entity is included.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, codec or compiler package
package driven
