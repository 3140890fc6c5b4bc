// Package score provides EntityScoreProvider implementations used by the
// indexer to decide which entities of a source enter the Yard.
package score
