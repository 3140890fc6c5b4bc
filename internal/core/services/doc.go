// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Yard applies the cache policy on top of an Index. Indexer feeds
// IndexingSources into a Yard and Scheduler runs it periodically.
package services
