package mcp

import (
	"github.com/apache/stanbol-sub040/internal/core/ports/driving"
)

// Ports aggregates the driving ports the MCP server serves.
type Ports struct {
	// Yard answers entity lookups and field queries.
	Yard driving.Yard

	// Indexer reports indexing status. Optional.
	Indexer driving.IndexingDriver

	// Sources are the ids of the registered indexing sources.
	Sources []string
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Yard == nil {
		return ErrMissingYard
	}
	return nil
}
