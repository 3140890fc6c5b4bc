// Package mcp provides an MCP (Model Context Protocol) server adapter for
// the Yard. It lets assistants look up and query cached entities over stdio.
package mcp

import "errors"

// ErrMissingYard is returned when the yard service is not provided.
var ErrMissingYard = errors.New("mcp: yard service is required")
