package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/apache/stanbol-sub040/internal/logger"
)

// Version is the MCP server version.
const Version = "0.1.0"

var mcpLog = logger.For("mcp")

// Server is the MCP server for a Yard.
type Server struct {
	ports  *Ports
	server *mcp.Server
}

// NewServer creates a new MCP server with the given ports.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	impl := &mcp.Implementation{
		Name:    "yard-" + ports.Yard.Config().ID,
		Version: Version,
	}

	s := &Server{
		ports:  ports,
		server: mcp.NewServer(impl, nil),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run serves MCP over stdio until the context is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	mcpLog.Info("Serving yard %s over stdio", s.ports.Yard.Config().ID)
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
