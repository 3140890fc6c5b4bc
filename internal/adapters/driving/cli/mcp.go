package cli

import (
	"github.com/spf13/cobra"

	"github.com/apache/stanbol-sub040/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server over stdio.

The server offers the get_entity, find_entities and count_entities tools
and the yard://config, yard://sources and yard://entities/{id} resources.

Client configuration:
  {
    "mcpServers": {
      "yard": {
        "command": "/path/to/yard",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

// newMCPServer builds the MCP server over the loaded services.
func newMCPServer(s *Services) (*mcp.Server, error) {
	ids := make([]string, len(s.Sources))
	for i, src := range s.Sources {
		ids[i] = src.Name()
	}
	return mcp.NewServer(&mcp.Ports{
		Yard:    s.Yard,
		Indexer: s.Indexer,
		Sources: ids,
	})
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	s, err := loadServices(ctx)
	if err != nil {
		return err
	}

	server, err := newMCPServer(s)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
