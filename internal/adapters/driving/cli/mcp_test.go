package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apache/stanbol-sub040/internal/adapters/driving/mcp"
)

func TestMCPCmd_HasServe(t *testing.T) {
	commands := mcpCmd.Commands()
	require.Len(t, commands, 1)
	assert.Equal(t, "serve", commands[0].Name())
}

func TestNewMCPServer(t *testing.T) {
	env := setupTestServices(t)

	server, err := newMCPServer(yardServices)
	require.NoError(t, err)
	assert.NotNil(t, server)
	assert.Equal(t, "cities", env.source.Name())

	_, err = newMCPServer(&Services{})
	assert.ErrorIs(t, err, mcp.ErrMissingYard)
}

func TestMCPServeCmd_NotConfigured(t *testing.T) {
	SetServices(nil, nil)
	SetOpeners(nil, nil)

	_, err := execute(t, "mcp", "serve")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
