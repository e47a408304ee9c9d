// Package mcpserver exposes internal/engine's operations as an MCP tool
// and resource surface over streamable HTTP (spec.md §6), grounded on
// _examples/other_examples' mark3labs/mcp-go resource-registration
// pattern (the only pack file that imports that module).
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentfleet/agentmaild/internal/engine"
)

// Server wraps the MCP protocol server and the engine it calls into.
type Server struct {
	mcp *server.MCPServer
	eng *engine.Engine
}

// New builds a Server with every tool and resource (spec.md §6) wired to
// eng, ready to be mounted behind a streamable-HTTP listener via Handler.
func New(eng *engine.Engine) *Server {
	s := &Server{
		eng: eng,
		mcp: server.NewMCPServer("agentmaild", "0.1.0",
			server.WithToolCapabilities(true),
			server.WithResourceCapabilities(true, true),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mark3labs server, for tests and for
// wiring into a transport.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }
