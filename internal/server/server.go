// Package server exposes ytchat over HTTP and over MCP stdio.
package server

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/ytchat/internal/metrics"
	"github.com/raphaelgruber/ytchat/internal/tools"
)

// Server wraps the MCP server and its lifecycle.
type Server struct {
	mcp     *mcp.Server
	metrics *metrics.Collector
	logger  *slog.Logger
}

// New creates an MCP server named ytchat.
func New(version string, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	impl := &mcp.Implementation{
		Name:    "ytchat",
		Version: version,
	}
	s := &Server{
		mcp:     mcp.NewServer(impl, nil),
		metrics: collector,
		logger:  logger,
	}
	s.mcp.AddReceivingMiddleware(LoggingMiddleware(logger, collector))
	return s
}

// RegisterTools exposes the registry's tools.
func (s *Server) RegisterTools(reg *tools.Registry) {
	tools.RegisterMCP(s.mcp, reg)
	s.logger.Debug("mcp tools registered", "tools", reg.Names())
}

// Run serves on stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server", "transport", "stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}
