package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-training/clickup-mcp/pkg/core"
	"github.com/go-training/clickup-mcp/pkg/operation"
	"github.com/go-training/clickup-mcp/pkg/operation/clickup"

	"github.com/mark3labs/mcp-go/server"
)

// MCPServer wraps the underlying MCP server instance.
type MCPServer struct {
	server *server.MCPServer
}

// NewMCPServer creates and configures a new MCPServer instance with the
// ClickUp tools. Write tools are left out when readOnly is set.
func NewMCPServer(name, version string, h *clickup.Handler, readOnly bool) *MCPServer {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(operation.MCPToolHandlerMiddleware()),
	)

	operation.RegisterClickUpTool(mcpServer, h, readOnly)

	return &MCPServer{
		server: mcpServer,
	}
}

// ServeHTTP returns a streamable HTTP server that injects the session id
// from HTTP requests into the context.
func (s *MCPServer) ServeHTTP() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.server,
		server.WithHeartbeatInterval(30*time.Second),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			ctx = core.SessionFromRequest(ctx, r)
			return core.WithRequestID(ctx)
		}),
	)
}

// ServeStdio serves the MCP protocol over in/out until ctx is done or in is
// closed, taking the session id from the environment.
func (s *MCPServer) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.server)
	stdio.SetContextFunc(func(ctx context.Context) context.Context {
		ctx = core.SessionFromEnv(ctx)
		return core.WithRequestID(ctx)
	})
	return stdio.Listen(ctx, in, out)
}
