package operation

import (
	"github.com/mark3labs/mcp-go/server"
)

/*
Tool manages collections of tools to be registered with an MCPServer.

Fields:
  - write: ServerTools that change data in ClickUp.
  - read: ServerTools that only read.
*/
type Tool struct {
	write []server.ServerTool
	read  []server.ServerTool
}

/*
RegisterWrite registers a ServerTool as a write operation.

Parameters:
  - s: The ServerTool instance to register.
*/
func (t *Tool) RegisterWrite(s server.ServerTool) {
	t.write = append(t.write, s)
}

// RegisterRead registers a ServerTool as a read operation.
func (t *Tool) RegisterRead(s server.ServerTool) {
	t.read = append(t.read, s)
}

/*
Tools returns all registered ServerTools, write tools first. When readOnly is
true the write tools are left out.
*/
func (t *Tool) Tools(readOnly bool) []server.ServerTool {
	if readOnly {
		return append([]server.ServerTool(nil), t.read...)
	}
	tools := make([]server.ServerTool, 0, len(t.write)+len(t.read))
	tools = append(tools, t.write...)
	tools = append(tools, t.read...)
	return tools
}

// Wrap applies middleware to every registered handler.
func (t *Tool) Wrap(middleware server.ToolHandlerMiddleware) {
	for i := range t.write {
		t.write[i].Handler = middleware(t.write[i].Handler)
	}
	for i := range t.read {
		t.read[i].Handler = middleware(t.read[i].Handler)
	}
}
