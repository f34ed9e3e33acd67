package operation

import (
	"github.com/go-training/clickup-mcp/pkg/operation/clickup"

	"github.com/mark3labs/mcp-go/server"
)

/*
ClickUpTools collects the ClickUp tools served by h.

All of them except show_session require an authenticated session; they are
wrapped with h.Authenticated so handlers can read the token from the context.
*/
func ClickUpTools(h *clickup.Handler) *Tool {
	tool := &Tool{}

	tool.RegisterRead(server.ServerTool{Tool: clickup.GetAuthorizedUserTool, Handler: h.HandleGetAuthorizedUser})
	tool.RegisterRead(server.ServerTool{Tool: clickup.GetWorkspacesTool, Handler: h.HandleGetWorkspaces})
	tool.RegisterRead(server.ServerTool{Tool: clickup.GetSpacesTool, Handler: h.HandleGetSpaces})
	tool.RegisterRead(server.ServerTool{Tool: clickup.GetListsTool, Handler: h.HandleGetLists})
	tool.RegisterRead(server.ServerTool{Tool: clickup.GetTasksTool, Handler: h.HandleGetTasks})
	tool.RegisterRead(server.ServerTool{Tool: clickup.GetTaskTool, Handler: h.HandleGetTask})

	tool.RegisterWrite(server.ServerTool{Tool: clickup.CreateTaskTool, Handler: h.HandleCreateTask})
	tool.RegisterWrite(server.ServerTool{Tool: clickup.UpdateTaskTool, Handler: h.HandleUpdateTask})
	tool.RegisterWrite(server.ServerTool{Tool: clickup.DeleteTaskTool, Handler: h.HandleDeleteTask})

	tool.Wrap(h.Authenticated)

	// Registered after Wrap: it reports unauthenticated sessions instead of refusing them.
	tool.RegisterRead(server.ServerTool{Tool: clickup.ShowSessionTool, Handler: h.HandleShowSession})

	return tool
}

/*
RegisterClickUpTool registers the ClickUp tools to the specified MCPServer instance.

Parameters:
  - s: Pointer to the MCPServer instance where the tools will be registered.
  - h: Handler carrying the session resolver and the ClickUp client.
  - readOnly: when true, create_task, update_task and delete_task are not exposed.
*/
func RegisterClickUpTool(s *server.MCPServer, h *clickup.Handler, readOnly bool) {
	s.AddTools(ClickUpTools(h).Tools(readOnly)...)
}
