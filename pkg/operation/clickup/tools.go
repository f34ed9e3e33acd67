package clickup

import (
	"context"
	"strconv"
	"time"

	api "github.com/go-training/clickup-mcp/pkg/clickup"
	"github.com/go-training/clickup-mcp/pkg/core"

	"github.com/mark3labs/mcp-go/mcp"
)

// GetAuthorizedUserTool returns the ClickUp user behind the session.
var GetAuthorizedUserTool = mcp.NewTool("get_authorized_user",
	mcp.WithDescription("Get the ClickUp user that authorized this session"),
)

// GetWorkspacesTool lists the workspaces (teams) the user belongs to.
var GetWorkspacesTool = mcp.NewTool("get_workspaces",
	mcp.WithDescription("List the ClickUp workspaces the authorized user can access"),
)

// GetSpacesTool lists the spaces of a workspace.
var GetSpacesTool = mcp.NewTool("get_spaces",
	mcp.WithDescription("List the spaces of a workspace. Defaults to the workspace bound at sign in."),
	mcp.WithString("workspace_id",
		mcp.Description("Workspace (team) id. Optional when the session is bound to a workspace."),
	),
	mcp.WithBoolean("archived",
		mcp.Description("Return archived spaces instead of active ones"),
	),
)

// GetListsTool lists every list of a space, folders flattened.
var GetListsTool = mcp.NewTool("get_lists",
	mcp.WithDescription("List all lists of a space, including lists inside folders, as a flat list with parent ids"),
	mcp.WithString("space_id",
		mcp.Description("Space id"),
		mcp.Required(),
	),
)

// GetTasksTool lists one page of tasks of a list.
var GetTasksTool = mcp.NewTool("get_tasks",
	mcp.WithDescription("List tasks of a list, 100 per page"),
	mcp.WithString("list_id",
		mcp.Description("List id"),
		mcp.Required(),
	),
	mcp.WithNumber("page",
		mcp.Description("Zero based page number"),
	),
	mcp.WithBoolean("include_closed",
		mcp.Description("Include closed tasks"),
	),
	mcp.WithString("statuses",
		mcp.Description("Comma separated statuses to filter on"),
	),
	mcp.WithString("assignees",
		mcp.Description("Comma separated assignee user ids to filter on"),
	),
)

// GetTaskTool returns one task.
var GetTaskTool = mcp.NewTool("get_task",
	mcp.WithDescription("Get a task by id"),
	mcp.WithString("task_id",
		mcp.Description("Task id"),
		mcp.Required(),
	),
)

// CreateTaskTool creates a task in a list.
var CreateTaskTool = mcp.NewTool("create_task",
	mcp.WithDescription("Create a task in a list"),
	mcp.WithString("list_id",
		mcp.Description("List id"),
		mcp.Required(),
	),
	mcp.WithString("name",
		mcp.Description("Task name"),
		mcp.Required(),
	),
	mcp.WithString("description",
		mcp.Description("Task description (markdown)"),
	),
	mcp.WithString("status",
		mcp.Description("Initial status; must exist in the list"),
	),
	mcp.WithNumber("priority",
		mcp.Description("1 urgent, 2 high, 3 normal, 4 low"),
	),
	mcp.WithNumber("due_date",
		mcp.Description("Due date as unix time in milliseconds"),
	),
	mcp.WithString("assignees",
		mcp.Description("Comma separated user ids"),
	),
)

// UpdateTaskTool changes the given fields of a task.
var UpdateTaskTool = mcp.NewTool("update_task",
	mcp.WithDescription("Update a task. Only the provided fields are changed."),
	mcp.WithString("task_id",
		mcp.Description("Task id"),
		mcp.Required(),
	),
	mcp.WithString("name",
		mcp.Description("New name"),
	),
	mcp.WithString("description",
		mcp.Description("New description"),
	),
	mcp.WithString("status",
		mcp.Description("New status"),
	),
	mcp.WithNumber("priority",
		mcp.Description("1 urgent, 2 high, 3 normal, 4 low"),
	),
	mcp.WithNumber("due_date",
		mcp.Description("Due date as unix time in milliseconds"),
	),
)

// DeleteTaskTool deletes a task.
var DeleteTaskTool = mcp.NewTool("delete_task",
	mcp.WithDescription("Delete a task. This cannot be undone."),
	mcp.WithString("task_id",
		mcp.Description("Task id"),
		mcp.Required(),
	),
)

// ShowSessionTool describes the caller's session without revealing credentials.
var ShowSessionTool = mcp.NewTool("show_session",
	mcp.WithDescription("Show the current MCP session and whether it is signed in to ClickUp"),
)

// HandleGetAuthorizedUser handles get_authorized_user.
func (h *Handler) HandleGetAuthorizedUser(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return apiResult(h.client.GetAuthorizedUser(ctx, token))
}

// HandleGetWorkspaces handles get_workspaces.
func (h *Handler) HandleGetWorkspaces(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return apiResult(h.client.GetWorkspaces(ctx, token))
}

// HandleGetSpaces handles get_spaces.
func (h *Handler) HandleGetSpaces(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := accessToken(ctx)
	if err != nil {
		return nil, err
	}
	args := req.GetArguments()

	workspaceID, ok := stringArg(args, "workspace_id")
	if !ok {
		if s := sessionFromContext(ctx); s != nil {
			workspaceID = s.WorkspaceID
		}
	}
	if workspaceID == "" {
		return mcp.NewToolResultError("missing workspace_id: call get_workspaces first"), nil
	}
	return apiResult(h.client.GetSpaces(ctx, token, workspaceID, boolArg(args, "archived")))
}

// HandleGetLists handles get_lists.
func (h *Handler) HandleGetLists(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := accessToken(ctx)
	if err != nil {
		return nil, err
	}
	spaceID, err := requiredString(req.GetArguments(), "space_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return apiResult(h.client.GetLists(ctx, token, spaceID))
}

// HandleGetTasks handles get_tasks.
func (h *Handler) HandleGetTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := accessToken(ctx)
	if err != nil {
		return nil, err
	}
	args := req.GetArguments()
	listID, err := requiredString(args, "list_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, _, err := intArg(args, "page")
	if err != nil || page < 0 {
		return mcp.NewToolResultError("page must be a non-negative integer"), nil
	}

	return apiResult(h.client.GetTasks(ctx, token, listID, api.TaskQuery{
		Page:          int(page),
		IncludeClosed: boolArg(args, "include_closed"),
		Statuses:      listArg(args, "statuses"),
		Assignees:     listArg(args, "assignees"),
	}))
}

// HandleGetTask handles get_task.
func (h *Handler) HandleGetTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := accessToken(ctx)
	if err != nil {
		return nil, err
	}
	taskID, err := requiredString(req.GetArguments(), "task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return apiResult(h.client.GetTask(ctx, token, taskID))
}

// HandleCreateTask handles create_task.
func (h *Handler) HandleCreateTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := accessToken(ctx)
	if err != nil {
		return nil, err
	}
	args := req.GetArguments()

	listID, err := requiredString(args, "list_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := requiredString(args, "name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := api.CreateTaskRequest{Name: name}
	body.Description, _ = stringArg(args, "description")
	body.Status, _ = stringArg(args, "status")
	if body.Priority, err = priorityArg(args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if body.DueDate, err = optionalInt(args, "due_date"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	for _, id := range listArg(args, "assignees") {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return mcp.NewToolResultError("invalid assignee id " + strconv.Quote(id)), nil
		}
		body.Assignees = append(body.Assignees, n)
	}

	core.LoggerFromCtx(ctx).Info("Creating ClickUp task", "list_id", listID)
	return apiResult(h.client.CreateTask(ctx, token, listID, body))
}

// HandleUpdateTask handles update_task.
func (h *Handler) HandleUpdateTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := accessToken(ctx)
	if err != nil {
		return nil, err
	}
	args := req.GetArguments()

	taskID, err := requiredString(args, "task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var body api.UpdateTaskRequest
	for key, dst := range map[string]**string{
		"name":        &body.Name,
		"description": &body.Description,
		"status":      &body.Status,
	} {
		if v, ok := stringArg(args, key); ok {
			*dst = &v
		}
	}
	if body.Priority, err = priorityArg(args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if body.DueDate, err = optionalInt(args, "due_date"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if body == (api.UpdateTaskRequest{}) {
		return mcp.NewToolResultError("nothing to update"), nil
	}

	core.LoggerFromCtx(ctx).Info("Updating ClickUp task", "task_id", taskID)
	return apiResult(h.client.UpdateTask(ctx, token, taskID, body))
}

// HandleDeleteTask handles delete_task.
func (h *Handler) HandleDeleteTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := accessToken(ctx)
	if err != nil {
		return nil, err
	}
	taskID, err := requiredString(req.GetArguments(), "task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	core.LoggerFromCtx(ctx).Info("Deleting ClickUp task", "task_id", taskID)
	if err := h.client.DeleteTask(ctx, token, taskID); err != nil {
		return apiResult(nil, err)
	}
	return mcp.NewToolResultText("deleted task " + taskID), nil
}

type sessionView struct {
	Session       string    `json:"session"`
	Authenticated bool      `json:"authenticated"`
	WorkspaceID   string    `json:"workspace_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	AccessToken   string    `json:"access_token,omitempty"`
	Scope         string    `json:"scope,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
	CreatedAt     time.Time `json:"created_at"`
	LastUsedAt    time.Time `json:"last_used_at"`
}

// HandleShowSession handles show_session. It does not require a token.
func (h *Handler) HandleShowSession(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := core.SessionIDFromContext(ctx)
	if err != nil {
		return h.authRequired(), nil
	}
	s, err := h.resolver.Registry().Get(id)
	if err != nil {
		return h.authRequired(), nil
	}

	view := sessionView{
		Session:       core.MaskSecret(s.ID),
		Authenticated: s.Authenticated(),
		WorkspaceID:   s.WorkspaceID,
		UserID:        s.UserID,
		CreatedAt:     s.CreatedAt,
		LastUsedAt:    s.LastUsedAt,
	}
	if s.Token != nil {
		view.AccessToken = core.MaskSecret(s.Token.AccessToken)
		view.Scope = s.Token.Scope
		view.ExpiresAt = s.Token.ExpiresAt
	}
	return jsonResult(view)
}

func priorityArg(args map[string]any) (*int, error) {
	n, ok, err := intArg(args, "priority")
	if err != nil || !ok {
		return nil, err
	}
	if n < 1 || n > 4 {
		return nil, errPriority
	}
	p := int(n)
	return &p, nil
}

func optionalInt(args map[string]any, key string) (*int64, error) {
	n, ok, err := intArg(args, key)
	if err != nil || !ok {
		return nil, err
	}
	return &n, nil
}
