package clickup

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
)

// ErrMissingID is returned when a required path id is empty.
var ErrMissingID = errors.New("id is required")

// GetAuthorizedUser returns the user owning token.
func (c *Client) GetAuthorizedUser(ctx context.Context, token string) (*User, error) {
	var resp struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/user", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// GetWorkspaces returns the workspaces token has access to.
func (c *Client) GetWorkspaces(ctx context.Context, token string) ([]Workspace, error) {
	var resp struct {
		Teams []Workspace `json:"teams"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/team", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Teams, nil
}

// GetSpaces returns the spaces of a workspace.
func (c *Client) GetSpaces(ctx context.Context, token, workspaceID string, archived bool) ([]Space, error) {
	if workspaceID == "" {
		return nil, ErrMissingID
	}
	query := url.Values{}
	query.Set("archived", strconv.FormatBool(archived))

	var resp struct {
		Spaces []Space `json:"spaces"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/team/"+url.PathEscape(workspaceID)+"/space", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Spaces, nil
}

// GetLists returns every list of a space, folderless lists first, then the
// lists of each folder, flattened with their parent ids.
func (c *Client) GetLists(ctx context.Context, token, spaceID string) ([]List, error) {
	if spaceID == "" {
		return nil, ErrMissingID
	}
	query := url.Values{}
	query.Set("archived", "false")
	base := "/space/" + url.PathEscape(spaceID)

	var folderless struct {
		Lists []List `json:"lists"`
	}
	if err := c.do(ctx, token, http.MethodGet, base+"/list", query, nil, &folderless); err != nil {
		return nil, err
	}

	var folders struct {
		Folders []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Lists []List `json:"lists"`
		} `json:"folders"`
	}
	if err := c.do(ctx, token, http.MethodGet, base+"/folder", query, nil, &folders); err != nil {
		return nil, err
	}

	lists := make([]List, 0, len(folderless.Lists))
	for _, l := range folderless.Lists {
		l.SpaceID = spaceID
		lists = append(lists, l)
	}
	for _, f := range folders.Folders {
		for _, l := range f.Lists {
			l.FolderID = f.ID
			l.FolderName = f.Name
			l.SpaceID = spaceID
			lists = append(lists, l)
		}
	}
	return lists, nil
}

// GetTasks returns one page of the tasks of a list.
func (c *Client) GetTasks(ctx context.Context, token, listID string, q TaskQuery) ([]Task, error) {
	if listID == "" {
		return nil, ErrMissingID
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(q.Page))
	query.Set("archived", strconv.FormatBool(q.Archived))
	if q.IncludeClosed {
		query.Set("include_closed", "true")
	}
	for _, s := range q.Statuses {
		query.Add("statuses[]", s)
	}
	for _, a := range q.Assignees {
		query.Add("assignees[]", a)
	}

	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/list/"+url.PathEscape(listID)+"/task", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// GetTask returns a single task.
func (c *Client) GetTask(ctx context.Context, token, taskID string) (*Task, error) {
	if taskID == "" {
		return nil, ErrMissingID
	}
	var task Task
	if err := c.do(ctx, token, http.MethodGet, "/task/"+url.PathEscape(taskID), nil, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask creates a task in a list.
func (c *Client) CreateTask(ctx context.Context, token, listID string, req CreateTaskRequest) (*Task, error) {
	if listID == "" {
		return nil, ErrMissingID
	}
	if req.Name == "" {
		return nil, errors.New("task name is required")
	}
	var task Task
	if err := c.do(ctx, token, http.MethodPost, "/list/"+url.PathEscape(listID)+"/task", nil, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask changes the fields set in req.
func (c *Client) UpdateTask(ctx context.Context, token, taskID string, req UpdateTaskRequest) (*Task, error) {
	if taskID == "" {
		return nil, ErrMissingID
	}
	var task Task
	if err := c.do(ctx, token, http.MethodPut, "/task/"+url.PathEscape(taskID), nil, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, token, taskID string) error {
	if taskID == "" {
		return ErrMissingID
	}
	return c.do(ctx, token, http.MethodDelete, "/task/"+url.PathEscape(taskID), nil, nil, nil)
}
