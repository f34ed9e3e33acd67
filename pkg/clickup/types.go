package clickup

// User is a ClickUp user.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Color    string `json:"color,omitempty"`
}

// Workspace is called a team in the API.
type Workspace struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Space belongs to a workspace.
type Space struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Private bool   `json:"private"`
}

// List is flattened with its parent ids; FolderID is empty for folderless lists.
type List struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	FolderID   string `json:"folder_id,omitempty"`
	FolderName string `json:"folder_name,omitempty"`
	SpaceID    string `json:"space_id,omitempty"`
}

// TaskStatus is the workflow status of a task.
type TaskStatus struct {
	Status string `json:"status"`
	Color  string `json:"color,omitempty"`
	Type   string `json:"type,omitempty"`
}

// TaskPriority is set only when the task has a priority.
type TaskPriority struct {
	ID       string `json:"id"`
	Priority string `json:"priority"`
}

// Ref is a named reference to a parent container.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Task is a ClickUp task. Timestamps are unix milliseconds encoded as strings.
type Task struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      TaskStatus    `json:"status"`
	Priority    *TaskPriority `json:"priority,omitempty"`
	Assignees   []User        `json:"assignees,omitempty"`
	DueDate     string        `json:"due_date,omitempty"`
	DateCreated string        `json:"date_created,omitempty"`
	DateUpdated string        `json:"date_updated,omitempty"`
	URL         string        `json:"url,omitempty"`
	List        Ref           `json:"list"`
	Folder      Ref           `json:"folder"`
	Space       Ref           `json:"space"`
}

// TaskQuery filters GetTasks.
type TaskQuery struct {
	Page          int
	Archived      bool
	IncludeClosed bool
	Statuses      []string
	Assignees     []string
}

// CreateTaskRequest is the body of a task creation.
type CreateTaskRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	DueDate     *int64  `json:"due_date,omitempty"`
	Assignees   []int64 `json:"assignees,omitempty"`
}

// UpdateTaskRequest only sends the fields that are set.
type UpdateTaskRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	DueDate     *int64  `json:"due_date,omitempty"`
}
