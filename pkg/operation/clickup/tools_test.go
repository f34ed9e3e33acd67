package clickup

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	api "github.com/go-training/clickup-mcp/pkg/clickup"
	"github.com/go-training/clickup-mcp/pkg/core"
	"github.com/go-training/clickup-mcp/pkg/session"

	"github.com/mark3labs/mcp-go/mcp"
)

const authorizeURL = "http://localhost:8095/authorize"

type noopBroker struct{}

func (noopBroker) RefreshToken(context.Context, string) (*core.TokenRecord, error) {
	return nil, session.ErrUnauthenticated
}

func (noopBroker) RevokeToken(context.Context, string, string) error { return nil }

type unreachableBroker struct{ noopBroker }

func (unreachableBroker) RefreshToken(context.Context, string) (*core.TokenRecord, error) {
	return nil, errors.New("dial tcp: connection refused")
}

type fixture struct {
	handler  *Handler
	registry *session.Registry
	requests chan *http.Request
	bodies   chan string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		requests: make(chan *http.Request, 10),
		bodies:   make(chan string, 10),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.requests <- r
		f.bodies <- string(body)

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Header.Get("Authorization") == "Bearer revoked":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"err":"Token invalid","ECODE":"OAUTH_025"}`))
		case r.URL.Path == "/user":
			_, _ = w.Write([]byte(`{"user":{"id":7,"username":"bob"}}`))
		case r.URL.Path == "/task/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"err":"Task not found","ECODE":"ITEM_013"}`))
		case strings.HasSuffix(r.URL.Path, "/space"):
			_, _ = w.Write([]byte(`{"spaces":[{"id":"s1","name":"Eng"}]}`))
		case r.Method == http.MethodPost:
			_, _ = w.Write([]byte(`{"id":"t9","name":"Created"}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			_, _ = w.Write([]byte(`{"id":"t1","name":"Task"}`))
		}
	}))
	t.Cleanup(srv.Close)

	f.registry = session.NewRegistry(nil)
	resolver := session.NewResolver(f.registry, noopBroker{})
	f.handler = NewHandler(resolver, api.NewClient(srv.URL), authorizeURL)
	return f
}

func (f *fixture) signedIn(t *testing.T, accessToken, workspaceID string) context.Context {
	t.Helper()
	s := f.registry.Create()
	err := f.registry.AttachToken(s.ID, &core.TokenRecord{
		AccessToken: accessToken,
		ExpiresAt:   time.Now().Add(time.Hour),
		Generation:  1,
	}, core.Binding{WorkspaceID: workspaceID, UserID: "7"})
	if err != nil {
		t.Fatalf("AttachToken() error = %v", err)
	}
	return core.WithSessionID(context.Background(), s.ID)
}

func call(t *testing.T, ctx context.Context, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := h(ctx, req)
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if res == nil {
		t.Fatal("handler returned a nil result")
	}
	return res
}

func text(res *mcp.CallToolResult) string {
	if len(res.Content) == 0 {
		return ""
	}
	if txt, ok := res.Content[0].(mcp.TextContent); ok {
		return txt.Text
	}
	return ""
}

func TestAuthenticated_RequiresSession(t *testing.T) {
	f := newFixture(t)
	handler := f.handler.Authenticated(f.handler.HandleGetAuthorizedUser)

	anonymous := core.WithSessionID(context.Background(), f.registry.Create().ID)

	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"no session id", context.Background()},
		{"unknown session", core.WithSessionID(context.Background(), "does-not-exist")},
		{"session without token", anonymous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := call(t, tt.ctx, handler, nil)
			if !res.IsError {
				t.Fatal("expected a tool error result")
			}
			if want := "authentication required: visit " + authorizeURL; text(res) != want {
				t.Errorf("text = %q, want %q", text(res), want)
			}
		})
	}
}

func TestAuthenticated_RejectedTokenIsCleared(t *testing.T) {
	f := newFixture(t)
	ctx := f.signedIn(t, "revoked", "")
	id, _ := core.SessionIDFromContext(ctx)

	res := call(t, ctx, f.handler.Authenticated(f.handler.HandleGetWorkspaces), nil)
	if !res.IsError || !strings.HasPrefix(text(res), "authentication required") {
		t.Fatalf("result = %+v", res)
	}

	s, err := f.registry.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if s.Authenticated() {
		t.Error("token rejected by ClickUp should be cleared from the session")
	}
}

func TestAuthenticated_UnreachableRefreshIsRetryable(t *testing.T) {
	registry := session.NewRegistry(nil)
	h := NewHandler(session.NewResolver(registry, unreachableBroker{}), api.NewClient("http://127.0.0.1:1"), authorizeURL)

	s := registry.Create()
	if err := registry.AttachToken(s.ID, &core.TokenRecord{
		AccessToken:  "expiring",
		RefreshToken: "rt",
		ExpiresAt:    time.Now().Add(5 * time.Second),
		Generation:   1,
	}, core.Binding{}); err != nil {
		t.Fatalf("AttachToken() error = %v", err)
	}

	res := call(t, core.WithSessionID(context.Background(), s.ID), h.Authenticated(h.HandleGetAuthorizedUser), nil)
	if !res.IsError || !strings.Contains(text(res), "try again") {
		t.Fatalf("result = %q, want a retryable tool error", text(res))
	}

	got, err := registry.Get(s.ID)
	if err != nil || !got.Authenticated() {
		t.Errorf("token should be kept when the refresh got no answer: %+v, %v", got, err)
	}
}

func TestHandleGetAuthorizedUser(t *testing.T) {
	f := newFixture(t)
	ctx := f.signedIn(t, "good-token", "")

	res := call(t, ctx, f.handler.Authenticated(f.handler.HandleGetAuthorizedUser), nil)
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", text(res))
	}

	var user api.User
	if err := json.Unmarshal([]byte(text(res)), &user); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if user.ID != 7 || user.Username != "bob" {
		t.Errorf("user = %+v", user)
	}
	if got := (<-f.requests).Header.Get("Authorization"); got != "Bearer good-token" {
		t.Errorf("Authorization = %q, want Bearer good-token", got)
	}
}

func TestHandleGetSpaces_DefaultsToBoundWorkspace(t *testing.T) {
	f := newFixture(t)
	handler := f.handler.Authenticated(f.handler.HandleGetSpaces)

	res := call(t, f.signedIn(t, "tok", "9001"), handler, nil)
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", text(res))
	}
	if path := (<-f.requests).URL.Path; path != "/team/9001/space" {
		t.Errorf("path = %q, want /team/9001/space", path)
	}
	<-f.bodies

	res = call(t, f.signedIn(t, "tok", ""), handler, nil)
	if !res.IsError || !strings.Contains(text(res), "workspace_id") {
		t.Errorf("result = %q, want missing workspace_id error", text(res))
	}
}

func TestHandleGetTask_APIErrorIsToolError(t *testing.T) {
	f := newFixture(t)
	ctx := f.signedIn(t, "tok", "")
	handler := f.handler.Authenticated(f.handler.HandleGetTask)

	res := call(t, ctx, handler, map[string]any{"task_id": "missing"})
	if !res.IsError || !strings.Contains(text(res), "Task not found") {
		t.Errorf("result = %q, want not found tool error", text(res))
	}

	res = call(t, ctx, handler, map[string]any{})
	if !res.IsError || text(res) != "missing task_id" {
		t.Errorf("result = %q, want missing task_id", text(res))
	}
}

func TestHandleCreateTask(t *testing.T) {
	f := newFixture(t)
	ctx := f.signedIn(t, "tok", "")
	handler := f.handler.Authenticated(f.handler.HandleCreateTask)

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{"missing name", map[string]any{"list_id": "l1"}, "missing name"},
		{"bad priority", map[string]any{"list_id": "l1", "name": "x", "priority": float64(9)}, "priority must be between 1 and 4"},
		{"bad assignee", map[string]any{"list_id": "l1", "name": "x", "assignees": "12,abc"}, `invalid assignee id "abc"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := call(t, ctx, handler, tt.args)
			if !res.IsError || text(res) != tt.wantErr {
				t.Errorf("result = %q, want %q", text(res), tt.wantErr)
			}
		})
	}

	res := call(t, ctx, handler, map[string]any{
		"list_id":   "l1",
		"name":      "Ship it",
		"priority":  float64(2),
		"due_date":  float64(1735732800000),
		"assignees": "12, 34",
	})
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", text(res))
	}
	req := <-f.requests
	body := <-f.bodies
	if req.URL.Path != "/list/l1/task" || req.Method != http.MethodPost {
		t.Errorf("request = %s %s", req.Method, req.URL.Path)
	}
	var sent map[string]any
	if err := json.Unmarshal([]byte(body), &sent); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if sent["name"] != "Ship it" || sent["priority"] != float64(2) || sent["due_date"] != float64(1735732800000) {
		t.Errorf("body = %s", body)
	}
	if assignees, _ := sent["assignees"].([]any); len(assignees) != 2 {
		t.Errorf("assignees = %v, want 2 ids", sent["assignees"])
	}
}

func TestHandleUpdateTask(t *testing.T) {
	f := newFixture(t)
	ctx := f.signedIn(t, "tok", "")
	handler := f.handler.Authenticated(f.handler.HandleUpdateTask)

	res := call(t, ctx, handler, map[string]any{"task_id": "t1"})
	if !res.IsError || text(res) != "nothing to update" {
		t.Errorf("result = %q, want nothing to update", text(res))
	}

	res = call(t, ctx, handler, map[string]any{"task_id": "t1", "status": "done"})
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", text(res))
	}
	req := <-f.requests
	if body := <-f.bodies; req.Method != http.MethodPut || body != `{"status":"done"}` {
		t.Errorf("request = %s %s", req.Method, body)
	}
}

func TestHandleDeleteTask(t *testing.T) {
	f := newFixture(t)
	ctx := f.signedIn(t, "tok", "")

	res := call(t, ctx, f.handler.Authenticated(f.handler.HandleDeleteTask), map[string]any{"task_id": "t1"})
	if res.IsError || text(res) != "deleted task t1" {
		t.Errorf("result = %q", text(res))
	}
}

func TestHandleShowSession(t *testing.T) {
	f := newFixture(t)

	ctx := f.signedIn(t, "access-token-secret", "9001")
	res := call(t, ctx, f.handler.HandleShowSession, nil)
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", text(res))
	}
	out := text(res)
	if strings.Contains(out, "access-token-secret") {
		t.Error("show_session must not reveal the access token")
	}

	var view sessionView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if !view.Authenticated || view.WorkspaceID != "9001" || view.AccessToken != "access****et" {
		t.Errorf("view = %+v", view)
	}

	anonymous := core.WithSessionID(context.Background(), f.registry.Create().ID)
	res = call(t, anonymous, f.handler.HandleShowSession, nil)
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", text(res))
	}
	if !strings.Contains(text(res), `"authenticated": false`) {
		t.Errorf("result = %s, want unauthenticated view", text(res))
	}

	res = call(t, context.Background(), f.handler.HandleShowSession, nil)
	if !res.IsError {
		t.Error("show_session without a session should be a tool error")
	}
}
