// Package clickup provides MCP tools backed by the ClickUp API. Every tool
// except show_session runs on behalf of the OAuth token bound to the caller's session.
package clickup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	api "github.com/go-training/clickup-mcp/pkg/clickup"
	"github.com/go-training/clickup-mcp/pkg/core"
	"github.com/go-training/clickup-mcp/pkg/session"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type sessionKey struct{}

var errPriority = errors.New("priority must be between 1 and 4")

// Handler holds the collaborators shared by the ClickUp tools.
type Handler struct {
	resolver     *session.Resolver
	client       *api.Client
	authorizeURL string
}

// NewHandler returns a Handler. authorizeURL is shown to callers that need to sign in.
func NewHandler(resolver *session.Resolver, client *api.Client, authorizeURL string) *Handler {
	return &Handler{
		resolver:     resolver,
		client:       client,
		authorizeURL: authorizeURL,
	}
}

func (h *Handler) authRequired() *mcp.CallToolResult {
	return mcp.NewToolResultError("authentication required: visit " + h.authorizeURL)
}

// Authenticated resolves the caller's session before next runs. Unknown and
// unauthenticated sessions get a tool error result pointing at the authorize URL;
// a refresh that got no answer gets a retryable tool error and keeps the token.
func (h *Handler) Authenticated(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := core.LoggerFromCtx(ctx)

		id, err := core.SessionIDFromContext(ctx)
		if err != nil {
			logger.Info("Tool call without session", "tool", req.Params.Name)
			return h.authRequired(), nil
		}

		s, err := h.resolver.Resolve(ctx, id)
		if err != nil {
			if errors.Is(err, session.ErrUnknownSession) || errors.Is(err, session.ErrUnauthenticated) {
				logger.Info("Tool call on unauthenticated session", "tool", req.Params.Name, "error", err)
				return h.authRequired(), nil
			}
			if errors.Is(err, session.ErrRefreshUnavailable) {
				logger.Warn("Token refresh unavailable", "tool", req.Params.Name, "error", err)
				return mcp.NewToolResultError("ClickUp authorization server unreachable, try again shortly"), nil
			}
			logger.Error("Failed to resolve session", "error", err)
			return nil, err
		}

		ctx = core.WithToken(ctx, s.Token)
		ctx = context.WithValue(ctx, sessionKey{}, s)

		res, err := next(ctx, req)

		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Unauthorized() {
			logger.Warn("ClickUp rejected the session token", "code", apiErr.Code)
			h.resolver.Registry().ClearToken(s.ID, s.Token.Generation)
			return h.authRequired(), nil
		}
		return res, err
	}
}

func sessionFromContext(ctx context.Context) *core.Session {
	s, _ := ctx.Value(sessionKey{}).(*core.Session)
	return s
}

func accessToken(ctx context.Context) (string, error) {
	token, err := core.TokenFromContext(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// jsonResult renders v as indented JSON text content.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// apiResult turns a ClickUp error other than 401 into a tool error the model can read.
func apiResult(v any, err error) (*mcp.CallToolResult, error) {
	if err == nil {
		return jsonResult(v)
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && !apiErr.Unauthorized() {
		return mcp.NewToolResultError(apiErr.Error()), nil
	}
	if errors.Is(err, api.ErrMissingID) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return nil, err
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func requiredString(args map[string]any, key string) (string, error) {
	v, ok := stringArg(args, key)
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	return v, nil
}

// intArg accepts JSON numbers and numeric strings.
func intArg(args map[string]any, key string) (int64, bool, error) {
	switch v := args[key].(type) {
	case nil:
		return 0, false, nil
	case float64:
		return int64(v), true, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, false, nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid %s: %w", key, err)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("invalid %s: unexpected type %T", key, v)
	}
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// listArg splits a comma separated string argument.
func listArg(args map[string]any, key string) []string {
	v, ok := stringArg(args, key)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
