package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
)

// SessionIDKey is a custom context key type for storing the MCP session ID in context.
type SessionIDKey struct{}

// RequestIDKey is a custom context key type for storing the request ID in context.
type RequestIDKey struct{}

// TokenKey is a custom context key type for storing the resolved TokenRecord in context.
type TokenKey struct{}

// SessionEnv is the environment variable read by the stdio transport.
const SessionEnv = "MCP_SESSION_ID"

// WithRequestID returns a new context with a generated request ID set.
func WithRequestID(ctx context.Context) context.Context {
	reqID := uuid.New().String()
	return context.WithValue(ctx, RequestIDKey{}, reqID)
}

// RequestIDFromContext returns the request ID, or an empty string.
func RequestIDFromContext(ctx context.Context) string {
	reqID, _ := ctx.Value(RequestIDKey{}).(string)
	return reqID
}

// WithSessionID returns a new context with the provided session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey{}, sessionID)
}

// SessionIDFromRequest extracts the session ID from the bearer credential of
// the HTTP request. Clients present the session ID they received from the
// OAuth callback as "Authorization: Bearer <session-id>".
func SessionIDFromRequest(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return ""
	}
	scheme, value, found := strings.Cut(auth, " ")
	if !found {
		return auth
	}
	if !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

// SessionFromRequest stores the session ID carried by the HTTP request in the context.
// Used for HTTP transport.
func SessionFromRequest(ctx context.Context, r *http.Request) context.Context {
	return WithSessionID(ctx, SessionIDFromRequest(r))
}

// SessionFromEnv stores the MCP_SESSION_ID environment variable in the context.
// Used for stdio transport.
func SessionFromEnv(ctx context.Context) context.Context {
	return WithSessionID(ctx, os.Getenv(SessionEnv))
}

// SessionIDFromContext retrieves the session ID from the context.
// Returns an error if it is missing or empty.
func SessionIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(SessionIDKey{}).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("missing session")
	}
	return id, nil
}

// WithToken returns a new context carrying the resolved token for the current call.
func WithToken(ctx context.Context, token *TokenRecord) context.Context {
	return context.WithValue(ctx, TokenKey{}, token)
}

// TokenFromContext retrieves the resolved token from the context.
func TokenFromContext(ctx context.Context) (*TokenRecord, error) {
	token, ok := ctx.Value(TokenKey{}).(*TokenRecord)
	if !ok || token == nil {
		return nil, fmt.Errorf("missing token")
	}
	return token, nil
}

// LoggerFromCtx returns a slog.Logger with request_id field if present in context.
// If no request ID is found, it returns the default logger.
func LoggerFromCtx(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if id, _ := ctx.Value(SessionIDKey{}).(string); id != "" {
		logger = logger.With("session", MaskSecret(id))
	}
	return logger
}

// MaskSecret keeps the first 6 and last 2 characters of a credential.
func MaskSecret(s string) string {
	if len(s) > 8 {
		return s[:6] + "****" + s[len(s)-2:]
	}
	if len(s) > 0 {
		return "****"
	}
	return ""
}
