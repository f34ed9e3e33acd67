package core

import (
	"context"
	"log/slog"
	"time"
)

// Clock returns the current time. Stores and the broker take one so expiry
// logic can be driven by tests.
type Clock func() time.Time

// PendingAuth is an authorization attempt waiting for its callback.
// It is created on /authorize and consumed exactly once on /callback, or expires.
type PendingAuth struct {
	State         string    `json:"state"`
	CodeChallenge string    `json:"code_challenge,omitempty"`
	CodeVerifier  string    `json:"code_verifier,omitempty"`
	RedirectURI   string    `json:"redirect_uri"`
	SessionID     string    `json:"session_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Expired reports whether the pending authorization is older than ttl at now.
func (p *PendingAuth) Expired(now time.Time, ttl time.Duration) bool {
	return p.CreatedAt.Add(ttl).Before(now)
}

// TokenRecord is the token endpoint response kept for a session.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresIn    int64     `json:"expires_in,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`

	// Generation orders token records by the time their exchange completed.
	// A record with a lower generation never replaces a higher one.
	Generation uint64 `json:"generation"`
}

// ExpiresWithin reports whether the access token expires within d of now.
// Tokens without a declared expiry never expire.
func (t *TokenRecord) ExpiresWithin(now time.Time, d time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(t.ExpiresAt)
}

// String keeps credentials out of fmt output.
func (t *TokenRecord) String() string {
	if t == nil {
		return "<nil>"
	}
	return "TokenRecord{type=" + t.TokenType + ", access=" + MaskSecret(t.AccessToken) + "}"
}

// LogValue keeps credentials out of slog output.
func (t *TokenRecord) LogValue() slog.Value {
	if t == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("token_type", t.TokenType),
		slog.String("access_token", MaskSecret(t.AccessToken)),
		slog.Bool("has_refresh_token", t.RefreshToken != ""),
		slog.Time("expires_at", t.ExpiresAt),
		slog.Uint64("generation", t.Generation),
	)
}

// Binding carries the optional identity attached together with a token.
type Binding struct {
	WorkspaceID string
	UserID      string
}

// Session is a long-lived MCP session, independent of any single OAuth token.
type Session struct {
	ID          string
	Token       *TokenRecord
	WorkspaceID string
	UserID      string
	CreatedAt   time.Time
	LastUsedAt  time.Time
}

// Authenticated reports whether a token is attached.
func (s *Session) Authenticated() bool {
	return s.Token != nil && s.Token.AccessToken != ""
}

// StateStore holds pending authorizations keyed by their state value.
type StateStore interface {
	// Put inserts a new pending authorization. It fails if the state already exists.
	Put(ctx context.Context, pending *PendingAuth) error
	// Take atomically returns and removes the pending authorization. Missing,
	// consumed and expired states are all reported as not found.
	Take(ctx context.Context, state string) (*PendingAuth, error)
	// Sweep removes all entries older than the TTL at now.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
