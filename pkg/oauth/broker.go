// Package oauth implements the authorization-code broker: it issues authorize
// URLs bound to a single-use state and a PKCE pair, consumes the state on the
// callback, and talks to the token endpoint for exchange, refresh and revocation.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-training/clickup-mcp/pkg/core"
	"github.com/go-training/clickup-mcp/pkg/pkce"
	"github.com/go-training/clickup-mcp/pkg/store"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
)

// AuthorizeRequest is the input of CreateAuthorizationURL.
type AuthorizeRequest struct {
	// RedirectURI is where the authorization server sends the user back.
	RedirectURI string
	// State is optional; a random one is generated when empty.
	State string
	// SessionID optionally binds the resulting token to an existing session.
	SessionID string
}

// AuthorizeResponse carries the authorization server URL and its state.
type AuthorizeResponse struct {
	URL   string
	State string
}

// ExchangeResult is the outcome of a successful code exchange.
type ExchangeResult struct {
	Token *core.TokenRecord
	// Pending is the consumed authorization, with its verifier already cleared.
	Pending *core.PendingAuth
}

// Broker orchestrates the authorization-code flow against one authorization server.
type Broker struct {
	cfg        Config
	states     core.StateStore
	httpClient *http.Client
	now        core.Clock
	generation atomic.Uint64
	telemetry  *telemetry
}

// Option configures a Broker.
type Option func(*Broker)

// WithClock overrides time.Now.
func WithClock(clock core.Clock) Option {
	return func(b *Broker) {
		if clock != nil {
			b.now = clock
		}
	}
}

// WithHTTPClient overrides the client used for token and revocation requests.
func WithHTTPClient(client *http.Client) Option {
	return func(b *Broker) {
		if client != nil {
			b.httpClient = client
		}
	}
}

// NewBroker validates cfg and returns a broker storing pending states in states.
func NewBroker(cfg Config, states core.StateStore, opts ...Option) (*Broker, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid oauth config: %w", err)
	}
	if states == nil {
		return nil, errors.New("state store is required")
	}

	b := &Broker{
		cfg:    cfg,
		states: states,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		now:       time.Now,
		telemetry: newTelemetry(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Config returns the effective configuration.
func (b *Broker) Config() Config {
	return b.cfg
}

// CreateAuthorizationURL stores a new pending authorization and returns the URL
// the user agent should be redirected to. No network call is made.
func (b *Broker) CreateAuthorizationURL(ctx context.Context, req AuthorizeRequest) (resp *AuthorizeResponse, err error) {
	ctx, span := b.telemetry.start(ctx, "oauth.authorize",
		attribute.Bool("oauth.session_bound", req.SessionID != ""))
	defer func() { b.telemetry.finish(ctx, span, b.telemetry.authorizations, err) }()

	logger := core.LoggerFromCtx(ctx)

	if err := validateAbsoluteURL(req.RedirectURI); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRedirectURI, err)
	}

	state := req.State
	if state == "" {
		state, err = GenerateState()
		if err != nil {
			return nil, err
		}
	}

	pair := pkce.Generate()
	pending := &core.PendingAuth{
		State:         state,
		CodeChallenge: pair.Challenge,
		CodeVerifier:  pair.Verifier,
		RedirectURI:   req.RedirectURI,
		SessionID:     req.SessionID,
		CreatedAt:     b.now(),
	}
	if err := b.states.Put(ctx, pending); err != nil {
		if errors.Is(err, store.ErrDuplicateState) {
			logger.Error("Duplicate oauth state generated", "caller_supplied", req.State != "")
		}
		return nil, fmt.Errorf("failed to store pending authorization: %w", err)
	}

	authURL := b.cfg.oauth2Config(req.RedirectURI).AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pair.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", pair.Method),
	)

	logger.Debug("Authorization URL created",
		"redirect_uri", req.RedirectURI,
		"session_bound", req.SessionID != "",
	)

	return &AuthorizeResponse{URL: authURL, State: state}, nil
}

// ValidateState consumes state and returns its pending authorization.
// It returns ErrInvalidState for unknown, consumed and expired states alike.
func (b *Broker) ValidateState(ctx context.Context, state string) (*core.PendingAuth, error) {
	pending, err := b.states.Take(ctx, state)
	if err != nil {
		if errors.Is(err, store.ErrStateNotFound) || errors.Is(err, store.ErrEmptyState) {
			if b.telemetry.stateRejected != nil {
				b.telemetry.stateRejected.Add(ctx, 1)
			}
			return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		return nil, fmt.Errorf("failed to validate state: %w", err)
	}
	return pending, nil
}

// ExchangeCodeForToken consumes state and trades code for a token, proving
// possession of the PKCE verifier recorded for that state. The verifier is
// cleared whatever the outcome.
func (b *Broker) ExchangeCodeForToken(ctx context.Context, code, state string) (result *ExchangeResult, err error) {
	ctx, span := b.telemetry.start(ctx, "oauth.exchange")
	defer func() { b.telemetry.finish(ctx, span, b.telemetry.exchanges, err) }()

	pending, err := b.ValidateState(ctx, state)
	if err != nil {
		return nil, err
	}
	verifier := pending.CodeVerifier
	pending.CodeVerifier = ""

	if code == "" {
		return nil, &TokenError{Op: "exchange", Code: "invalid_request", kind: ErrTokenExchangeFailed}
	}

	conf := b.cfg.oauth2Config(pending.RedirectURI)
	tok, err := conf.Exchange(b.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, b.tokenError(ctx, "exchange", ErrTokenExchangeFailed, err)
	}

	record := b.record(tok)
	core.LoggerFromCtx(ctx).Info("Authorization code exchanged", "token", record)

	return &ExchangeResult{Token: record, Pending: pending}, nil
}

// RefreshToken runs the refresh grant. The returned record replaces the old one
// in full; when the server does not rotate the refresh token the old value is carried over.
func (b *Broker) RefreshToken(ctx context.Context, refreshToken string) (record *core.TokenRecord, err error) {
	ctx, span := b.telemetry.start(ctx, "oauth.refresh")
	defer func() { b.telemetry.finish(ctx, span, b.telemetry.refreshes, err) }()

	if refreshToken == "" {
		return nil, &TokenError{Op: "refresh", Code: "missing_refresh_token", kind: ErrTokenRefreshFailed}
	}

	conf := b.cfg.oauth2Config("")
	tok, err := conf.TokenSource(b.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, b.tokenError(ctx, "refresh", ErrTokenRefreshFailed, err)
	}

	record = b.record(tok)
	core.LoggerFromCtx(ctx).Info("Token refreshed", "token", record)
	return record, nil
}

// GenerateState returns 32 random bytes encoded as unpadded base64url.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (b *Broker) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
}

// record converts an oauth2 token and stamps it with the next generation.
// Expiry is recomputed from expires_in using the broker clock.
func (b *Broker) record(tok *oauth2.Token) *core.TokenRecord {
	record := &core.TokenRecord{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    tok.ExpiresIn,
		ExpiresAt:    tok.Expiry,
		RefreshToken: tok.RefreshToken,
		Generation:   b.generation.Add(1),
	}
	if tok.ExpiresIn > 0 {
		record.ExpiresAt = b.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		record.Scope = scope
	}
	return record
}

// tokenError maps an oauth2 failure onto a TokenError, logging the upstream body
// at debug level only.
func (b *Broker) tokenError(ctx context.Context, op string, kind, err error) error {
	tokenErr := &TokenError{Op: op, kind: kind}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil {
			tokenErr.StatusCode = retrieveErr.Response.StatusCode
		}
		tokenErr.Code = retrieveErr.ErrorCode
		tokenErr.Detail = string(retrieveErr.Body)
	} else {
		tokenErr.cause = err
	}

	core.LoggerFromCtx(ctx).Debug("Token endpoint call failed",
		"op", op,
		"status", tokenErr.StatusCode,
		"detail", tokenErr.Detail,
		"error", err,
	)
	return tokenErr
}
