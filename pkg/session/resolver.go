package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-training/clickup-mcp/pkg/core"
	"github.com/go-training/clickup-mcp/pkg/oauth"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRefreshSkew is how close to expiry a token is refreshed before use.
	DefaultRefreshSkew = 60 * time.Second
	// DefaultRefreshTimeout bounds a shared refresh, which outlives the caller that started it.
	DefaultRefreshTimeout = 30 * time.Second
)

// TokenBroker is the subset of the OAuth broker the resolver needs.
type TokenBroker interface {
	RefreshToken(ctx context.Context, refreshToken string) (*core.TokenRecord, error)
	RevokeToken(ctx context.Context, token, hint string) error
}

// Resolver turns a session id into a token that is valid for the next call,
// refreshing it first when it is about to expire.
type Resolver struct {
	registry *Registry
	broker   TokenBroker
	skew     time.Duration
	timeout  time.Duration
	now      core.Clock
	group    singleflight.Group
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRefreshSkew overrides DefaultRefreshSkew.
func WithRefreshSkew(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d >= 0 {
			r.skew = d
		}
	}
}

// WithRefreshTimeout overrides DefaultRefreshTimeout.
func WithRefreshTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithResolverClock overrides time.Now.
func WithResolverClock(clock core.Clock) ResolverOption {
	return func(r *Resolver) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewResolver returns a resolver over registry using broker for refresh and revocation.
func NewResolver(registry *Registry, broker TokenBroker, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		registry: registry,
		broker:   broker,
		skew:     DefaultRefreshSkew,
		timeout:  DefaultRefreshTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the underlying registry.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Resolve returns the session with a token that does not expire within the
// refresh skew. Concurrent resolutions of one session share a single refresh,
// which runs detached from ctx: a caller that gives up returns ctx.Err() and
// leaves the refresh to finish for the others.
func (r *Resolver) Resolve(ctx context.Context, id string) (*core.Session, error) {
	if id == "" {
		return nil, ErrUnknownSession
	}
	s, err := r.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if !s.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if !s.Token.ExpiresWithin(r.now(), r.skew) {
		return s, nil
	}

	ch := r.group.DoChan(id, func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.refresh(refreshCtx, s)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		core.LoggerFromCtx(ctx).Debug("Session token refreshed", "shared", res.Shared)
		return clone(res.Val.(*core.Session)), nil
	}
}

// refreshRejected reports whether err means the refresh token is no good, as
// opposed to the authorization server not answering.
func refreshRejected(err error) bool {
	var rejected interface{ Rejected() bool }
	return errors.As(err, &rejected) && rejected.Rejected()
}

func (r *Resolver) refresh(ctx context.Context, s *core.Session) (*core.Session, error) {
	logger := core.LoggerFromCtx(ctx)

	// Another caller may have refreshed while this one waited on the group.
	if current, err := r.registry.Get(s.ID); err == nil && current.Token != nil &&
		current.Token.Generation > s.Token.Generation && !current.Token.ExpiresWithin(r.now(), r.skew) {
		return current, nil
	}

	token, err := r.broker.RefreshToken(ctx, s.Token.RefreshToken)
	if err != nil {
		if s.Token.RefreshToken != "" && !refreshRejected(err) {
			logger.Warn("Token refresh got no answer, keeping session token", "error", err)
			return nil, fmt.Errorf("%w: %w", ErrRefreshUnavailable, err)
		}
		logger.Warn("Token refresh failed, clearing session token", "error", err)
		r.registry.ClearToken(s.ID, s.Token.Generation)
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	err = r.registry.AttachToken(s.ID, token, core.Binding{})
	switch {
	case errors.Is(err, ErrStaleToken):
		// A newer exchange landed first; it wins.
	case err != nil:
		return nil, err
	}

	current, err := r.registry.Get(s.ID)
	if err != nil {
		return nil, err
	}
	if !current.Authenticated() {
		return nil, ErrUnauthenticated
	}
	return current, nil
}

// Logout revokes the session's tokens best effort and deletes the session.
func (r *Resolver) Logout(ctx context.Context, id string) error {
	s := r.registry.Delete(id)
	if s == nil {
		return ErrUnknownSession
	}
	if s.Token == nil || r.broker == nil {
		return nil
	}

	logger := core.LoggerFromCtx(ctx)
	if err := r.broker.RevokeToken(ctx, s.Token.AccessToken, oauth.HintAccessToken); err != nil {
		logger.Warn("Access token revocation failed", "error", err)
	}
	if s.Token.RefreshToken != "" {
		if err := r.broker.RevokeToken(ctx, s.Token.RefreshToken, oauth.HintRefreshToken); err != nil {
			logger.Warn("Refresh token revocation failed", "error", err)
		}
	}
	return nil
}
