// Package session keeps MCP sessions and the OAuth token bound to each of them.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-training/clickup-mcp/pkg/core"

	"github.com/google/uuid"
)

var (
	// ErrUnknownSession is returned for a session id that was never issued or was removed.
	ErrUnknownSession = errors.New("unknown session")
	// ErrUnauthenticated is returned when a session has no usable token.
	ErrUnauthenticated = errors.New("session is not authenticated")
	// ErrStaleToken is returned when attaching a token older than the one already attached.
	ErrStaleToken = errors.New("token is older than the attached one")
	// ErrNilToken is returned when attaching a nil token.
	ErrNilToken = errors.New("token cannot be nil")
	// ErrRefreshUnavailable is returned when a refresh got no answer from the
	// authorization server. The session keeps its token and may retry.
	ErrRefreshUnavailable = errors.New("token refresh unavailable")
)

// Registry is an in-memory, concurrency-safe table of sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*core.Session
	now      core.Clock
}

// NewRegistry returns an empty registry. A nil clock falls back to time.Now.
func NewRegistry(clock core.Clock) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		sessions: make(map[string]*core.Session),
		now:      clock,
	}
}

// Create issues a new unauthenticated session.
func (r *Registry) Create() *core.Session {
	now := r.now()
	s := &core.Session{
		ID:         uuid.New().String(),
		CreatedAt:  now,
		LastUsedAt: now,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	return clone(s)
}

// AttachToken replaces the token of session id. Non-empty binding fields
// overwrite the stored workspace and user.
func (r *Registry) AttachToken(id string, token *core.TokenRecord, binding core.Binding) error {
	if token == nil {
		return ErrNilToken
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrUnknownSession
	}
	if s.Token != nil && token.Generation < s.Token.Generation {
		return ErrStaleToken
	}

	stored := *token
	s.Token = &stored
	if binding.WorkspaceID != "" {
		s.WorkspaceID = binding.WorkspaceID
	}
	if binding.UserID != "" {
		s.UserID = binding.UserID
	}
	return nil
}

// Get returns a copy of session id and marks it used.
func (r *Registry) Get(id string) (*core.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	if now := r.now(); now.After(s.LastUsedAt) {
		s.LastUsedAt = now
	}
	return clone(s), nil
}

// ClearToken drops the token of session id if it is still at generation.
// It reports whether a token was removed.
func (r *Registry) ClearToken(id string, generation uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.Token == nil || s.Token.Generation != generation {
		return false
	}
	s.Token = nil
	return true
}

// Delete removes session id and returns it, or nil when it did not exist.
func (r *Registry) Delete(id string) *core.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	return s
}

// Evict removes every session not used within maxIdle of now.
func (r *Registry) Evict(now time.Time, maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, s := range r.sessions {
		if s.LastUsedAt.Add(maxIdle).Before(now) {
			delete(r.sessions, id)
			count++
		}
	}
	return count
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run evicts idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, maxIdle time.Duration) error {
	if interval <= 0 || maxIdle <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if count := r.Evict(r.now(), maxIdle); count > 0 {
				slog.Info("Evicted idle sessions", "count", count, "remaining", r.Len())
			}
		}
	}
}

func clone(s *core.Session) *core.Session {
	c := *s
	if s.Token != nil {
		token := *s.Token
		c.Token = &token
	}
	return &c
}
