package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-training/clickup-mcp/pkg/core"
)

var (
	// ErrStateNotFound is returned when a state is unknown, already consumed or expired.
	ErrStateNotFound = errors.New("oauth state not found")
	// ErrDuplicateState is returned when a state value is already pending.
	ErrDuplicateState = errors.New("oauth state already exists")
	// ErrNilPendingAuth is returned when attempting to save a nil pending authorization.
	ErrNilPendingAuth = errors.New("pending authorization cannot be nil")
	// ErrEmptyState is returned when the state string is empty.
	ErrEmptyState = errors.New("state string cannot be empty")
)

// DefaultStateTTL bounds how long an authorization attempt stays valid.
const DefaultStateTTL = 10 * time.Minute

// MemoryStore implements the core.StateStore interface using an in-memory map.
// It provides thread-safe storage for pending authorizations.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]*core.PendingAuth
	ttl    time.Duration
	now    core.Clock
}

// NewMemoryStore creates a new instance of MemoryStore.
// A zero ttl falls back to DefaultStateTTL and a nil clock to time.Now.
func NewMemoryStore(ttl time.Duration, clock core.Clock) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		states: make(map[string]*core.PendingAuth),
		ttl:    ttl,
		now:    clock,
	}
}

// Put stores a pending authorization in memory.
// An existing, unexpired entry for the same state is never overwritten.
func (m *MemoryStore) Put(ctx context.Context, pending *core.PendingAuth) error {
	if pending == nil {
		return ErrNilPendingAuth
	}
	if pending.State == "" {
		return ErrEmptyState
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.states[pending.State]; ok && !existing.Expired(m.now(), m.ttl) {
		return ErrDuplicateState
	}

	stored := *pending
	m.states[pending.State] = &stored
	return nil
}

// Take removes and returns the pending authorization for state.
// Expired entries are removed as well and reported as ErrStateNotFound.
func (m *MemoryStore) Take(ctx context.Context, state string) (*core.PendingAuth, error) {
	if state == "" {
		return nil, ErrEmptyState
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pending, ok := m.states[state]
	if !ok {
		return nil, ErrStateNotFound
	}
	delete(m.states, state)

	if pending.Expired(m.now(), m.ttl) {
		return nil, ErrStateNotFound
	}
	return pending, nil
}

// Sweep removes every entry whose createdAt + TTL is before now.
func (m *MemoryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for state, pending := range m.states {
		if pending.Expired(now, m.ttl) {
			delete(m.states, state)
			count++
		}
	}
	return count, nil
}

// Len returns the number of pending entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// Run sweeps expired states every interval until ctx is done.
func (m *MemoryStore) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			count, _ := m.Sweep(ctx, m.now())
			if count > 0 {
				slog.Debug("Swept expired oauth states", "count", count)
			}
		}
	}
}
