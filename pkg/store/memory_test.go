package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-training/clickup-mcp/pkg/core"
)

// fakeClock is a settable clock shared by the store tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore(0, nil)

	if store == nil {
		t.Fatal("NewMemoryStore() returned nil")
	}
	if store.states == nil {
		t.Error("states map should be initialized")
	}
	if store.ttl != DefaultStateTTL {
		t.Errorf("ttl = %v, want %v", store.ttl, DefaultStateTTL)
	}
}

func TestMemoryStore_Put(t *testing.T) {
	clock := newFakeClock()

	tests := []struct {
		name    string
		pending *core.PendingAuth
		wantErr error
	}{
		{
			name: "valid pending authorization",
			pending: &core.PendingAuth{
				State:       "state_123",
				RedirectURI: "https://example.com/callback",
				CreatedAt:   clock.Now(),
			},
			wantErr: nil,
		},
		{
			name: "valid pending authorization with PKCE and session",
			pending: &core.PendingAuth{
				State:         "state_456",
				CodeChallenge: "challenge",
				CodeVerifier:  "verifier",
				RedirectURI:   "https://example.com/callback",
				SessionID:     "session-1",
				CreatedAt:     clock.Now(),
			},
			wantErr: nil,
		},
		{
			name:    "nil pending authorization",
			pending: nil,
			wantErr: ErrNilPendingAuth,
		},
		{
			name: "empty state",
			pending: &core.PendingAuth{
				RedirectURI: "https://example.com/callback",
				CreatedAt:   clock.Now(),
			},
			wantErr: ErrEmptyState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore(time.Minute, clock.Now)
			ctx := context.Background()

			err := store.Put(ctx, tt.pending)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Put() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.wantErr == nil {
				got, err := store.Take(ctx, tt.pending.State)
				if err != nil {
					t.Fatalf("Take() after Put() error = %v", err)
				}
				if got.RedirectURI != tt.pending.RedirectURI || got.SessionID != tt.pending.SessionID {
					t.Errorf("Take() = %+v, want %+v", got, tt.pending)
				}
			}
		})
	}
}

func TestMemoryStore_PutDuplicate(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(time.Minute, clock.Now)
	ctx := context.Background()

	first := &core.PendingAuth{State: "dup", RedirectURI: "https://a/cb", CreatedAt: clock.Now()}
	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	second := &core.PendingAuth{State: "dup", RedirectURI: "https://b/cb", CreatedAt: clock.Now()}
	if err := store.Put(ctx, second); !errors.Is(err, ErrDuplicateState) {
		t.Fatalf("Put() duplicate error = %v, want %v", err, ErrDuplicateState)
	}

	got, err := store.Take(ctx, "dup")
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if got.RedirectURI != "https://a/cb" {
		t.Errorf("duplicate Put() overwrote the original entry: %q", got.RedirectURI)
	}
}

func TestMemoryStore_Take(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(ctx context.Context, s *MemoryStore, clock *fakeClock)
		state   string
		wantErr error
	}{
		{
			name: "pending state",
			setup: func(ctx context.Context, s *MemoryStore, clock *fakeClock) {
				_ = s.Put(ctx, &core.PendingAuth{State: "abc123", CreatedAt: clock.Now()})
			},
			state:   "abc123",
			wantErr: nil,
		},
		{
			name:    "unknown state",
			setup:   func(ctx context.Context, s *MemoryStore, clock *fakeClock) {},
			state:   "missing",
			wantErr: ErrStateNotFound,
		},
		{
			name: "already consumed state",
			setup: func(ctx context.Context, s *MemoryStore, clock *fakeClock) {
				_ = s.Put(ctx, &core.PendingAuth{State: "abc123", CreatedAt: clock.Now()})
				_, _ = s.Take(ctx, "abc123")
			},
			state:   "abc123",
			wantErr: ErrStateNotFound,
		},
		{
			name: "expired but never swept",
			setup: func(ctx context.Context, s *MemoryStore, clock *fakeClock) {
				_ = s.Put(ctx, &core.PendingAuth{State: "old", CreatedAt: clock.Now()})
				clock.Advance(time.Minute + time.Second)
			},
			state:   "old",
			wantErr: ErrStateNotFound,
		},
		{
			name: "created in the past beyond the TTL",
			setup: func(ctx context.Context, s *MemoryStore, clock *fakeClock) {
				s.mu.Lock()
				s.states["stale"] = &core.PendingAuth{
					State:     "stale",
					CreatedAt: clock.Now().Add(-(time.Minute + time.Second)),
				}
				s.mu.Unlock()
			},
			state:   "stale",
			wantErr: ErrStateNotFound,
		},
		{
			name: "exactly at the TTL boundary",
			setup: func(ctx context.Context, s *MemoryStore, clock *fakeClock) {
				_ = s.Put(ctx, &core.PendingAuth{State: "edge", CreatedAt: clock.Now()})
				clock.Advance(time.Minute)
			},
			state:   "edge",
			wantErr: nil,
		},
		{
			name:    "empty state",
			setup:   func(ctx context.Context, s *MemoryStore, clock *fakeClock) {},
			state:   "",
			wantErr: ErrEmptyState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			store := NewMemoryStore(time.Minute, clock.Now)
			ctx := context.Background()
			tt.setup(ctx, store, clock)

			got, err := store.Take(ctx, tt.state)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Take() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got == nil {
				t.Fatal("Take() returned nil pending authorization")
			}
			if tt.wantErr != nil && got != nil {
				t.Errorf("Take() = %+v, want nil", got)
			}
		})
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(time.Minute, clock.Now)
	ctx := context.Background()

	_ = store.Put(ctx, &core.PendingAuth{State: "old", CreatedAt: clock.Now()})
	clock.Advance(45 * time.Second)
	_ = store.Put(ctx, &core.PendingAuth{State: "fresh", CreatedAt: clock.Now()})
	clock.Advance(30 * time.Second)

	count, err := store.Sweep(ctx, clock.Now())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Sweep() removed %d entries, want 1", count)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
	if _, err := store.Take(ctx, "fresh"); err != nil {
		t.Errorf("Take(fresh) error = %v", err)
	}
}

func TestMemoryStore_ConcurrentTake(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(time.Minute, clock.Now)
	ctx := context.Background()

	const numStates = 20
	const takersPerState = 10
	for i := 0; i < numStates; i++ {
		state := fmt.Sprintf("state_%d", i)
		if err := store.Put(ctx, &core.PendingAuth{State: state, CreatedAt: clock.Now()}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < numStates; i++ {
		for j := 0; j < takersPerState; j++ {
			wg.Add(1)
			go func(index int) {
				defer wg.Done()
				if _, err := store.Take(ctx, fmt.Sprintf("state_%d", index)); err == nil {
					wins.Add(1)
				}
			}(i)
		}
	}
	wg.Wait()

	if got := wins.Load(); got != numStates {
		t.Errorf("successful takes = %d, want exactly %d", got, numStates)
	}
}

func TestMemoryStore_Run(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(time.Minute, clock.Now)
	ctx, cancel := context.WithCancel(context.Background())

	_ = store.Put(ctx, &core.PendingAuth{State: "old", CreatedAt: clock.Now()})
	clock.Advance(2 * time.Minute)

	done := make(chan error, 1)
	go func() { done <- store.Run(ctx, 5*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after background sweep, want 0", store.Len())
	}
}
