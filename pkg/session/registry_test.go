package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-training/clickup-mcp/pkg/core"
)

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

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRegistry_Create(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock.Now)

	a := r.Create()
	b := r.Create()

	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids = %q, %q, want distinct non-empty ids", a.ID, b.ID)
	}
	if a.Authenticated() {
		t.Error("new session must not be authenticated")
	}
	if !a.CreatedAt.Equal(clock.Now()) || !a.LastUsedAt.Equal(clock.Now()) {
		t.Errorf("timestamps = %v/%v, want %v", a.CreatedAt, a.LastUsedAt, clock.Now())
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRegistry_AttachToken(t *testing.T) {
	r := NewRegistry(newFakeClock().Now)
	s := r.Create()

	token := &core.TokenRecord{AccessToken: "first", RefreshToken: "r1", Generation: 1}
	if err := r.AttachToken(s.ID, token, core.Binding{WorkspaceID: "ws", UserID: "u"}); err != nil {
		t.Fatalf("AttachToken() error = %v", err)
	}
	// Mutating the caller's copy must not leak into the registry.
	token.AccessToken = "mutated"

	got, err := r.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Token.AccessToken != "first" || got.WorkspaceID != "ws" || got.UserID != "u" {
		t.Errorf("session = %+v, token = %+v", got, got.Token)
	}

	// A refresh replaces the record in full and keeps the binding.
	refreshed := &core.TokenRecord{AccessToken: "second", Generation: 2}
	if err := r.AttachToken(s.ID, refreshed, core.Binding{}); err != nil {
		t.Fatalf("AttachToken() error = %v", err)
	}
	got, _ = r.Get(s.ID)
	if got.Token.AccessToken != "second" || got.Token.RefreshToken != "" {
		t.Errorf("token = %+v, want full replacement", got.Token)
	}
	if got.WorkspaceID != "ws" {
		t.Errorf("WorkspaceID = %q, want ws", got.WorkspaceID)
	}
}

func TestRegistry_AttachToken_Errors(t *testing.T) {
	r := NewRegistry(nil)
	s := r.Create()

	tests := []struct {
		name    string
		id      string
		token   *core.TokenRecord
		wantErr error
	}{
		{"unknown session", "nope", &core.TokenRecord{AccessToken: "a", Generation: 5}, ErrUnknownSession},
		{"nil token", s.ID, nil, ErrNilToken},
		{"newer generation", s.ID, &core.TokenRecord{AccessToken: "new", Generation: 5}, nil},
		{"stale generation", s.ID, &core.TokenRecord{AccessToken: "old", Generation: 3}, ErrStaleToken},
		{"same generation", s.ID, &core.TokenRecord{AccessToken: "again", Generation: 5}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.AttachToken(tt.id, tt.token, core.Binding{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AttachToken() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	got, _ := r.Get(s.ID)
	if got.Token.AccessToken != "again" {
		t.Errorf("AccessToken = %q, want again", got.Token.AccessToken)
	}
}

func TestRegistry_Get_TouchIsMonotonic(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock.Now)
	s := r.Create()

	clock.Advance(time.Minute)
	got, err := r.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	later := got.LastUsedAt
	if !later.Equal(clock.Now()) {
		t.Errorf("LastUsedAt = %v, want %v", later, clock.Now())
	}

	// Wall clock steps backwards.
	clock.Set(later.Add(-time.Hour))
	got, _ = r.Get(s.ID)
	if got.LastUsedAt.Before(later) {
		t.Errorf("LastUsedAt moved backwards: %v < %v", got.LastUsedAt, later)
	}

	if _, err := r.Get("missing"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Get(missing) error = %v, want %v", err, ErrUnknownSession)
	}
}

func TestRegistry_ClearToken(t *testing.T) {
	r := NewRegistry(nil)
	s := r.Create()
	if err := r.AttachToken(s.ID, &core.TokenRecord{AccessToken: "a", Generation: 7}, core.Binding{}); err != nil {
		t.Fatalf("AttachToken() error = %v", err)
	}

	if r.ClearToken(s.ID, 6) {
		t.Error("ClearToken with an older generation must not remove the token")
	}
	if !r.ClearToken(s.ID, 7) {
		t.Error("ClearToken with the current generation should remove the token")
	}
	got, _ := r.Get(s.ID)
	if got.Authenticated() {
		t.Error("session should be unauthenticated after ClearToken")
	}
	if r.ClearToken("missing", 7) {
		t.Error("ClearToken on an unknown session should report false")
	}
}

func TestRegistry_Delete(t *testing.T) {
	r := NewRegistry(nil)
	s := r.Create()

	if r.Delete(s.ID) == nil {
		t.Fatal("Delete() returned nil for an existing session")
	}
	if r.Delete(s.ID) != nil {
		t.Error("second Delete() should return nil")
	}
	if _, err := r.Get(s.ID); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Get() after Delete error = %v, want %v", err, ErrUnknownSession)
	}
}

// Idle eviction is a deliberate addition: sessions used to live until restart.
func TestRegistry_Evict(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock.Now)

	idle := r.Create()
	clock.Advance(30 * time.Minute)
	active := r.Create()

	clock.Advance(31 * time.Minute)
	if _, err := r.Get(active.ID); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	tests := []struct {
		name    string
		maxIdle time.Duration
		want    int
	}{
		{"disabled", 0, 0},
		{"nothing idle long enough", 2 * time.Hour, 0},
		{"one idle session", time.Hour, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Evict(clock.Now(), tt.maxIdle); got != tt.want {
				t.Errorf("Evict() = %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := r.Get(idle.ID); !errors.Is(err, ErrUnknownSession) {
		t.Error("idle session should have been evicted")
	}
	if _, err := r.Get(active.ID); err != nil {
		t.Error("active session should survive eviction")
	}
}

func TestRegistry_Run(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock.Now)
	r.Create()
	clock.Advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, 10*time.Millisecond, time.Hour) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after the sweeper ran", r.Len())
	}
}

func TestRegistry_ConcurrentAttach(t *testing.T) {
	r := NewRegistry(nil)
	s := r.Create()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(gen uint64) {
			defer wg.Done()
			_ = r.AttachToken(s.ID, &core.TokenRecord{AccessToken: "t", Generation: gen}, core.Binding{})
		}(uint64(i))
	}
	wg.Wait()

	got, _ := r.Get(s.ID)
	if got.Token.Generation != 50 {
		t.Errorf("Generation = %d, want the highest (50)", got.Token.Generation)
	}
}
