package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-training/clickup-mcp/pkg/core"
	"github.com/redis/rueidis"
)

const (
	// Key prefix for Redis storage
	statePrefix = "oauth_state:"
)

// RedisStore implements the core.StateStore interface using Redis via rueidis.
// Pending states survive a restart of a single replica and are shared between replicas.
type RedisStore struct {
	client rueidis.Client
	ttl    time.Duration
	now    core.Clock
}

// NewRedisStore creates a new instance of RedisStore with the provided rueidis client.
func NewRedisStore(client rueidis.Client, ttl time.Duration, clock core.Clock) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		now:    clock,
	}
}

// RedisOptions contains configuration for Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStoreFromOptions creates a new RedisStore with simplified options.
func NewRedisStoreFromOptions(opts RedisOptions, ttl time.Duration, clock core.Clock) (*RedisStore, error) {
	clientOpts := rueidis.ClientOption{
		InitAddress: []string{opts.Addr},
		Password:    opts.Password,
		SelectDB:    opts.DB,
		// Pending states are read exactly once; client-side caching buys nothing.
		DisableCache: true,
	}
	return NewRedisStoreFromClientOption(clientOpts, ttl, clock)
}

// NewRedisStoreFromClientOption creates a new RedisStore with full rueidis client options.
func NewRedisStoreFromClientOption(opts rueidis.ClientOption, ttl time.Duration, clock core.Clock) (*RedisStore, error) {
	client, err := rueidis.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return NewRedisStore(client, ttl, clock), nil
}

// Close closes the Redis client connection.
func (r *RedisStore) Close() {
	r.client.Close()
}

// Put stores a pending authorization with SET NX and the store TTL.
// It returns ErrDuplicateState if the key already exists.
func (r *RedisStore) Put(ctx context.Context, pending *core.PendingAuth) error {
	if pending == nil {
		return ErrNilPendingAuth
	}
	if pending.State == "" {
		return ErrEmptyState
	}

	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal pending authorization: %w", err)
	}

	remaining := pending.CreatedAt.Add(r.ttl).Sub(r.now())
	if remaining <= 0 {
		return fmt.Errorf("pending authorization is already expired")
	}
	seconds := int64((remaining + time.Second - 1) / time.Second)

	key := statePrefix + pending.State
	cmd := r.client.B().Set().Key(key).Value(string(data)).Nx().ExSeconds(seconds).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return ErrDuplicateState
		}
		return fmt.Errorf("failed to save pending authorization to redis: %w", err)
	}

	return nil
}

// Take reads and deletes the state in one GETDEL so only one caller can consume it.
func (r *RedisStore) Take(ctx context.Context, state string) (*core.PendingAuth, error) {
	if state == "" {
		return nil, ErrEmptyState
	}

	key := statePrefix + state
	cmd := r.client.B().Getdel().Key(key).Build()
	result, err := r.client.Do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to take pending authorization from redis: %w", err)
	}

	var pending core.PendingAuth
	if err := json.Unmarshal([]byte(result), &pending); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending authorization: %w", err)
	}

	// Redis expiry has second granularity; the clock is authoritative.
	if pending.Expired(r.now(), r.ttl) {
		return nil, ErrStateNotFound
	}

	return &pending, nil
}

// Sweep is a no-op: Redis expires keys on its own.
func (r *RedisStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
