package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCooldown is the minimum time between two successful marks of one identity.
const DefaultCooldown = 30 * time.Second

// CooldownTracker remembers when each identity was last marked successfully.
// The state is ephemeral; losing it only re-allows an early mark.
type CooldownTracker interface {
	LastMark(ctx context.Context, identityID string) (time.Time, bool, error)
	Touch(ctx context.Context, identityID string, at time.Time) error
}

// MemoryCooldown keeps last-mark times in process memory.
type MemoryCooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewMemoryCooldown creates an empty in-process tracker.
func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{last: make(map[string]time.Time)}
}

// LastMark implements CooldownTracker.
func (m *MemoryCooldown) LastMark(ctx context.Context, identityID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.last[identityID]
	return t, ok, nil
}

// Touch implements CooldownTracker.
func (m *MemoryCooldown) Touch(ctx context.Context, identityID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[identityID] = at
	return nil
}

// Redis key prefix for last-mark timestamps
const cooldownKeyPrefix = "face-attendance:cooldown:"

// RedisCooldown shares last-mark times between processes.
// Keys expire after the cooldown interval, so Redis never holds stale entries.
type RedisCooldown struct {
	client   *redis.Client
	interval time.Duration
}

// NewRedisCooldown creates a Redis-backed tracker.
func NewRedisCooldown(client *redis.Client, interval time.Duration) *RedisCooldown {
	return &RedisCooldown{client: client, interval: interval}
}

// NewRedisClient connects to the Redis server at url.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// LastMark implements CooldownTracker.
func (r *RedisCooldown) LastMark(ctx context.Context, identityID string) (time.Time, bool, error) {
	val, err := r.client.Get(ctx, cooldownKeyPrefix+identityID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get cooldown: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse cooldown timestamp %q: %w", val, err)
	}
	return t, true, nil
}

// Touch implements CooldownTracker.
func (r *RedisCooldown) Touch(ctx context.Context, identityID string, at time.Time) error {
	if r.interval <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, cooldownKeyPrefix+identityID, at.UTC().Format(time.RFC3339Nano), r.interval).Err(); err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}
