// Package cache provides an optional redis-backed cache for capability
// probe results. Service metadata is stable over hours while a probe costs
// one round trip per source per run, so probes are the one thing worth
// caching. Feature data is never cached: a run always re-fetches records.
package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache.
	ErrCacheMiss = errors.New("cache miss")
)

// DefaultTTL is how long a probe result stays valid.
const DefaultTTL = 15 * time.Minute

// Manager handles probe-result caching with a redis backend.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a cache manager. A non-positive ttl falls back to
// DefaultTTL.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{redis: redisClient, ttl: ttl}
}

// ProbeKey builds a deterministic cache key for a service or layer URL.
// Scheme and query order do not matter for probe identity, so both are
// normalized away.
func ProbeKey(rawURL string) string {
	key := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		key = u.Host + strings.TrimRight(u.Path, "/")
	}
	return "geoharvest:probe:" + strings.ToLower(key)
}

// Get retrieves a cached probe result. Returns ErrCacheMiss when absent.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := m.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	cacheHits.Inc()
	return data, nil
}

// Set stores a probe result under the manager's TTL.
func (m *Manager) Set(ctx context.Context, key string, data []byte) error {
	if err := m.redis.Set(ctx, key, data, m.ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a cached probe result.
func (m *Manager) Delete(ctx context.Context, key string) error {
	if err := m.redis.Del(ctx, key).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
