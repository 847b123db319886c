package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/apistore/pkg/observability"
)

// Cache types reported to the cache metrics
const (
	CacheTypeL1 = "roles_l1"
	CacheTypeL2 = "roles_l2"
)

const redisKeyPrefix = "apistore:roles:"

// Resolver returns the roles granted to an identity
type Resolver interface {
	ResolveRoles(ctx context.Context, identity string) ([]string, error)
}

// RedisRoleCache stores resolved roles in Redis so that replicas of the
// service share them
type RedisRoleCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRoleCache creates a Redis-backed role cache
func NewRedisRoleCache(client *redis.Client, ttl time.Duration) *RedisRoleCache {
	return &RedisRoleCache{client: client, ttl: ttl}
}

func redisKey(identity string) string {
	return redisKeyPrefix + identity
}

// Get returns the cached roles and whether they were found
func (c *RedisRoleCache) Get(ctx context.Context, identity string) ([]string, bool, error) {
	key := redisKey(identity)

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var roles []string
	if err := json.Unmarshal([]byte(data), &roles); err != nil {
		// Drop corrupt entries so the next lookup repopulates them
		c.client.Del(ctx, key)
		return nil, false, fmt.Errorf("failed to unmarshal roles: %w", err)
	}

	return roles, true, nil
}

// Set stores roles for an identity
func (c *RedisRoleCache) Set(ctx context.Context, identity string, roles []string) error {
	if roles == nil {
		roles = []string{}
	}
	data, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}
	return c.client.Set(ctx, redisKey(identity), data, c.ttl).Err()
}

// Delete removes an identity from the cache
func (c *RedisRoleCache) Delete(ctx context.Context, identity string) error {
	return c.client.Del(ctx, redisKey(identity)).Err()
}

// CacheConfig sizes the in-process role cache
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// DefaultCacheConfig returns the default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Size: 10000,
		TTL:  5 * time.Minute,
	}
}

// CachedResolver resolves roles through an in-process LRU, then the optional
// Redis cache, then the wrapped resolver
type CachedResolver struct {
	source  Resolver
	local   *lru.LRU[string, []string]
	remote  *RedisRoleCache
	metrics *observability.Metrics
	logger  *observability.Logger
}

// CachedResolverOption configures a CachedResolver
type CachedResolverOption func(*CachedResolver)

// WithRedisCache adds a shared second-level cache
func WithRedisCache(c *RedisRoleCache) CachedResolverOption {
	return func(r *CachedResolver) { r.remote = c }
}

// WithCacheMetrics records cache hits and misses
func WithCacheMetrics(m *observability.Metrics) CachedResolverOption {
	return func(r *CachedResolver) { r.metrics = m }
}

// WithCacheLogger sets the logger used for Redis failures
func WithCacheLogger(l *observability.Logger) CachedResolverOption {
	return func(r *CachedResolver) { r.logger = l }
}

// NewCachedResolver wraps source with caching
func NewCachedResolver(source Resolver, config CacheConfig, opts ...CachedResolverOption) *CachedResolver {
	if config.Size <= 0 {
		config.Size = DefaultCacheConfig().Size
	}
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig().TTL
	}

	r := &CachedResolver{
		source: source,
		local:  lru.NewLRU[string, []string](config.Size, nil, config.TTL),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	return r
}

// ResolveRoles returns the cached roles for identity or resolves and caches them.
// Redis failures degrade to the wrapped resolver.
func (r *CachedResolver) ResolveRoles(ctx context.Context, identity string) ([]string, error) {
	if roles, ok := r.local.Get(identity); ok {
		r.hit(CacheTypeL1)
		return copyRoles(roles), nil
	}
	r.miss(CacheTypeL1)

	if r.remote != nil {
		roles, ok, err := r.remote.Get(ctx, identity)
		if err != nil {
			r.logger.WithError(err).WithField("identity", identity).Warn("Role cache lookup failed")
		}
		if ok {
			r.hit(CacheTypeL2)
			r.local.Add(identity, roles)
			return copyRoles(roles), nil
		}
		r.miss(CacheTypeL2)
	}

	roles, err := r.source.ResolveRoles(ctx, identity)
	if err != nil {
		return nil, err
	}

	r.local.Add(identity, roles)
	if r.remote != nil {
		if err := r.remote.Set(ctx, identity, roles); err != nil {
			r.logger.WithError(err).WithField("identity", identity).Warn("Role cache store failed")
		}
	}

	return copyRoles(roles), nil
}

// Invalidate drops an identity from both cache levels
func (r *CachedResolver) Invalidate(ctx context.Context, identity string) error {
	r.local.Remove(identity)
	if r.remote != nil {
		if err := r.remote.Delete(ctx, identity); err != nil {
			return fmt.Errorf("failed to invalidate roles for %s: %w", identity, err)
		}
	}
	return nil
}

// Len returns the number of identities in the in-process cache
func (r *CachedResolver) Len() int {
	return r.local.Len()
}

func (r *CachedResolver) hit(cacheType string) {
	if r.metrics != nil {
		r.metrics.RecordCacheHit(cacheType)
	}
}

func (r *CachedResolver) miss(cacheType string) {
	if r.metrics != nil {
		r.metrics.RecordCacheMiss(cacheType)
	}
}

// copyRoles keeps callers from mutating cached slices
func copyRoles(roles []string) []string {
	out := make([]string, len(roles))
	copy(out, roles)
	return out
}
