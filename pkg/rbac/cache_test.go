package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apistore/pkg/observability"
)

// countingResolver returns fixed roles and counts lookups
type countingResolver struct {
	mu    sync.Mutex
	roles map[string][]string
	calls int
	err   error
}

func (r *countingResolver) ResolveRoles(ctx context.Context, identity string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.roles[identity], nil
}

func (r *countingResolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestCachedResolver_Local(t *testing.T) {
	source := &countingResolver{roles: map[string][]string{"alice": {"admin", "dev"}}}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	resolver := NewCachedResolver(source, CacheConfig{Size: 10, TTL: time.Minute}, WithCacheMetrics(metrics))
	ctx := context.Background()

	roles, err := resolver.ResolveRoles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "dev"}, roles)

	// Mutating the result does not touch the cache
	roles[0] = "root"

	roles, err = resolver.ResolveRoles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "dev"}, roles)
	assert.Equal(t, 1, source.Calls())
	assert.Equal(t, 1, resolver.Len())

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues(CacheTypeL1)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues(CacheTypeL1)))

	require.NoError(t, resolver.Invalidate(ctx, "alice"))
	_, err = resolver.ResolveRoles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, source.Calls())
}

func TestCachedResolver_Errors(t *testing.T) {
	source := &countingResolver{err: errors.New("database down")}
	resolver := NewCachedResolver(source, CacheConfig{})

	_, err := resolver.ResolveRoles(context.Background(), "alice")
	require.Error(t, err)
	assert.Equal(t, 0, resolver.Len(), "errors are not cached")
}

func TestCachedResolver_Redis(t *testing.T) {
	ctx := context.Background()

	t.Run("shared between resolvers", func(t *testing.T) {
		mr, client := newTestRedis(t)
		source := &countingResolver{roles: map[string][]string{"alice": {"admin"}}}
		remote := NewRedisRoleCache(client, time.Minute)
		metrics := observability.NewMetrics(prometheus.NewRegistry())

		first := NewCachedResolver(source, DefaultCacheConfig(), WithRedisCache(remote))
		second := NewCachedResolver(source, DefaultCacheConfig(), WithRedisCache(remote), WithCacheMetrics(metrics))

		_, err := first.ResolveRoles(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, mr.Exists("apistore:roles:alice"))
		assert.Equal(t, time.Minute, mr.TTL("apistore:roles:alice"))

		roles, err := second.ResolveRoles(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"admin"}, roles)
		assert.Equal(t, 1, source.Calls())
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues(CacheTypeL2)))
	})

	t.Run("empty role sets are cached", func(t *testing.T) {
		mr, client := newTestRedis(t)
		source := &countingResolver{}
		resolver := NewCachedResolver(source, DefaultCacheConfig(), WithRedisCache(NewRedisRoleCache(client, time.Minute)))

		roles, err := resolver.ResolveRoles(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, roles)

		value, err := mr.Get("apistore:roles:nobody")
		require.NoError(t, err)
		assert.Equal(t, "[]", value)
	})

	t.Run("corrupt entry is dropped", func(t *testing.T) {
		mr, client := newTestRedis(t)
		require.NoError(t, mr.Set("apistore:roles:alice", "not-json"))
		source := &countingResolver{roles: map[string][]string{"alice": {"dev"}}}
		resolver := NewCachedResolver(source, DefaultCacheConfig(), WithRedisCache(NewRedisRoleCache(client, time.Minute)))

		roles, err := resolver.ResolveRoles(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"dev"}, roles)

		value, err := mr.Get("apistore:roles:alice")
		require.NoError(t, err)
		assert.Equal(t, `["dev"]`, value)
	})

	t.Run("redis down falls through", func(t *testing.T) {
		mr, client := newTestRedis(t)
		mr.Close()
		source := &countingResolver{roles: map[string][]string{"alice": {"dev"}}}
		resolver := NewCachedResolver(source, DefaultCacheConfig(), WithRedisCache(NewRedisRoleCache(client, time.Minute)))

		roles, err := resolver.ResolveRoles(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"dev"}, roles)

		assert.Error(t, resolver.Invalidate(ctx, "alice"))
		assert.Equal(t, 0, resolver.Len())
	})

	t.Run("invalidate removes shared entry", func(t *testing.T) {
		mr, client := newTestRedis(t)
		source := &countingResolver{roles: map[string][]string{"alice": {"admin"}}}
		resolver := NewCachedResolver(source, DefaultCacheConfig(), WithRedisCache(NewRedisRoleCache(client, time.Minute)))

		_, err := resolver.ResolveRoles(ctx, "alice")
		require.NoError(t, err)
		require.NoError(t, resolver.Invalidate(ctx, "alice"))
		assert.False(t, mr.Exists("apistore:roles:alice"))
	})
}

func TestCachedResolver_WithStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.GrantUserRole(ctx, "alice", RolePublisher, nil))

	resolver := NewCachedResolver(store, DefaultCacheConfig())

	roles, err := resolver.ResolveRoles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{RolePublisher}, roles)

	// Cached until invalidated
	require.NoError(t, store.GrantUserRole(ctx, "alice", RoleAdmin, nil))
	roles, err = resolver.ResolveRoles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{RolePublisher}, roles)

	require.NoError(t, resolver.Invalidate(ctx, "alice"))
	roles, err = resolver.ResolveRoles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{RoleAdmin, RolePublisher}, roles)
}
