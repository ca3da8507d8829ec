package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(mr.Addr(), "", 0, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func newLRU(t *testing.T) *LRUCache {
	t.Helper()
	c, err := NewLRUCache(16)
	require.NoError(t, err)
	return c
}

func TestCacheContract(t *testing.T) {
	backends := map[string]func(t *testing.T) Cache{
		"redis": func(t *testing.T) Cache { c, _ := newRedis(t); return c },
		"lru":   func(t *testing.T) Cache { return newLRU(t) },
	}

	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := build(t)

			_, ok, err := c.Get(ctx, "/customers")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Set(ctx, "/customers?page=1", []byte("p1"), time.Minute))
			require.NoError(t, c.Set(ctx, "/customers/abc", []byte("one"), time.Minute))
			require.NoError(t, c.Set(ctx, "/subscriptions", []byte("subs"), time.Minute))

			v, ok, err := c.Get(ctx, "/customers?page=1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte("p1"), v)

			n, err := c.InvalidatePrefix(ctx, "/customers")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			_, ok, _ = c.Get(ctx, "/customers/abc")
			assert.False(t, ok)
			_, ok, _ = c.Get(ctx, "/subscriptions")
			assert.True(t, ok)
		})
	}
}

func TestCacheGenerationGuard(t *testing.T) {
	backends := map[string]func(t *testing.T) Cache{
		"redis": func(t *testing.T) Cache { c, _ := newRedis(t); return c },
		"lru":   func(t *testing.T) Cache { return newLRU(t) },
	}

	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := build(t)

			gen, err := c.Generation(ctx, "/customers")
			require.NoError(t, err)

			// инвалидация между чтением поколения и записью
			_, err = c.InvalidatePrefix(ctx, "/customers")
			require.NoError(t, err)

			stored, err := c.SetIfGeneration(ctx, "/customers", gen, "/customers/abc", []byte("stale"), time.Minute)
			require.NoError(t, err)
			assert.False(t, stored)
			_, ok, _ := c.Get(ctx, "/customers/abc")
			assert.False(t, ok)

			next, err := c.Generation(ctx, "/customers")
			require.NoError(t, err)
			assert.Greater(t, next, gen)

			stored, err = c.SetIfGeneration(ctx, "/customers", next, "/customers/abc", []byte("fresh"), time.Minute)
			require.NoError(t, err)
			assert.True(t, stored)
			v, ok, _ := c.Get(ctx, "/customers/abc")
			assert.True(t, ok)
			assert.Equal(t, []byte("fresh"), v)

			// другие префиксы не затрагиваются
			other, err := c.Generation(ctx, "/subscriptions")
			require.NoError(t, err)
			_, err = c.InvalidatePrefix(ctx, "/customers")
			require.NoError(t, err)
			stored, err = c.SetIfGeneration(ctx, "/subscriptions", other, "/subscriptions", []byte("subs"), time.Minute)
			require.NoError(t, err)
			assert.True(t, stored)
		})
	}
}

func TestRedisCacheTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedis(t)

	require.NoError(t, c.Set(ctx, "/customers", []byte("x"), time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err := c.Get(ctx, "/customers")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisInvalidateManyKeys(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedis(t)

	for i := 0; i < 250; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("/customers?page=%d", i), []byte("x"), time.Minute))
	}
	n, err := c.InvalidatePrefix(ctx, "/customers")
	require.NoError(t, err)
	assert.Equal(t, 250, n)
}

func TestRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(addr, "", 0, logger.NewNop())
	assert.Error(t, err)
}

func TestLRUCacheTTL(t *testing.T) {
	ctx := context.Background()
	c := newLRU(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestNopCache(t *testing.T) {
	ctx := context.Background()
	var c Cache = Nop{}
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := c.SetIfGeneration(ctx, "/customers", 0, "k", []byte("v"), time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)
}
