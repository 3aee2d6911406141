package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcogenualdo/sso-relay/internal/config"
)

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rc, err := NewRedisCache(config.RedisConfig{Address: mr.Addr(), KeyPrefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	return rc, mr
}

func implementations(t *testing.T) map[string]Cache {
	mc := NewMemoryCache(time.Hour)
	t.Cleanup(func() { _ = mc.Close() })
	rc, _ := newTestRedis(t)

	return map[string]Cache{"memory": mc, "redis": rc}
}

func TestCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()

	for name, c := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, "oidc:state:a", []byte("verifier"), time.Minute))

			got, err := c.Get(ctx, "oidc:state:a")
			require.NoError(t, err)
			assert.Equal(t, []byte("verifier"), got)

			require.NoError(t, c.Delete(ctx, "oidc:state:a"))
			_, err = c.Get(ctx, "oidc:state:a")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, c.Ping(ctx))
		})
	}
}

func TestCache_TakeRemoves(t *testing.T) {
	ctx := context.Background()

	for name, c := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

			got, err := c.Take(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), got)

			_, err = c.Take(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = c.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCache_TakeIsExclusive(t *testing.T) {
	ctx := context.Background()

	for name, c := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := c.Take(ctx, "k"); err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, wins)
		})
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(time.Hour)
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "short", []byte("v"), 10*time.Millisecond))
	require.NoError(t, mc.Set(ctx, "forever", []byte("v"), 0))
	time.Sleep(30 * time.Millisecond)

	_, err := mc.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = mc.Take(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = mc.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemoryCache_Cleanup(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(5 * time.Millisecond)
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", []byte("v"), time.Millisecond))
	assert.Eventually(t, func() bool { return mc.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryCache_CopiesValues(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(time.Hour)
	defer mc.Close()

	value := []byte("abc")
	require.NoError(t, mc.Set(ctx, "k", value, time.Minute))
	value[0] = 'x'

	got, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestMemoryCache_CloseTwice(t *testing.T) {
	mc := NewMemoryCache(time.Hour)
	assert.NoError(t, mc.Close())
	assert.NoError(t, mc.Close())
}

func TestRedisCache_PrefixAndTTL(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestRedis(t)

	require.NoError(t, rc.Set(ctx, "oidc:state:a", []byte("v"), time.Minute))

	assert.True(t, mr.Exists("test:oidc:state:a"))
	assert.Equal(t, time.Minute, mr.TTL("test:oidc:state:a"))

	mr.FastForward(2 * time.Minute)
	_, err := rc.Take(ctx, "oidc:state:a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(config.RedisConfig{Address: addr, MaxRetries: -1})
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestNew(t *testing.T) {
	c, err := New(config.CacheConfig{Type: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)
	_ = c.Close()

	_, err = New(config.CacheConfig{Type: "redis"}, nil)
	assert.ErrorContains(t, err, "redis config is required")

	_, err = New(config.CacheConfig{Type: "memcached"}, nil)
	assert.ErrorContains(t, err, "unsupported cache type")

	mr := miniredis.RunT(t)
	c, err = New(config.CacheConfig{Type: "redis", Redis: &config.RedisConfig{Address: mr.Addr()}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, c)
	_ = c.Close()
}
