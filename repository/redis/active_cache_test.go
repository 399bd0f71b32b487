package redis

import (
	"context"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/guild-designer/repository/memory"
)

// An unreachable Redis must not break the active pointer: every call falls through to the
// wrapped repository.
func TestActiveCacheDegradesWhenRedisIsDown(t *testing.T) {
	client := redislib.NewClient(&redislib.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	next := memory.NewActiveRepository()
	cache := NewActiveCache(client, next, time.Minute, nil)
	ctx := context.Background()

	id, err := cache.GetActive(ctx, "g1")
	require.NoError(t, err)
	assert.Zero(t, id)

	require.NoError(t, cache.SetActive(ctx, "g1", 7))
	id, err = cache.GetActive(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	stored, err := next.GetActive(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored)

	require.NoError(t, cache.ClearActive(ctx, "g1"))
	id, err = cache.GetActive(ctx, "g1")
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestActiveCacheKey(t *testing.T) {
	c := NewActiveCache(nil, memory.NewActiveRepository(), 0, nil).(*activeCache)
	assert.Equal(t, "designer:active:g1", c.key("g1"))
	assert.Equal(t, 10*time.Minute, c.ttl)
}
