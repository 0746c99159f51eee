package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/store"
)

type countingPrefs struct {
	*store.MemoryStore
	loads int
}

func (c *countingPrefs) Preferences(ctx context.Context, userIDs ...string) (map[string]messaging.Preferences, error) {
	c.loads++
	return c.MemoryStore.Preferences(ctx, userIDs...)
}

// Runs against a real server when REDIS_URL is set.
func TestPreferenceCache(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()

	client, err := store.ConnectRedis(ctx, store.RedisConfig{
		ConnectionURL:  url,
		RetryAttempts:  1,
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, store.RedisHealthcheck(client)(ctx))

	backing := &countingPrefs{MemoryStore: store.NewMemoryStore()}
	cache := store.NewPreferenceCache(backing, client,
		store.WithCachePrefix("test:"+uuid.NewString()+":"),
		store.WithCacheTTL(time.Minute),
	)

	p := messaging.DefaultPreferences("u1")
	p.SMSEnabled = false
	require.NoError(t, cache.SavePreferences(ctx, p))

	for range 2 {
		got, err := cache.Preferences(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, got["u1"].SMSEnabled)
	}
	assert.Equal(t, 1, backing.loads, "second read is served from redis")

	p.SMSEnabled = true
	require.NoError(t, cache.SavePreferences(ctx, p))
	got, err := cache.Preferences(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got["u1"].SMSEnabled, "save invalidates the cached copy")
	assert.Equal(t, 2, backing.loads)
}
