package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-storefront-client/storage"
	"github.com/jrsteele09/go-storefront-client/storage/redis"
	"github.com/stretchr/testify/require"
)

// Requires a reachable server, e.g. REDIS_URL=redis://localhost:6379/15
func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := redis.Dial(ctx, url, redis.WithPrefix("storefront-test:"+uuid.NewString()+":"), redis.WithTTL(time.Minute))
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get(ctx, storage.AccessTokenKey)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, storage.AccessTokenKey, "A1"))
	v, ok, err := s.Get(ctx, storage.AccessTokenKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "A1", v)

	require.NoError(t, s.Remove(ctx, storage.AccessTokenKey))
	require.NoError(t, s.Remove(ctx, storage.AccessTokenKey))
	_, ok, err = s.Get(ctx, storage.AccessTokenKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDialRejectsBadURL(t *testing.T) {
	_, err := redis.Dial(context.Background(), "not a url")
	require.Error(t, err)
}
