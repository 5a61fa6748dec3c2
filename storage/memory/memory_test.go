package memory_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-storefront-client/storage"
	"github.com/jrsteele09/go-storefront-client/storage/memory"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	_, ok, err := s.Get(ctx, storage.AccessTokenKey)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, storage.AccessTokenKey, "A1"))
	v, ok, err := s.Get(ctx, storage.AccessTokenKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "A1", v)
	require.Equal(t, 1, s.Len())

	require.NoError(t, s.Remove(ctx, storage.AccessTokenKey))
	require.NoError(t, s.Remove(ctx, storage.AccessTokenKey))
	require.Equal(t, 0, s.Len())
}
