package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/jrsteele09/go-storefront-client/internal/errors"
	"github.com/jrsteele09/go-storefront-client/storage"
	"github.com/jrsteele09/go-storefront-client/storage/file"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	s, err := file.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, storage.AccessTokenKey, "A1"))
	require.NoError(t, s.Set(ctx, storage.RefreshTokenKey, "R1"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := file.Open(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, storage.RefreshTokenKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "R1", v)

	require.NoError(t, reopened.Remove(ctx, storage.AccessTokenKey))
	require.NoError(t, reopened.Remove(ctx, "never-set"))

	again, err := file.Open(path)
	require.NoError(t, err)
	_, ok, err = again.Get(ctx, storage.AccessTokenKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	s, err := file.Open(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	_, ok, err := s.Get(context.Background(), storage.AccessTokenKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStoreEncryption(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	s, err := file.Open(path, file.WithPassphrase("correct horse"))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, storage.AccessTokenKey, "super-secret-access"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "super-secret-access")

	reopened, err := file.Open(path, file.WithPassphrase("correct horse"))
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, storage.AccessTokenKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "super-secret-access", v)

	wrong, err := file.Open(path, file.WithPassphrase("battery staple"))
	require.NoError(t, err)
	_, _, err = wrong.Get(ctx, storage.AccessTokenKey)
	require.ErrorIs(t, err, apperrors.ErrDecrypt)

	_, err = file.Open(path)
	require.Error(t, err)
}

func TestFileStoreRefusesToEncryptPlaintext(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	s, err := file.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, storage.AccessTokenKey, "A1"))

	_, err = file.Open(path, file.WithPassphrase("late"))
	require.Error(t, err)
}
