package cmd

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-storefront-client/internal/config"
	"github.com/jrsteele09/go-storefront-client/storage"
	"github.com/jrsteele09/go-storefront-client/storage/file"
	"github.com/jrsteele09/go-storefront-client/storage/memory"
	"github.com/jrsteele09/go-storefront-client/storage/redis"
	"github.com/jrsteele09/go-storefront-client/storage/sqlite"
)

func noClose(context.Context) error { return nil }

// openStorage opens the configured session storage backend
func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Store, func(context.Context) error, error) {
	switch cfg.GetStorageBackend() {
	case config.StorageMemory:
		return memory.New(), noClose, nil
	case config.StorageFile:
		st, err := file.Open(cfg.GetStoragePath(), file.WithPassphrase(cfg.GetStoragePassphrase()))
		if err != nil {
			return nil, nil, err
		}
		return st, noClose, nil
	case config.StorageSQLite:
		st, err := sqlite.Open(ctx, cfg.GetStoragePath())
		if err != nil {
			return nil, nil, err
		}
		return st, func(context.Context) error { return st.Close() }, nil
	case config.StorageRedis:
		st, err := redis.Dial(ctx, cfg.GetRedisURL(), redis.WithPrefix(cfg.GetRedisPrefix()))
		if err != nil {
			return nil, nil, err
		}
		return st, func(context.Context) error { return st.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.GetStorageBackend())
}
