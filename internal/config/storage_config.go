package config

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	storageBackendKey    = "STORAGE_BACKEND"
	storagePathKey       = "STORAGE_PATH"
	storagePassphraseKey = "STORAGE_PASSPHRASE"
	redisURLKey          = "REDIS_URL"
	redisPrefixKey       = "REDIS_PREFIX"
)

type StorageBackend string

const (
	StorageMemory StorageBackend = "memory"
	StorageFile   StorageBackend = "file"
	StorageSQLite StorageBackend = "sqlite"
	StorageRedis  StorageBackend = "redis"
)

type StorageConfig interface {
	GetStorageBackend() StorageBackend
	GetStoragePath() string
	GetStoragePassphrase() string
	GetRedisURL() string
	GetRedisPrefix() string
}

type Storage struct {
	v *viper.Viper
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorageBackend() StorageBackend {
	return StorageBackend(strings.ToLower(s.v.GetString(storageBackendKey)))
}

func (s Storage) GetStoragePath() string {
	return s.v.GetString(storagePathKey)
}

// GetStoragePassphrase enables at-rest encryption of the file backend when not empty
func (s Storage) GetStoragePassphrase() string {
	return s.v.GetString(storagePassphraseKey)
}

func (s Storage) GetRedisURL() string {
	return s.v.GetString(redisURLKey)
}

func (s Storage) GetRedisPrefix() string {
	return s.v.GetString(redisPrefixKey)
}
