package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	APIConfig
	SessionConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetTraceEnabled() bool
}

type mainConfig struct {
	EnvVars
	API
	Session
	Storage
}

var _ Config = mainConfig{}

// New wraps an already populated viper instance. Defaults are applied to v.
func New(v *viper.Viper) Config {
	SetDefaults(v)
	return mainConfig{
		EnvVars: EnvVars{v: v},
		API:     API{v: v},
		Session: Session{v: v},
		Storage: Storage{v: v},
	}
}

// Load reads an optional .env file, the environment and an optional YAML config file.
// Environment variables win over the config file; flags bound to v win over both.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load godotenv: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config.Load read %s: %w", configFile, err)
		}
	}
	return New(v), nil
}

// SetDefaults registers the default value of every known key
func SetDefaults(v *viper.Viper) {
	v.SetDefault(appNameKey, "Storefront")
	v.SetDefault(envKey, "DEV")
	v.SetDefault(logLevelKey, "info")
	v.SetDefault(traceKey, false)

	v.SetDefault(apiBaseURLKey, "http://localhost:8000/api/")
	v.SetDefault(httpTimeoutKey, "15s")

	v.SetDefault(loginPathKey, "/login")
	v.SetDefault(refreshTimeoutKey, "10s")

	v.SetDefault(storageBackendKey, string(StorageFile))
	v.SetDefault(storagePathKey, "./data/session.json")
	v.SetDefault(storagePassphraseKey, "")
	v.SetDefault(redisURLKey, "redis://localhost:6379/0")
	v.SetDefault(redisPrefixKey, "storefront:")
}
