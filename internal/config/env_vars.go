package config

import (
	"github.com/spf13/viper"
)

const (
	appNameKey  = "APP_NAME"
	envKey      = "ENV"
	logLevelKey = "LOG_LEVEL"
	traceKey    = "TRACE"
)

type EnvVars struct {
	v *viper.Viper
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.v.GetString(appNameKey)
}

func (e EnvVars) GetEnv() string {
	env := e.v.GetString(envKey)
	if env == "" {
		return "DEV"
	}
	return env
}

// GetLogLevel returns a zerolog level name (debug, info, warn, error)
func (e EnvVars) GetLogLevel() string {
	return e.v.GetString(logLevelKey)
}

func (e EnvVars) GetTraceEnabled() bool {
	return e.v.GetBool(traceKey)
}
