package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	loginPathKey      = "LOGIN_PATH"
	refreshTimeoutKey = "REFRESH_TIMEOUT"
)

type SessionConfig interface {
	GetLoginPath() string
	GetRefreshTimeout() time.Duration
}

type Session struct {
	v *viper.Viper
}

var _ SessionConfig = Session{}

func (s Session) GetLoginPath() string {
	return s.v.GetString(loginPathKey)
}

// GetRefreshTimeout bounds a single token refresh call, independent of the
// context of whichever request triggered it.
func (s Session) GetRefreshTimeout() time.Duration {
	return s.v.GetDuration(refreshTimeoutKey)
}
