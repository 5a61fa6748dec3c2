package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	apiBaseURLKey  = "API_BASE_URL"
	httpTimeoutKey = "HTTP_TIMEOUT"
)

type APIConfig interface {
	GetAPIBaseURL() string
	GetHTTPTimeout() time.Duration
}

type API struct {
	v *viper.Viper
}

var _ APIConfig = API{}

// GetAPIBaseURL returns the REST API root, always with a trailing slash so
// relative endpoint paths resolve beneath it.
func (a API) GetAPIBaseURL() string {
	base := a.v.GetString(apiBaseURLKey)
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

func (a API) GetHTTPTimeout() time.Duration {
	return a.v.GetDuration(httpTimeoutKey)
}
