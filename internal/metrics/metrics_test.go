package metrics_test

import (
	"testing"

	"github.com/jrsteele09/go-storefront-client/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	m.RefreshTotal.WithLabelValues("success").Inc()
	m.RefreshTotal.WithLabelValues("success").Inc()
	m.RefreshTotal.WithLabelValues("failure").Inc()
	m.SessionClearedTotal.WithLabelValues("logout").Inc()
	m.RefreshDuration.Observe(0.2)

	samples, err := metrics.Snapshot(reg)
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, s := range samples {
		values[s.Name+"|"+s.Labels] = s.Value
	}
	require.Equal(t, float64(2), values[`storefront_token_refresh_total|result="success"`])
	require.Equal(t, float64(1), values[`storefront_token_refresh_total|result="failure"`])
	require.Equal(t, float64(1), values[`storefront_session_cleared_total|reason="logout"`])
	require.Equal(t, float64(1), values[`storefront_token_refresh_duration_seconds_count|`])
	require.Equal(t, `storefront_token_refresh_total{result="failure"} 1`, samples[len(samples)-2].String())
}
