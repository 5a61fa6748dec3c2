// Package metrics holds the Prometheus metrics of the session layer.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "storefront"

// Metrics holds all Prometheus metrics for the session layer.
// Pass to components that need to record metrics.
type Metrics struct {
	RefreshTotal        *prometheus.CounterVec
	RefreshCoalesced    prometheus.Counter
	RefreshDuration     prometheus.Histogram
	ReplayTotal         *prometheus.CounterVec
	SessionClearedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RefreshTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refresh_total",
				Help:      "Token refresh calls sent to the API",
			},
			[]string{"result"}, // result=success/failure/superseded
		),
		RefreshCoalesced: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refresh_coalesced_total",
				Help:      "Refresh triggers that joined an attempt already in flight",
			},
		),
		RefreshDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "token_refresh_duration_seconds",
				Help:      "Duration of token refresh calls",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ReplayTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_replay_total",
				Help:      "Requests replayed after a token refresh",
			},
			[]string{"result"}, // result=success/unauthorized/error
		),
		SessionClearedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_cleared_total",
				Help:      "Sessions destroyed, by reason",
			},
			[]string{"reason"}, // reason=logout/refresh_failed/no_refresh_token/replay_rejected
		),
	}
}

// Sample is one counter or histogram series flattened for display
type Sample struct {
	Name   string
	Labels string
	Value  float64
}

func (s Sample) String() string {
	if s.Labels == "" {
		return fmt.Sprintf("%s %g", s.Name, s.Value)
	}
	return fmt.Sprintf("%s{%s} %g", s.Name, s.Labels, s.Value)
}

// Snapshot gathers every series of g. Histograms report their sample count.
func Snapshot(g prometheus.Gatherer) ([]Sample, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("metrics.Snapshot: %w", err)
	}

	var samples []Sample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			sample := Sample{Name: mf.GetName(), Labels: formatLabels(m.GetLabel())}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				sample.Value = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				sample.Value = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				sample.Name += "_count"
				sample.Value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			samples = append(samples, sample)
		}
	}
	sort.Slice(samples, func(i, j int) bool {
		if samples[i].Name != samples[j].Name {
			return samples[i].Name < samples[j].Name
		}
		return samples[i].Labels < samples[j].Labels
	})
	return samples, nil
}

func formatLabels(pairs []*dto.LabelPair) string {
	parts := make([]string, 0, len(pairs))
	for _, lp := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	return strings.Join(parts, ",")
}
