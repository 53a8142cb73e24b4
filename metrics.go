package goAuthClient

import (
	"time"

	internalmetrics "github.com/MrEthical07/goAuthClient/internal/metrics"
)

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricHydrateSuccess           = internalmetrics.MetricHydrateSuccess
	MetricHydrateFailure           = internalmetrics.MetricHydrateFailure
	MetricLoginSuccess             = internalmetrics.MetricLoginSuccess
	MetricLoginFailure             = internalmetrics.MetricLoginFailure
	MetricLogout                   = internalmetrics.MetricLogout
	MetricLogoutNotifyFailure      = internalmetrics.MetricLogoutNotifyFailure
	MetricRefreshSuccess           = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure           = internalmetrics.MetricRefreshFailure
	MetricRefreshCoalesced         = internalmetrics.MetricRefreshCoalesced
	MetricRefreshDiscarded         = internalmetrics.MetricRefreshDiscarded
	MetricSessionExpired           = internalmetrics.MetricSessionExpired
	MetricTokenRejected            = internalmetrics.MetricTokenRejected
	MetricProfileUpdateSuccess     = internalmetrics.MetricProfileUpdateSuccess
	MetricProfileUpdateFailure     = internalmetrics.MetricProfileUpdateFailure
	MetricRegisterSuccess          = internalmetrics.MetricRegisterSuccess
	MetricRegisterFailure          = internalmetrics.MetricRegisterFailure
	MetricEmailVerificationSuccess = internalmetrics.MetricEmailVerificationSuccess
	MetricEmailVerificationFailure = internalmetrics.MetricEmailVerificationFailure
	MetricPasswordResetRequest     = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetSuccess     = internalmetrics.MetricPasswordResetSuccess
	MetricPasswordResetFailure     = internalmetrics.MetricPasswordResetFailure
	MetricPasswordChangeSuccess    = internalmetrics.MetricPasswordChangeSuccess
	MetricPasswordChangeFailure    = internalmetrics.MetricPasswordChangeFailure
	MetricStorageFailure           = internalmetrics.MetricStorageFailure
	// MetricBackendLatency is the only histogram; it is recorded for every
	// backend call when latency histograms are enabled.
	MetricBackendLatency = internalmetrics.MetricBackendLatency
)

// HistBucketCount is the number of latency histogram buckets.
const HistBucketCount = internalmetrics.HistBucketCount

// Metrics holds atomic counters and the optional latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a Metrics instance. When Enabled is false, all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}

func (m *Manager) metricInc(id MetricID) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.Inc(id)
}

func (m *Manager) observeBackend(start time.Time) {
	if m == nil || !m.metrics.LatencyEnabled() {
		return
	}
	m.metrics.Observe(MetricBackendLatency, m.clock.Since(start))
}

// MetricsSnapshot returns a copy of the manager's metrics.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return m.metrics.Snapshot()
}
