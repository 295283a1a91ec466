// Package metrics provides Prometheus metrics for the identity pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all identity pipeline metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Content store
	GatewayAttemptsTotal  *prometheus.CounterVec   // Read attempts by gateway host and outcome
	FetchExhaustedTotal   *prometheus.CounterVec   // Fetches that ran out of gateways, by kind (json, bytes)
	FetchDurationSeconds  *prometheus.HistogramVec // End-to-end fetch latency including fallback, by kind
	UploadsTotal          *prometheus.CounterVec   // Uploads by kind (bytes, json) and outcome
	UploadDurationSeconds *prometheus.HistogramVec // Upload latency by kind

	// Pipelines
	PublicationsTotal           *prometheus.CounterVec // Publication outcomes by outcome and failing stage
	ConfirmationDurationSeconds prometheus.Histogram   // Time spent awaiting ledger confirmation
	ResolutionsTotal            *prometheus.CounterVec // Terminal resolution states by phase
	StaleResultsDroppedTotal    prometheus.Counter     // Late results discarded after an address change
}

// New creates a Metrics instance registered with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers all metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GatewayAttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "didgate_gateway_attempts_total",
			Help: "Total content gateway read attempts by gateway and outcome",
		}, []string{"gateway", "outcome"}),

		FetchExhaustedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "didgate_gateway_fetch_exhausted_total",
			Help: "Total fetches that failed on every configured gateway",
		}, []string{"kind"}),

		FetchDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "didgate_gateway_fetch_duration_seconds",
			Help:    "Duration of content fetches including gateway fallback",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),

		UploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "didgate_content_uploads_total",
			Help: "Total content store uploads by kind and outcome",
		}, []string{"kind", "outcome"}),

		UploadDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "didgate_content_upload_duration_seconds",
			Help:    "Duration of content store uploads",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),

		PublicationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "didgate_publications_total",
			Help: "Total identity publications by outcome and failing stage",
		}, []string{"outcome", "stage"}),

		ConfirmationDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "didgate_registry_confirmation_duration_seconds",
			Help:    "Time spent waiting for registry submissions to finalize",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),

		ResolutionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "didgate_resolutions_total",
			Help: "Total resolutions reaching a terminal state, by phase",
		}, []string{"phase"}),

		StaleResultsDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "didgate_resolution_stale_results_dropped_total",
			Help: "Total late registry or content results discarded after an address change",
		}),
	}
}

// RecordGatewayAttempt counts one gateway read attempt.
func (m *Metrics) RecordGatewayAttempt(gateway, outcome string) {
	if m == nil {
		return
	}
	m.GatewayAttemptsTotal.WithLabelValues(gateway, outcome).Inc()
}

// ObserveFetch records a completed fetch; exhausted marks a fetch that failed on every gateway.
func (m *Metrics) ObserveFetch(kind string, durationSeconds float64, exhausted bool) {
	if m == nil {
		return
	}
	m.FetchDurationSeconds.WithLabelValues(kind).Observe(durationSeconds)
	if exhausted {
		m.FetchExhaustedTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveUpload records an upload outcome and its latency.
func (m *Metrics) ObserveUpload(kind, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(kind, outcome).Inc()
	m.UploadDurationSeconds.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordPublication counts a publication outcome. stage is empty on success.
func (m *Metrics) RecordPublication(outcome, stage string) {
	if m == nil {
		return
	}
	m.PublicationsTotal.WithLabelValues(outcome, stage).Inc()
}

// ObserveConfirmation records how long a registry submission took to finalize.
func (m *Metrics) ObserveConfirmation(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ConfirmationDurationSeconds.Observe(durationSeconds)
}

// RecordResolution counts a terminal resolution state.
func (m *Metrics) RecordResolution(phase string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(phase).Inc()
}

// IncrementStaleDropped counts a discarded late result.
func (m *Metrics) IncrementStaleDropped() {
	if m == nil {
		return
	}
	m.StaleResultsDroppedTotal.Inc()
}
