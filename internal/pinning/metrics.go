package pinning

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for pinning validation.
type Metrics struct {
	validationsTotal   *prometheus.CounterVec
	pinMismatches      *prometheus.CounterVec
	chainFailures      *prometheus.CounterVec
	validationDuration prometheus.Histogram
	referenceExpiry    prometheus.Gauge

	registry *prometheus.Registry
}

// MetricsOption is a functional option for configuring Metrics.
type MetricsOption func(*Metrics)

// WithRegistry sets a custom Prometheus registry.
func WithRegistry(registry *prometheus.Registry) MetricsOption {
	return func(m *Metrics) {
		m.registry = registry
	}
}

// NewMetrics creates a new Metrics instance with the given namespace.
func NewMetrics(namespace string, opts ...MetricsOption) *Metrics {
	if namespace == "" {
		namespace = "certpin"
	}

	m := &Metrics{}

	for _, opt := range opts {
		opt(m)
	}

	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pinning",
			Name:      "validations_total",
			Help:      "Total number of handshake validations by outcome",
		},
		[]string{"outcome"},
	)

	m.pinMismatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pinning",
			Name:      "pin_mismatches_total",
			Help:      "Total number of pin mismatches by failing field",
		},
		[]string{"field"},
	)

	m.chainFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pinning",
			Name:      "chain_failures_total",
			Help:      "Total number of chain validation failures by reason",
		},
		[]string{"reason"},
	)

	m.validationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pinning",
			Name:      "validation_duration_seconds",
			Help:      "Handshake validation duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	m.referenceExpiry = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pinning",
			Name:      "reference_expiry_seconds",
			Help:      "Time until the pinned reference certificate expires in seconds",
		},
	)

	m.registry.MustRegister(
		m.validationsTotal,
		m.pinMismatches,
		m.chainFailures,
		m.validationDuration,
		m.referenceExpiry,
	)

	return m
}

// RecordValidation records the outcome of a handshake validation.
func (m *Metrics) RecordValidation(status OutcomeStatus, duration time.Duration) {
	m.validationsTotal.WithLabelValues(status.String()).Inc()
	m.validationDuration.Observe(duration.Seconds())
}

// RecordPinMismatch records a pin mismatch by failing field.
func (m *Metrics) RecordPinMismatch(field PinField) {
	m.pinMismatches.WithLabelValues(field.String()).Inc()
}

// RecordChainFailure records a chain validation failure by reason.
func (m *Metrics) RecordChainFailure(reason ChainReason) {
	m.chainFailures.WithLabelValues(reason.String()).Inc()
}

// UpdateReferenceExpiry updates the reference expiry gauge.
func (m *Metrics) UpdateReferenceExpiry(reference Reference) {
	if reference.IsZero() {
		return
	}
	m.referenceExpiry.Set(time.Until(reference.NotAfter()).Seconds())
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// NopMetrics is a no-op implementation of metrics for testing.
type NopMetrics struct{}

// NewNopMetrics creates a new NopMetrics instance.
func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

// RecordValidation is a no-op.
func (m *NopMetrics) RecordValidation(_ OutcomeStatus, _ time.Duration) {}

// RecordPinMismatch is a no-op.
func (m *NopMetrics) RecordPinMismatch(_ PinField) {}

// RecordChainFailure is a no-op.
func (m *NopMetrics) RecordChainFailure(_ ChainReason) {}

// UpdateReferenceExpiry is a no-op.
func (m *NopMetrics) UpdateReferenceExpiry(_ Reference) {}

// MetricsRecorder defines the interface for recording pinning metrics.
type MetricsRecorder interface {
	RecordValidation(status OutcomeStatus, duration time.Duration)
	RecordPinMismatch(field PinField)
	RecordChainFailure(reason ChainReason)
	UpdateReferenceExpiry(reference Reference)
}

// Ensure implementations satisfy the interface.
var (
	_ MetricsRecorder = (*Metrics)(nil)
	_ MetricsRecorder = (*NopMetrics)(nil)
)
