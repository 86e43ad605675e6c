// Package certpin provides an outbound HTTPS client locked to a pinned
// trust anchor with an optional mutual-TLS client identity.
//
// A Client decides per handshake: the presented server chain must first
// verify as a well-formed, unexpired chain for the expected hostname, and
// its trust anchor must then match the pinned reference by subject, issuer,
// and exact thumbprint. Either failure aborts the connection; the client
// never retries a failed handshake and never falls back to an unpinned
// connection.
package certpin

import (
	"crypto/x509"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/avialdo/certpin/internal/observability"
)

// Option is a functional option for configuring a Client.
type Option func(*clientOptions)

type clientOptions struct {
	logger   observability.Logger
	registry *prometheus.Registry
	roots    *x509.CertPool
	now      func() time.Time
}

// WithLogger sets the structured logger. When unset, a logger is built
// from the configuration's logging section.
func WithLogger(logger observability.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithMetricsRegistry registers the client's metrics with the given
// Prometheus registry instead of a private one.
func WithMetricsRegistry(registry *prometheus.Registry) Option {
	return func(o *clientOptions) {
		o.registry = registry
	}
}

// WithRootPool overrides the trust anchors used by the chain gate. When
// unset, the host's system roots are used.
func WithRootPool(roots *x509.CertPool) Option {
	return func(o *clientOptions) {
		o.roots = roots
	}
}

// WithClock overrides the time source used for validity-window checks.
func WithClock(now func() time.Time) Option {
	return func(o *clientOptions) {
		o.now = now
	}
}
