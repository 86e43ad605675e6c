package certpin

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc/credentials"

	"github.com/avialdo/certpin/internal/config"
	"github.com/avialdo/certpin/internal/handshake"
	"github.com/avialdo/certpin/internal/identity"
	"github.com/avialdo/certpin/internal/observability"
	"github.com/avialdo/certpin/internal/pinning"
)

// Client is a pinned outbound TLS client for a single remote endpoint.
//
// Construction is fail-closed: an unparsable pin, an undecodable identity
// bundle, or an invalid configuration fails New rather than producing a
// client that degrades at connection time. A constructed Client is
// immutable and safe for concurrent use.
type Client struct {
	hostname string
	address  string

	binding *handshake.TLSBinding
	loader  *identity.Loader
	logger  observability.Logger
}

// New creates a Client from the given configuration.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	logger := options.logger
	if logger == nil {
		var err error
		logger, err = observability.NewLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
	}

	digest := cfg.Validation.DigestAlgorithm()

	var metrics pinning.MetricsRecorder = pinning.NewNopMetrics()
	if cfg.Metrics.Enabled {
		var mopts []pinning.MetricsOption
		if options.registry != nil {
			mopts = append(mopts, pinning.WithRegistry(options.registry))
		}
		metrics = pinning.NewMetrics(cfg.Metrics.Namespace, mopts...)
	}

	pinCert, err := parsePinCertificate(cfg)
	if err != nil {
		return nil, err
	}

	vopts := []pinning.ValidatorOption{
		pinning.WithTrustSource(buildTrust(cfg, options, pinCert)),
		pinning.WithValidatorLogger(logger),
	}
	if cfg.Validation.OCSPEnabled {
		vopts = append(vopts, pinning.WithRevocationCheck(cfg.Validation.OCSPTimeout))
	}
	validator := pinning.NewChainValidator(vopts...)

	matcher, err := buildMatcher(pinCert, digest, metrics)
	if err != nil {
		return nil, err
	}

	loader, err := buildLoader(cfg, digest, logger)
	if err != nil {
		return nil, err
	}

	oopts := []handshake.Option{
		handshake.WithLogger(logger),
		handshake.WithMetrics(metrics),
		handshake.WithDigest(digest),
	}
	if options.now != nil {
		oopts = append(oopts, handshake.WithClock(options.now))
	}
	if cfg.Pin.BootstrapCapture {
		oopts = append(oopts, handshake.WithBootstrapCapture())
	}

	orchestrator, err := handshake.New(validator, matcher, loader, oopts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		hostname: cfg.Target.Hostname,
		address:  cfg.DialAddress(),
		binding:  handshake.NewTLSBinding(orchestrator, cfg.Target.Hostname),
		loader:   loader,
		logger:   logger,
	}, nil
}

func parsePinCertificate(cfg *config.Config) (*x509.Certificate, error) {
	if !cfg.Pin.IsSet() {
		return nil, nil
	}

	der, err := cfg.Pin.CertificateDER()
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pin certificate: %w", err)
	}
	return cert, nil
}

// buildTrust selects the chain gate's trust anchors. By default the pinned
// certificate itself is the sole anchor, which serves private PKI without
// touching the host trust store; systemRoots switches to the host store for
// endpoints behind public CAs.
func buildTrust(cfg *config.Config, options *clientOptions, pinCert *x509.Certificate) pinning.TrustSource {
	if options.roots != nil {
		return pinning.PoolTrust{Pool: options.roots}
	}
	if cfg.Validation.SystemRoots || pinCert == nil {
		return pinning.SystemTrust{}
	}

	pool := x509.NewCertPool()
	pool.AddCert(pinCert)
	return pinning.PoolTrust{Pool: pool}
}

func buildMatcher(pinCert *x509.Certificate, digest pinning.Digest, metrics pinning.MetricsRecorder) (*pinning.Matcher, error) {
	if pinCert == nil {
		return nil, nil
	}

	reference, err := pinning.NewReference(pinCert, digest)
	if err != nil {
		return nil, err
	}
	metrics.UpdateReferenceExpiry(reference)

	return pinning.NewMatcher(reference)
}

// buildLoader constructs the identity loader and decodes the bundle
// eagerly, so a bad passphrase or corrupt bundle fails construction.
func buildLoader(cfg *config.Config, digest pinning.Digest, logger observability.Logger) (*identity.Loader, error) {
	if !cfg.Identity.IsSet() {
		return nil, nil
	}

	bundle, err := cfg.Identity.BundleBytes()
	if err != nil {
		return nil, err
	}
	passphrase, err := cfg.Identity.Passphrase()
	if err != nil {
		return nil, err
	}

	loader := identity.NewLoader(bundle, passphrase,
		identity.WithDigest(digest),
		identity.WithLoaderLogger(logger),
	)
	if _, err := loader.Load(); err != nil {
		return nil, fmt.Errorf("failed to load client identity: %w", err)
	}

	return loader, nil
}

// Hostname returns the expected server identity.
func (c *Client) Hostname() string {
	return c.hostname
}

// Address returns the dial address.
func (c *Client) Address() string {
	return c.address
}

// TLSConfig returns a tls.Config performing the pinned handshake decision.
// The config is safe to share across connections.
func (c *Client) TLSConfig() *tls.Config {
	return c.binding.ClientConfig()
}

// DialTLS performs a pinned handshake to addr. An empty addr dials the
// configured target address.
func (c *Client) DialTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	if addr == "" {
		addr = c.address
	}
	return c.binding.DialContext(ctx, network, addr)
}

// HTTPClient returns an http.Client whose TLS connections are pinned.
// Requests must address the configured hostname; connections to any other
// host fail the hostname gate.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return c.binding.DialContext(ctx, network, addr)
			},
		},
		Timeout: 30 * time.Second,
	}
}

// TransportCredentials returns gRPC transport credentials performing the
// pinned handshake decision.
func (c *Client) TransportCredentials() credentials.TransportCredentials {
	return c.binding.TransportCredentials()
}

// Close releases the client identity's key material. The client must not
// be used after Close.
func (c *Client) Close() error {
	if c.loader != nil {
		if id, err := c.loader.Load(); err == nil {
			id.Close()
		}
	}
	return c.logger.Sync()
}
