package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/avialdo/certpin/internal/observability"
	"github.com/avialdo/certpin/internal/pinning"
)

// Config holds all settings for a pinned outbound client.
type Config struct {
	// Target is the remote endpoint the client connects to.
	Target TargetConfig `json:"target" yaml:"target"`

	// Pin references the expected trust-anchor certificate.
	Pin PinConfig `json:"pin" yaml:"pin"`

	// Identity references the client certificate bundle for mutual TLS.
	Identity IdentityConfig `json:"identity" yaml:"identity"`

	// Validation tunes the chain gate.
	Validation ValidationConfig `json:"validation" yaml:"validation"`

	// Logging configures structured log output.
	Logging observability.LogConfig `json:"logging" yaml:"logging"`

	// Metrics configures Prometheus instrumentation.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// TargetConfig identifies the remote endpoint.
type TargetConfig struct {
	// Hostname is the expected server identity, matched against the leaf
	// certificate. Required.
	Hostname string `json:"hostname" yaml:"hostname"`

	// Address is the dial address. Defaults to Hostname:443 when empty.
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
}

// PinConfig references the expected trust-anchor certificate, either inline
// as base64 DER or by file path. Exactly one of the two must be set unless
// bootstrap capture is enabled.
type PinConfig struct {
	// CertificateBase64 is the standard-base64 DER encoding of the pinned
	// certificate, as emitted by bootstrap capture.
	CertificateBase64 string `json:"certificateBase64,omitempty" yaml:"certificateBase64,omitempty"`

	// CertificateFile is a path to the pinned certificate in DER form.
	CertificateFile string `json:"certificateFile,omitempty" yaml:"certificateFile,omitempty"`

	// BootstrapCapture enables the controlled-environment capture mode:
	// connections are rejected, but the presented root is logged in
	// pin-ready form. Never enable this in production.
	BootstrapCapture bool `json:"bootstrapCapture,omitempty" yaml:"bootstrapCapture,omitempty"`
}

// IsSet returns true if a pin reference is configured.
func (p PinConfig) IsSet() bool {
	return p.CertificateBase64 != "" || p.CertificateFile != ""
}

// CertificateDER resolves the pinned certificate to raw DER bytes.
func (p PinConfig) CertificateDER() ([]byte, error) {
	switch {
	case p.CertificateBase64 != "":
		der, err := base64.StdEncoding.DecodeString(p.CertificateBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode pin certificate base64: %w", err)
		}
		return der, nil
	case p.CertificateFile != "":
		der, err := os.ReadFile(p.CertificateFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read pin certificate file: %w", err)
		}
		return der, nil
	default:
		return nil, fmt.Errorf("no pin certificate configured")
	}
}

// IdentityConfig references the PKCS#12 client identity bundle. The
// passphrase is indirected through an environment variable so it never
// appears in the config file.
type IdentityConfig struct {
	// BundleBase64 is the standard-base64 encoding of the PKCS#12 bundle.
	BundleBase64 string `json:"bundleBase64,omitempty" yaml:"bundleBase64,omitempty"`

	// BundleFile is a path to the PKCS#12 bundle.
	BundleFile string `json:"bundleFile,omitempty" yaml:"bundleFile,omitempty"`

	// PassphraseEnv names the environment variable holding the bundle
	// passphrase. Required when a bundle is configured.
	PassphraseEnv string `json:"passphraseEnv,omitempty" yaml:"passphraseEnv,omitempty"`
}

// IsSet returns true if a client identity is configured.
func (i IdentityConfig) IsSet() bool {
	return i.BundleBase64 != "" || i.BundleFile != ""
}

// BundleBytes resolves the PKCS#12 bundle to raw bytes.
func (i IdentityConfig) BundleBytes() ([]byte, error) {
	switch {
	case i.BundleBase64 != "":
		data, err := base64.StdEncoding.DecodeString(i.BundleBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode identity bundle base64: %w", err)
		}
		return data, nil
	case i.BundleFile != "":
		data, err := os.ReadFile(i.BundleFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read identity bundle file: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("no identity bundle configured")
	}
}

// Passphrase resolves the bundle passphrase from the configured environment
// variable.
func (i IdentityConfig) Passphrase() (string, error) {
	if i.PassphraseEnv == "" {
		return "", fmt.Errorf("no passphrase environment variable configured")
	}
	value, ok := os.LookupEnv(i.PassphraseEnv)
	if !ok {
		return "", fmt.Errorf("passphrase environment variable %s is not set", i.PassphraseEnv)
	}
	return value, nil
}

// ValidationConfig tunes the chain gate.
type ValidationConfig struct {
	// Digest selects the thumbprint algorithm. Defaults to sha1.
	Digest string `json:"digest,omitempty" yaml:"digest,omitempty"`

	// SystemRoots anchors the chain gate on the host trust store instead
	// of the pinned certificate itself. Required when the pin is an
	// intermediate rather than a self-signed root.
	SystemRoots bool `json:"systemRoots,omitempty" yaml:"systemRoots,omitempty"`

	// OCSPEnabled turns on revocation checking against the chain's OCSP
	// responders.
	OCSPEnabled bool `json:"ocspEnabled,omitempty" yaml:"ocspEnabled,omitempty"`

	// OCSPTimeout bounds a single responder round trip.
	OCSPTimeout time.Duration `json:"ocspTimeout,omitempty" yaml:"ocspTimeout,omitempty"`
}

// DigestAlgorithm returns the configured thumbprint digest, applying the
// default.
func (v ValidationConfig) DigestAlgorithm() pinning.Digest {
	if v.Digest == "" {
		return pinning.DigestSHA1
	}
	return pinning.Digest(v.Digest)
}

// MetricsConfig configures Prometheus instrumentation.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults. The pin and
// identity sections have no defaults; both must be configured explicitly.
func DefaultConfig() *Config {
	return &Config{
		Validation: ValidationConfig{
			Digest:      string(pinning.DigestSHA1),
			OCSPTimeout: 5 * time.Second,
		},
		Logging: observability.LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "certpin",
		},
	}
}

// DialAddress returns the address to dial, defaulting to port 443 on the
// target hostname.
func (c *Config) DialAddress() string {
	if c.Target.Address != "" {
		return c.Target.Address
	}
	return c.Target.Hostname + ":443"
}
