package pinning

import (
	"crypto/x509"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/avialdo/certpin/internal/observability"
)

// TrustSource supplies the platform trust anchors used for chain verification.
// A nil certificate pool selects the operating system trust store.
type TrustSource interface {
	TrustedRoots() (*x509.CertPool, error)
}

// SystemTrust is a TrustSource backed by the operating system trust store.
type SystemTrust struct{}

// TrustedRoots returns nil, selecting the system roots.
func (SystemTrust) TrustedRoots() (*x509.CertPool, error) {
	return nil, nil
}

// PoolTrust is a TrustSource backed by a fixed certificate pool.
type PoolTrust struct {
	Pool *x509.CertPool
}

// TrustedRoots returns the fixed pool.
func (p PoolTrust) TrustedRoots() (*x509.CertPool, error) {
	return p.Pool, nil
}

// ChainValidator verifies a presented certificate chain against trust
// anchors, the requested hostname, and certificate validity windows.
//
// Validation never retries. A failed chain validation is terminal for the
// handshake attempt.
type ChainValidator struct {
	trust    TrustSource
	revoker  *revocationChecker
	logger   observability.Logger
	keyUsage []x509.ExtKeyUsage
}

// ValidatorOption is a functional option for configuring ChainValidator.
type ValidatorOption func(*ChainValidator)

// WithTrustSource sets the trust anchor source.
func WithTrustSource(trust TrustSource) ValidatorOption {
	return func(v *ChainValidator) {
		v.trust = trust
	}
}

// WithValidatorLogger sets the logger for the validator.
func WithValidatorLogger(logger observability.Logger) ValidatorOption {
	return func(v *ChainValidator) {
		v.logger = logger
	}
}

// WithRevocationCheck enables OCSP revocation checking of the leaf
// certificate with the given HTTP timeout.
func WithRevocationCheck(timeout time.Duration) ValidatorOption {
	return func(v *ChainValidator) {
		v.revoker = newRevocationChecker(timeout)
	}
}

// NewChainValidator creates a new chain validator.
func NewChainValidator(opts ...ValidatorOption) *ChainValidator {
	v := &ChainValidator{
		trust:    SystemTrust{},
		logger:   observability.NopLogger(),
		keyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Validate checks a presented chain and returns its terminal certificate.
//
// All of the following must pass, in order:
//
//   - the chain holds the leaf plus at least one issuing certificate
//   - the leaf matches the requested hostname (SANs first, legacy CN
//     fallback; "*." matches exactly one left-most label)
//   - every certificate satisfies notBefore <= now <= notAfter
//   - the chain cryptographically verifies up to a trust anchor
func (v *ChainValidator) Validate(chain []Certificate, hostname string, now time.Time) (Certificate, error) {
	if len(chain) == 0 {
		return Certificate{}, NewChainError(ReasonMalformedChain, "", "empty certificate chain")
	}
	if len(chain) < 2 {
		return Certificate{}, NewChainError(ReasonMalformedChain, chain[0].SubjectCN(),
			"chain holds no certificate beyond the leaf")
	}

	leaf := chain[0]

	if err := v.validateHostname(leaf, hostname); err != nil {
		return Certificate{}, err
	}

	for _, cert := range chain {
		if !cert.ValidAt(now) {
			return Certificate{}, NewChainError(ReasonExpired, cert.SubjectCN(),
				fmt.Sprintf("certificate at position %d is outside its validity window (%s to %s)",
					cert.ChainIndex(),
					cert.NotBefore().Format(time.RFC3339),
					cert.NotAfter().Format(time.RFC3339)))
		}
	}

	if err := v.verifyTrust(chain, now); err != nil {
		return Certificate{}, err
	}

	if v.revoker != nil {
		if err := v.revoker.check(leaf, chain[1]); err != nil {
			return Certificate{}, err
		}
	}

	root := chain[len(chain)-1]
	v.logger.Debug("certificate chain validated",
		observability.String("leaf", leaf.SubjectCN()),
		observability.String("root", root.SubjectCN()),
		observability.Int("chain_length", len(chain)),
	)

	return root, nil
}

// validateHostname checks the leaf against the requested hostname.
func (v *ChainValidator) validateHostname(leaf Certificate, hostname string) error {
	if hostname == "" {
		return NewChainError(ReasonHostnameMismatch, leaf.SubjectCN(), "requested hostname is empty")
	}

	cert := leaf.X509()

	if ip := net.ParseIP(hostname); ip != nil {
		for _, certIP := range cert.IPAddresses {
			if ip.Equal(certIP) {
				return nil
			}
		}
		return NewChainError(ReasonHostnameMismatch, leaf.SubjectCN(),
			fmt.Sprintf("certificate is not valid for address %q", hostname))
	}

	for _, dnsName := range cert.DNSNames {
		if matchHostname(hostname, dnsName) {
			return nil
		}
	}

	// Legacy fallback for certificates without SANs.
	if len(cert.DNSNames) == 0 && matchHostname(hostname, leaf.SubjectCN()) {
		return nil
	}

	return NewChainError(ReasonHostnameMismatch, leaf.SubjectCN(),
		fmt.Sprintf("certificate is not valid for host %q", hostname))
}

// verifyTrust verifies the chain up to a trust anchor.
func (v *ChainValidator) verifyTrust(chain []Certificate, now time.Time) error {
	roots, err := v.trust.TrustedRoots()
	if err != nil {
		return NewChainErrorWithCause(ReasonUntrustedRoot, chain[0].SubjectCN(),
			"trust anchors unavailable", err)
	}

	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert.X509())
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     v.keyUsage,
	}

	if _, err := chain[0].X509().Verify(opts); err != nil {
		return NewChainErrorWithCause(classifyVerifyError(err), chain[0].SubjectCN(),
			"chain does not verify to a trust anchor", err)
	}

	return nil
}

// classifyVerifyError maps crypto/x509 verification failures onto chain reasons.
func classifyVerifyError(err error) ChainReason {
	switch e := err.(type) {
	case x509.UnknownAuthorityError:
		return ReasonUntrustedRoot
	case x509.SystemRootsError:
		return ReasonUntrustedRoot
	case x509.CertificateInvalidError:
		if e.Reason == x509.Expired {
			return ReasonExpired
		}
		return ReasonMalformedChain
	case x509.HostnameError:
		return ReasonHostnameMismatch
	default:
		return ReasonMalformedChain
	}
}

// matchHostname matches a hostname against a certificate name pattern.
// A "*." prefix matches exactly one left-most label.
func matchHostname(host, pattern string) bool {
	if pattern == "" {
		return false
	}

	if strings.EqualFold(host, pattern) {
		return true
	}

	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // keep the dot
		if idx := strings.Index(host, "."); idx > 0 {
			return strings.EqualFold(host[idx:], suffix)
		}
	}

	return false
}
