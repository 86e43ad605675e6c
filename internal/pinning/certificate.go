package pinning

import (
	"crypto/sha1" //nolint:gosec // SHA-1 thumbprints identify certificates, they are not a security boundary
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"strings"
	"time"
)

// Digest selects the thumbprint digest algorithm.
type Digest string

// Supported thumbprint digests.
const (
	// DigestSHA1 is the classic 20-byte certificate thumbprint.
	DigestSHA1 Digest = "sha1"

	// DigestSHA256 is the 32-byte certificate thumbprint.
	DigestSHA256 Digest = "sha256"
)

// String returns the string representation of the digest.
func (d Digest) String() string {
	return string(d)
}

// IsValid returns true if the digest algorithm is supported.
func (d Digest) IsValid() bool {
	switch d {
	case DigestSHA1, DigestSHA256:
		return true
	default:
		return false
	}
}

// Sum computes the digest of the given data.
func (d Digest) Sum(data []byte) []byte {
	switch d {
	case DigestSHA256:
		sum := sha256.Sum256(data)
		return sum[:]
	default:
		sum := sha1.Sum(data) //nolint:gosec // see Digest doc
		return sum[:]
	}
}

// Certificate is an immutable parsed X.509 certificate.
//
// The thumbprint is a deterministic digest of the raw encoding, recomputed at
// parse time and never trusted from external input.
type Certificate struct {
	subjectCN  string
	issuerCN   string
	issuerO    string
	thumbprint []byte
	notBefore  time.Time
	notAfter   time.Time
	raw        []byte
	chainIndex int

	cert *x509.Certificate
}

// ParseCertificate parses a DER-encoded certificate at the given chain position.
// Index 0 is the leaf.
func ParseCertificate(der []byte, index int, digest Digest) (Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return Certificate{}, NewChainErrorWithCause(ReasonMalformedChain, "",
			fmt.Sprintf("failed to parse certificate at position %d", index), err)
	}
	return FromX509(cert, index, digest), nil
}

// FromX509 builds a Certificate from an already-parsed x509 certificate.
func FromX509(cert *x509.Certificate, index int, digest Digest) Certificate {
	if !digest.IsValid() {
		digest = DigestSHA1
	}

	raw := make([]byte, len(cert.Raw))
	copy(raw, cert.Raw)

	return Certificate{
		subjectCN:  cert.Subject.CommonName,
		issuerCN:   cert.Issuer.CommonName,
		issuerO:    firstOrEmpty(cert.Issuer.Organization),
		thumbprint: digest.Sum(raw),
		notBefore:  cert.NotBefore,
		notAfter:   cert.NotAfter,
		raw:        raw,
		chainIndex: index,
		cert:       cert,
	}
}

// ParseChain parses an ordered sequence of DER-encoded certificates.
// Position 0 is the leaf.
func ParseChain(rawCerts [][]byte, digest Digest) ([]Certificate, error) {
	if len(rawCerts) == 0 {
		return nil, NewChainError(ReasonMalformedChain, "", "empty certificate chain")
	}

	chain := make([]Certificate, 0, len(rawCerts))
	for i, der := range rawCerts {
		cert, err := ParseCertificate(der, i, digest)
		if err != nil {
			return nil, err
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

// SubjectCN returns the subject Common Name.
func (c Certificate) SubjectCN() string { return c.subjectCN }

// IssuerCN returns the issuer Common Name.
func (c Certificate) IssuerCN() string { return c.issuerCN }

// IssuerO returns the issuer Organization.
func (c Certificate) IssuerO() string { return c.issuerO }

// NotBefore returns the start of the validity window.
func (c Certificate) NotBefore() time.Time { return c.notBefore }

// NotAfter returns the end of the validity window.
func (c Certificate) NotAfter() time.Time { return c.notAfter }

// ChainIndex returns the certificate's position in its chain. 0 is the leaf.
func (c Certificate) ChainIndex() int { return c.chainIndex }

// Thumbprint returns a copy of the certificate thumbprint.
func (c Certificate) Thumbprint() []byte {
	out := make([]byte, len(c.thumbprint))
	copy(out, c.thumbprint)
	return out
}

// Raw returns a copy of the DER encoding.
func (c Certificate) Raw() []byte {
	out := make([]byte, len(c.raw))
	copy(out, c.raw)
	return out
}

// X509 returns the underlying parsed certificate.
func (c Certificate) X509() *x509.Certificate { return c.cert }

// ValidAt reports whether now falls within the certificate validity window.
func (c Certificate) ValidAt(now time.Time) bool {
	return !now.Before(c.notBefore) && !now.After(c.notAfter)
}

// ThumbprintHex returns the thumbprint as a colon-separated hex string.
func (c Certificate) ThumbprintHex() string {
	parts := make([]string, len(c.thumbprint))
	for i, b := range c.thumbprint {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
