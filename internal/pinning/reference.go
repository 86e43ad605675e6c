package pinning

import (
	"crypto/x509"
	"encoding/base64"
	"time"
)

// Reference is the pinned reference derived from a single trusted root
// certificate supplied out-of-band.
//
// A Reference is created once at client configuration time, lives for the
// process, is never mutated, and is shared read-only across all concurrent
// validations.
type Reference struct {
	subjectCN  string
	issuerCN   string
	issuerO    string
	thumbprint []byte
	notAfter   time.Time
	digest     Digest
}

// NewReference derives a Reference from a trusted root certificate.
func NewReference(cert *x509.Certificate, digest Digest) (Reference, error) {
	if cert == nil {
		return Reference{}, NewChainError(ReasonMalformedChain, "", "reference certificate is nil")
	}
	if !digest.IsValid() {
		return Reference{}, ErrDigestInvalid
	}

	model := FromX509(cert, 0, digest)
	return Reference{
		subjectCN:  model.SubjectCN(),
		issuerCN:   model.IssuerCN(),
		issuerO:    model.IssuerO(),
		thumbprint: model.Thumbprint(),
		notAfter:   model.NotAfter(),
		digest:     digest,
	}, nil
}

// ParseReference decodes a base64 DER certificate into a Reference.
// This is the out-of-band provisioning format for the pin.
func ParseReference(encoded string, digest Digest) (Reference, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Reference{}, NewChainErrorWithCause(ReasonMalformedChain, "",
			"reference certificate is not valid base64", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return Reference{}, NewChainErrorWithCause(ReasonMalformedChain, "",
			"failed to parse reference certificate", err)
	}

	return NewReference(cert, digest)
}

// SubjectCN returns the reference subject Common Name.
func (r Reference) SubjectCN() string { return r.subjectCN }

// IssuerCN returns the reference issuer Common Name.
func (r Reference) IssuerCN() string { return r.issuerCN }

// IssuerO returns the reference issuer Organization.
func (r Reference) IssuerO() string { return r.issuerO }

// NotAfter returns the expiry of the reference certificate.
func (r Reference) NotAfter() time.Time { return r.notAfter }

// Digest returns the thumbprint digest algorithm of the reference.
func (r Reference) Digest() Digest { return r.digest }

// Thumbprint returns a copy of the reference thumbprint.
func (r Reference) Thumbprint() []byte {
	out := make([]byte, len(r.thumbprint))
	copy(out, r.thumbprint)
	return out
}

// IsZero reports whether the reference is unset.
func (r Reference) IsZero() bool {
	return len(r.thumbprint) == 0
}
