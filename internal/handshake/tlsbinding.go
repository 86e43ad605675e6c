package handshake

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"

	"google.golang.org/grpc/credentials"
)

// TLSBinding adapts the decision core onto crypto/tls handshake callbacks.
//
// The binding disables the stack's own chain verification and routes the
// presented chain through the orchestrator instead: the orchestrator performs
// the full trust-anchor verification itself before the pin gate, so no check
// is lost, and a rejection surfaces as a handshake failure rather than a
// silently downgraded connection.
type TLSBinding struct {
	orchestrator *Orchestrator
	hostname     string
}

// NewTLSBinding creates a binding for connections to the given hostname.
func NewTLSBinding(orchestrator *Orchestrator, hostname string) *TLSBinding {
	return &TLSBinding{orchestrator: orchestrator, hostname: hostname}
}

// ClientConfig returns a tls.Config wired to the decision core. The config
// is safe to share across connections; each handshake runs its own attempt.
func (b *TLSBinding) ClientConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: b.hostname,

		// Verification is owned by the orchestrator, including the
		// trust-anchor check the stack would otherwise perform.
		InsecureSkipVerify: true, //nolint:gosec // full verification happens in VerifyPeerCertificate

		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			attempt := b.orchestrator.NewAttempt(b.hostname)
			outcome := attempt.PresentChainForValidation(context.Background(), rawCerts)
			if !outcome.IsAccepted() {
				return outcome.Err
			}
			return nil
		},

		GetClientCertificate: func(_ *tls.CertificateRequestInfo) (*tls.Certificate, error) {
			return b.orchestrator.ClientIdentity()
		},
	}
}

// DialContext performs a pinned TLS handshake to addr and returns the
// secured connection. The per-attempt state machine drives the decision
// steps; a rejection at either gate aborts the connection.
func (b *TLSBinding) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	attempt := b.orchestrator.NewAttempt(b.hostname)

	config := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         b.hostname,
		InsecureSkipVerify: true, //nolint:gosec // full verification happens in VerifyPeerCertificate

		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			outcome := attempt.PresentChainForValidation(ctx, rawCerts)
			if !outcome.IsAccepted() {
				return outcome.Err
			}
			return nil
		},

		GetClientCertificate: func(_ *tls.CertificateRequestInfo) (*tls.Certificate, error) {
			return attempt.SupplyClientIdentity()
		},
	}

	dialer := &tls.Dialer{Config: config}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		attempt.Close()
		return nil, err
	}
	return conn, nil
}

// TransportCredentials returns gRPC transport credentials wired to the
// decision core.
func (b *TLSBinding) TransportCredentials() credentials.TransportCredentials {
	return credentials.NewTLS(b.ClientConfig())
}
