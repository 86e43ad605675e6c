// Package identity loads the client identity presented during mutual-TLS
// handshakes from an opaque PKCS#12 bundle.
package identity

import (
	"crypto"
	"crypto/tls"
	"sync/atomic"

	"github.com/avialdo/certpin/internal/pinning"
)

// Identity is the client identity presented during mutual-TLS handshakes.
//
// The private key is held as an opaque signer and is never serialized or
// logged. An Identity is immutable after construction and shared read-only
// across concurrent handshakes; Close drops the key reference when the owning
// client is disposed.
type Identity struct {
	chain   []pinning.Certificate
	tlsCert atomic.Pointer[tls.Certificate]
}

// newIdentity builds an Identity from a signer and its certificate chain.
// The chain is ordered leaf first.
func newIdentity(signer crypto.Signer, chain []pinning.Certificate) *Identity {
	rawChain := make([][]byte, 0, len(chain))
	for _, cert := range chain {
		rawChain = append(rawChain, cert.Raw())
	}

	id := &Identity{chain: chain}
	id.tlsCert.Store(&tls.Certificate{
		Certificate: rawChain,
		PrivateKey:  signer,
		Leaf:        chain[0].X509(),
	})
	return id
}

// Chain returns the ordered certificate chain, leaf first.
func (i *Identity) Chain() []pinning.Certificate {
	out := make([]pinning.Certificate, len(i.chain))
	copy(out, i.chain)
	return out
}

// Leaf returns the leaf certificate of the identity.
func (i *Identity) Leaf() pinning.Certificate {
	return i.chain[0]
}

// TLSCertificate returns the identity in the form the TLS stack presents
// during the handshake. The certificate and the closed state are read in a
// single load, so a call racing Close either gets the full certificate or
// ErrIdentityClosed, never a nil certificate without an error.
func (i *Identity) TLSCertificate() (*tls.Certificate, error) {
	cert := i.tlsCert.Load()
	if cert == nil {
		return nil, ErrIdentityClosed
	}
	return cert, nil
}

// Close drops the identity's key reference. Subsequent handshake use fails.
func (i *Identity) Close() {
	i.tlsCert.Store(nil)
}
