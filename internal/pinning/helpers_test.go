package pinning

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testKeyPair holds a certificate and its signing key.
type testKeyPair struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

var testSerial int64

// newTestCA creates a self-signed CA certificate.
func newTestCA(t *testing.T, opts ...func(*x509.Certificate)) testKeyPair {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	testSerial++
	template := &x509.Certificate{
		SerialNumber: big.NewInt(testSerial),
		Subject: pkix.Name{
			CommonName:   "Certpin Test Root CA",
			Organization: []string{"Certpin Test"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	for _, opt := range opts {
		opt(template)
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return testKeyPair{cert: cert, key: key}
}

// newTestLeaf creates a leaf certificate signed by the given CA.
func newTestLeaf(t *testing.T, ca testKeyPair, opts ...func(*x509.Certificate)) testKeyPair {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	testSerial++
	template := &x509.Certificate{
		SerialNumber: big.NewInt(testSerial),
		Subject: pkix.Name{
			CommonName:   "api.example.com",
			Organization: []string{"Certpin Test"},
		},
		DNSNames:              []string{"api.example.com"},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	for _, opt := range opts {
		opt(template)
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, &key.PublicKey, ca.key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return testKeyPair{cert: cert, key: key}
}

// buildChain converts parsed certificates into an ordered pinning chain.
func buildChain(certs ...*x509.Certificate) []Certificate {
	chain := make([]Certificate, 0, len(certs))
	for i, cert := range certs {
		chain = append(chain, FromX509(cert, i, DigestSHA1))
	}
	return chain
}

// testTrust returns a TrustSource trusting only the given CA.
func testTrust(ca testKeyPair) TrustSource {
	pool := x509.NewCertPool()
	pool.AddCert(ca.cert)
	return PoolTrust{Pool: pool}
}
