package handshake

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/avialdo/certpin/internal/identity"
	"github.com/avialdo/certpin/internal/pinning"
)

type testAuthority struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

var serialCounter int64 = 100

func nextSerial() *big.Int {
	serialCounter++
	return big.NewInt(serialCounter)
}

func newAuthority(t *testing.T, cn string) testAuthority {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject: pkix.Name{
			CommonName:   cn,
			Organization: []string{"Certpin Test"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return testAuthority{cert: cert, key: key}
}

func (a testAuthority) issue(t *testing.T, template *x509.Certificate) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.CreateCertificate(rand.Reader, template, a.cert, &key.PublicKey, a.key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return cert, key
}

func (a testAuthority) serverLeaf(t *testing.T, opts ...func(*x509.Certificate)) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject: pkix.Name{
			CommonName:   "api.example.com",
			Organization: []string{"Certpin Test"},
		},
		DNSNames:              []string{"api.example.com"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	for _, opt := range opts {
		opt(template)
	}

	return a.issue(t, template)
}

func (a testAuthority) clientBundle(t *testing.T, passphrase string) []byte {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject: pkix.Name{
			CommonName:   "mobile-client",
			Organization: []string{"Certpin Test"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	cert, key := a.issue(t, template)

	bundle, err := pkcs12.Modern.Encode(key, cert, []*x509.Certificate{a.cert}, passphrase)
	require.NoError(t, err)
	return bundle
}

func trustFor(ca testAuthority) pinning.TrustSource {
	pool := x509.NewCertPool()
	pool.AddCert(ca.cert)
	return pinning.PoolTrust{Pool: pool}
}

func matcherFor(t *testing.T, ca testAuthority) *pinning.Matcher {
	t.Helper()

	reference, err := pinning.NewReference(ca.cert, pinning.DigestSHA1)
	require.NoError(t, err)
	matcher, err := pinning.NewMatcher(reference)
	require.NoError(t, err)
	return matcher
}

func newTestLoader(t *testing.T, ca testAuthority) *identity.Loader {
	t.Helper()
	return identity.NewLoader(ca.clientBundle(t, "secret"), "secret")
}

// newTestOrchestrator wires an orchestrator trusting and pinning the given CA.
func newTestOrchestrator(t *testing.T, ca testAuthority, opts ...Option) *Orchestrator {
	t.Helper()

	validator := pinning.NewChainValidator(pinning.WithTrustSource(trustFor(ca)))

	orchestrator, err := New(validator, matcherFor(t, ca), newTestLoader(t, ca), opts...)
	require.NoError(t, err)
	return orchestrator
}

// fakeMetrics records pinning metric calls for assertions.
type fakeMetrics struct {
	mu            sync.Mutex
	validations   map[pinning.OutcomeStatus]int
	pinMismatches map[pinning.PinField]int
	chainFailures map[pinning.ChainReason]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		validations:   make(map[pinning.OutcomeStatus]int),
		pinMismatches: make(map[pinning.PinField]int),
		chainFailures: make(map[pinning.ChainReason]int),
	}
}

func (f *fakeMetrics) RecordValidation(status pinning.OutcomeStatus, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validations[status]++
}

func (f *fakeMetrics) RecordPinMismatch(field pinning.PinField) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinMismatches[field]++
}

func (f *fakeMetrics) RecordChainFailure(reason pinning.ChainReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chainFailures[reason]++
}

func (f *fakeMetrics) UpdateReferenceExpiry(_ pinning.Reference) {}

var _ pinning.MetricsRecorder = (*fakeMetrics)(nil)
