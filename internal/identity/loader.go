package identity

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"sync"

	legacypkcs12 "golang.org/x/crypto/pkcs12"
	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/avialdo/certpin/internal/observability"
	"github.com/avialdo/certpin/internal/pinning"
)

// Loader decodes a PKCS#12 bundle into a client Identity.
//
// Decoding happens at most once per Loader lifetime: the first Load decrypts
// the bundle and every subsequent call returns the cached result, so
// concurrent first use cannot cause duplicate decryption or inconsistent
// partial state. Re-parsing the bundle per connection would be wasted work
// and an unnecessary exposure of key material.
//
// A bundle normally holds exactly one identity. When a container carries
// several key entries, the loader enumerates its bags and selects the first
// key entry, paired with its certificate through the bag-level local key ID;
// the remaining entries are ignored. The chain associated with the selected
// key is used as-is, leaf first.
type Loader struct {
	bundle     []byte
	passphrase string
	digest     pinning.Digest
	logger     observability.Logger

	once     sync.Once
	identity *Identity
	err      error
}

// LoaderOption is a functional option for configuring Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger for the loader. Key material and the
// passphrase are never logged.
func WithLoaderLogger(logger observability.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithDigest sets the thumbprint digest used for the identity chain.
func WithDigest(digest pinning.Digest) LoaderOption {
	return func(l *Loader) {
		l.digest = digest
	}
}

// NewLoader creates a Loader for the given bundle and passphrase.
func NewLoader(bundle []byte, passphrase string, opts ...LoaderOption) *Loader {
	l := &Loader{
		bundle:     bundle,
		passphrase: passphrase,
		digest:     pinning.DigestSHA1,
		logger:     observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load returns the client identity, decoding the bundle on first use.
//
// Failure is terminal for the Loader: a bundle that fails to decode once
// fails the same way on every call.
func (l *Loader) Load() (*Identity, error) {
	l.once.Do(func() {
		l.identity, l.err = l.decode()
		if l.err != nil {
			l.logger.Error("client identity bundle rejected", observability.Error(l.err))
			return
		}
		l.logger.Info("client identity loaded",
			observability.String("subject_cn", l.identity.Leaf().SubjectCN()),
			observability.Int("chain_length", len(l.identity.chain)),
			observability.Time("not_after", l.identity.Leaf().NotAfter()),
		)
	})
	return l.identity, l.err
}

// decode decrypts and parses the PKCS#12 container.
func (l *Loader) decode() (*Identity, error) {
	if len(l.bundle) == 0 {
		return nil, NewLoadError(ErrMalformed, "bundle is empty")
	}

	key, leaf, caCerts, err := pkcs12.DecodeChain(l.bundle, l.passphrase)
	if err != nil {
		// DecodeChain refuses containers with more than one key entry.
		if id, ok := l.decodeFirstEntry(); ok {
			return id, nil
		}
		return nil, classifyDecodeError(err)
	}

	return l.buildIdentity(key, leaf, caCerts)
}

// buildIdentity assembles an Identity from a decoded key entry and its chain.
func (l *Loader) buildIdentity(key crypto.PrivateKey, leaf *x509.Certificate, caCerts []*x509.Certificate) (*Identity, error) {
	if leaf == nil {
		return nil, NewLoadError(ErrNoIdentity, "bundle holds no certificate for the key entry")
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, NewLoadError(ErrNoIdentity, "bundle key does not support signing")
	}

	certs := append([]*x509.Certificate{leaf}, caCerts...)
	chain := make([]pinning.Certificate, 0, len(certs))
	for i, cert := range certs {
		chain = append(chain, pinning.FromX509(cert, i, l.digest))
	}

	return newIdentity(signer, chain), nil
}

// decodeFirstEntry handles containers that hold more than one identity.
// The safe bags are enumerated in container order and the first key entry
// wins; its certificate is located through the bag-level local key ID, and
// certificates tied to the skipped key entries stay out of the chain.
func (l *Loader) decodeFirstEntry() (*Identity, bool) {
	blocks, err := legacypkcs12.ToPEM(l.bundle, l.passphrase)
	if err != nil {
		return nil, false
	}

	var keyBlocks, certBlocks []*pem.Block
	for _, block := range blocks {
		switch block.Type {
		case "PRIVATE KEY":
			keyBlocks = append(keyBlocks, block)
		case "CERTIFICATE":
			certBlocks = append(certBlocks, block)
		}
	}
	if len(keyBlocks) < 2 || len(certBlocks) == 0 {
		return nil, false
	}

	selected := keyBlocks[0]
	key, err := parseEnumeratedKey(selected.Bytes)
	if err != nil {
		return nil, false
	}

	skipped := make(map[string]bool, len(keyBlocks)-1)
	for _, block := range keyBlocks[1:] {
		if id := block.Headers["localKeyId"]; id != "" {
			skipped[id] = true
		}
	}

	var leaf *x509.Certificate
	var caCerts []*x509.Certificate
	keyID := selected.Headers["localKeyId"]
	for _, block := range certBlocks {
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, false
		}
		certID := block.Headers["localKeyId"]
		switch {
		case leaf == nil && keyID != "" && certID == keyID:
			leaf = cert
		case certID != "" && skipped[certID]:
			// Belongs to a key entry that was not selected.
		default:
			caCerts = append(caCerts, cert)
		}
	}
	if leaf == nil {
		if len(caCerts) == 0 {
			return nil, false
		}
		leaf, caCerts = caCerts[0], caCerts[1:]
	}

	id, err := l.buildIdentity(key, leaf, caCerts)
	if err != nil {
		return nil, false
	}

	l.logger.Warn("bundle holds multiple identities, selecting the first key entry",
		observability.Int("key_entries", len(keyBlocks)),
	)
	return id, true
}

// parseEnumeratedKey parses a private key recovered from bag enumeration,
// which yields RSA keys in PKCS#1 form and EC keys in SEC 1 form.
func parseEnumeratedKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return x509.ParsePKCS1PrivateKey(der)
}

// classifyDecodeError maps go-pkcs12 failures onto the loader error taxonomy.
func classifyDecodeError(err error) error {
	if isIncorrectPassphrase(err) {
		return NewLoadErrorWithCause(ErrBadPassphrase, "bundle decryption failed", err)
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "no private key") ||
		strings.Contains(msg, "certificate missing") ||
		strings.Contains(msg, "private key missing") {
		return NewLoadErrorWithCause(ErrNoIdentity, "bundle holds no usable identity", err)
	}

	return NewLoadErrorWithCause(ErrMalformed, "bundle could not be decoded", err)
}

// isIncorrectPassphrase detects decrypt failures caused by a wrong passphrase.
func isIncorrectPassphrase(err error) bool {
	if errors.Is(err, pkcs12.ErrIncorrectPassword) || errors.Is(err, pkcs12.ErrDecryption) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "decryption password incorrect") ||
		strings.Contains(msg, "incorrect padding")
}
