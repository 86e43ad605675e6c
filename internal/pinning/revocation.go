package pinning

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/ocsp"
)

// DefaultRevocationTimeout bounds a single OCSP responder round trip.
const DefaultRevocationTimeout = 10 * time.Second

// revocationChecker performs OCSP status checks for leaf certificates.
// Revocation checking is optional; when the leaf carries no responder URLs
// the check is skipped rather than failed, since many private CAs publish
// none.
type revocationChecker struct {
	httpClient *http.Client
}

func newRevocationChecker(timeout time.Duration) *revocationChecker {
	if timeout <= 0 {
		timeout = DefaultRevocationTimeout
	}
	return &revocationChecker{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// check queries the leaf's OCSP responders using the issuing certificate.
func (r *revocationChecker) check(leaf, issuer Certificate) error {
	cert := leaf.X509()
	if len(cert.OCSPServer) == 0 {
		return nil
	}

	request, err := ocsp.CreateRequest(cert, issuer.X509(), nil)
	if err != nil {
		return NewChainErrorWithCause(ReasonMalformedChain, leaf.SubjectCN(),
			"failed to build OCSP request", err)
	}

	var lastErr error
	for _, server := range cert.OCSPServer {
		raw, err := r.post(server, request)
		if err != nil {
			lastErr = err
			continue
		}

		response, err := ocsp.ParseResponseForCert(raw, cert, issuer.X509())
		if err != nil {
			lastErr = err
			continue
		}

		switch response.Status {
		case ocsp.Good:
			return nil
		case ocsp.Revoked:
			return NewChainErrorWithCause(ReasonRevoked, leaf.SubjectCN(),
				"certificate reported revoked by OCSP responder", ErrCertificateRevoked)
		default:
			lastErr = NewChainError(ReasonRevoked, leaf.SubjectCN(),
				"OCSP responder reported unknown certificate status")
		}
	}

	return NewChainErrorWithCause(ReasonRevoked, leaf.SubjectCN(),
		"no OCSP responder returned a good status", lastErr)
}

func (r *revocationChecker) post(server string, request []byte) ([]byte, error) {
	resp, err := r.httpClient.Post(server, "application/ocsp-request", bytes.NewReader(request))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, NewChainError(ReasonRevoked, "",
			"OCSP responder returned status "+resp.Status)
	}

	return io.ReadAll(resp.Body)
}
