package pinning

import (
	"encoding/base64"

	"github.com/avialdo/certpin/internal/observability"
)

// EncodeForCapture returns the base64 DER encoding of a certificate in the
// same format ParseReference consumes. Operators use this to capture an
// initial pin from a live server.
func EncodeForCapture(cert Certificate) string {
	return base64.StdEncoding.EncodeToString(cert.raw)
}

// CaptureRootPin surfaces the terminal certificate of a presented chain on
// the diagnostic channel so an operator can record it as the initial pin.
//
// This is a one-time provisioning aid, not a security control. Callers gate
// it behind explicit configuration so it cannot run silently in production
// when provisioning is misconfigured.
func CaptureRootPin(logger observability.Logger, chain []Certificate) {
	if len(chain) == 0 {
		return
	}

	root := chain[len(chain)-1]
	logger.Warn("no pinned reference configured, capturing presented root for provisioning",
		observability.String("subject_cn", root.SubjectCN()),
		observability.String("issuer_cn", root.IssuerCN()),
		observability.String("thumbprint", root.ThumbprintHex()),
		observability.String("certificate_base64", EncodeForCapture(root)),
	)
}
