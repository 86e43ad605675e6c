package pinning

import (
	"errors"
	"fmt"
)

// Common sentinel errors for pinning operations.
var (
	// ErrHostnameMismatch indicates the leaf certificate does not match the requested hostname.
	ErrHostnameMismatch = errors.New("hostname mismatch")

	// ErrChainExpired indicates a certificate in the chain is outside its validity window.
	ErrChainExpired = errors.New("certificate chain expired")

	// ErrUntrustedRoot indicates the chain does not verify up to a trusted root.
	ErrUntrustedRoot = errors.New("untrusted root")

	// ErrMalformedChain indicates the presented chain is structurally invalid.
	ErrMalformedChain = errors.New("malformed certificate chain")

	// ErrCertificateRevoked indicates a certificate in the chain has been revoked.
	ErrCertificateRevoked = errors.New("certificate revoked")

	// ErrPinMismatch indicates the chain's terminal certificate does not match the pinned reference.
	ErrPinMismatch = errors.New("pin mismatch")

	// ErrNoReference indicates no pinned reference has been configured.
	ErrNoReference = errors.New("no pinned reference configured")

	// ErrDigestInvalid indicates an unsupported thumbprint digest algorithm.
	ErrDigestInvalid = errors.New("invalid thumbprint digest")
)

// ChainReason identifies the failure class of a chain validation.
type ChainReason string

// Chain failure reasons.
const (
	ReasonHostnameMismatch ChainReason = "hostname_mismatch"
	ReasonExpired          ChainReason = "expired"
	ReasonUntrustedRoot    ChainReason = "untrusted_root"
	ReasonMalformedChain   ChainReason = "malformed_chain"
	ReasonRevoked          ChainReason = "revoked"
)

// String returns the string representation of the reason.
func (r ChainReason) String() string {
	return string(r)
}

func (r ChainReason) sentinel() error {
	switch r {
	case ReasonHostnameMismatch:
		return ErrHostnameMismatch
	case ReasonExpired:
		return ErrChainExpired
	case ReasonUntrustedRoot:
		return ErrUntrustedRoot
	case ReasonRevoked:
		return ErrCertificateRevoked
	default:
		return ErrMalformedChain
	}
}

// ChainError represents a chain validation failure. Chain failures are always
// terminal for the handshake attempt.
type ChainError struct {
	Reason  ChainReason
	Subject string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if e.Subject != "" {
		if e.Cause != nil {
			return fmt.Sprintf("chain validation failed for %s: %s: %v", e.Subject, e.Message, e.Cause)
		}
		return fmt.Sprintf("chain validation failed for %s: %s", e.Subject, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("chain validation failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("chain validation failed: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ChainError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ChainError) Is(target error) bool {
	if errors.Is(e.Reason.sentinel(), target) {
		return true
	}
	_, ok := target.(*ChainError)
	return ok || errors.Is(e.Cause, target)
}

// NewChainError creates a new ChainError.
func NewChainError(reason ChainReason, subject, message string) *ChainError {
	return &ChainError{Reason: reason, Subject: subject, Message: message}
}

// NewChainErrorWithCause creates a new ChainError with a cause.
func NewChainErrorWithCause(reason ChainReason, subject, message string, cause error) *ChainError {
	return &ChainError{Reason: reason, Subject: subject, Message: message, Cause: cause}
}

// PinField identifies the reference field that failed to match.
type PinField string

// Pin match fields.
const (
	PinFieldSubject    PinField = "subject"
	PinFieldIssuer     PinField = "issuer"
	PinFieldThumbprint PinField = "thumbprint"
)

// String returns the string representation of the field.
func (f PinField) String() string {
	return string(f)
}

// PinError represents a pin matching failure. A pin mismatch indicates either
// misconfiguration or an active attack and must never be downgraded to accept.
type PinError struct {
	Field   PinField
	Subject string
	Message string
}

// Error implements the error interface.
func (e *PinError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("pin mismatch on %s for %s: %s", e.Field, e.Subject, e.Message)
	}
	return fmt.Sprintf("pin mismatch on %s: %s", e.Field, e.Message)
}

// Is checks if the error matches the target.
func (e *PinError) Is(target error) bool {
	if errors.Is(target, ErrPinMismatch) {
		return true
	}
	_, ok := target.(*PinError)
	return ok
}

// NewPinError creates a new PinError.
func NewPinError(field PinField, subject, message string) *PinError {
	return &PinError{Field: field, Subject: subject, Message: message}
}
