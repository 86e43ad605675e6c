package identity

import (
	"errors"
	"fmt"
)

// Common sentinel errors for identity loading.
var (
	// ErrBadPassphrase indicates the PKCS#12 bundle could not be decrypted
	// with the supplied passphrase.
	ErrBadPassphrase = errors.New("bad passphrase")

	// ErrNoIdentity indicates the bundle holds no key and certificate pair.
	ErrNoIdentity = errors.New("no identity in bundle")

	// ErrMalformed indicates the bundle could not be decoded structurally.
	ErrMalformed = errors.New("malformed bundle")

	// ErrIdentityClosed indicates the identity has been disposed.
	ErrIdentityClosed = errors.New("identity closed")
)

// LoadError represents an identity loading failure. Loading failures are
// fatal at client construction time; a mutual-TLS client without a usable
// identity cannot complete expected handshakes.
type LoadError struct {
	Kind    error
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("identity load failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("identity load failed: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *LoadError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	_, ok := target.(*LoadError)
	return ok || errors.Is(e.Cause, target)
}

// NewLoadError creates a new LoadError of the given kind.
func NewLoadError(kind error, message string) *LoadError {
	return &LoadError{Kind: kind, Message: message}
}

// NewLoadErrorWithCause creates a new LoadError with a cause.
func NewLoadErrorWithCause(kind error, message string, cause error) *LoadError {
	return &LoadError{Kind: kind, Message: message, Cause: cause}
}
