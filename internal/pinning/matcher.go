package pinning

import (
	"bytes"
	"strings"
)

// Matcher compares a chain's terminal certificate against the pinned
// Reference. Matching is a pure function over already-parsed certificates;
// a Matcher is immutable and safe for concurrent use.
type Matcher struct {
	reference Reference
}

// NewMatcher creates a Matcher for the given reference.
func NewMatcher(reference Reference) (*Matcher, error) {
	if reference.IsZero() {
		return nil, ErrNoReference
	}
	return &Matcher{reference: reference}, nil
}

// Reference returns the pinned reference.
func (m *Matcher) Reference() Reference {
	return m.reference
}

// Match reports whether the terminal certificate of a validated chain matches
// the pinned reference. All three clauses must hold:
//
//  1. The root subject CN contains the reference subject CN. Substring
//     matching accommodates wildcard and prefix variants such as "o*.".
//  2. The root issuer CN contains the reference issuer CN and the root
//     issuer O contains the reference issuer O.
//  3. The thumbprints are equal byte-for-byte.
//
// The first failing clause is reported as a *PinError naming the field.
func (m *Matcher) Match(root Certificate) error {
	if !strings.Contains(root.SubjectCN(), m.reference.SubjectCN()) {
		return NewPinError(PinFieldSubject, root.SubjectCN(),
			"root subject CN does not contain reference subject CN")
	}

	if !strings.Contains(root.IssuerCN(), m.reference.IssuerCN()) ||
		!strings.Contains(root.IssuerO(), m.reference.IssuerO()) {
		return NewPinError(PinFieldIssuer, root.SubjectCN(),
			"root issuer does not contain reference issuer")
	}

	if !bytes.Equal(root.thumbprint, m.reference.thumbprint) {
		return NewPinError(PinFieldThumbprint, root.SubjectCN(),
			"root thumbprint does not equal reference thumbprint")
	}

	return nil
}
