package handshake

import (
	"context"
	"crypto/tls"
	"sync"

	"github.com/avialdo/certpin/internal/pinning"
)

// Adapter is the capability set the decision core exposes to a platform TLS
// stack. A platform binding adapts its native handshake callbacks onto this
// interface; the binding is handed an Attempt explicitly rather than
// registered through process-wide state.
type Adapter interface {
	// PresentChainForValidation is invoked at the "received server
	// certificate" handshake step.
	PresentChainForValidation(ctx context.Context, rawChain [][]byte) pinning.Outcome

	// SupplyClientIdentity is invoked at the "server requests client
	// certificate" handshake step.
	SupplyClientIdentity() (*tls.Certificate, error)
}

// Attempt is the decision state machine for a single connection attempt.
//
// The transport drives it through at most one chain presentation and, when
// accepted, one identity supply. Rejected and Closed are final; the attempt
// never retries a failed handshake. Retry policy, if any, belongs to the
// transport or request layer.
type Attempt struct {
	orchestrator *Orchestrator
	hostname     string

	mu      sync.Mutex
	state   State
	outcome pinning.Outcome
}

// State returns the current attempt state.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Outcome returns the validation outcome recorded for this attempt.
func (a *Attempt) Outcome() pinning.Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outcome
}

// PresentChainForValidation runs the decision gates over the presented
// server chain and advances the state machine.
//
// Cancellation of ctx while validation is pending rejects the attempt; an
// attempt is never left accepted without a completed validation pass.
func (a *Attempt) PresentChainForValidation(ctx context.Context, rawChain [][]byte) pinning.Outcome {
	a.mu.Lock()
	if a.state != StateAwaitingServerCert {
		state := a.state
		a.mu.Unlock()
		return pinning.RejectedChain(NewStateError(state, "validate a server chain"))
	}
	a.state = StateValidating
	a.mu.Unlock()

	outcome := a.orchestrator.Validate(ctx, rawChain, a.hostname)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcome = outcome
	if outcome.IsAccepted() {
		a.state = StateAccepted
	} else {
		a.state = StateRejected
	}
	return outcome
}

// SupplyClientIdentity returns the pre-loaded client identity. It is valid
// only after the attempt accepted the server chain.
func (a *Attempt) SupplyClientIdentity() (*tls.Certificate, error) {
	a.mu.Lock()
	if a.state != StateAccepted && a.state != StateClientCertSupplied {
		state := a.state
		a.mu.Unlock()
		return nil, NewStateError(state, "supply the client identity")
	}
	a.state = StateClientCertSupplied
	a.mu.Unlock()

	return a.orchestrator.ClientIdentity()
}

// Close ends the attempt. Closing is idempotent and a closed attempt
// refuses further transitions.
func (a *Attempt) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateRejected {
		return
	}
	a.state = StateClosed
}

// Ensure Attempt implements the adapter capability set.
var _ Adapter = (*Attempt)(nil)
