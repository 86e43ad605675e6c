package handshake

import "fmt"

// State is the position of a connection attempt in the handshake decision
// sequence.
type State int

// Attempt states. Rejected and Closed are terminal.
const (
	// StateAwaitingServerCert is the initial state before the transport
	// presents the server chain.
	StateAwaitingServerCert State = iota

	// StateValidating is active while the chain and pin gates run.
	StateValidating

	// StateAccepted indicates both gates passed; the attempt may supply the
	// client identity.
	StateAccepted

	// StateRejected indicates a gate failed. Terminal.
	StateRejected

	// StateClientCertSupplied indicates the client identity was handed to the
	// transport.
	StateClientCertSupplied

	// StateClosed indicates the attempt ended. Terminal.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateAwaitingServerCert:
		return "awaiting_server_cert"
	case StateValidating:
		return "validating"
	case StateAccepted:
		return "accepted"
	case StateRejected:
		return "rejected"
	case StateClientCertSupplied:
		return "client_cert_supplied"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateRejected || s == StateClosed
}

// StateError reports an operation attempted in an incompatible state.
type StateError struct {
	State State
	Op    string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("handshake attempt cannot %s in state %s", e.Op, e.State)
}

// NewStateError creates a new StateError.
func NewStateError(state State, op string) *StateError {
	return &StateError{State: state, Op: op}
}
