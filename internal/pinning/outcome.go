package pinning

// OutcomeStatus is the result class of a handshake validation.
type OutcomeStatus int

// Validation outcome statuses.
const (
	// StatusAccepted indicates both the chain gate and the pin gate passed.
	StatusAccepted OutcomeStatus = iota

	// StatusRejectedChain indicates the chain gate failed.
	StatusRejectedChain

	// StatusRejectedPin indicates the pin gate failed.
	StatusRejectedPin
)

// String returns the string representation of the status.
func (s OutcomeStatus) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusRejectedChain:
		return "rejected_chain"
	case StatusRejectedPin:
		return "rejected_pin"
	default:
		return "unknown"
	}
}

// Outcome is the per-handshake validation result.
type Outcome struct {
	// Status is the result class.
	Status OutcomeStatus

	// Root is the chain's terminal certificate. Set only when Status is
	// StatusAccepted.
	Root Certificate

	// Err is the rejection cause. Nil when Status is StatusAccepted.
	Err error
}

// Accepted builds an accepted outcome carrying the chain's terminal certificate.
func Accepted(root Certificate) Outcome {
	return Outcome{Status: StatusAccepted, Root: root}
}

// RejectedChain builds a chain-gate rejection.
func RejectedChain(err error) Outcome {
	return Outcome{Status: StatusRejectedChain, Err: err}
}

// RejectedPin builds a pin-gate rejection.
func RejectedPin(err error) Outcome {
	return Outcome{Status: StatusRejectedPin, Err: err}
}

// IsAccepted reports whether the outcome accepts the handshake.
func (o Outcome) IsAccepted() bool {
	return o.Status == StatusAccepted && o.Err == nil
}
