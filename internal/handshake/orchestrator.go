// Package handshake composes chain validation, pin matching, and client
// identity supply into the decision callbacks a TLS stack invokes during a
// mutual-TLS handshake.
package handshake

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"github.com/avialdo/certpin/internal/identity"
	"github.com/avialdo/certpin/internal/observability"
	"github.com/avialdo/certpin/internal/pinning"
)

// Orchestrator composes the chain gate, the pin gate, and the client
// identity into the per-handshake decision. It is immutable after
// construction and shared by all concurrent connection attempts; per-attempt
// state lives in Attempt.
//
// Validation runs synchronously on whatever goroutine the transport invokes
// it from and spawns no background work.
type Orchestrator struct {
	validator *pinning.ChainValidator
	matcher   *pinning.Matcher
	loader    *identity.Loader

	digest       pinning.Digest
	allowCapture bool
	logger       observability.Logger
	metrics      pinning.MetricsRecorder
	now          func() time.Time
}

// Option is a functional option for configuring Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger for the orchestrator.
func WithLogger(logger observability.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the orchestrator.
func WithMetrics(metrics pinning.MetricsRecorder) Option {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// WithClock sets the time source used for validity window checks.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithBootstrapCapture allows running without a pinned reference: presented
// root certificates are surfaced on the diagnostic channel for provisioning
// and every handshake is still rejected. Off by default.
func WithBootstrapCapture() Option {
	return func(o *Orchestrator) {
		o.allowCapture = true
	}
}

// WithDigest sets the thumbprint digest used when parsing presented chains.
func WithDigest(digest pinning.Digest) Option {
	return func(o *Orchestrator) {
		o.digest = digest
	}
}

// New creates an Orchestrator.
//
// The matcher may be nil only when bootstrap capture is enabled; a client
// with neither a reference nor capture mode cannot make any decision and
// fails construction rather than running unpinned. The loader may be nil
// for one-way pinning; a server that then demands a client certificate
// fails the handshake.
func New(validator *pinning.ChainValidator, matcher *pinning.Matcher, loader *identity.Loader, opts ...Option) (*Orchestrator, error) {
	if validator == nil {
		return nil, errors.New("chain validator is required")
	}

	o := &Orchestrator{
		validator: validator,
		matcher:   matcher,
		digest:    pinning.DigestSHA1,
		loader:    loader,
		logger:    observability.NopLogger(),
		metrics:   pinning.NewNopMetrics(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.matcher == nil && !o.allowCapture {
		return nil, pinning.ErrNoReference
	}

	return o, nil
}

// Validate runs both decision gates over a presented server chain.
//
// The chain gate runs first; the pin gate is never evaluated for a chain
// that failed validation. Context cancellation at any point yields a
// rejection, never an acceptance without a completed pass.
func (o *Orchestrator) Validate(ctx context.Context, rawChain [][]byte, hostname string) pinning.Outcome {
	start := o.now()

	outcome := o.validate(ctx, rawChain, hostname)

	o.metrics.RecordValidation(outcome.Status, o.now().Sub(start))
	if outcome.IsAccepted() {
		o.logger.Debug("server chain accepted",
			observability.String("hostname", hostname),
			observability.String("root_cn", outcome.Root.SubjectCN()),
		)
	} else {
		o.logger.Warn("server chain rejected",
			observability.String("hostname", hostname),
			observability.String("status", outcome.Status.String()),
			observability.Error(outcome.Err),
		)
	}

	return outcome
}

func (o *Orchestrator) validate(ctx context.Context, rawChain [][]byte, hostname string) pinning.Outcome {
	if err := ctx.Err(); err != nil {
		return pinning.RejectedChain(err)
	}

	chain, err := pinning.ParseChain(rawChain, o.digest)
	if err != nil {
		o.recordChainFailure(err)
		return pinning.RejectedChain(err)
	}

	root, err := o.validator.Validate(chain, hostname, o.now())
	if err != nil {
		o.recordChainFailure(err)
		return pinning.RejectedChain(err)
	}

	if err := ctx.Err(); err != nil {
		return pinning.RejectedChain(err)
	}

	if o.matcher == nil {
		pinning.CaptureRootPin(o.logger, chain)
		return pinning.RejectedPin(pinning.ErrNoReference)
	}

	if err := o.matcher.Match(root); err != nil {
		var pinErr *pinning.PinError
		if errors.As(err, &pinErr) {
			o.metrics.RecordPinMismatch(pinErr.Field)
		}
		return pinning.RejectedPin(err)
	}

	return pinning.Accepted(root)
}

func (o *Orchestrator) recordChainFailure(err error) {
	var chainErr *pinning.ChainError
	if errors.As(err, &chainErr) {
		o.metrics.RecordChainFailure(chainErr.Reason)
	}
}

// ClientIdentity returns the pre-loaded client identity in handshake form.
// The identity is decoded once per client lifetime, never per connection.
func (o *Orchestrator) ClientIdentity() (*tls.Certificate, error) {
	if o.loader == nil {
		return nil, identity.ErrNoIdentity
	}
	id, err := o.loader.Load()
	if err != nil {
		return nil, err
	}
	return id.TLSCertificate()
}

// NewAttempt starts the decision state machine for one connection attempt.
func (o *Orchestrator) NewAttempt(hostname string) *Attempt {
	return &Attempt{
		orchestrator: o,
		hostname:     hostname,
		state:        StateAwaitingServerCert,
	}
}
