// Package pinning implements the certificate validation and pinning decision
// engine for the pinned mutual-TLS client.
//
// The package provides:
//
//   - Certificate: an immutable parsed X.509 certificate with a thumbprint
//     recomputed from the raw encoding at parse time
//   - Reference: the pinned reference derived from a trusted root certificate
//     supplied out-of-band, loaded once per client lifetime
//   - ChainValidator: verification of a presented chain against trust anchors,
//     hostname, and validity windows
//   - Matcher: the pure pin-matching decision comparing a chain's terminal
//     certificate against the Reference
//   - Prometheus metrics for validation outcomes
//
// # Decision order
//
// A presented chain passes through two gates. The chain gate (ChainValidator)
// runs first and yields the terminal certificate of the chain; the pin gate
// (Matcher) then compares that certificate against the Reference. A failure at
// either gate is terminal for the handshake attempt and is never retried here.
//
// # Matching policy
//
// The Matcher requires all three of the following:
//
//  1. The root's subject CN contains the reference subject CN as a substring.
//  2. The root's issuer CN and issuer O contain the reference issuer CN and O.
//  3. The root's thumbprint equals the reference thumbprint byte-for-byte.
//
// Substring matching on subject and issuer fields accommodates wildcard and
// prefix variants; the thumbprint equality is the dominant check and the only
// one resistant to forged name fields.
//
// # Concurrency
//
// Reference and Matcher are immutable after construction and safe for use by
// any number of concurrent handshake validations without locking. Validation
// is a pure, non-blocking computation over already-fetched bytes (the optional
// OCSP revocation check is the single exception and is disabled by default).
package pinning
