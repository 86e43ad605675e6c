package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/avialdo/certpin/internal/pinning"
)

// runCapture connects to an endpoint, captures the presented trust anchor,
// and prints it in configuration-ready form. The captured chain is still
// run through the chain gate; -force prints the pin anyway so a private
// root can be captured before it is installed in the trust store.
func runCapture(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("capture", flag.ContinueOnError)
	addr := fs.String("addr", "", "endpoint address (host:port)")
	hostname := fs.String("hostname", "", "expected server identity (defaults to the address host)")
	digestName := fs.String("digest", string(pinning.DigestSHA1), "thumbprint digest (sha1, sha256)")
	timeout := fs.Duration("timeout", 10*time.Second, "dial timeout")
	force := fs.Bool("force", false, "print the pin even when chain validation fails")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *addr == "" {
		return fmt.Errorf("capture: -addr is required")
	}

	host := *hostname
	if host == "" {
		h, _, err := net.SplitHostPort(*addr)
		if err != nil {
			return fmt.Errorf("capture: invalid address %q: %w", *addr, err)
		}
		host = h
	}

	digest := pinning.Digest(*digestName)
	if !digest.IsValid() {
		return fmt.Errorf("capture: unsupported digest %q", *digestName)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rawChain, err := fetchChain(ctx, *addr, host)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	chain, err := pinning.ParseChain(rawChain, digest)
	if err != nil {
		return fmt.Errorf("capture: failed to parse presented chain: %w", err)
	}

	validator := pinning.NewChainValidator()
	if _, err := validator.Validate(chain, host, time.Now()); err != nil {
		if !*force {
			return fmt.Errorf("capture: chain validation failed (re-run with -force to capture anyway): %w", err)
		}
		fmt.Fprintf(stdout, "WARNING: chain validation failed: %v\n\n", err)
	}

	root := chain[len(chain)-1]
	printPin(stdout, root, digest)
	return nil
}

// fetchChain performs a handshake that accepts any certificate and returns
// the raw presented chain. Used only to observe the chain; no application
// data crosses the connection.
func fetchChain(ctx context.Context, addr, hostname string) ([][]byte, error) {
	var rawChain [][]byte

	config := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         hostname,
		InsecureSkipVerify: true, //nolint:gosec // capture observes the chain, it does not trust it
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			rawChain = append([][]byte(nil), rawCerts...)
			return nil
		},
	}

	dialer := &tls.Dialer{Config: config}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		// The server may abort after the certificate exchange, e.g. when
		// it requires a client certificate. The chain was still observed.
		if len(rawChain) > 0 {
			return rawChain, nil
		}
		return nil, err
	}
	_ = conn.Close()

	if len(rawChain) == 0 {
		return nil, fmt.Errorf("no certificates presented by %s", addr)
	}
	return rawChain, nil
}

func printPin(w io.Writer, root pinning.Certificate, digest pinning.Digest) {
	fmt.Fprintf(w, "subjectCN:   %s\n", root.SubjectCN())
	fmt.Fprintf(w, "issuerCN:    %s\n", root.IssuerCN())
	fmt.Fprintf(w, "issuerO:     %s\n", root.IssuerO())
	fmt.Fprintf(w, "digest:      %s\n", digest)
	fmt.Fprintf(w, "thumbprint:  %s\n", root.ThumbprintHex())
	fmt.Fprintf(w, "notAfter:    %s\n", root.NotAfter().Format(time.RFC3339))
	fmt.Fprintf(w, "\npin:\n  certificateBase64: %s\n", pinning.EncodeForCapture(root))
}
