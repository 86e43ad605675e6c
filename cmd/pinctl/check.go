package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/avialdo/certpin"
	"github.com/avialdo/certpin/internal/config"
	"github.com/avialdo/certpin/internal/observability"
)

// runCheck loads a client configuration and performs one pinned handshake
// against the live endpoint. The exit mirrors the handshake decision: a
// rejection at either gate is an error.
func runCheck(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", getEnvOrDefault("PINCTL_CONFIG_PATH", ""),
		"path to the client configuration file")
	addr := fs.String("addr", "", "override the dial address (host:port)")
	timeout := fs.Duration("timeout", 10*time.Second, "dial timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *configPath == "" {
		return fmt.Errorf("check: -config is required")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("check: failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := certpin.New(cfg, certpin.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, err := client.DialTLS(ctx, "tcp", *addr)
	if err != nil {
		return fmt.Errorf("check: handshake rejected: %w", err)
	}
	defer func() { _ = conn.Close() }()

	fmt.Fprintf(stdout, "handshake accepted\n")
	fmt.Fprintf(stdout, "  hostname: %s\n", client.Hostname())
	fmt.Fprintf(stdout, "  address:  %s\n", conn.RemoteAddr())
	return nil
}
