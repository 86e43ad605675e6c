// Package main is the entry point for pinctl, the pinning companion tool.
//
// pinctl captures a pin from a live endpoint in a controlled environment
// (capture) and verifies a configured pin against a live endpoint (check).
package main

import (
	"fmt"
	"os"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "capture":
		err = runCapture(os.Args[2:], os.Stdout)
	case "check":
		err = runCheck(os.Args[2:], os.Stdout)
	case "version", "-version", "--version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "pinctl: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "pinctl: %v\n", err)
		os.Exit(1)
	}
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func printVersion() {
	fmt.Printf("pinctl version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `pinctl - certificate pinning companion tool

Usage:
  pinctl capture -addr HOST:PORT [-hostname NAME] [-digest sha1|sha256] [-force]
      Connect to an endpoint in a controlled environment and print the
      trust-anchor pin in configuration-ready form.

  pinctl check -config PATH [-addr HOST:PORT]
      Load a client configuration and verify the pinned handshake against
      the live endpoint.

  pinctl version
      Show version information.
`)
}
