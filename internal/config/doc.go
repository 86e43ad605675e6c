// Package config provides configuration management for the pinning client.
//
// Configuration is loaded from YAML files with ${VAR} and ${VAR:-default}
// environment variable substitution. Secrets are never placed in the file
// directly: the identity passphrase is referenced by environment variable
// name and resolved at load time. A Watcher can reload the file on change
// so a rotated pin or identity bundle is picked up without a restart.
package config
