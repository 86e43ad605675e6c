package config

import (
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/avialdo/certpin/internal/pinning"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates a pinning client configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a pinning client configuration.
func ValidateConfig(config *Config) error {
	v := NewValidator()
	return v.Validate(config)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateTarget(&config.Target)
	v.validatePin(&config.Pin)
	v.validateIdentity(&config.Identity)
	v.validateValidation(&config.Validation)
	v.validateLogging(config)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateTarget(target *TargetConfig) {
	if target.Hostname == "" {
		v.addError("target.hostname", "hostname is required")
	}
}

func (v *Validator) validatePin(pin *PinConfig) {
	if pin.CertificateBase64 != "" && pin.CertificateFile != "" {
		v.addError("pin", "certificateBase64 and certificateFile are mutually exclusive")
		return
	}

	if !pin.IsSet() {
		if !pin.BootstrapCapture {
			v.addError("pin", "a pin certificate is required unless bootstrapCapture is enabled")
		}
		return
	}

	der, err := pin.CertificateDER()
	if err != nil {
		v.addError("pin", err.Error())
		return
	}
	if _, err := x509.ParseCertificate(der); err != nil {
		v.addError("pin", fmt.Sprintf("pin certificate is not valid DER: %v", err))
	}
}

func (v *Validator) validateIdentity(identity *IdentityConfig) {
	if identity.BundleBase64 != "" && identity.BundleFile != "" {
		v.addError("identity", "bundleBase64 and bundleFile are mutually exclusive")
		return
	}

	if !identity.IsSet() {
		return
	}

	if identity.PassphraseEnv == "" {
		v.addError("identity.passphraseEnv", "passphraseEnv is required when a bundle is configured")
	} else if _, ok := os.LookupEnv(identity.PassphraseEnv); !ok {
		v.addError("identity.passphraseEnv",
			fmt.Sprintf("environment variable %s is not set", identity.PassphraseEnv))
	}

	if identity.BundleFile != "" {
		if _, err := os.Stat(identity.BundleFile); err != nil {
			v.addError("identity.bundleFile", fmt.Sprintf("bundle file is not readable: %v", err))
		}
	}
}

func (v *Validator) validateValidation(validation *ValidationConfig) {
	if validation.Digest != "" && !pinning.Digest(validation.Digest).IsValid() {
		v.addError("validation.digest",
			fmt.Sprintf("unsupported digest %q, must be one of: sha1, sha256", validation.Digest))
	}

	if validation.OCSPTimeout < 0 {
		v.addError("validation.ocspTimeout", "timeout must not be negative")
	}
}

func (v *Validator) validateLogging(config *Config) {
	switch config.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		v.addError("logging.level",
			fmt.Sprintf("unsupported level %q, must be one of: debug, info, warn, error", config.Logging.Level))
	}

	switch config.Logging.Format {
	case "", "json", "console":
	default:
		v.addError("logging.format",
			fmt.Sprintf("unsupported format %q, must be one of: json, console", config.Logging.Format))
	}
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
