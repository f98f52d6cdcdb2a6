package keystore

import "fmt"

// Error represents a structured error from the keystore package
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	// ErrCodeConfiguration - the keystore is misconfigured (missing locators, bad settings)
	ErrCodeConfiguration ErrorCode = "configuration"

	// ErrCodeKeyNotFound - no signing key could be resolved from any source
	ErrCodeKeyNotFound ErrorCode = "key_not_found"

	// ErrCodeCertificateNotFound - a certificate bundle could not be fetched from its locator
	ErrCodeCertificateNotFound ErrorCode = "certificate_not_found"

	// ErrCodeCertificateParse - fetched certificate data could not be parsed
	ErrCodeCertificateParse ErrorCode = "certificate_parse"

	// ErrCodeSigning - a signing operation failed
	ErrCodeSigning ErrorCode = "signing"
)

// KeystoreError represents a structured error from the keystore package
type KeystoreError struct {
	code    ErrorCode
	message string
	wrapped error
}

func (e *KeystoreError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *KeystoreError) Code() ErrorCode { return e.code }
func (e *KeystoreError) Unwrap() error   { return e.wrapped }

// NewConfigurationError creates an error for keystore misconfiguration.
// Surfaces to clients as a 503 - the service cannot sign until fixed.
func NewConfigurationError(msg string) error {
	return &KeystoreError{code: ErrCodeConfiguration, message: msg}
}

// WrapConfigurationError wraps a lower-level error as a configuration error.
func WrapConfigurationError(err error, msg string) error {
	return &KeystoreError{code: ErrCodeConfiguration, message: msg, wrapped: err}
}

// NewKeyNotFoundError creates an error for an unresolvable signing key.
func NewKeyNotFoundError(msg string) error {
	return &KeystoreError{code: ErrCodeKeyNotFound, message: msg}
}

// WrapKeyNotFoundError wraps a lower-level error as a key-not-found error.
func WrapKeyNotFoundError(err error, msg string) error {
	return &KeystoreError{code: ErrCodeKeyNotFound, message: msg, wrapped: err}
}

// NewCertificateNotFoundError creates an error for a certificate bundle that
// could not be fetched.
func NewCertificateNotFoundError(msg string) error {
	return &KeystoreError{code: ErrCodeCertificateNotFound, message: msg}
}

// WrapCertificateNotFoundError wraps a fetch failure.
func WrapCertificateNotFoundError(err error, msg string) error {
	return &KeystoreError{code: ErrCodeCertificateNotFound, message: msg, wrapped: err}
}

// NewCertificateParseError creates an error for unparseable certificate data.
func NewCertificateParseError(msg string) error {
	return &KeystoreError{code: ErrCodeCertificateParse, message: msg}
}

// WrapCertificateParseError wraps a parse failure.
func WrapCertificateParseError(err error, msg string) error {
	return &KeystoreError{code: ErrCodeCertificateParse, message: msg, wrapped: err}
}

// WrapSigningError wraps a signing failure.
func WrapSigningError(err error, msg string) error {
	return &KeystoreError{code: ErrCodeSigning, message: msg, wrapped: err}
}
