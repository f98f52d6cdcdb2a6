package crypto

import "fmt"

// Error represents a structured error from the crypto package
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	ErrCodeValidation       ErrorCode = "validation"
	ErrCodeInvalidSignature ErrorCode = "invalid_signature"
	ErrCodeCertificate      ErrorCode = "certificate"
	ErrCodeKeyManagement    ErrorCode = "key_management"
	ErrCodeInternal         ErrorCode = "internal"
)

// CryptoError represents a structured error from the crypto package
type CryptoError struct {

	// code is the crypto error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *CryptoError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *CryptoError) Code() ErrorCode { return e.code }
func (e *CryptoError) Unwrap() error   { return e.wrapped }

// NewValidationError creates a validation error for invalid input.
// Use this for errors related to missing required fields, bad format,
// invalid JSON, bad encoding, or unsupported algorithms.
func NewValidationError(msg string) error {
	return &CryptoError{code: ErrCodeValidation, message: msg}
}

// WrapValidationError wraps an existing error as a validation error.
func WrapValidationError(err error, msg string) error {
	return &CryptoError{code: ErrCodeValidation, message: msg, wrapped: err}
}

// NewSignatureError creates a signature verification error.
// Use this for errors related to signature verification failures or malformed signatures.
func NewSignatureError(msg string) error {
	return &CryptoError{code: ErrCodeInvalidSignature, message: msg}
}

// WrapSignatureError wraps an existing error as a signature error.
func WrapSignatureError(err error, msg string) error {
	return &CryptoError{code: ErrCodeInvalidSignature, message: msg, wrapped: err}
}

// NewCertificateError creates a certificate validation error.
// Use this for errors related to expired certificates, untrusted CAs,
// or certificate chain validation failures.
func NewCertificateError(msg string) error {
	return &CryptoError{code: ErrCodeCertificate, message: msg}
}

// WrapCertificateError wraps an existing error as a certificate error.
func WrapCertificateError(err error, msg string) error {
	return &CryptoError{code: ErrCodeCertificate, message: msg, wrapped: err}
}

// NewKeyManagementError creates a key management error.
// Use this for errors related to key loading, key generation, key not found,
// invalid key format, or JWK parsing failures.
func NewKeyManagementError(msg string) error {
	return &CryptoError{code: ErrCodeKeyManagement, message: msg}
}

// WrapKeyManagementError wraps an existing error as a key management error.
func WrapKeyManagementError(err error, msg string) error {
	return &CryptoError{code: ErrCodeKeyManagement, message: msg, wrapped: err}
}

// NewInternalError creates an internal error for unexpected failures.
// Use this for errors related to crypto library failures, unexpected nil values,
// or system errors that should not normally occur.
func NewInternalError(msg string) error {
	return &CryptoError{code: ErrCodeInternal, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
func WrapInternalError(err error, msg string) error {
	return &CryptoError{code: ErrCodeInternal, message: msg, wrapped: err}
}
