package provenance

import "fmt"

// Error represents a structured error from the provenance package
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	// ErrCodeValidation - a step or record failed structural validation
	ErrCodeValidation ErrorCode = "validation"

	// ErrCodeDecode - an encoded record could not be parsed
	ErrCodeDecode ErrorCode = "decode"

	// ErrCodeTrustFrameworkMismatch - a record was opened under a different trust framework than it was created in
	ErrCodeTrustFrameworkMismatch ErrorCode = "trust_framework_mismatch"

	// ErrCodeDanglingReference - a step references a step id that does not exist earlier in the record
	ErrCodeDanglingReference ErrorCode = "dangling_reference"

	// ErrCodeSignatureInvalid - a signature envelope failed verification against the record content
	ErrCodeSignatureInvalid ErrorCode = "signature_invalid"

	// ErrCodeTrustChain - a signer's certificate chain could not be validated against the trust anchor
	ErrCodeTrustChain ErrorCode = "trust_chain"

	// ErrCodeStepNotFound - no step matched the search criteria
	ErrCodeStepNotFound ErrorCode = "step_not_found"

	// ErrCodeNotVerified - a signed record was used before its signatures were verified
	ErrCodeNotVerified ErrorCode = "not_verified"

	// ErrCodeSealed - an attempt to modify a record after it was sealed
	ErrCodeSealed ErrorCode = "sealed"

	// ErrCodeInternal - unexpected failure
	ErrCodeInternal ErrorCode = "internal"
)

// RecordError represents a structured error from the provenance package
type RecordError struct {
	code    ErrorCode
	message string
	wrapped error
}

func (e *RecordError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *RecordError) Code() ErrorCode { return e.code }
func (e *RecordError) Unwrap() error   { return e.wrapped }

func newError(code ErrorCode, msg string) error {
	return &RecordError{code: code, message: msg}
}

func wrapError(code ErrorCode, err error, msg string) error {
	return &RecordError{code: code, message: msg, wrapped: err}
}

// NewValidationError creates a validation error for a malformed step or record.
func NewValidationError(msg string) error { return newError(ErrCodeValidation, msg) }

// NewDecodeError creates an error for an encoded record that cannot be parsed.
func NewDecodeError(msg string) error { return newError(ErrCodeDecode, msg) }

// WrapDecodeError wraps a lower-level parse failure as a decode error.
func WrapDecodeError(err error, msg string) error { return wrapError(ErrCodeDecode, err, msg) }

// NewTrustFrameworkMismatchError creates an error for a record opened under the wrong trust framework.
func NewTrustFrameworkMismatchError(msg string) error {
	return newError(ErrCodeTrustFrameworkMismatch, msg)
}

// NewDanglingReferenceError creates an error for a step reference that does not resolve.
func NewDanglingReferenceError(msg string) error { return newError(ErrCodeDanglingReference, msg) }

// NewSignatureInvalidError creates an error for a signature that fails verification.
func NewSignatureInvalidError(msg string) error { return newError(ErrCodeSignatureInvalid, msg) }

// WrapSignatureInvalidError wraps a lower-level signature failure.
func WrapSignatureInvalidError(err error, msg string) error {
	return wrapError(ErrCodeSignatureInvalid, err, msg)
}

// NewTrustChainError creates an error for a certificate chain that cannot be validated.
func NewTrustChainError(msg string) error { return newError(ErrCodeTrustChain, msg) }

// WrapTrustChainError wraps a lower-level certificate failure.
func WrapTrustChainError(err error, msg string) error { return wrapError(ErrCodeTrustChain, err, msg) }

// NewStepNotFoundError creates an error for a step search with no match.
func NewStepNotFoundError(msg string) error { return newError(ErrCodeStepNotFound, msg) }

// NewNotVerifiedError creates an error for using a signed record before verification.
func NewNotVerifiedError(msg string) error { return newError(ErrCodeNotVerified, msg) }

// NewSealedError creates an error for modifying a sealed record.
func NewSealedError(msg string) error { return newError(ErrCodeSealed, msg) }

// NewInternalError creates an error for unexpected failures.
func NewInternalError(msg string) error { return newError(ErrCodeInternal, msg) }

// WrapInternalError wraps an unexpected lower-level failure.
func WrapInternalError(err error, msg string) error { return wrapError(ErrCodeInternal, err, msg) }
