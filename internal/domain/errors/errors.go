package errors

import (
	"errors"
	"fmt"
)

var (
	// Order errors
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidOrderKind       = errors.New("invalid order kind")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrOrderExpired           = errors.New("order has expired")

	// Member errors
	ErrMemberNotFound         = errors.New("member not found")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrMemberInactive         = errors.New("member is inactive")
	ErrCardNotFound           = errors.New("membership card not found")
	ErrPackageNotFound        = errors.New("recharge package not found")

	// Key material errors
	ErrKeyNotConfigured = errors.New("key material not configured")

	// Notification errors
	ErrVerificationFailed = errors.New("notification signature verification failed")
	ErrUnknownKeySerial   = errors.New("unknown platform key serial")
	ErrDecryptionFailed   = errors.New("notification resource decryption failed")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// SigningError means local key material is missing or unusable. It is
// fatal to the calling operation; retrying without a configuration fix
// cannot succeed.
type SigningError struct {
	Reason string
	Err    error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signing failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("signing failed: %s", e.Reason)
}

func (e *SigningError) Unwrap() error { return e.Err }

// GatewayError is a definitive business error returned by the payment
// gateway: the request was understood and rejected. Not retried.
type GatewayError struct {
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

// NetworkError is a transport-level failure talking to the gateway. It
// carries no information about whether the gateway processed the request,
// so callers recover via Query, never by repeating a non-idempotent call.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gateway network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err is a transport failure, the only
// class of gateway error that is safe to retry via an idempotent call.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
