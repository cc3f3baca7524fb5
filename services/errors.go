package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeUnauthenticated     ErrorType = "unauthenticated"
	ErrorTypeConflict            ErrorType = "conflict"
	ErrorTypeUpstreamUnavailable ErrorType = "upstream_unavailable"
	ErrorTypeInternal            ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause returns a copy of e carrying err as its cause. The copy still
// matches e under errors.Is; sentinels themselves are left untouched.
func (e *DomainError) WithCause(err error) *DomainError {
	details := make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		details[k] = v
	}
	return &DomainError{Type: e.Type, Message: e.Message, Err: err, Details: details}
}

// Retryable reports whether the caller may repeat the operation unchanged.
// An explicit "retryable" detail overrides the default for the error type.
func (e *DomainError) Retryable() bool {
	if v, ok := e.Details["retryable"].(bool); ok {
		return v
	}
	return e.Type == ErrorTypeConflict || e.Type == ErrorTypeUpstreamUnavailable
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables. Match against them with errors.Is; never mutate them.

var (
	// Not Found Errors
	ErrUserNotFound = NewDomainError(ErrorTypeNotFound, "user not found", nil)

	// Validation Errors
	ErrInvalidInput     = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidAssertion = NewDomainError(ErrorTypeValidation, "invalid identity assertion", nil)

	// Authentication Errors
	ErrUnauthenticated    = NewDomainError(ErrorTypeUnauthenticated, "authentication required", nil)
	ErrInvalidIdentity    = NewDomainError(ErrorTypeUnauthenticated, "identity token rejected", nil)
	ErrProviderNotEnabled = NewDomainError(ErrorTypeUnauthenticated, "identity provider not configured", nil)

	// Conflict Errors
	ErrConcurrentUpdate = NewDomainError(ErrorTypeConflict, "concurrent update detected", nil)

	// Upstream Errors
	ErrStoreUnavailable    = NewDomainError(ErrorTypeUpstreamUnavailable, "store unavailable", nil)
	ErrProviderUnavailable = NewDomainError(ErrorTypeUpstreamUnavailable, "identity provider unavailable", nil)

	// Internal Errors
	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// Error type checking helper functions

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsUnauthenticatedError checks if an error is an authentication failure
func IsUnauthenticatedError(err error) bool {
	return hasType(err, ErrorTypeUnauthenticated)
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

// IsUpstreamUnavailableError checks if an error came from an unreachable dependency
func IsUpstreamUnavailableError(err error) bool {
	return hasType(err, ErrorTypeUpstreamUnavailable)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// IsRetryable reports whether err is a domain error the caller may retry
func IsRetryable(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable()
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapUnauthenticated wraps an authentication failure
func WrapUnauthenticated(message string, err error) error {
	return NewDomainError(ErrorTypeUnauthenticated, message, err)
}
