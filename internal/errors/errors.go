package errors

import (
	"fmt"
)

// BluebandError is the structured error type for Blueband.
// It provides rich context for error handling, logging, and API responses.
type BluebandError struct {
	// Code is the unique error code (e.g., "ERR_201_COLLECTION_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Validation, NotFound, Permission, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *BluebandError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *BluebandError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with BluebandError.
func (e *BluebandError) Is(target error) bool {
	if t, ok := target.(*BluebandError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *BluebandError) WithDetail(key, value string) *BluebandError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new BluebandError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *BluebandError {
	return &BluebandError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a new BluebandError with a formatted message.
func Newf(code string, format string, args ...any) *BluebandError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a BluebandError from an existing error.
// The error's message becomes the BluebandError message.
func Wrap(code string, err error) *BluebandError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ValidationError creates a validation-related error.
func ValidationError(message string) *BluebandError {
	return New(ErrCodeInvalidInput, message, nil)
}

// NotFoundError creates a not-found error for the given entity kind and id.
func NotFoundError(code string, kind, id string) *BluebandError {
	return New(code, fmt.Sprintf("%s not found: %s", kind, id), nil).
		WithDetail("id", id)
}

// PermissionError creates a permission error.
func PermissionError(code string, message string) *BluebandError {
	return New(code, message, nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *BluebandError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a BluebandError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if be, ok := err.(*BluebandError); ok {
		return be.Retryable
	}
	return false
}

// GetCode extracts the error code from a BluebandError.
// Returns empty string if not a BluebandError.
func GetCode(err error) string {
	if be, ok := err.(*BluebandError); ok {
		return be.Code
	}
	return ""
}

// GetCategory extracts the category from a BluebandError.
// Returns CategoryInternal if not a BluebandError.
func GetCategory(err error) Category {
	if be, ok := err.(*BluebandError); ok {
		return be.Category
	}
	return CategoryInternal
}
