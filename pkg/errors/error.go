// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Configuration errors (100-199): Invalid rule stacks, weights, parameters
//   - Data errors (200-299): Malformed or insufficient price history
//   - Rule errors (300-399): Rule registration and evaluation errors
//   - Optimizer errors (400-499): Candidate filtering and selection errors
//   - Persistence errors (500-599): Strategy/position store failures
//   - Simulation errors (600-699): Systemic backtest simulator failures
//   - Market data errors (700-799): Provider fetching and caching errors
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidWeights, "weights must sum to 1")
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeQueryFailed, "failed to list positions", cause)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeDataNotFound) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsConfigError reports whether the error belongs to the configuration
// category. Configuration errors abort the run before any backtest work.
func IsConfigError(err error) bool {
	code := GetCode(err)

	return code >= 100 && code < 200
}

// IsDataError reports whether the error belongs to the data category.
// Data errors skip a single instrument and let the run continue.
func IsDataError(err error) bool {
	code := GetCode(err)

	return code >= 200 && code < 300
}

// IsPersistenceError reports whether the error belongs to the persistence
// category. Persistence errors abort the run to avoid partial commits.
func IsPersistenceError(err error) bool {
	code := GetCode(err)

	return code >= 500 && code < 600
}

// IsSimulationError reports whether the error belongs to the simulation
// category. Simulation errors skip one instrument/stack combination.
func IsSimulationError(err error) bool {
	code := GetCode(err)

	return code >= 600 && code < 700
}
