// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Simulation errors
	ErrInsufficientData = &Error{Code: "INSUFFICIENT_DATA", Message: "not enough bars for simulation"}
	ErrInvalidParameter = &Error{Code: "INVALID_PARAMETER", Message: "invalid simulation parameter"}
	ErrStrategyFailed   = &Error{Code: "STRATEGY_FAILED", Message: "strategy evaluation failed"}

	// Optimizer errors
	ErrEmptySpace = &Error{Code: "EMPTY_SPACE", Message: "parameter space is empty"}

	// Data errors
	ErrNoData = &Error{Code: "NO_DATA", Message: "no data available"}

	// Store errors
	ErrStoreFailed = &Error{Code: "STORE_FAILED", Message: "store operation failed"}
	ErrNotFound    = &Error{Code: "NOT_FOUND", Message: "record not found"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "invalid configuration"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "missing configuration"}
)
