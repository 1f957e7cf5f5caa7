package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Status  int    `json:"status"`

	kind  error
	cause error
}

func (e *AppError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
}

// Is reports whether target is the kind this error was built with, so callers
// can branch with errors.Is(err, ErrConsistency) after any amount of wrapping.
func (e *AppError) Is(target error) bool {
	return e.kind != nil && e.kind == target
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// Error kinds raised by the activity pipeline.
var (
	ErrInvalidInput = stderrors.New("invalid input")
	ErrConsistency  = stderrors.New("consistency error")
	ErrStorage      = stderrors.New("storage error")
	ErrNotFound     = stderrors.New("not found")
)

// Common error codes
const (
	CodeNotFound      = "NOT_FOUND"
	CodeInvalidInput  = "INVALID_INPUT"
	CodeConsistency   = "CONSISTENCY_ERROR"
	CodeStorage       = "STORAGE_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
)

// Error constructors
func InvalidInput(message string, details string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: message,
		Details: details,
		Status:  400,
		kind:    ErrInvalidInput,
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  404,
		kind:    ErrNotFound,
	}
}

func Consistency(message string, details string) *AppError {
	return &AppError{
		Code:    CodeConsistency,
		Message: message,
		Details: details,
		Status:  500,
		kind:    ErrConsistency,
	}
}

// Storage wraps a database failure. The driver error stays reachable through
// errors.As/errors.Unwrap.
func Storage(message string, cause error) *AppError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &AppError{
		Code:    CodeStorage,
		Message: message,
		Details: details,
		Status:  500,
		kind:    ErrStorage,
		cause:   cause,
	}
}

func Internal(message string, details string) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Details: details,
		Status:  500,
	}
}
