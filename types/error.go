package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the execution core.
type ErrorCode string

const (
	ErrPolicyViolation    ErrorCode = "POLICY_VIOLATION"
	ErrExecutionFailed    ErrorCode = "EXECUTION_FAILED"
	ErrResourceLimit      ErrorCode = "RESOURCE_LIMIT"
	ErrBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrWorkflowInvalid    ErrorCode = "WORKFLOW_INVALID"
	ErrSkillNotFound      ErrorCode = "SKILL_NOT_FOUND"
	ErrSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrPrecondition       ErrorCode = "PRECONDITION_FAILED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrInternal           ErrorCode = "INTERNAL_ERROR"
)

// Error is a structured error with code, message, and optional cause.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// GetErrorCode extracts the error code from an error, unwrapping as
// needed. Returns "" for errors that carry no code.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
