package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the pipeline.
type ErrorCode string

// Transport error codes
const (
	ErrConnection   ErrorCode = "CONNECTION"
	ErrNotConnected ErrorCode = "NOT_CONNECTED"
	ErrUpstream     ErrorCode = "UPSTREAM"
)

// Stream error codes
const (
	ErrProtocol      ErrorCode = "PROTOCOL"
	ErrApplication   ErrorCode = "APPLICATION"
	ErrTimeout       ErrorCode = "TIMEOUT"
	ErrAborted       ErrorCode = "ABORTED"
	ErrUsage         ErrorCode = "USAGE"
	ErrUninitialized ErrorCode = "UNINITIALIZED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	ContextID  string    `json:"context_id,omitempty"`
	Cause      error     `json:"-"`
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

// Is reports whether target carries the same code. Sentinel errors built with
// NewError can therefore be matched with errors.Is after WithCause copies.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause returns a copy of the error carrying cause. Package level
// sentinels stay untouched.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	cp := *e
	cp.HTTPStatus = status
	return &cp
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	cp := *e
	cp.Retryable = retryable
	return &cp
}

// WithContextID tags the error with the generation context it belongs to.
func (e *Error) WithContextID(id string) *Error {
	cp := *e
	cp.ContextID = id
	return &cp
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether any error in the chain has the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
