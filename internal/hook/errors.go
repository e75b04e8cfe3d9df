package hook

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures of the hook engine.
type ErrorCode string

const (
	// ErrCodeNotFound covers unknown hooks, unknown instances and missing log files.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInvalidRange is a semantically malformed byte range.
	ErrCodeInvalidRange ErrorCode = "INVALID_RANGE"
	// ErrCodeRangeNotSatisfiable is an explicit start at or past the end of the file.
	ErrCodeRangeNotSatisfiable ErrorCode = "RANGE_NOT_SATISFIABLE"
	// ErrCodeInternal is any filesystem, spawn, serialization or OS failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error is returned by every fallible Service operation.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Size is the observed file size for ErrCodeRangeNotSatisfiable.
	Size int64
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewNotFoundError creates an error for a missing hook, instance or stream.
func NewNotFoundError(message string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: message}
}

// NewInvalidRangeError creates an error for a malformed range.
func NewInvalidRangeError(message string) *Error {
	return &Error{Code: ErrCodeInvalidRange, Message: message}
}

// NewRangeNotSatisfiableError creates an error for a start beyond EOF.
func NewRangeNotSatisfiableError(start, size int64) *Error {
	return &Error{
		Code:    ErrCodeRangeNotSatisfiable,
		Message: fmt.Sprintf("range start %d is beyond end of file (%d bytes)", start, size),
		Size:    size,
	}
}

// NewInternalError wraps cause as an internal failure.
func NewInternalError(message string, cause error) *Error {
	return &Error{Code: ErrCodeInternal, Message: message, Cause: cause}
}

// CodeOf returns the code of err, or ErrCodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// AsError extracts the *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func isCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsInvalidRange checks if the error is an invalid range error.
func IsInvalidRange(err error) bool {
	return isCode(err, ErrCodeInvalidRange)
}

// IsRangeNotSatisfiable checks if the error is an unsatisfiable range error.
func IsRangeNotSatisfiable(err error) bool {
	return isCode(err, ErrCodeRangeNotSatisfiable)
}

// IsInternal checks if the error is an internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}
