package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalid      ErrorCode = "INVALID"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeUnavailable  ErrorCode = "UNAVAILABLE"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrTemplateNotFound       = NewError(ErrCodeNotFound, "template not found")
	ErrSharedTemplateNotFound = NewError(ErrCodeNotFound, "shared template not found")
	ErrLayoutNotFound         = NewError(ErrCodeNotFound, "layout not found")
	ErrInitialSnapshotLocked  = NewError(ErrCodeForbidden, "initial snapshot cannot be modified")
	ErrSnapshotExists         = NewError(ErrCodeConflict, "guild already has an initial snapshot")
	ErrUnauthorized           = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrInvalidPayload         = NewError(ErrCodeInvalid, "invalid payload")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// IsPermissionDenied reports whether a write was refused for ownership reasons.
func IsPermissionDenied(err error) bool {
	return IsDomainError(err, ErrCodeForbidden)
}

// InvalidMoveError rejects a structural move before it touches the model.
type InvalidMoveError struct {
	Node   NodeRef
	Parent NodeRef
	Reason string
}

func (e *InvalidMoveError) Error() string {
	return fmt.Sprintf("invalid move of %s under %s: %s", e.Node, e.Parent, e.Reason)
}

// SerializationError blocks a save because the model cannot produce a consistent payload.
type SerializationError struct {
	Node   NodeRef
	Reason string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("cannot serialize %s: %s", e.Node, e.Reason)
}
