package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeForbidden  ErrorType = "forbidden"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error is the structured error raised by the scheduling core. The HTTP
// boundary maps Type to a status code; everything else wraps with %w.
type Error struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error type to its HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string) *Error {
	return &Error{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NewConflictError creates a new conflict error
func NewConflictError(code, message string) *Error {
	return &Error{Type: ErrorTypeConflict, Code: code, Message: message}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *Error {
	return &Error{Type: ErrorTypeNotFound, Code: code, Message: message}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(code, message string) *Error {
	return &Error{Type: ErrorTypeForbidden, Code: code, Message: message}
}

// NewInternalError creates a new internal error wrapping its cause
func NewInternalError(code, message string, cause error) *Error {
	return &Error{Type: ErrorTypeInternal, Code: code, Message: message, Cause: cause}
}

// IsErrorType reports whether err (or anything it wraps) is a typed error of
// the given kind.
func IsErrorType(err error, t ErrorType) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type == t
	}
	return false
}

// Common error codes
const (
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodePastDate         = "PAST_DATE"
	ErrCodeDoctorOnLeave    = "DOCTOR_ON_LEAVE"
	ErrCodeNoSchedule       = "NO_SCHEDULE"
	ErrCodeSlotFull         = "SLOT_FULLY_BOOKED"
	ErrCodeScheduleOverlap  = "SCHEDULE_OVERLAP"
	ErrCodeLeaveOverlap     = "LEAVE_OVERLAP"
	ErrCodeInvalidState     = "INVALID_STATE_TRANSITION"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)
