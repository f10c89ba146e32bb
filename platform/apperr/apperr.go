// Package apperr provides standardized domain error types for the dispatch
// core. Domain services return these typed errors so callers can distinguish
// business-rule rejections, missing resources, and lost races without string
// matching.
package apperr

import "fmt"

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindValidation indicates invalid input data, rejected before side effects.
	KindValidation
	// KindConflict indicates a conflict with existing state (e.g., a lost race).
	KindConflict
	// KindUnavailable indicates a dependency failure that could not be degraded.
	KindUnavailable
	// KindInternal indicates an unexpected internal error.
	KindInternal
)

// Code is a machine-readable reason for business-rule rejections. Codes are
// stable identifiers surfaced to operators; they never change meaning.
type Code string

const (
	CodeNone                   Code = ""
	CodeInvalidCoordinates     Code = "INVALID_COORDINATES"
	CodeCalendarConfigNotFound Code = "CALENDAR_CONFIG_NOT_FOUND"
	CodeBankHoliday            Code = "BANK_HOLIDAY"
	CodeBufferWindowViolation  Code = "BUFFER_WINDOW_VIOLATION"
	CodeAlreadyResolved        Code = "ALREADY_RESOLVED"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeServiceOrderNotFound   Code = "SERVICE_ORDER_NOT_FOUND"
	CodeAssignmentNotFound     Code = "ASSIGNMENT_NOT_FOUND"
	CodeExternalServiceError   Code = "EXTERNAL_SERVICE_ERROR"
)

// Error is a domain error with a typed Kind and an optional reason Code.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Op      string // Operation that failed (optional)
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp returns the error with the operation set.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithCode returns the error with the reason code set.
func (e *Error) WithCode(code Code) *Error {
	e.Code = code
	return e
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Conflict creates a conflict error (e.g., a concurrent resolution won).
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Unavailable creates a dependency-unavailable error.
func Unavailable(message string) *Error {
	return New(KindUnavailable, message)
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// GetKind extracts the error kind from an error.
// Returns KindUnknown if the error is not an *Error.
func GetKind(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindUnknown
}

// GetCode extracts the reason code from an error.
// Returns CodeNone if the error is not an *Error or carries no code.
func GetCode(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return CodeNone
}

// Is checks if err is an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// HasCode checks if err is an *Error carrying the given reason code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}
