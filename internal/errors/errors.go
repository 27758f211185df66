// Package errors provides coded domain errors for the unilend API.
//
// Services return typed errors; handlers map them to HTTP statuses:
//
//	if errors.Is(err, errors.ErrNotFound) { ... }
//
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    w.WriteHeader(domainErr.HTTPStatus())
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is   = errors.Is
	As   = errors.As
	New  = errors.New
	Join = errors.Join
)

// Code is a machine-readable error code.
type Code string

const (
	CodeNotFound             Code = "NOT_FOUND"
	CodeAlreadyExists        Code = "ALREADY_EXISTS"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeValidation           Code = "VALIDATION"
	CodeConflict             Code = "CONFLICT"
	CodeInternal             Code = "INTERNAL"
	CodeInvalidCredentials   Code = "INVALID_CREDENTIALS"
	CodeConfirmationRequired Code = "CONFIRMATION_REQUIRED"
	CodeUpstream             Code = "UPSTREAM"
)

// HTTPStatus returns the HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized, CodeInvalidCredentials:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConfirmationRequired:
		return http.StatusPreconditionRequired
	case CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists        = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrUnauthorized         = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrForbidden            = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrValidation           = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict             = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal             = &Error{Code: CodeInternal, Message: "internal error"}
	ErrInvalidCredentials   = &Error{Code: CodeInvalidCredentials, Message: "invalid credentials"}
	ErrConfirmationRequired = &Error{Code: CodeConfirmationRequired, Message: "confirmation required"}
	ErrUpstream             = &Error{Code: CodeUpstream, Message: "upstream failure"}
)

func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func AlreadyExists(msg string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails carries per-field messages in Details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

func InvalidCredentials(msg string) *Error {
	return &Error{Code: CodeInvalidCredentials, Message: msg}
}

func ConfirmationRequired(msg string) *Error {
	return &Error{Code: CodeConfirmationRequired, Message: msg}
}

// Wrap wraps err with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Upstream wraps a failure of an external collaborator (image host, store).
func Upstream(err error, msg string) *Error {
	return &Error{Code: CodeUpstream, Message: msg, cause: err}
}

func Internal(err error, msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg, cause: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
