// Package apperr defines the error taxonomy shared by every component. Each
// error carries a stable machine-readable code so that clients and the HTTP
// layer can react programmatically instead of parsing messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable error classification.
type Code string

const (
	CodeUnauthenticated  Code = "unauthenticated"
	CodePermissionDenied Code = "permission_denied"
	CodeNotFound         Code = "not_found"
	CodeRoomLocked       Code = "room_locked"
	CodeConflict         Code = "conflict"
	CodeTransientIO      Code = "transient_io"
	CodeInvalid          Code = "invalid_request"
)

// Error is the typed error returned across component boundaries.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func Unauthenticated(message string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: message}
}

func PermissionDenied(message string) *Error {
	return &Error{Code: CodePermissionDenied, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

func RoomLocked(message string) *Error {
	return &Error{Code: CodeRoomLocked, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

func Invalid(message string) *Error {
	return &Error{Code: CodeInvalid, Message: message}
}

// Transient wraps a storage or delivery failure that the caller may retry.
func Transient(err error, message string) *Error {
	return &Error{Code: CodeTransientIO, Message: message, cause: err}
}

// Wrap attaches context to err, preserving its code when it already is an *Error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Code: e.Code, Message: message + ": " + e.Message, cause: e.cause}
	}
	return &Error{Code: CodeTransientIO, Message: message, cause: err}
}

// CodeOf extracts the code from err, defaulting to transient_io for untyped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeTransientIO
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool { return err != nil && CodeOf(err) == code }

// HTTPStatus maps a code to the status the pull API responds with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodePermissionDenied, CodeRoomLocked:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
