package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for programmatic handling.
type Kind string

// Error kinds used across the application.
const (
	KindNetwork        Kind = "network"
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindServer         Kind = "server"
	KindUnknown        Kind = "unknown"
)

// Error represents a typed domain error with HTTP awareness. Message is the
// raw operator-facing text; UserMessage is safe to render to end users.
type Error struct {
	Kind        Kind   `json:"kind"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	UserMessage string `json:"user_message,omitempty"`
	Status      int    `json:"status"`
	Retryable   bool   `json:"retryable"`
	Err         error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(kind Kind, code string, status int, message string) *Error {
	return &Error{Kind: kind, Code: code, Status: status, Message: message, UserMessage: message, Retryable: kind == KindNetwork}
}

// Wrap attaches context to an existing error, inheriting taxonomy from base.
func Wrap(err error, base *Error, message string) *Error {
	if base == nil {
		base = ErrInternal
	}
	return &Error{
		Kind:        base.Kind,
		Code:        base.Code,
		Status:      base.Status,
		Message:     message,
		UserMessage: base.UserMessage,
		Retryable:   base.Retryable,
		Err:         err,
	}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New(KindAuthentication, "INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New(KindAuthorization, "ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New(KindNotFound, "NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New(KindAuthorization, "FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New(KindAuthentication, "UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New(KindConflict, "CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New(KindValidation, "VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New(KindServer, "INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrNetwork            = New(KindNetwork, "NETWORK_ERROR", http.StatusBadGateway, "upstream unreachable")
	ErrCacheMiss          = New(KindNotFound, "CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error. Unrecognised errors map to
// the unknown kind so callers can still branch on taxonomy.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Kind:        KindUnknown,
		Code:        ErrInternal.Code,
		Status:      ErrInternal.Status,
		Message:     err.Error(),
		UserMessage: ErrInternal.UserMessage,
		Err:         err,
	}
}

// Clone returns a copy of the error allowing for message overrides. The
// user-facing message follows the override since predefined messages are
// already written for end users.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
		clone.UserMessage = message
	}
	return &clone
}

// IsRetryable reports whether the error is worth retrying. Untyped errors are
// treated as transient so network-level failures from drivers still retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return true
}

// Retryable marks a copy of the error as retryable.
func Retryable(err *Error) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Retryable = true
	return &clone
}
