// Package apperr defines the typed, status-aware errors shared across
// lionlink services. Handlers map these onto the wire as {code, message}
// so clients can branch on a stable code instead of parsing free text.
package apperr

import (
	"errors"
	"net/http"
)

// Error carries a stable machine code, an HTTP status and an optional
// human message alongside the wrapped cause.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches err as the cause of base, optionally overriding the message.
// The base error value itself is never mutated.
func Wrap(err error, base *Error, message string) *Error {
	if err == nil {
		return nil
	}
	if base == nil {
		base = ErrInternal
	}
	clone := *base
	if message != "" {
		clone.Message = message
	}
	clone.Err = err
	return &clone
}

// As unwraps err looking for an *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries the same code as base.
func Is(err error, base *Error) bool {
	if e, ok := As(err); ok && base != nil {
		return e.Code == base.Code
	}
	return false
}

func Status(err error) int {
	if e, ok := As(err); ok && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

func Code(err error) string {
	if e, ok := As(err); ok && e.Code != "" {
		return e.Code
	}
	return "internal_error"
}

func Message(err error) string {
	if e, ok := As(err); ok {
		return e.Error()
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// Payload renders err into the wire shape used by every handler.
func Payload(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	return map[string]any{
		"code":    Code(err),
		"message": Message(err),
	}
}

// Generic errors.
var (
	ErrBadRequest   = New("bad_request", http.StatusBadRequest, "")
	ErrValidation   = New("validation_error", http.StatusBadRequest, "")
	ErrUnauthorized = New("unauthorized", http.StatusUnauthorized, "")
	ErrNotFound     = New("not_found", http.StatusNotFound, "")
	ErrConflict     = New("conflict", http.StatusConflict, "")
	ErrInternal     = New("internal_error", http.StatusInternalServerError, "")
	ErrDatabase     = New("database_error", http.StatusInternalServerError, "")
)

// Linking flow errors. Invalid credentials and provider timeouts must stay
// distinguishable: the client messages them differently and retrying a
// credential rejection could lock the account upstream.
var (
	ErrInvalidCredentials  = New("invalid_credentials", http.StatusUnauthorized, "the portal rejected the email or password")
	ErrProviderUnreachable = New("provider_unreachable", http.StatusBadGateway, "the sign-on provider did not respond")
	ErrMfaDenied           = New("mfa_denied", http.StatusForbidden, "the sign-in request was denied on the device")
	ErrSessionNotFound     = New("session_not_found", http.StatusNotFound, "no such linking session; restart login")
	ErrRequiresRestart     = New("requires_restart", http.StatusGone, "the linking session expired; restart login")
	ErrPortalUnreachable   = New("portal_unreachable", http.StatusBadGateway, "signed in but the portal could not be reached")
	ErrNotAuthenticated    = New("not_authenticated", http.StatusUnauthorized, "no authenticated portal session")
	ErrExtractionFailed    = New("extraction_failed", http.StatusBadGateway, "the transaction grid never rendered")
	ErrPersistenceConflict = New("persistence_conflict", http.StatusConflict, "")
)
