// Package apperr defines the error taxonomy shared by the session store, the
// directory and the scheduler. Every failure surfaced by the core carries a
// Kind so that the transport layer can map it to a distinct, stable signal
// (HTTP status + code) without inspecting message strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorises an error. Kinds are compared with errors.Is:
//
//	if errors.Is(err, apperr.SlotConflict) { ... }
type Kind string

const (
	Authentication    Kind = "authentication"
	SessionExpired    Kind = "session_expired"
	Authorization     Kind = "authorization"
	Validation        Kind = "validation"
	SlotConflict      Kind = "slot_conflict"
	InvalidTransition Kind = "invalid_transition"
	NotFound          Kind = "not_found"
	Transient         Kind = "transient"
	Internal          Kind = "internal"
)

// Error implements error so a bare Kind can be used as an errors.Is target.
func (k Kind) Error() string { return string(k) }

// Common error codes returned to clients.
const (
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodeSessionExpired       = "SESSION_EXPIRED"
	CodeForbidden            = "FORBIDDEN"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeSlotTaken            = "SLOT_TAKEN"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeNotFound             = "NOT_FOUND"
	CodeTransient            = "TRANSIENT"
	CodeInternal             = "INTERNAL_ERROR"
	CodeEmailTaken           = "EMAIL_TAKEN"
	CodeSlotInPast           = "SLOT_IN_PAST"
	CodeRoleMismatch         = "ROLE_MISMATCH"
	CodeDoctorUnavailable    = "DOCTOR_UNAVAILABLE"
	CodeRateLimited          = "RATE_LIMITED"
)

// Error is the structured error returned across package boundaries.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches either another *Error with the same Kind and Code or a bare Kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
	}
	return false
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func NewAuthentication(msg string) *Error {
	return newErr(Authentication, CodeAuthenticationFailed, msg)
}

func NewSessionExpired(msg string) *Error {
	return newErr(SessionExpired, CodeSessionExpired, msg)
}

func NewAuthorization(msg string) *Error {
	return newErr(Authorization, CodeForbidden, msg)
}

// NewValidation builds a validation error. An empty code defaults to
// VALIDATION_FAILED.
func NewValidation(code, msg string) *Error {
	if code == "" {
		code = CodeValidationFailed
	}
	return newErr(Validation, code, msg)
}

func NewSlotConflict(msg string) *Error {
	return newErr(SlotConflict, CodeSlotTaken, msg)
}

func NewInvalidTransition(msg string) *Error {
	return newErr(InvalidTransition, CodeInvalidTransition, msg)
}

func NewNotFound(msg string) *Error {
	return newErr(NotFound, CodeNotFound, msg)
}

func NewTransient(msg string, cause error) *Error {
	e := newErr(Transient, CodeTransient, msg)
	e.Cause = cause
	return e
}

func NewInternal(msg string, cause error) *Error {
	e := newErr(Internal, CodeInternal, msg)
	e.Cause = cause
	return e
}

// KindOf reports the Kind carried by err, or Internal when err does not wrap
// an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps an error to its outward HTTP status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Authentication, SessionExpired:
		return http.StatusUnauthorized
	case Authorization:
		return http.StatusForbidden
	case Validation:
		return http.StatusBadRequest
	case SlotConflict, InvalidTransition:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case Transient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Payload returns the stable code and client-facing message for err. Internal
// errors never leak their cause.
func Payload(err error) (code, message string) {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == Internal {
			return CodeInternal, "internal error"
		}
		return e.Code, e.Message
	}
	return CodeInternal, "internal error"
}

// Body is the JSON error envelope: {"error": {"code": ..., "message": ...}}.
type Body struct {
	Error BodyError `json:"error"`
}

// BodyError is the inner object of Body.
type BodyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response returns the HTTP status and envelope for err.
func Response(err error) (int, Body) {
	code, msg := Payload(err)
	return HTTPStatus(err), Body{Error: BodyError{Code: code, Message: msg}}
}
