package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a DomainError for callers that branch on failure category.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindForbidden    Kind = "FORBIDDEN"
	KindConflict     Kind = "CONFLICT"
	KindValidation   Kind = "VALIDATION"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindTransient    Kind = "TRANSIENT"
	KindInternal     Kind = "INTERNAL"
)

// DomainError standardizes application errors.
type DomainError struct {
	Kind       Kind
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(kind Kind, code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(KindValidation, "VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return NewDomainError(KindNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource), http.StatusNotFound, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(KindUnauthorized, "UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(KindForbidden, "FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(KindConflict, "CONFLICT", message, http.StatusConflict, details)
}

// NewInvalidTransition reports a status change that is not an edge of the lifecycle graph.
func NewInvalidTransition(from, to string) error {
	return NewDomainError(KindConflict, "INVALID_TRANSITION",
		"cannot perform this action in the current state", http.StatusConflict,
		map[string]any{"from": from, "to": to})
}

// NewStaleUpdate reports an optimistic-concurrency collision on a ticket.
func NewStaleUpdate(ticketID string) error {
	return NewDomainError(KindConflict, "CONCURRENT_MODIFICATION",
		"ticket was modified, please retry", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

// NewTransient wraps a persistence or delivery hiccup that may succeed on retry.
func NewTransient(err error) error {
	return &DomainError{
		Kind:       KindTransient,
		Code:       "TEMPORARILY_UNAVAILABLE",
		Message:    "service temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Kind:       KindInternal,
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	return ToDomainError(err)
}

func IsKind(err error, kind Kind) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Kind == kind
	}
	return false
}

func IsNotFound(err error) bool  { return IsKind(err, KindNotFound) }
func IsForbidden(err error) bool { return IsKind(err, KindForbidden) }
func IsConflict(err error) bool  { return IsKind(err, KindConflict) }
func IsTransient(err error) bool { return IsKind(err, KindTransient) }

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
