// Package apperr defines the failure taxonomy shared by services and the
// HTTP layer. Services return *Error values; the echo error handler maps
// each Kind to a status code and renders {"error", "details"} bodies.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindReferential Kind = "REFERENTIAL"
	KindConflict    Kind = "CONFLICT"
	KindNotFound    Kind = "NOT_FOUND"
	KindTransient   Kind = "TRANSIENT"
)

// Error is an application error carrying its Kind.
type Error struct {
	Kind    Kind
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the error's Kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation, KindReferential:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WithDetails returns e with Details set.
func (e *Error) WithDetails(format string, args ...interface{}) *Error {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Referential(format string, args ...interface{}) *Error {
	return &Error{Kind: KindReferential, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps a store error that fits no other Kind.
func Transient(message string, err error) *Error {
	e := &Error{Kind: KindTransient, Message: message, Err: err}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

// Wrap passes *Error values through unchanged and wraps anything else as
// Transient.
func Wrap(message string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Transient(message, err)
}
