// Package errs defines the error taxonomy shared by every data source,
// the translator and the tool dispatch layer.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies a class of failure visible to tool callers
type Kind string

const (
	KindConfiguration        Kind = "ConfigurationError"
	KindInvalidParameter     Kind = "InvalidParameter"
	KindBackendUnavailable   Kind = "BackendUnavailable"
	KindPermissionDenied     Kind = "PermissionDenied"
	KindUnsupportedOperation Kind = "UnsupportedOperation"
	KindInvalidQuery         Kind = "InvalidQuery"
	KindTranslationRejected  Kind = "TranslationRejected"
	KindModelUnavailable     Kind = "ModelUnavailable"
)

// Error is the typed error returned across the data source boundary
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so errors.Is(err, errs.New(kind, "")) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Op == ""
}

func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

func Configuration(format string, args ...any) *Error {
	return New(KindConfiguration, "config", format, args...)
}

func InvalidParameter(op, format string, args ...any) *Error {
	return New(KindInvalidParameter, op, format, args...)
}

func Unsupported(op, format string, args ...any) *Error {
	return New(KindUnsupportedOperation, op, format, args...)
}

// Timeout converts a context failure into a BackendUnavailable error
func Timeout(op string, err error) *Error {
	return Wrap(KindBackendUnavailable, op, err, "backend call timed out or was cancelled")
}

// KindOf returns the kind of err. Context expiry maps to BackendUnavailable,
// as does any error that was never classified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindBackendUnavailable
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsContext reports whether err came from a cancelled or expired context
func IsContext(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// Message returns the caller-facing message of err without the kind prefix
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			if e.Err != nil {
				return e.Message + ": " + e.Err.Error()
			}
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
