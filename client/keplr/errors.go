// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package keplr

import (
	"errors"
	"fmt"

	"github.com/kent-3/keplr/dex"
)

// Error kinds. Every error returned by a Keplr method or handle is an *Error
// with one of these kinds, so errors.Is(err, ErrSerialization) works.
const (
	// ErrJavaScript means the wallet rejected the call or threw. The Error's
	// Message is the JavaScript error message.
	ErrJavaScript = dex.ErrorKind("javascript error")
	// ErrSerialization means a value crossing the host boundary could not be
	// encoded or decoded into its domain type, or a byte-length precondition
	// was not met.
	ErrSerialization = dex.ErrorKind("serialization error")
	// ErrHostUnavailable means a required handle or sub-resource could not be
	// obtained, e.g. the host is absent, the transport failed, or the signer
	// has no accounts.
	ErrHostUnavailable = dex.ErrorKind("host unavailable")
)

// unknownMessage is the message used when the host error carries none.
const unknownMessage = "unknown"

// Error is the only error type returned across the bridge's API.
type Error struct {
	Kind dex.ErrorKind
	// Op is the wallet method that was being called, e.g. "getKey".
	Op      string
	Message string
	wrapped error
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

// Is matches the error's Kind.
func (e *Error) Is(target error) bool {
	kind, ok := target.(dex.ErrorKind)
	return ok && kind == e.Kind
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.wrapped
}

// HostError is returned by Host implementations when the JavaScript side threw
// or rejected. Message is the JS error's message property.
type HostError struct {
	Message string
}

// Error satisfies the error interface.
func (e *HostError) Error() string {
	if e.Message == "" {
		return unknownMessage
	}
	return e.Message
}

func newError(kind dex.ErrorKind, op string, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		wrapped: err,
	}
}

func serializationError(op string, err error, format string, args ...interface{}) *Error {
	return newError(ErrSerialization, op, err, format, args...)
}

// translateHostError converts an error returned by a Host or HostObject into
// an *Error. JavaScript errors keep their message, defaulting to "unknown".
// Anything else, including context cancellation, means the host could not be
// reached.
func translateHostError(op string, err error) *Error {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr
	}
	var herr *HostError
	if errors.As(err, &herr) {
		msg := herr.Message
		if msg == "" {
			msg = unknownMessage
		}
		return &Error{Kind: ErrJavaScript, Op: op, Message: msg, wrapped: err}
	}
	return &Error{Kind: ErrHostUnavailable, Op: op, Message: err.Error(), wrapped: err}
}
