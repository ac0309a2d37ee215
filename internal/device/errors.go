package device

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies accessory failures
type ErrorKind string

const (
	PeripheralNotFound      ErrorKind = "peripheral_not_found"
	PeripheralNotConnected  ErrorKind = "peripheral_not_connected"
	PeripheralNotAuthorized ErrorKind = "peripheral_not_authorized"
	PeripheralNotSupported  ErrorKind = "peripheral_not_supported"
	Timeout                 ErrorKind = "timeout"
	NoServices              ErrorKind = "no_services"
	NoCharacteristics       ErrorKind = "no_characteristics"
	PassthroughKind         ErrorKind = "passthrough"
)

// Error is the typed failure returned by accessory operations.
// Err keeps the underlying radio-stack cause, when there is one.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors, one per kind
var (
	ErrPeripheralNotFound      = &Error{Kind: PeripheralNotFound}
	ErrPeripheralNotConnected  = &Error{Kind: PeripheralNotConnected}
	ErrPeripheralNotAuthorized = &Error{Kind: PeripheralNotAuthorized}
	ErrPeripheralNotSupported  = &Error{Kind: PeripheralNotSupported}
	ErrTimeout                 = &Error{Kind: Timeout}
	ErrNoServices              = &Error{Kind: NoServices}
	ErrNoCharacteristics       = &Error{Kind: NoCharacteristics}
	ErrPassthrough             = &Error{Kind: PassthroughKind}
)

// NewError builds a typed error with a message and an optional cause.
func NewError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// Passthrough wraps an unclassified radio-stack error. Errors that already
// carry a kind are returned unchanged.
func Passthrough(err error) error {
	if err == nil {
		return nil
	}
	var derr *Error
	if errors.As(err, &derr) {
		return err
	}
	return &Error{Kind: PassthroughKind, Err: err}
}

// KindOf reports the kind of err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	return ""
}

// IsKind reports whether err is an Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
