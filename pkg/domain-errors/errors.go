// Package domainerrors provides coded errors so services can classify
// failures without string matching and transports can map them to status
// codes in one place.
package domainerrors

import "errors"

// Code classifies an error for handling policy: configuration errors are
// never retried, transient errors may be.
type Code string

const (
	CodeInternal           Code = "internal_error"
	CodeBadRequest         Code = "bad_request"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
	CodeMissingConsent     Code = "missing_consent"

	// CodeConfig marks rule-table or caller bugs: unknown outcome types,
	// unknown threshold keys, unresolved template placeholders. These fail
	// immediately and must never enter a retry path.
	CodeConfig Code = "configuration_error"
)

// Error carries a code alongside the message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an existing error, preserving the
// cause for errors.Is/errors.As chains.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the outermost code, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
