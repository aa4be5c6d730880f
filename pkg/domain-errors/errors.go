// Package domainerrors defines the error taxonomy surfaced by the repository core.
//
// Every user-visible failure is an *Error carrying a Code. Field-level failures
// additionally carry a field → messages map (see Fields), which is the shape the
// transport layer renders.
package domainerrors

import (
	"errors"
	"fmt"
	"maps"
)

// Code classifies a domain error.
type Code string

const (
	CodeValidation             Code = "validation"
	CodeInvalidExpression      Code = "invalid_expression"
	CodeUnresolvableExpression Code = "unresolvable_expression"
	CodeReferenceExists        Code = "reference_already_exists"
	CodeAlreadyRetired         Code = "already_retired"
	CodeAlreadyActive          Code = "already_active"
	CodeMissingActor           Code = "missing_actor"
	CodeConflict               Code = "conflict"
	CodeNotFound               Code = "not_found"
	CodeInvariantViolation     Code = "invariant_violation"
	CodeTimeout                Code = "timeout"
	CodeInternal               Code = "internal"
)

// NonFieldKey is the field key used when an error is not tied to a specific field.
const NonFieldKey = "__all__"

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
	fields  map[string][]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fields returns the field → messages map for this error. Errors created
// without explicit fields report their message under NonFieldKey.
func (e *Error) Fields() map[string][]string {
	if len(e.fields) > 0 {
		return maps.Clone(e.fields)
	}
	return map[string][]string{NonFieldKey: {e.Message}}
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// WithField creates a coded error reported under a single field.
func WithField(code Code, field, msg string) error {
	return &Error{Code: code, Message: msg, fields: map[string][]string{field: {msg}}}
}

// Validation builds a validation error from a field → messages map.
// Returns nil when fields is empty so callers can collect and return unconditionally.
func Validation(fields map[string][]string) error {
	if len(fields) == 0 {
		return nil
	}
	msg := "validation failed"
	for _, key := range sortedKeys(fields) {
		if len(fields[key]) > 0 {
			msg = key + ": " + fields[key][0]
			break
		}
	}
	return &Error{Code: CodeValidation, Message: msg, fields: maps.Clone(fields)}
}

// HasCode reports whether any error in err's chain is an *Error with the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost domain code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// FieldErrors renders any error as a field → messages map.
func FieldErrors(err error) map[string][]string {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Fields()
	}
	return map[string][]string{NonFieldKey: {err.Error()}}
}
