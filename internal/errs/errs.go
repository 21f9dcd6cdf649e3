// Package errs defines the error kinds shared by every layer of pmdeck.
//
// Errors carry a kind (one of the sentinel values below) and a human message.
// Callers classify with errors.Is(err, errs.ErrNotFound) or with CodeOf(err);
// nothing in pmdeck parses error strings.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrExecution  = errors.New("execution error")
	ErrTimeout    = errors.New("timeout")
)

// ErrDuplicateName is a conflict raised when a process name is already taken.
var ErrDuplicateName = &Error{Kind: ErrConflict, Msg: "duplicate process name"}

// Code is the machine readable companion of an error kind.
type Code string

const (
	CodeValidation Code = "validation"
	CodeNotFound   Code = "not_found"
	CodeConflict   Code = "conflict"
	CodeExecution  Code = "execution"
	CodeTimeout    Code = "timeout"
)

// Error is a classified error. Msg is shown to operators as-is.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newf(kind error, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

func Validationf(format string, args ...any) error {
	return newf(ErrValidation, nil, format, args...)
}

func NotFoundf(format string, args ...any) error {
	return newf(ErrNotFound, nil, format, args...)
}

func Conflictf(format string, args ...any) error {
	return newf(ErrConflict, nil, format, args...)
}

func Timeoutf(format string, args ...any) error {
	return newf(ErrTimeout, nil, format, args...)
}

// Execution wraps an OS or backend failure. cause may be nil.
func Execution(cause error, format string, args ...any) error {
	return newf(ErrExecution, cause, format, args...)
}

// CodeOf classifies err. Unclassified errors are reported as execution failures.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	default:
		return CodeExecution
	}
}
