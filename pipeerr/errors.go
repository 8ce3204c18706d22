// Package pipeerr defines the error kinds surfaced by pipe runs.
// Every stage is fail-fast: the first error of any kind aborts the run.
package pipeerr

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	ConnectionError Kind = "ConnectionError" // connect, auth or network failure
	QueryError      Kind = "QueryError"      // bad table/column or query execution failure
	TransformError  Kind = "TransformError"  // transform function failure, domain or type violation
	SchemaError     Kind = "SchemaError"     // column type unsupported by the target file format
	IOError         Kind = "IOError"         // destination unwritable
)

// Error carries a Kind so callers can distinguish failure classes without string matching.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind from a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap annotates err with a message and tags it with the given kind.
// A nil err returns nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: errors.Wrap(err, message)}
}

// KindOf returns the Kind carried by err, or empty string if err is untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
