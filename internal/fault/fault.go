// Package fault defines the error taxonomy of the dispatch engine.
//
// Every error returned across Engine.Call is a *Error carrying a Kind.
// Errors are fail-fast: none is retried, and any error at any call depth
// rolls back the whole transaction.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind string

const (
	// UnknownSchema: target or entry schema id is not registered.
	UnknownSchema Kind = "UnknownSchema"

	// ProcedureNotFound: the schema has no procedure (or stub) of that name.
	ProcedureNotFound Kind = "ProcedureNotFound"

	// SignatureMismatch: arguments or return value do not match the
	// declared signature.
	SignatureMismatch Kind = "SignatureMismatch"

	// IncompatibleForeignSignature: a foreign stub does not structurally
	// match the resolved target procedure.
	IncompatibleForeignSignature Kind = "IncompatibleForeignSignature"

	// Unauthorized: an owner procedure was invoked by someone else.
	Unauthorized Kind = "Unauthorized"

	// NotExternallyCallable: a private procedure was reached from outside
	// its schema.
	NotExternallyCallable Kind = "NotExternallyCallable"

	// MutationInViewContext: a write was attempted in a read-only context.
	MutationInViewContext Kind = "MutationInViewContext"

	// MaxCallDepthExceeded: the nested call chain is too deep.
	MaxCallDepthExceeded Kind = "MaxCallDepthExceeded"

	// ApplicationError: raised by procedure logic (require, abort).
	ApplicationError Kind = "ApplicationError"

	// DuplicateSchema: a schema with the same id is already registered.
	DuplicateSchema Kind = "DuplicateSchema"

	// InvalidSchema: the source failed to compile or validate.
	InvalidSchema Kind = "InvalidSchema"

	// Internal: storage or driver failure, or anything unclassified.
	Internal Kind = "Internal"
)

// Kinds lists every Kind in declaration order.
var Kinds = []Kind{
	UnknownSchema,
	ProcedureNotFound,
	SignatureMismatch,
	IncompatibleForeignSignature,
	Unauthorized,
	NotExternallyCallable,
	MutationInViewContext,
	MaxCallDepthExceeded,
	ApplicationError,
	DuplicateSchema,
	InvalidSchema,
	Internal,
}

// Error is a classified engine error.
type Error struct {
	Kind      Kind
	Message   string
	Schema    string
	Procedure string
	Depth     int
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Schema != "" && e.Procedure != "" {
		msg = fmt.Sprintf("%s (%s.%s)", msg, e.Schema, e.Procedure)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same Kind, so that
// errors.Is(err, &fault.Error{Kind: fault.Unauthorized}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind. A cause that is already a *Error keeps
// its own kind.
func Wrap(kind Kind, cause error, message string) *Error {
	var fe *Error
	if errors.As(cause, &fe) {
		return fe
	}
	return &Error{Kind: kind, Message: message, Err: cause}
}

// At records the schema and procedure where the error happened, if not
// already set. It returns e for chaining.
func (e *Error) At(schema, procedure string, depth int) *Error {
	if e.Schema == "" {
		e.Schema = schema
		e.Procedure = procedure
		e.Depth = depth
	}
	return e
}

// KindOf returns the kind of err, or Internal when err is not classified.
// A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// As converts any error into a *Error, classifying unknown errors as
// Internal. It returns nil for nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Kind: Internal, Message: err.Error(), Err: err}
}

// Is reports whether err has the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsAccessDenied reports whether err is an authorization failure.
func IsAccessDenied(err error) bool {
	k := KindOf(err)
	return k == Unauthorized || k == NotExternallyCallable
}

// IsCallerError reports whether err was caused by the request rather than
// by the engine or storage.
func IsCallerError(err error) bool {
	switch KindOf(err) {
	case "", Internal:
		return false
	default:
		return true
	}
}
