package engine

import (
	"errors"
	"strings"

	"github.com/roach88/schemahost/internal/compiler"
	"github.com/roach88/schemahost/internal/fault"
	"github.com/roach88/schemahost/internal/store"
)

// classifyStoreError maps storage failures onto the fault taxonomy: a value
// that does not fit its column is a signature problem, a constraint
// violation is the application's own doing, anything else is internal.
func classifyStoreError(err error) error {
	var opErr *store.OpError
	var conErr *store.ConstraintError
	switch {
	case errors.As(err, &opErr):
		return fault.Wrap(fault.SignatureMismatch, err, opErr.Error())
	case errors.As(err, &conErr):
		return fault.Wrap(fault.ApplicationError, err, conErr.Error())
	default:
		return fault.Wrap(fault.Internal, err, "storage failure")
	}
}

// invalidSchema folds static validation errors into one InvalidSchema
// fault. The individual errors stay reachable through errors.As.
func invalidSchema(name string, verrs []compiler.ValidationError) error {
	msgs := make([]string, len(verrs))
	joined := make([]error, len(verrs))
	for i, v := range verrs {
		msgs[i] = v.Error()
		joined[i] = v
	}
	return &fault.Error{
		Kind:    fault.InvalidSchema,
		Message: "schema " + name + ": " + strings.Join(msgs, "; "),
		Err:     errors.Join(joined...),
	}
}

// ValidationErrors returns the static validation errors carried by a
// failed deploy, if any.
func ValidationErrors(err error) []compiler.ValidationError {
	fe := fault.As(err)
	if fe == nil || fe.Kind != fault.InvalidSchema || fe.Err == nil {
		return nil
	}
	multi, ok := fe.Err.(interface{ Unwrap() []error })
	if !ok {
		return nil
	}
	var out []compiler.ValidationError
	for _, e := range multi.Unwrap() {
		var v compiler.ValidationError
		if errors.As(e, &v) {
			out = append(out, v)
		}
	}
	return out
}
