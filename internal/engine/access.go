package engine

import (
	"github.com/roach88/schemahost/internal/fault"
	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/registry"
)

// Origin tells Authorize where an invocation came from.
type Origin string

const (
	// OriginExternal is a top-level call or a foreign call from another
	// schema.
	OriginExternal Origin = "external"

	// OriginInternal is a local call from a procedure of the same schema.
	OriginInternal Origin = "internal"
)

// Authorize decides whether the context's caller may invoke proc of desc.
//
//	owner                allowed iff caller is the schema owner, any origin
//	public               allowed
//	neither (private)    allowed only from inside the schema
//
// view never grants or denies access; it only makes the invocation
// read-only.
func Authorize(desc *registry.Descriptor, proc ir.ProcedureSig, ec *ExecutionContext, origin Origin) error {
	switch {
	case proc.Has(ir.ModOwner):
		if ec.Caller != desc.Owner() {
			return fault.New(fault.Unauthorized,
				"%s is restricted to the schema owner", proc.Name)
		}
		return nil
	case proc.Has(ir.ModPublic):
		return nil
	case origin == OriginExternal:
		return fault.New(fault.NotExternallyCallable,
			"%s can only be called from inside its schema", proc.Name)
	default:
		return nil
	}
}
