package vm

import (
	"context"

	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/queryir"
)

// Host services the side effects of a running body.
type Host interface {
	// Execute runs a storage operation on a table of the executing schema.
	// Selects return a table result; mutations return ir.None().
	Execute(ctx context.Context, table string, op queryir.Op) (ir.Result, error)

	// CallLocal invokes a procedure of the executing schema.
	CallLocal(ctx context.Context, procedure string, args []ir.IRValue) (ir.Result, error)

	// CallForeign resolves and invokes a procedure of another schema
	// through a declared stub.
	CallForeign(ctx context.Context, call ForeignCall) (ir.Result, error)
}

// ForeignCall is what a foreign statement yields to the host once its
// target has been evaluated.
type ForeignCall struct {
	Stub      string
	Target    ir.SchemaID
	Procedure string
	Args      []ir.IRValue
}

// Context holds the per-transaction values readable as @name.
type Context struct {
	Caller string
	TxID   string
	Height int64
	Schema ir.SchemaID
}

// Value returns the context value for an @name.
func (c Context) Value(name string) (ir.IRValue, bool) {
	switch name {
	case ir.CtxCaller:
		return ir.IRString(c.Caller), true
	case ir.CtxTxID:
		return ir.IRString(c.TxID), true
	case ir.CtxHeight:
		return ir.IRInt(c.Height), true
	case ir.CtxSchema:
		return ir.IRString(c.Schema), true
	default:
		return nil, false
	}
}

// Frame is one procedure activation.
type Frame struct {
	Procedure ir.ProcedureSig
	Args      []ir.IRValue
	Context   Context
	Host      Host
}
