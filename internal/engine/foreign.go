package engine

import (
	"context"

	"github.com/roach88/schemahost/internal/fault"
	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/registry"
)

// ResolveAndCall dispatches a foreign statement of caller to procedure of
// target. The binding is computed afresh on every call and never cached.
//
// The target must be registered, must declare the procedure, and the
// procedure must structurally match the stub; all of this is checked before
// the target body runs. Table results are returned under the stub's column
// names.
func (e *Engine) ResolveAndCall(ctx context.Context, ec *ExecutionContext, caller *registry.Descriptor, stubName string, target ir.SchemaID, procedure string, args []ir.IRValue) (res ir.Result, err error) {
	defer func() {
		e.metrics.ObserveForeign(string(fault.KindOf(err)))
	}()
	if ec.stats != nil {
		ec.stats.foreign++
	}

	stub, err := caller.Stub(stubName)
	if err != nil {
		return ir.Result{}, err
	}

	desc, err := e.registry.Lookup(target)
	if err != nil {
		return ir.Result{}, err
	}
	proc, err := desc.Procedure(procedure)
	if err != nil {
		return ir.Result{}, err
	}
	if err := Compatible(stub, proc); err != nil {
		e.logger.Debug("foreign signature rejected",
			"tx", ec.TxID,
			"depth", ec.Depth,
			"stub", stub.Name,
			"target", target,
			"procedure", procedure,
			"error", err,
		)
		return ir.Result{}, fault.As(err).At(string(target), procedure, ec.Depth+1)
	}

	e.logger.Debug("foreign resolved",
		"tx", ec.TxID,
		"depth", ec.Depth,
		"stub", stub.Name,
		"from", caller.ID(),
		"target", target,
		"procedure", procedure,
	)

	res, err = e.invoke(ctx, ec, desc, proc, args, OriginExternal)
	if err != nil {
		return ir.Result{}, err
	}
	if stub.Returns.Kind == ir.ReturnTable {
		names := make([]string, len(stub.Returns.Columns))
		for i, c := range stub.Returns.Columns {
			names[i] = c.Name
		}
		res = res.Relabel(names)
	}
	return res, nil
}
