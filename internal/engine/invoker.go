package engine

import (
	"context"

	"github.com/roach88/schemahost/internal/fault"
	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/queryir"
	"github.com/roach88/schemahost/internal/registry"
	"github.com/roach88/schemahost/internal/vm"
)

// Invoke runs one procedure inside the transaction of ec.
//
// Steps, in order: resolve the schema and procedure, check the arguments,
// authorize, fork the context (read-only for views), run the body, check
// the result. Every error is a *fault.Error annotated with the innermost
// schema and procedure where it happened.
func (e *Engine) Invoke(ctx context.Context, ec *ExecutionContext, schema ir.SchemaID, procedure string, args []ir.IRValue, origin Origin) (ir.Result, error) {
	desc, err := e.registry.Lookup(schema)
	if err != nil {
		return ir.Result{}, err
	}
	proc, err := desc.Procedure(procedure)
	if err != nil {
		return ir.Result{}, err
	}
	return e.invoke(ctx, ec, desc, proc, args, origin)
}

func (e *Engine) invoke(ctx context.Context, ec *ExecutionContext, desc *registry.Descriptor, proc ir.ProcedureSig, args []ir.IRValue, origin Origin) (ir.Result, error) {
	at := func(err error) error {
		return fault.As(err).At(string(desc.ID()), proc.Name, ec.Depth+1)
	}

	if err := CheckArgs(proc.Params, args); err != nil {
		return ir.Result{}, at(err)
	}
	if err := Authorize(desc, proc, ec, origin); err != nil {
		return ir.Result{}, at(err)
	}
	child, err := ec.Fork(proc.IsView())
	if err != nil {
		return ir.Result{}, at(err)
	}
	child.stats.invoked++

	e.logger.Debug("invoke",
		"tx", ec.TxID,
		"schema", desc.ID(),
		"procedure", proc.Name,
		"origin", origin,
		"depth", child.Depth,
		"read_only", child.ReadOnly,
	)

	res, err := e.interp.RunBody(ctx, vm.Frame{
		Procedure: proc,
		Args:      args,
		Context: vm.Context{
			Caller: child.Caller,
			TxID:   child.TxID,
			Height: child.Height,
			Schema: desc.ID(),
		},
		Host: &host{engine: e, desc: desc, ec: child},
	})
	if err != nil {
		return ir.Result{}, fault.As(err).At(string(desc.ID()), proc.Name, child.Depth)
	}

	res, err = CheckResult(proc.Returns, res)
	if err != nil {
		return ir.Result{}, fault.As(err).At(string(desc.ID()), proc.Name, child.Depth)
	}
	return res, nil
}

// host binds a running body to its schema and execution context.
type host struct {
	engine *Engine
	desc   *registry.Descriptor
	ec     *ExecutionContext
}

// Execute runs a storage op on a table of the executing schema. Mutations
// are refused in read-only contexts.
func (h *host) Execute(ctx context.Context, table string, op queryir.Op) (ir.Result, error) {
	if queryir.IsMutation(op) && h.ec.ReadOnly {
		return ir.Result{}, fault.New(fault.MutationInViewContext,
			"%s on %s in a read-only context", queryir.Kind(op), table)
	}
	def, ok := h.desc.Table(table)
	if !ok {
		return ir.Result{}, fault.New(fault.Internal, "schema %s has no table %q", h.desc.ID(), table)
	}

	res, err := h.ec.Tx.Execute(ctx, h.desc.ID(), def, op)
	if err != nil {
		return ir.Result{}, classifyStoreError(err)
	}
	if _, ok := op.(queryir.Select); ok {
		return ir.Table(res.Columns, res.Rows), nil
	}
	return ir.None(), nil
}

// CallLocal invokes a procedure of the same schema with internal origin.
func (h *host) CallLocal(ctx context.Context, procedure string, args []ir.IRValue) (ir.Result, error) {
	proc, err := h.desc.Procedure(procedure)
	if err != nil {
		return ir.Result{}, err
	}
	return h.engine.invoke(ctx, h.ec, h.desc, proc, args, OriginInternal)
}

// CallForeign hands a foreign statement to the resolver.
func (h *host) CallForeign(ctx context.Context, call vm.ForeignCall) (ir.Result, error) {
	return h.engine.ResolveAndCall(ctx, h.ec, h.desc, call.Stub, call.Target, call.Procedure, call.Args)
}
