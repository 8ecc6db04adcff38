package vm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/schemahost/internal/cond"
	"github.com/roach88/schemahost/internal/fault"
	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/queryir"
)

// Interpreter executes procedure bodies. It holds no per-call state and is
// safe to share.
type Interpreter struct {
	logger *slog.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger used for statement tracing at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(in *Interpreter) {
		in.logger = l
	}
}

// New creates an interpreter.
func New(opts ...Option) *Interpreter {
	in := &Interpreter{logger: slog.Default()}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// RunBody executes the frame's procedure body and returns the value of the
// first return statement reached, or ir.None() when the body ends without
// one. The caller checks the result against the declared shape.
func (in *Interpreter) RunBody(ctx context.Context, f Frame) (ir.Result, error) {
	if f.Host == nil {
		return ir.Result{}, fault.New(fault.Internal, "frame has no host")
	}
	if len(f.Args) != len(f.Procedure.Params) {
		return ir.Result{}, fault.New(fault.SignatureMismatch,
			"%s takes %d arguments, got %d", f.Procedure.Name, len(f.Procedure.Params), len(f.Args))
	}

	r := &run{frame: f, vars: make(map[string]ir.Result, len(f.Args))}
	for i, p := range f.Procedure.Params {
		r.vars[p.Name] = ir.Scalar(f.Args[i])
	}

	for _, stmt := range f.Procedure.Body {
		if err := ctx.Err(); err != nil {
			return ir.Result{}, fault.Wrap(fault.Internal, err, "call cancelled")
		}
		in.logger.Debug("statement",
			"procedure", f.Procedure.Name,
			"index", stmt.Index,
			"op", stmt.Op,
		)
		done, err := r.exec(ctx, stmt)
		if err != nil {
			return ir.Result{}, err
		}
		if done {
			return r.result, nil
		}
	}
	return ir.None(), nil
}

// run is the mutable state of one RunBody.
type run struct {
	frame  Frame
	vars   map[string]ir.Result
	result ir.Result
}

// exec runs one statement. done is true after a return.
func (r *run) exec(ctx context.Context, stmt ir.Statement) (done bool, err error) {
	switch stmt.Op {
	case ir.OpLet:
		res, err := r.evalResult(stmt.Value)
		if err != nil {
			return false, err
		}
		r.vars[stmt.As] = res

	case ir.OpSelect:
		filter, err := r.filter(stmt.Where)
		if err != nil {
			return false, err
		}
		res, err := r.frame.Host.Execute(ctx, stmt.Table, queryir.Select{Columns: stmt.Columns, Filter: filter})
		if err != nil {
			return false, err
		}
		if stmt.As != "" {
			r.vars[stmt.As] = res
		}

	case ir.OpInsert:
		values, err := r.assigns(stmt.Values)
		if err != nil {
			return false, err
		}
		_, err = r.frame.Host.Execute(ctx, stmt.Table, queryir.Insert{Values: values})
		return false, err

	case ir.OpUpdate:
		set, err := r.assigns(stmt.Values)
		if err != nil {
			return false, err
		}
		filter, err := r.filter(stmt.Where)
		if err != nil {
			return false, err
		}
		_, err = r.frame.Host.Execute(ctx, stmt.Table, queryir.Update{Set: set, Filter: filter})
		return false, err

	case ir.OpDelete:
		filter, err := r.filter(stmt.Where)
		if err != nil {
			return false, err
		}
		_, err = r.frame.Host.Execute(ctx, stmt.Table, queryir.Delete{Filter: filter})
		return false, err

	case ir.OpRequire:
		return false, r.require(stmt)

	case ir.OpAbort:
		return false, fault.New(fault.ApplicationError, "%s", stmt.Message)

	case ir.OpCall:
		args, err := r.evalList(stmt.Args)
		if err != nil {
			return false, err
		}
		res, err := r.frame.Host.CallLocal(ctx, stmt.Procedure, args)
		if err != nil {
			return false, err
		}
		if stmt.As != "" {
			r.vars[stmt.As] = res
		}

	case ir.OpForeign:
		call, err := r.foreign(stmt)
		if err != nil {
			return false, err
		}
		res, err := r.frame.Host.CallForeign(ctx, call)
		if err != nil {
			return false, err
		}
		if stmt.As != "" {
			r.vars[stmt.As] = res
		}

	case ir.OpUUID:
		seed, err := r.evalList(stmt.Seed)
		if err != nil {
			return false, err
		}
		id, err := DeterministicUUID(r.frame.Context, seed)
		if err != nil {
			return false, err
		}
		r.vars[stmt.As] = ir.Scalar(ir.IRString(id))

	case ir.OpReturn:
		res, err := r.evalResult(stmt.Value)
		if err != nil {
			return false, err
		}
		if r.frame.Procedure.Returns.Kind == ir.ReturnNone && res.Empty() {
			res = ir.None()
		}
		r.result = res
		return true, nil

	default:
		return false, fault.New(fault.Internal, "unknown statement %q", stmt.Op)
	}
	return false, nil
}

func (r *run) require(stmt ir.Statement) error {
	msg := stmt.Message
	if msg == "" {
		msg = fmt.Sprintf("requirement failed: %s %s", stmt.Check, stmt.Value)
	}

	var ok bool
	switch stmt.Check {
	case ir.CheckEmpty, ir.CheckNonEmpty:
		res, err := r.evalResult(stmt.Value)
		if err != nil {
			return err
		}
		ok = res.Empty() == (stmt.Check == ir.CheckEmpty)
	case ir.CheckEqual, ir.CheckNotEqual:
		a, err := r.eval(stmt.Value)
		if err != nil {
			return err
		}
		b, err := r.eval(stmt.Other)
		if err != nil {
			return err
		}
		ok = ir.Equal(a, b) == (stmt.Check == ir.CheckEqual)
	case ir.CheckTrue:
		v, err := r.eval(stmt.Value)
		if err != nil {
			return err
		}
		b, isBool := v.(ir.IRBool)
		ok = isBool && bool(b)
	case ir.CheckExpr:
		var err error
		if ok, err = r.condition(stmt.Value); err != nil {
			return fault.Wrap(fault.ApplicationError, err, msg)
		}
	default:
		return fault.New(fault.Internal, "unknown require check %q", stmt.Check)
	}

	if !ok {
		return fault.New(fault.ApplicationError, "%s", msg)
	}
	return nil
}

// condition evaluates a CEL source held as a string literal.
func (r *run) condition(e ir.Expr) (bool, error) {
	src, ok := e.Literal.(ir.IRString)
	if e.Kind != ir.ExprLiteral || !ok {
		return false, fault.New(fault.Internal, "expr check needs a literal source, got %s", e)
	}
	env, err := cond.Default()
	if err != nil {
		return false, fault.Wrap(fault.Internal, err, "condition env")
	}
	ctx := make(map[string]ir.IRValue, len(ir.ValidContextNames))
	for name := range ir.ValidContextNames {
		ctx[name], _ = r.frame.Context.Value(name)
	}
	return env.Eval(string(src), ctx, r.vars)
}

// foreign evaluates the target of a foreign statement. A missing target is
// reported as an unknown schema: the configuration names nothing.
func (r *run) foreign(stmt ir.Statement) (ForeignCall, error) {
	target, err := r.eval(stmt.Target)
	if err != nil {
		return ForeignCall{}, err
	}
	id, ok := target.(ir.IRString)
	if !ok || id == "" {
		return ForeignCall{}, fault.New(fault.UnknownSchema,
			"foreign target %s evaluated to %s", stmt.Target, ir.Format(target))
	}

	proc, err := r.eval(stmt.TargetProc)
	if err != nil {
		return ForeignCall{}, err
	}
	name, ok := proc.(ir.IRString)
	if !ok || name == "" {
		return ForeignCall{}, fault.New(fault.ProcedureNotFound,
			"foreign procedure %s evaluated to %s", stmt.TargetProc, ir.Format(proc))
	}

	args, err := r.evalList(stmt.Args)
	if err != nil {
		return ForeignCall{}, err
	}
	return ForeignCall{
		Stub:      stmt.Stub,
		Target:    ir.SchemaID(id),
		Procedure: string(name),
		Args:      args,
	}, nil
}
