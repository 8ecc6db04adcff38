package vm

import (
	"github.com/google/uuid"

	"github.com/roach88/schemahost/internal/fault"
	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/queryir"
)

// evalResult evaluates e keeping tables intact: a bare table variable
// yields the whole table.
func (r *run) evalResult(e ir.Expr) (ir.Result, error) {
	if e.Kind == ir.ExprVar && e.Field == "" {
		res, ok := r.vars[e.Name]
		if !ok {
			return ir.Result{}, fault.New(fault.Internal, "variable $%s is not defined", e.Name)
		}
		return res, nil
	}
	v, err := r.eval(e)
	if err != nil {
		return ir.Result{}, err
	}
	return ir.Scalar(v), nil
}

// eval evaluates e to a single value.
func (r *run) eval(e ir.Expr) (ir.IRValue, error) {
	switch e.Kind {
	case ir.ExprLiteral:
		if e.Literal == nil {
			return ir.IRNull{}, nil
		}
		return e.Literal, nil

	case ir.ExprContext:
		v, ok := r.frame.Context.Value(e.Name)
		if !ok {
			return nil, fault.New(fault.Internal, "unknown context value @%s", e.Name)
		}
		return v, nil

	case ir.ExprVar:
		res, ok := r.vars[e.Name]
		if !ok {
			return nil, fault.New(fault.Internal, "variable $%s is not defined", e.Name)
		}
		switch res.Kind {
		case ir.ReturnTable:
			if e.Field == "" {
				return nil, fault.New(fault.SignatureMismatch, "table $%s used where a value is expected", e.Name)
			}
			return res.Field(e.Field), nil
		case ir.ReturnScalar:
			if e.Field != "" {
				return nil, fault.New(fault.SignatureMismatch, "$%s is not a table, cannot select .%s", e.Name, e.Field)
			}
			return res.Value, nil
		default:
			return ir.IRNull{}, nil
		}

	case "":
		return ir.IRNull{}, nil

	default:
		return nil, fault.New(fault.Internal, "unknown expression kind %q", e.Kind)
	}
}

func (r *run) evalList(es []ir.Expr) ([]ir.IRValue, error) {
	out := make([]ir.IRValue, len(es))
	for i, e := range es {
		v, err := r.eval(e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *run) assigns(as []ir.Assignment) ([]queryir.Assign, error) {
	out := make([]queryir.Assign, len(as))
	for i, a := range as {
		v, err := r.eval(a.Value)
		if err != nil {
			return nil, err
		}
		out[i] = queryir.Assign{Column: a.Column, Value: v}
	}
	return out, nil
}

func (r *run) filter(where []ir.Assignment) (queryir.Predicate, error) {
	as, err := r.assigns(where)
	if err != nil {
		return nil, err
	}
	return queryir.Match(as), nil
}

// txNamespace is the uuid namespace every transaction's ids derive from.
var txNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("schemahost:tx"))

// DeterministicUUID derives a name-based (v5) uuid from the transaction id,
// the executing schema and the seed values. Replaying a transaction with
// the same tx id yields the same ids.
func DeterministicUUID(c Context, seed []ir.IRValue) (string, error) {
	name, err := ir.MarshalCanonical(ir.IRObject{
		"schema": ir.IRString(c.Schema),
		"seed":   ir.IRArray(seed),
	})
	if err != nil {
		return "", fault.Wrap(fault.Internal, err, "encode uuid seed")
	}
	ns := uuid.NewSHA1(txNamespace, []byte(c.TxID))
	return uuid.NewSHA1(ns, name).String(), nil
}
