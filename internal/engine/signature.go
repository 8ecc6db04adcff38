package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/schemahost/internal/fault"
	"github.com/roach88/schemahost/internal/ir"
)

// CheckArgs checks positional arguments against declared parameters.
// Null is accepted for every type; uuid values must parse.
func CheckArgs(params []ir.Param, args []ir.IRValue) error {
	if len(args) != len(params) {
		return fault.New(fault.SignatureMismatch,
			"expected %d arguments, got %d", len(params), len(args))
	}
	for i, p := range params {
		if err := checkValue(p.Type, args[i]); err != nil {
			return fault.New(fault.SignatureMismatch, "argument %d (%s): %v", i, p.Name, err)
		}
	}
	return nil
}

// CheckResult checks a body's result against the declared return shape and
// returns it with the declared column names.
func CheckResult(shape ir.ReturnShape, res ir.Result) (ir.Result, error) {
	switch shape.Kind {
	case ir.ReturnNone, "":
		if res.Kind != ir.ReturnNone && res.Kind != "" {
			return ir.Result{}, fault.New(fault.SignatureMismatch,
				"procedure declares no return value, got %s", res.Kind)
		}
		return ir.None(), nil

	case ir.ReturnScalar:
		if res.Kind != ir.ReturnScalar {
			return ir.Result{}, fault.New(fault.SignatureMismatch,
				"procedure returns %s, got %s", shape, kindName(res.Kind))
		}
		if err := checkValue(shape.Type, res.Value); err != nil {
			return ir.Result{}, fault.New(fault.SignatureMismatch, "return value: %v", err)
		}
		return res, nil

	case ir.ReturnTable:
		if res.Kind != ir.ReturnTable {
			return ir.Result{}, fault.New(fault.SignatureMismatch,
				"procedure returns %s, got %s", shape, kindName(res.Kind))
		}
		if len(res.Columns) != len(shape.Columns) {
			return ir.Result{}, fault.New(fault.SignatureMismatch,
				"procedure returns %d columns, got %d", len(shape.Columns), len(res.Columns))
		}
		names := make([]string, len(shape.Columns))
		for i, c := range shape.Columns {
			names[i] = c.Name
		}
		for r, row := range res.Rows {
			for i, c := range shape.Columns {
				if i >= len(row) {
					return ir.Result{}, fault.New(fault.SignatureMismatch, "row %d is short", r)
				}
				if err := checkValue(c.Type, row[i]); err != nil {
					return ir.Result{}, fault.New(fault.SignatureMismatch,
						"row %d column %s: %v", r, c.Name, err)
				}
			}
		}
		return res.Relabel(names), nil

	default:
		return ir.Result{}, fault.New(fault.Internal, "unknown return kind %q", shape.Kind)
	}
}

// Compatible reports whether a foreign stub structurally matches the
// resolved target procedure: same parameter count and types by position,
// same return kind and scalar type, and table columns matching by position
// and type. Names are not compared.
func Compatible(stub ir.ForeignStub, proc ir.ProcedureSig) error {
	mismatch := func(format string, args ...any) error {
		return fault.New(fault.IncompatibleForeignSignature,
			"stub %s does not match %s: %s", stub.Signature(), proc.Signature(), fmt.Sprintf(format, args...))
	}

	if len(stub.Params) != len(proc.Params) {
		return mismatch("%d parameters, target has %d", len(stub.Params), len(proc.Params))
	}
	for i := range stub.Params {
		if stub.Params[i].Type != proc.Params[i].Type {
			return mismatch("parameter %d is %s, target has %s", i, stub.Params[i].Type, proc.Params[i].Type)
		}
	}

	sr, pr := stub.Returns, proc.Returns
	if kindName(sr.Kind) != kindName(pr.Kind) {
		return mismatch("returns %s, target returns %s", kindName(sr.Kind), kindName(pr.Kind))
	}
	switch sr.Kind {
	case ir.ReturnScalar:
		if sr.Type != pr.Type {
			return mismatch("returns %s, target returns %s", sr.Type, pr.Type)
		}
	case ir.ReturnTable:
		if len(sr.Columns) != len(pr.Columns) {
			return mismatch("returns %d columns, target returns %d", len(sr.Columns), len(pr.Columns))
		}
		for i := range sr.Columns {
			if sr.Columns[i].Type != pr.Columns[i].Type {
				return mismatch("column %d is %s, target has %s", i, sr.Columns[i].Type, pr.Columns[i].Type)
			}
		}
	}
	return nil
}

func checkValue(t ir.Type, v ir.IRValue) error {
	if err := ir.CheckValue(t, v); err != nil {
		return err
	}
	if t == ir.TypeUUID && !ir.IsNull(v) {
		if _, err := uuid.Parse(string(v.(ir.IRString))); err != nil {
			return fmt.Errorf("invalid uuid %q", v)
		}
	}
	return nil
}

func kindName(k ir.ReturnKind) string {
	if k == "" {
		return string(ir.ReturnNone)
	}
	return string(k)
}
