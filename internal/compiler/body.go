package compiler

import (
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/schemahost/internal/ir"
)

// statementKeys maps each statement's leading key to its op. A statement
// struct must contain exactly one of them.
var statementKeys = map[string]ir.Op{
	"let":     ir.OpLet,
	"select":  ir.OpSelect,
	"insert":  ir.OpInsert,
	"update":  ir.OpUpdate,
	"delete":  ir.OpDelete,
	"require": ir.OpRequire,
	"abort":   ir.OpAbort,
	"call":    ir.OpCall,
	"foreign": ir.OpForeign,
	"uuid":    ir.OpUUID,
	"return":  ir.OpReturn,
}

// allowedKeys lists the fields each op accepts besides its leading key.
var allowedKeys = map[ir.Op][]string{
	ir.OpLet:     {"value"},
	ir.OpSelect:  {"columns", "where", "as"},
	ir.OpInsert:  {"values"},
	ir.OpUpdate:  {"set", "where"},
	ir.OpDelete:  {"where"},
	ir.OpRequire: {"value", "other", "message"},
	ir.OpAbort:   {},
	ir.OpCall:    {"args", "as"},
	ir.OpForeign: {"target", "procedure", "args", "as"},
	ir.OpUUID:    {"seed"},
	ir.OpReturn:  {},
}

func parseBody(v cue.Value, field string) ([]ir.Statement, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var body []ir.Statement
	for i := 0; iter.Next(); i++ {
		stmt, err := parseStatement(iter.Value(), fmt.Sprintf("%s.body[%d]", field, i))
		if err != nil {
			return nil, err
		}
		stmt.Index = i
		body = append(body, stmt)
	}
	return body, nil
}

func parseStatement(v cue.Value, field string) (ir.Statement, error) {
	var stmt ir.Statement

	var keys []string
	if err := eachField(v, func(name string, _ cue.Value) error {
		keys = append(keys, name)
		return nil
	}); err != nil {
		return stmt, err
	}

	var lead string
	for _, k := range keys {
		if _, ok := statementKeys[k]; ok {
			if lead != "" {
				return stmt, &CompileError{
					Field:   field,
					Message: fmt.Sprintf("statement has both %q and %q", lead, k),
					Pos:     v.Pos(),
				}
			}
			lead = k
		}
	}
	if lead == "" {
		return stmt, &CompileError{
			Field:   field,
			Message: "statement must have one of: " + strings.Join(statementKeyNames(), ", "),
			Pos:     v.Pos(),
		}
	}
	stmt.Op = statementKeys[lead]

	for _, k := range keys {
		if k != lead && !slices.Contains(allowedKeys[stmt.Op], k) {
			return stmt, &CompileError{
				Field:   field + "." + k,
				Message: fmt.Sprintf("unknown field for %s statement", stmt.Op),
				Pos:     lookup(v, k).Pos(),
			}
		}
	}

	head := lookup(v, lead)
	var err error
	switch stmt.Op {
	case ir.OpLet:
		stmt.As, err = stringField(head, field+".let")
		if err == nil {
			stmt.Value, err = exprField(v, "value", field)
		}
	case ir.OpSelect:
		if stmt.Table, err = stringField(head, field+".select"); err != nil {
			break
		}
		if stmt.Columns, err = stringList(lookup(v, "columns")); err != nil {
			break
		}
		if stmt.Where, err = assignments(lookup(v, "where"), field+".where"); err != nil {
			break
		}
		stmt.As, err = optionalString(lookup(v, "as"), field+".as")
	case ir.OpInsert:
		if stmt.Table, err = stringField(head, field+".insert"); err == nil {
			stmt.Values, err = assignments(lookup(v, "values"), field+".values")
		}
	case ir.OpUpdate:
		if stmt.Table, err = stringField(head, field+".update"); err != nil {
			break
		}
		if stmt.Values, err = assignments(lookup(v, "set"), field+".set"); err == nil {
			stmt.Where, err = assignments(lookup(v, "where"), field+".where")
		}
	case ir.OpDelete:
		if stmt.Table, err = stringField(head, field+".delete"); err == nil {
			stmt.Where, err = assignments(lookup(v, "where"), field+".where")
		}
	case ir.OpRequire:
		if stmt.Check, err = stringField(head, field+".require"); err != nil {
			break
		}
		if stmt.Value, err = exprField(v, "value", field); err != nil {
			break
		}
		if other := lookup(v, "other"); other.Exists() {
			if stmt.Other, err = parseExpr(other, field+".other"); err != nil {
				break
			}
		}
		stmt.Message, err = optionalString(lookup(v, "message"), field+".message")
	case ir.OpAbort:
		stmt.Message, err = stringField(head, field+".abort")
	case ir.OpCall:
		if stmt.Procedure, err = stringField(head, field+".call"); err != nil {
			break
		}
		if stmt.Args, err = exprList(lookup(v, "args"), field+".args"); err == nil {
			stmt.As, err = optionalString(lookup(v, "as"), field+".as")
		}
	case ir.OpForeign:
		if stmt.Stub, err = stringField(head, field+".foreign"); err != nil {
			break
		}
		if stmt.Target, err = exprField(v, "target", field); err != nil {
			break
		}
		if proc := lookup(v, "procedure"); proc.Exists() {
			stmt.TargetProc, err = parseExpr(proc, field+".procedure")
		} else {
			// The stub name doubles as the target procedure name.
			stmt.TargetProc = ir.Lit(ir.IRString(stmt.Stub))
		}
		if err != nil {
			break
		}
		if stmt.Args, err = exprList(lookup(v, "args"), field+".args"); err == nil {
			stmt.As, err = optionalString(lookup(v, "as"), field+".as")
		}
	case ir.OpUUID:
		if stmt.As, err = stringField(head, field+".uuid"); err == nil {
			stmt.Seed, err = exprList(lookup(v, "seed"), field+".seed")
		}
	case ir.OpReturn:
		stmt.Value, err = parseExpr(head, field+".return")
	}
	return stmt, err
}

func statementKeyNames() []string {
	return []string{"let", "select", "insert", "update", "delete", "require", "abort", "call", "foreign", "uuid", "return"}
}

func stringField(v cue.Value, field string) (string, error) {
	s, err := v.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "must be a string", Pos: v.Pos()}
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	if !v.Exists() {
		return "", nil
	}
	return stringField(v, field)
}

func exprField(v cue.Value, name, field string) (ir.Expr, error) {
	fv := lookup(v, name)
	if !fv.Exists() {
		return ir.Expr{}, &CompileError{Field: field + "." + name, Message: "is required", Pos: v.Pos()}
	}
	return parseExpr(fv, field+"."+name)
}

func parseExpr(v cue.Value, field string) (ir.Expr, error) {
	val, err := toIRValue(v, field)
	if err != nil {
		return ir.Expr{}, err
	}
	return ir.ParseExpr(val), nil
}

func exprList(v cue.Value, field string) ([]ir.Expr, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list", Pos: v.Pos()}
	}
	var out []ir.Expr
	for i := 0; iter.Next(); i++ {
		e, err := parseExpr(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// assignments reads a {column: expr} struct in declaration order.
func assignments(v cue.Value, field string) ([]ir.Assignment, error) {
	var out []ir.Assignment
	err := eachField(v, func(col string, cv cue.Value) error {
		e, err := parseExpr(cv, field+"."+col)
		if err != nil {
			return err
		}
		out = append(out, ir.Assignment{Column: col, Value: e})
		return nil
	})
	return out, err
}

// toIRValue converts a concrete CUE value to an IRValue. Floats are
// rejected; numbers are int64 only.
func toIRValue(v cue.Value, field string) (ir.IRValue, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.IRNull{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "integer out of int64 range", Pos: v.Pos()}
		}
		return ir.IRInt(n), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for i := 0; iter.Next(); i++ {
			elem, err := toIRValue(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		obj := ir.IRObject{}
		err := eachField(v, func(name string, fv cue.Value) error {
			elem, err := toIRValue(fv, field+"."+name)
			if err != nil {
				return err
			}
			obj[name] = elem
			return nil
		})
		return obj, err
	case cue.FloatKind:
		return nil, &CompileError{Field: field, Message: "floats are not allowed, use int", Pos: v.Pos()}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}
