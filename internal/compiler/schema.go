// Package compiler turns CUE schema source into ir.SchemaSpec and checks it
// statically before deployment.
//
// Source layout:
//
//	schema: <name>: {
//		table: <t>: { columns: { <col>: "<type>" }, primary_key: [...] }
//		foreign: <stub>: { params: { <p>: "<type>" }, returns: ... }
//		procedure: <p>: { modifiers: [...], params: {...}, returns: ..., body: [...] }
//	}
//
// returns is a type name for a scalar, {table: {<col>: "<type>"}} for a
// table, or absent for none. Field order is significant for params and
// columns.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/schemahost/internal/ir"
)

// CompileSource compiles one CUE source file containing exactly one schema.
// The schema id is derived from the schema name and owner.
func CompileSource(src, filename, owner string) (*ir.SchemaSpec, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schemas := lookup(v, "schema")
	if !schemas.Exists() {
		return nil, &CompileError{Field: "schema", Message: "no schema declared", Pos: v.Pos()}
	}
	iter, err := schemas.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var spec *ir.SchemaSpec
	for iter.Next() {
		if spec != nil {
			return nil, &CompileError{
				Field:   "schema." + iter.Selector().Unquoted(),
				Message: "a source file must declare exactly one schema",
				Pos:     iter.Value().Pos(),
			}
		}
		spec, err = CompileSchema(iter.Value(), owner)
		if err != nil {
			return nil, err
		}
	}
	if spec == nil {
		return nil, &CompileError{Field: "schema", Message: "no schema declared", Pos: schemas.Pos()}
	}
	spec.Source = src
	return spec, nil
}

// CompileSchema compiles the struct value of a single schema, e.g. the value
// at path schema.proxy.
func CompileSchema(v cue.Value, owner string) (*ir.SchemaSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.SchemaSpec{Owner: owner}
	if sels := v.Path().Selectors(); len(sels) > 0 {
		spec.Name = sels[len(sels)-1].Unquoted()
	}
	if spec.Name == "" {
		return nil, &CompileError{Field: "schema", Message: "schema name is required", Pos: v.Pos()}
	}

	id, err := ir.NewSchemaID(spec.Name, owner)
	if err != nil {
		return nil, err
	}
	spec.ID = id

	if spec.Tables, err = parseTables(v); err != nil {
		return nil, err
	}
	if spec.Stubs, err = parseStubs(v); err != nil {
		return nil, err
	}
	if spec.Procedures, err = parseProcedures(v); err != nil {
		return nil, err
	}
	return spec, nil
}

func parseTables(v cue.Value) ([]ir.TableDef, error) {
	var tables []ir.TableDef
	err := eachField(lookup(v, "table"), func(name string, tv cue.Value) error {
		table := ir.TableDef{Name: name}

		cols := lookup(tv, "columns")
		if !cols.Exists() {
			return &CompileError{
				Field:   "table." + name + ".columns",
				Message: "table columns are required",
				Pos:     tv.Pos(),
			}
		}
		err := eachField(cols, func(col string, cv cue.Value) error {
			typ, err := parseType(cv, "table."+name+".columns."+col)
			if err != nil {
				return err
			}
			table.Columns = append(table.Columns, ir.Column{Name: col, Type: typ})
			return nil
		})
		if err != nil {
			return err
		}

		if table.PrimaryKey, err = stringList(lookup(tv, "primary_key")); err != nil {
			return err
		}
		tables = append(tables, table)
		return nil
	})
	return tables, err
}

func parseStubs(v cue.Value) ([]ir.ForeignStub, error) {
	var stubs []ir.ForeignStub
	err := eachField(lookup(v, "foreign"), func(name string, sv cue.Value) error {
		field := "foreign." + name
		params, err := parseParams(lookup(sv, "params"), field)
		if err != nil {
			return err
		}
		returns, err := parseReturns(lookup(sv, "returns"), field)
		if err != nil {
			return err
		}
		stubs = append(stubs, ir.ForeignStub{Name: name, Params: params, Returns: returns})
		return nil
	})
	return stubs, err
}

func parseProcedures(v cue.Value) ([]ir.ProcedureSig, error) {
	var procs []ir.ProcedureSig
	err := eachField(lookup(v, "procedure"), func(name string, pv cue.Value) error {
		field := "procedure." + name
		proc := ir.ProcedureSig{Name: name}

		mods, err := stringList(lookup(pv, "modifiers"))
		if err != nil {
			return err
		}
		for _, m := range mods {
			proc.Modifiers = append(proc.Modifiers, ir.Modifier(m))
		}

		if proc.Params, err = parseParams(lookup(pv, "params"), field); err != nil {
			return err
		}
		if proc.Returns, err = parseReturns(lookup(pv, "returns"), field); err != nil {
			return err
		}
		if proc.Body, err = parseBody(lookup(pv, "body"), field); err != nil {
			return err
		}
		procs = append(procs, proc)
		return nil
	})
	return procs, err
}

func parseParams(v cue.Value, field string) ([]ir.Param, error) {
	var params []ir.Param
	err := eachField(v, func(name string, pv cue.Value) error {
		typ, err := parseType(pv, field+".params."+name)
		if err != nil {
			return err
		}
		params = append(params, ir.Param{Name: name, Type: typ})
		return nil
	})
	return params, err
}

// parseReturns accepts a type name, {table: {...}}, or nothing.
func parseReturns(v cue.Value, field string) (ir.ReturnShape, error) {
	if !v.Exists() {
		return ir.ReturnShape{Kind: ir.ReturnNone}, nil
	}
	if v.IncompleteKind() == cue.StringKind {
		typ, err := parseType(v, field+".returns")
		if err != nil {
			return ir.ReturnShape{}, err
		}
		return ir.ReturnShape{Kind: ir.ReturnScalar, Type: typ}, nil
	}

	table := lookup(v, "table")
	if !table.Exists() {
		return ir.ReturnShape{}, &CompileError{
			Field:   field + ".returns",
			Message: `returns must be a type name or {table: {...}}`,
			Pos:     v.Pos(),
		}
	}
	shape := ir.ReturnShape{Kind: ir.ReturnTable, Columns: []ir.Column{}}
	err := eachField(table, func(col string, cv cue.Value) error {
		typ, err := parseType(cv, field+".returns.table."+col)
		if err != nil {
			return err
		}
		shape.Columns = append(shape.Columns, ir.Column{Name: col, Type: typ})
		return nil
	})
	return shape, err
}

// parseType reads a type name. Unknown names are kept and reported by
// Validate so that all problems surface together.
func parseType(v cue.Value, field string) (ir.Type, error) {
	s, err := v.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("type must be a string, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
	return ir.Type(s), nil
}

// lookup finds a field by literal name. cue.Str keeps keywords such as
// let usable as labels.
func lookup(v cue.Value, name string) cue.Value {
	return v.LookupPath(cue.MakePath(cue.Str(name)))
}

// eachField visits the fields of a struct in declaration order. A missing
// value has no fields.
func eachField(v cue.Value, fn func(name string, v cue.Value) error) error {
	if !v.Exists() {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Selector().Unquoted(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func stringList(v cue.Value) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
