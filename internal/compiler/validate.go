package compiler

import (
	"fmt"

	"github.com/roach88/schemahost/internal/cond"
	"github.com/roach88/schemahost/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrNoProcedures      = "E201" // schema declares no procedures
	ErrInvalidType       = "E202" // unknown column/param/return type
	ErrInvalidModifier   = "E203" // unknown or conflicting modifier
	ErrDuplicateName     = "E204" // duplicate table/column/procedure/stub/param
	ErrUnknownTable      = "E205" // statement references undeclared table
	ErrUnknownColumn     = "E206" // column not in table or result shape
	ErrUnknownStub       = "E207" // foreign statement names undeclared stub
	ErrUnknownProcedure  = "E208" // call statement names undeclared procedure
	ErrArity             = "E209" // argument count differs from parameters
	ErrUndefinedVariable = "E210" // $name used before it is bound
	ErrInvalidContext    = "E211" // unknown @name
	ErrInvalidRequire    = "E212" // unknown check or missing operand
	ErrInvalidBinding    = "E213" // missing or meaningless "as"
	ErrInvalidReturn     = "E214" // return inconsistent with declared shape
	ErrEmptyTable        = "E215" // table without columns
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled schema for problems that can be found without
// running it. Returns all errors found; does not fail fast.
//
// Foreign targets are not checked: they are chosen at call time.
func Validate(spec *ir.SchemaSpec) []ValidationError {
	v := &validator{
		spec:   spec,
		tables: map[string]ir.TableDef{},
		procs:  map[string]ir.ProcedureSig{},
		stubs:  map[string]ir.ForeignStub{},
	}
	v.validate()
	return v.errs
}

type validator struct {
	spec   *ir.SchemaSpec
	tables map[string]ir.TableDef
	procs  map[string]ir.ProcedureSig
	stubs  map[string]ir.ForeignStub
	errs   []ValidationError
}

func (v *validator) add(code, field, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func (v *validator) validate() {
	for i, t := range v.spec.Tables {
		field := fmt.Sprintf("table.%s", t.Name)
		if _, dup := v.tables[t.Name]; dup {
			v.add(ErrDuplicateName, field, "duplicate table name %q", t.Name)
		}
		v.tables[t.Name] = v.spec.Tables[i]
		v.validateTable(t, field)
	}
	for _, s := range v.spec.Stubs {
		field := "foreign." + s.Name
		if _, dup := v.stubs[s.Name]; dup {
			v.add(ErrDuplicateName, field, "duplicate foreign stub name %q", s.Name)
		}
		v.stubs[s.Name] = s
		v.validateParams(s.Params, field)
		v.validateReturns(s.Returns, field)
	}
	for _, p := range v.spec.Procedures {
		if _, dup := v.procs[p.Name]; dup {
			v.add(ErrDuplicateName, "procedure."+p.Name, "duplicate procedure name %q", p.Name)
		}
		v.procs[p.Name] = p
	}

	if len(v.spec.Procedures) == 0 {
		v.add(ErrNoProcedures, "procedure", "schema %q declares no procedures", v.spec.Name)
	}
	for _, p := range v.spec.Procedures {
		v.validateProcedure(p)
	}
}

func (v *validator) validateTable(t ir.TableDef, field string) {
	if len(t.Columns) == 0 {
		v.add(ErrEmptyTable, field+".columns", "table %q has no columns", t.Name)
	}
	seen := map[string]bool{}
	for _, c := range t.Columns {
		if seen[c.Name] {
			v.add(ErrDuplicateName, field+".columns."+c.Name, "duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		v.validateType(c.Type, field+".columns."+c.Name)
	}
	for _, k := range t.PrimaryKey {
		if !seen[k] {
			v.add(ErrUnknownColumn, field+".primary_key", "primary key column %q is not declared", k)
		}
	}
}

func (v *validator) validateType(t ir.Type, field string) {
	if !ir.ValidTypes[t] {
		v.add(ErrInvalidType, field, "invalid type %q, must be one of text, int, bool, uuid, blob", t)
	}
}

func (v *validator) validateParams(params []ir.Param, field string) {
	seen := map[string]bool{}
	for _, p := range params {
		if seen[p.Name] {
			v.add(ErrDuplicateName, field+".params."+p.Name, "duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
		v.validateType(p.Type, field+".params."+p.Name)
	}
}

func (v *validator) validateReturns(r ir.ReturnShape, field string) {
	switch r.Kind {
	case ir.ReturnScalar:
		v.validateType(r.Type, field+".returns")
	case ir.ReturnTable:
		seen := map[string]bool{}
		for _, c := range r.Columns {
			if seen[c.Name] {
				v.add(ErrDuplicateName, field+".returns.table."+c.Name, "duplicate column %q", c.Name)
			}
			seen[c.Name] = true
			v.validateType(c.Type, field+".returns.table."+c.Name)
		}
	}
}

func (v *validator) validateProcedure(p ir.ProcedureSig) {
	field := "procedure." + p.Name
	v.validateParams(p.Params, field)
	v.validateReturns(p.Returns, field)

	seen := map[ir.Modifier]bool{}
	for _, m := range p.Modifiers {
		if !ir.ValidModifiers[m] {
			v.add(ErrInvalidModifier, field+".modifiers", "invalid modifier %q, must be one of public, view, owner, private", m)
		}
		if seen[m] {
			v.add(ErrInvalidModifier, field+".modifiers", "modifier %q repeated", m)
		}
		seen[m] = true
	}
	if seen[ir.ModPrivate] && (seen[ir.ModPublic] || seen[ir.ModOwner]) {
		v.add(ErrInvalidModifier, field+".modifiers", "private cannot be combined with public or owner")
	}

	s := newScope()
	for _, param := range p.Params {
		s.bind(param.Name, nil, false)
	}

	returns := false
	for _, stmt := range p.Body {
		v.validateStatement(p, stmt, s, fmt.Sprintf("%s.body[%d]", field, stmt.Index))
		if stmt.Op == ir.OpReturn {
			returns = true
		}
	}
	if p.Returns.Kind != ir.ReturnNone && !returns {
		v.add(ErrInvalidReturn, field+".body", "procedure returns %s but has no return statement", p.Returns)
	}
}

// binding is what a $name refers to at a point in a body.
// columns is nil for scalars and for tables of unknown shape.
type binding struct {
	table   bool
	columns []string
}

type scope struct {
	vars map[string]binding
}

func newScope() *scope {
	return &scope{vars: map[string]binding{}}
}

func (s *scope) bind(name string, columns []string, table bool) {
	s.vars[name] = binding{table: table, columns: columns}
}

func (v *validator) validateExpr(e ir.Expr, s *scope, field string) {
	switch e.Kind {
	case ir.ExprVar:
		b, ok := s.vars[e.Name]
		if !ok {
			v.add(ErrUndefinedVariable, field, "variable $%s is not defined", e.Name)
			return
		}
		if e.Field == "" {
			return
		}
		if !b.table {
			v.add(ErrUnknownColumn, field, "$%s is not a table, cannot select .%s", e.Name, e.Field)
			return
		}
		if b.columns != nil && !containsString(b.columns, e.Field) {
			v.add(ErrUnknownColumn, field, "$%s has no column %q", e.Name, e.Field)
		}
	case ir.ExprContext:
		if !ir.ValidContextNames[e.Name] {
			v.add(ErrInvalidContext, field, "unknown context value @%s, must be one of @caller, @txid, @height, @schema", e.Name)
		}
	}
}

// validateCondition compiles the CEL source of a require "expr" check.
func (v *validator) validateCondition(e ir.Expr, field string) {
	src, ok := e.Literal.(ir.IRString)
	if e.Kind != ir.ExprLiteral || !ok || src == "" {
		v.add(ErrInvalidRequire, field, "check \"expr\" needs a CEL source string")
		return
	}
	env, err := cond.Default()
	if err == nil {
		err = env.Check(string(src))
	}
	if err != nil {
		v.add(ErrInvalidRequire, field, "invalid condition: %v", err)
	}
}

func (v *validator) validateExprs(es []ir.Expr, s *scope, field string) {
	for i, e := range es {
		v.validateExpr(e, s, fmt.Sprintf("%s[%d]", field, i))
	}
}

func (v *validator) table(name, field string) (ir.TableDef, bool) {
	t, ok := v.tables[name]
	if !ok {
		v.add(ErrUnknownTable, field, "table %q is not declared in schema %q", name, v.spec.Name)
	}
	return t, ok
}

func (v *validator) validateAssignments(t ir.TableDef, as []ir.Assignment, s *scope, field string) {
	seen := map[string]bool{}
	for _, a := range as {
		if _, ok := t.Column(a.Column); !ok {
			v.add(ErrUnknownColumn, field+"."+a.Column, "table %q has no column %q", t.Name, a.Column)
		}
		if seen[a.Column] {
			v.add(ErrDuplicateName, field+"."+a.Column, "column %q assigned twice", a.Column)
		}
		seen[a.Column] = true
		v.validateExpr(a.Value, s, field+"."+a.Column)
	}
}

func (v *validator) validateStatement(p ir.ProcedureSig, stmt ir.Statement, s *scope, field string) {
	switch stmt.Op {
	case ir.OpLet:
		v.validateExpr(stmt.Value, s, field+".value")
		b := binding{}
		if stmt.Value.Kind == ir.ExprVar && stmt.Value.Field == "" {
			b = s.vars[stmt.Value.Name]
		}
		s.bind(stmt.As, b.columns, b.table)

	case ir.OpSelect:
		t, ok := v.table(stmt.Table, field+".select")
		if ok {
			for _, c := range stmt.Columns {
				if _, found := t.Column(c); !found {
					v.add(ErrUnknownColumn, field+".columns", "table %q has no column %q", t.Name, c)
				}
			}
			v.validateAssignments(t, stmt.Where, s, field+".where")
		}
		if stmt.As == "" {
			v.add(ErrInvalidBinding, field+".as", "select must bind its rows with \"as\"")
			return
		}
		cols := stmt.Columns
		if len(cols) == 0 && ok {
			cols = t.ColumnNames()
		}
		s.bind(stmt.As, cols, true)

	case ir.OpInsert:
		if t, ok := v.table(stmt.Table, field+".insert"); ok {
			v.validateAssignments(t, stmt.Values, s, field+".values")
		}

	case ir.OpUpdate:
		if t, ok := v.table(stmt.Table, field+".update"); ok {
			if len(stmt.Values) == 0 {
				v.add(ErrUnknownColumn, field+".set", "update must set at least one column")
			}
			v.validateAssignments(t, stmt.Values, s, field+".set")
			v.validateAssignments(t, stmt.Where, s, field+".where")
		}

	case ir.OpDelete:
		if t, ok := v.table(stmt.Table, field+".delete"); ok {
			v.validateAssignments(t, stmt.Where, s, field+".where")
		}

	case ir.OpRequire:
		if !ir.ValidChecks[stmt.Check] {
			v.add(ErrInvalidRequire, field+".require", "unknown check %q, must be one of empty, nonempty, equal, notequal, true, expr", stmt.Check)
		}
		if stmt.Check == ir.CheckExpr {
			v.validateCondition(stmt.Value, field+".value")
			return
		}
		v.validateExpr(stmt.Value, s, field+".value")
		if stmt.Check == ir.CheckEqual || stmt.Check == ir.CheckNotEqual {
			if stmt.Other.IsZero() {
				v.add(ErrInvalidRequire, field+".other", "check %q needs an \"other\" operand", stmt.Check)
			} else {
				v.validateExpr(stmt.Other, s, field+".other")
			}
		}

	case ir.OpAbort:

	case ir.OpCall:
		v.validateExprs(stmt.Args, s, field+".args")
		callee, ok := v.procs[stmt.Procedure]
		if !ok {
			v.add(ErrUnknownProcedure, field+".call", "procedure %q is not declared in schema %q", stmt.Procedure, v.spec.Name)
			if stmt.As != "" {
				s.bind(stmt.As, nil, false)
			}
			return
		}
		if len(stmt.Args) != len(callee.Params) {
			v.add(ErrArity, field+".args", "%s takes %d arguments, got %d", callee.Name, len(callee.Params), len(stmt.Args))
		}
		v.bindResult(stmt.As, callee.Returns, s, field)

	case ir.OpForeign:
		v.validateExpr(stmt.Target, s, field+".target")
		v.validateExpr(stmt.TargetProc, s, field+".procedure")
		v.validateExprs(stmt.Args, s, field+".args")
		stub, ok := v.stubs[stmt.Stub]
		if !ok {
			v.add(ErrUnknownStub, field+".foreign", "foreign stub %q is not declared in schema %q", stmt.Stub, v.spec.Name)
			if stmt.As != "" {
				s.bind(stmt.As, nil, false)
			}
			return
		}
		if len(stmt.Args) != len(stub.Params) {
			v.add(ErrArity, field+".args", "%s takes %d arguments, got %d", stub.Name, len(stub.Params), len(stmt.Args))
		}
		v.bindResult(stmt.As, stub.Returns, s, field)

	case ir.OpUUID:
		v.validateExprs(stmt.Seed, s, field+".seed")
		if stmt.As == "" {
			v.add(ErrInvalidBinding, field+".uuid", "uuid needs a variable name")
			return
		}
		s.bind(stmt.As, nil, false)

	case ir.OpReturn:
		v.validateExpr(stmt.Value, s, field+".return")
		v.validateReturnValue(p, stmt.Value, s, field+".return")
	}
}

func (v *validator) bindResult(as string, r ir.ReturnShape, s *scope, field string) {
	if as == "" {
		return
	}
	switch r.Kind {
	case ir.ReturnTable:
		cols := make([]string, len(r.Columns))
		for i, c := range r.Columns {
			cols[i] = c.Name
		}
		s.bind(as, cols, true)
	case ir.ReturnScalar:
		s.bind(as, nil, false)
	default:
		v.add(ErrInvalidBinding, field+".as", "cannot bind %q: callee returns nothing", as)
	}
}

// validateReturnValue catches returns that can never match the declared
// shape. Anything not provable here is checked at run time.
func (v *validator) validateReturnValue(p ir.ProcedureSig, e ir.Expr, s *scope, field string) {
	switch p.Returns.Kind {
	case ir.ReturnNone:
		if !(e.Kind == ir.ExprLiteral && ir.IsNull(e.Literal)) {
			v.add(ErrInvalidReturn, field, "procedure %q declares no return value", p.Name)
		}
	case ir.ReturnScalar:
		if e.Kind == ir.ExprLiteral {
			if err := ir.CheckValue(p.Returns.Type, e.Literal); err != nil {
				v.add(ErrInvalidReturn, field, "return value: %v", err)
			}
		}
		if e.Kind == ir.ExprVar && e.Field == "" && s.vars[e.Name].table {
			v.add(ErrInvalidReturn, field, "procedure %q returns %s, not a table", p.Name, p.Returns)
		}
	case ir.ReturnTable:
		b, ok := s.vars[e.Name]
		if e.Kind != ir.ExprVar || e.Field != "" || (ok && !b.table) {
			v.add(ErrInvalidReturn, field, "procedure %q returns a table; return a table variable", p.Name)
			return
		}
		if ok && b.columns != nil && len(b.columns) != len(p.Returns.Columns) {
			v.add(ErrInvalidReturn, field, "returned table has %d columns, declared %d", len(b.columns), len(p.Returns.Columns))
		}
	}
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
