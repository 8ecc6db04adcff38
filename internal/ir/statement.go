package ir

import "strings"

// Op is a procedure body statement kind.
type Op string

const (
	OpLet     Op = "let"
	OpSelect  Op = "select"
	OpInsert  Op = "insert"
	OpUpdate  Op = "update"
	OpDelete  Op = "delete"
	OpRequire Op = "require"
	OpAbort   Op = "abort"
	OpCall    Op = "call"
	OpForeign Op = "foreign"
	OpUUID    Op = "uuid"
	OpReturn  Op = "return"
)

// Require checks.
const (
	CheckEmpty    = "empty"
	CheckNonEmpty = "nonempty"
	CheckEqual    = "equal"
	CheckNotEqual = "notequal"
	CheckTrue     = "true"
	CheckExpr     = "expr"
)

// ValidChecks lists the accepted require checks.
var ValidChecks = map[string]bool{
	CheckEmpty:    true,
	CheckNonEmpty: true,
	CheckEqual:    true,
	CheckNotEqual: true,
	CheckTrue:     true,
	CheckExpr:     true,
}

// Statement is one compiled body statement. Only the fields relevant to Op
// are set.
type Statement struct {
	Op    Op  `json:"op"`
	Index int `json:"index"`

	// select, insert, update, delete
	Table   string       `json:"table,omitempty"`
	Columns []string     `json:"columns,omitempty"`
	Where   []Assignment `json:"where,omitempty"`
	Values  []Assignment `json:"values,omitempty"`

	// let, require, return
	Value Expr   `json:"value,omitempty"`
	Other Expr   `json:"other,omitempty"`
	Check string `json:"check,omitempty"`

	// require, abort
	Message string `json:"message,omitempty"`

	// call, foreign
	Procedure  string `json:"procedure,omitempty"`
	Stub       string `json:"stub,omitempty"`
	Target     Expr   `json:"target,omitempty"`
	TargetProc Expr   `json:"target_procedure,omitempty"`
	Args       []Expr `json:"args,omitempty"`

	// uuid
	Seed []Expr `json:"seed,omitempty"`

	// Binding name for select, let, call, foreign, uuid.
	As string `json:"as,omitempty"`
}

// Assignment pairs a column with an expression. Order follows the source.
type Assignment struct {
	Column string `json:"column"`
	Value  Expr   `json:"value"`
}

// ExprKind distinguishes literal, variable and context expressions.
type ExprKind string

const (
	ExprLiteral ExprKind = "literal"
	ExprVar     ExprKind = "var"
	ExprContext ExprKind = "context"
)

// Context value names usable as @name.
const (
	CtxCaller = "caller"
	CtxTxID   = "txid"
	CtxHeight = "height"
	CtxSchema = "schema"
)

// ValidContextNames lists the accepted @names.
var ValidContextNames = map[string]bool{
	CtxCaller: true,
	CtxTxID:   true,
	CtxHeight: true,
	CtxSchema: true,
}

// Expr is a compiled expression: a literal, $var[.field], or @context.
type Expr struct {
	Kind    ExprKind `json:"kind,omitempty"`
	Name    string   `json:"name,omitempty"`
	Field   string   `json:"field,omitempty"`
	Literal IRValue  `json:"literal,omitempty"`
}

// IsZero reports whether the expression was never set.
func (e Expr) IsZero() bool {
	return e.Kind == ""
}

// String renders the expression the way it is written in source.
func (e Expr) String() string {
	switch e.Kind {
	case ExprVar:
		if e.Field != "" {
			return "$" + e.Name + "." + e.Field
		}
		return "$" + e.Name
	case ExprContext:
		return "@" + e.Name
	case ExprLiteral:
		return Format(e.Literal)
	default:
		return ""
	}
}

// ParseExpr parses a source value into an expression.
//
//	"$name"       variable
//	"$rows.col"   first-row column of a table variable
//	"@caller"     context value
//	"$$x", "@@x"  literal "$x", "@x"
//
// Any other value is a literal.
func ParseExpr(v IRValue) Expr {
	s, ok := v.(IRString)
	if !ok {
		if v == nil {
			v = IRNull{}
		}
		return Expr{Kind: ExprLiteral, Literal: v}
	}
	str := string(s)
	switch {
	case strings.HasPrefix(str, "$$"), strings.HasPrefix(str, "@@"):
		return Expr{Kind: ExprLiteral, Literal: IRString(str[1:])}
	case strings.HasPrefix(str, "$") && len(str) > 1:
		name, field, _ := strings.Cut(str[1:], ".")
		return Expr{Kind: ExprVar, Name: name, Field: field}
	case strings.HasPrefix(str, "@") && len(str) > 1:
		return Expr{Kind: ExprContext, Name: str[1:]}
	default:
		return Expr{Kind: ExprLiteral, Literal: s}
	}
}

// Lit builds a literal expression.
func Lit(v IRValue) Expr {
	return Expr{Kind: ExprLiteral, Literal: v}
}

// Var builds a variable expression.
func Var(name string) Expr {
	return Expr{Kind: ExprVar, Name: name}
}
