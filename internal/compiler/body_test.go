package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemahost/internal/ir"
)

func compileBody(t *testing.T, body string) []ir.Statement {
	t.Helper()
	src := "schema: s: procedure: p: {\n\tmodifiers: [\"public\"]\n\tbody: [\n" + body + "\n\t]\n}\n"
	spec, err := CompileSource(src, "body.cue", "o")
	require.NoError(t, err)
	require.Len(t, spec.Procedures, 1)
	return spec.Procedures[0].Body
}

func TestParseStatements(t *testing.T) {
	body := compileBody(t, `
		{"let": "x", value: 7},
		{select: "t", columns: ["a"], where: {k: "$x", n: null}, as: "rows"},
		{insert: "t", values: {k: "@caller", a: "$$lit"}},
		{update: "t", set: {a: "$rows.a"}, where: {k: "k1"}},
		{delete: "t"},
		{require: "equal", value: "$x", other: 7, message: "bad"},
		{abort: "stop"},
		{call: "q", args: [1, true], as: "out"},
		{foreign: "stub", target: "$rows.a", args: ["@txid"], as: "r"},
		{foreign: "stub2", target: "xabc", procedure: "other"},
		{uuid: "id", seed: ["@txid", 1]},
		{return: "$out"},
	`)
	require.Len(t, body, 12)

	for i, stmt := range body {
		assert.Equal(t, i, stmt.Index)
	}

	assert.Equal(t, ir.OpLet, body[0].Op)
	assert.Equal(t, "x", body[0].As)
	assert.Equal(t, ir.Lit(ir.IRInt(7)), body[0].Value)

	sel := body[1]
	assert.Equal(t, ir.OpSelect, sel.Op)
	assert.Equal(t, "t", sel.Table)
	assert.Equal(t, []string{"a"}, sel.Columns)
	require.Len(t, sel.Where, 2)
	assert.Equal(t, ir.Assignment{Column: "k", Value: ir.Var("x")}, sel.Where[0])
	assert.Equal(t, ir.Assignment{Column: "n", Value: ir.Lit(ir.IRNull{})}, sel.Where[1])
	assert.Equal(t, "rows", sel.As)

	ins := body[2]
	assert.Equal(t, ir.Expr{Kind: ir.ExprContext, Name: "caller"}, ins.Values[0].Value)
	assert.Equal(t, ir.Lit(ir.IRString("$lit")), ins.Values[1].Value)

	upd := body[3]
	assert.Equal(t, ir.Expr{Kind: ir.ExprVar, Name: "rows", Field: "a"}, upd.Values[0].Value)
	assert.Equal(t, "k", upd.Where[0].Column)

	assert.Equal(t, ir.OpDelete, body[4].Op)
	assert.Empty(t, body[4].Where)

	req := body[5]
	assert.Equal(t, ir.CheckEqual, req.Check)
	assert.Equal(t, ir.Lit(ir.IRInt(7)), req.Other)
	assert.Equal(t, "bad", req.Message)

	assert.Equal(t, "stop", body[6].Message)

	call := body[7]
	assert.Equal(t, "q", call.Procedure)
	assert.Equal(t, []ir.Expr{ir.Lit(ir.IRInt(1)), ir.Lit(ir.IRBool(true))}, call.Args)

	fc := body[8]
	assert.Equal(t, "stub", fc.Stub)
	assert.Equal(t, ir.Lit(ir.IRString("stub")), fc.TargetProc)
	assert.Equal(t, "r", fc.As)

	assert.Equal(t, ir.Lit(ir.IRString("other")), body[9].TargetProc)
	assert.Equal(t, ir.Lit(ir.IRString("xabc")), body[9].Target)

	assert.Equal(t, "id", body[10].As)
	assert.Len(t, body[10].Seed, 2)

	assert.Equal(t, ir.Var("out"), body[11].Value)
}

func TestParseStatementErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"no lead key", `{as: "x"}`, "statement must have one of"},
		{"two lead keys", `{insert: "t", delete: "t"}`, "statement has both"},
		{"unknown field", `{delete: "t", values: {a: 1}}`, "unknown field for delete statement"},
		{"float literal", `{"let": "x", value: 1.5}`, "float"},
		{"missing target", `{foreign: "stub"}`, "target"},
		{"non-string table", `{select: 3, as: "x"}`, "must be a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "schema: s: procedure: p: body: [" + tt.body + "]"
			_, err := CompileSource(src, "bad.cue", "o")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}
