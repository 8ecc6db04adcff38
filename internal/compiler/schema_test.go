package compiler

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemahost/internal/ir"
)

func loadProxy(t *testing.T) *ir.SchemaSpec {
	t.Helper()
	src, err := os.ReadFile("testdata/proxy.cue")
	require.NoError(t, err)
	spec, err := CompileSource(string(src), "proxy.cue", "owner-1")
	require.NoError(t, err)
	return spec
}

func TestCompileSourceProxy(t *testing.T) {
	spec := loadProxy(t)

	assert.Equal(t, "proxy", spec.Name)
	assert.Equal(t, "owner-1", spec.Owner)
	assert.Equal(t, ir.MustSchemaID("proxy", "owner-1"), spec.ID)
	assert.NotEmpty(t, spec.Source)

	require.Len(t, spec.Tables, 2)
	assert.Equal(t, "metadata", spec.Tables[0].Name)
	assert.Equal(t, []ir.Column{{Name: "key", Type: ir.TypeText}, {Name: "value", Type: ir.TypeText}}, spec.Tables[0].Columns)
	assert.Equal(t, []string{"key"}, spec.Tables[0].PrimaryKey)

	require.Len(t, spec.Stubs, 2)
	assert.Equal(t, "add_admin(address text)", spec.Stubs[0].Signature())
	assert.Equal(t, "list_users() returns table(id uuid, name text)", spec.Stubs[1].Signature())

	names := make([]string, len(spec.Procedures))
	for i, p := range spec.Procedures {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"init", "set_target", "add_admin", "users", "target"}, names)

	target := spec.Procedures[4]
	assert.Equal(t, "target() returns text", target.Signature())
	assert.True(t, target.IsView())
	assert.True(t, target.Has(ir.ModPublic))
	assert.False(t, target.Has(ir.ModOwner))

	assert.Empty(t, Validate(spec))
}

func TestCompileSourceOrderPreserved(t *testing.T) {
	src := `
schema: s: {
	table: t: columns: {zeta: "int", alpha: "text", mid: "bool"}
	procedure: p: {
		modifiers: ["public"]
		params: {z: "int", a: "text"}
	}
}
`
	spec, err := CompileSource(src, "s.cue", "o")
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, spec.Tables[0].ColumnNames())
	assert.Equal(t, "p(z int, a text)", spec.Procedures[0].Signature())
}

func TestCompileSourceSameNameDifferentOwner(t *testing.T) {
	src := `schema: s: procedure: p: modifiers: ["public"]`

	a, err := CompileSource(src, "s.cue", "alice")
	require.NoError(t, err)
	b, err := CompileSource(src, "s.cue", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCompileSourceErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"syntax", `schema: s: {`, "cue"},
		{"no schema", `other: 1`, "schema"},
		{"two schemas", `schema: a: {}, schema: b: {}`, "schema.b"},
		{"table without columns", `schema: s: table: t: primary_key: ["k"]`, "table.t.columns"},
		{"non-string type", `schema: s: table: t: columns: {k: 1}`, "table.t.columns.k"},
		{"bad returns", `schema: s: procedure: p: returns: {rows: "int"}`, "procedure.p.returns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileSource(tt.src, "bad.cue", "o")
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileErrorPosition(t *testing.T) {
	src := "schema: s: {\n\ttable: t: columns: {k: 1}\n}\n"
	_, err := CompileSource(src, "pos.cue", "o")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pos.cue:2:")
}
