package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemahost/internal/ir"
)

func writeSchema(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestCompile_Text(t *testing.T) {
	out := mustRun(t, "compile", schemaFile("proxy"), "--owner", "owner")

	assert.Contains(t, out, "✓ Compiled")
	assert.Contains(t, out, string(ir.MustSchemaID("proxy", "owner")))
	assert.Contains(t, out, "table admins(address text) key(address)")
	assert.Contains(t, out, "foreign get_users")
	assert.Contains(t, out, "procedure register_owner")
	assert.Contains(t, out, "[public view]")
	assert.Contains(t, out, "[owner]")
}

func TestCompile_OwnerChangesID(t *testing.T) {
	a := mustRun(t, "compile", schemaFile("impl_a"), "--owner", "dev")
	b := mustRun(t, "compile", schemaFile("impl_a"), "--owner", "other")

	assert.Contains(t, a, string(ir.MustSchemaID("impl_a", "dev")))
	assert.Contains(t, b, string(ir.MustSchemaID("impl_a", "other")))
	assert.NotEqual(t, ir.MustSchemaID("impl_a", "dev"), ir.MustSchemaID("impl_a", "other"))
}

func TestCompile_JSON(t *testing.T) {
	out := mustRun(t, "--format", "json", "compile", schemaFile("impl_a"), "--owner", "dev")

	var resp struct {
		Status string        `json:"status"`
		Data   SchemaSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ir.MustSchemaID("impl_a", "dev"), resp.Data.ID)
	assert.Equal(t, "impl_a", resp.Data.Name)
	assert.Equal(t, "dev", resp.Data.Owner)
	require.Len(t, resp.Data.Tables, 1)
	assert.Equal(t, "users", resp.Data.Tables[0].Name)
	require.Len(t, resp.Data.Procedures, 2)
	assert.Empty(t, resp.Data.Stubs)
}

func TestCompile_OutputFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "proxy.json")
	out := mustRun(t, "compile", schemaFile("proxy"), "--owner", "owner", "-o", target)
	assert.Contains(t, out, "Wrote compiled schema to "+target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	var written map[string]any
	require.NoError(t, json.Unmarshal(data, &written))
	assert.Contains(t, written, "bodies")
	bodies := written["bodies"].(map[string]any)
	assert.Contains(t, bodies, "register_owner")
	assert.Contains(t, bodies, "get_users")
}

func TestCompile_MissingOwner(t *testing.T) {
	_, _, err := runCLI(t, "compile", schemaFile("proxy"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner")
}

func TestCompile_MissingFile(t *testing.T) {
	out, _, err := runCLI(t, "compile", filepath.Join(t.TempDir(), "nope.cue"), "--owner", "x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [")
}

func TestCompile_SyntaxError(t *testing.T) {
	path := writeSchema(t, "schema: broken: {\n")
	out, _, err := runCLI(t, "compile", path, "--owner", "x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E100]")
}

func TestCompile_ValidationErrors(t *testing.T) {
	path := writeSchema(t, `schema: bad: {
	table: t: columns: {x: "float"}
	procedure: p: {
		modifiers: ["public"]
		body: [{insert: "t", values: {x: 1}}]
	}
}
`)
	out, _, err := runCLI(t, "compile", path, "--owner", "x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "✗ "+path)
	assert.Contains(t, out, "E202")
}

func TestCompile_ValidationErrorsJSON(t *testing.T) {
	path := writeSchema(t, `schema: bad: {
	table: t: columns: {x: "float"}
	procedure: p: {
		modifiers: ["public"]
		body: [{insert: "t", values: {x: 1}}]
	}
}
`)
	out, _, err := runCLI(t, "--format", "json", "compile", path, "--owner", "x")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E202", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "validation error(s)")
}
