package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/schemahost/internal/ir"
)

// Shared fixtures live with the harness scenarios.
var (
	schemaDir   = filepath.Join("..", "harness", "testdata", "schemas")
	scenarioDir = filepath.Join("..", "harness", "testdata", "scenarios")
	goldenDir   = filepath.Join("..", "harness", "testdata", "golden")
)

func schemaFile(name string) string {
	return filepath.Join(schemaDir, name+".cue")
}

// runCLI executes the root command and returns stdout, stderr and the
// command error.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// mustRun is runCLI for commands that must succeed.
func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, err := runCLI(t, args...)
	require.NoError(t, err, "stdout: %s\nstderr: %s", out, errOut)
	return out
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "host.db")
}

// deploy deploys a fixture schema and returns its id.
func deploy(t *testing.T, db, name, owner string) ir.SchemaID {
	t.Helper()
	out := mustRun(t, "--db", db, "deploy", schemaFile(name), "--owner", owner)
	id := ir.MustSchemaID(name, owner)
	require.True(t, strings.Contains(out, string(id)), "deploy output %q lacks %s", out, id)
	return id
}
