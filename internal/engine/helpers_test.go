package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/store"
)

const (
	owner = "owner-key"
	alice = "alice-key"
	bob   = "bob-key"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithLogger(discardLogger()),
		WithTxIDGenerator(NewSequenceGenerator("tx")),
	}
	return New(setupTestStore(t), append(base, opts...)...)
}

func readFixture(t *testing.T, name string) string {
	t.Helper()
	src, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(src)
}

func deployFixture(t *testing.T, e *Engine, name, deployer string) ir.SchemaID {
	t.Helper()
	id, err := e.Deploy(context.Background(), readFixture(t, name), deployer)
	require.NoError(t, err)
	return id
}

func call(e *Engine, schema ir.SchemaID, procedure, caller string, args ...ir.IRValue) (*Receipt, error) {
	return e.Call(context.Background(), CallRequest{
		Schema:    schema,
		Procedure: procedure,
		Args:      args,
		Caller:    caller,
	})
}

func mustCall(t *testing.T, e *Engine, schema ir.SchemaID, procedure, caller string, args ...ir.IRValue) *Receipt {
	t.Helper()
	r, err := call(e, schema, procedure, caller, args...)
	require.NoError(t, err)
	return r
}

// tableRows reads a table of a deployed schema outside any call.
func tableRows(t *testing.T, e *Engine, schema ir.SchemaID, table string) [][]ir.IRValue {
	t.Helper()
	desc, err := e.Registry().Lookup(schema)
	require.NoError(t, err)
	def, ok := desc.Table(table)
	require.True(t, ok, "table %s", table)
	res, err := e.Store().ReadTable(context.Background(), schema, def)
	require.NoError(t, err)
	return res.Rows
}

// proxyWith deploys the proxy and implementation fixtures, registers owner
// as admin and points the proxy at the first implementation.
func proxyWith(t *testing.T, e *Engine, impls ...string) (ir.SchemaID, []ir.SchemaID) {
	t.Helper()
	proxy := deployFixture(t, e, "proxy.cue", owner)
	ids := make([]ir.SchemaID, len(impls))
	for i, f := range impls {
		ids[i] = deployFixture(t, e, f, owner)
	}
	mustCall(t, e, proxy, "register_owner", owner)
	if len(ids) > 0 {
		mustCall(t, e, proxy, "set_target", owner, ir.IRString(ids[0]))
	}
	return proxy, ids
}
