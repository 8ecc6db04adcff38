package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/schemahost/internal/ir"
)

const testSchema = ir.SchemaID("xtest")

var metadataTable = ir.TableDef{
	Name: "metadata",
	Columns: []ir.Column{
		{Name: "key", Type: ir.TypeText},
		{Name: "value", Type: ir.TypeText},
	},
	PrimaryKey: []string{"key"},
}

var flagsTable = ir.TableDef{
	Name: "flags",
	Columns: []ir.Column{
		{Name: "n", Type: ir.TypeInt},
		{Name: "on", Type: ir.TypeBool},
	},
}

// createTestStore opens a fresh file-backed store.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// deployTestTables creates metadataTable and flagsTable under testSchema.
func deployTestTables(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateTable(ctx, testSchema, metadataTable))
	require.NoError(t, tx.CreateTable(ctx, testSchema, flagsTable))
	require.NoError(t, tx.WriteDeployment(ctx, ir.Deployment{
		Seq: 1, SchemaID: testSchema, Name: "test", Owner: "alice",
		Source: "schema: test: {}", SourceHash: ir.SourceHash("schema: test: {}"),
	}))
	require.NoError(t, tx.Commit())
}
