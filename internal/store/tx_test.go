package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/queryir"
)

func set(key, value string) queryir.Insert {
	return queryir.Insert{Values: []queryir.Assign{
		{Column: "key", Value: ir.IRString(key)},
		{Column: "value", Value: ir.IRString(value)},
	}}
}

func TestTx_InsertSelectOrdered(t *testing.T) {
	s := createTestStore(t)
	deployTestTables(t, s)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	for _, k := range []string{"b", "a", "c"} {
		res, err := tx.Execute(ctx, testSchema, metadataTable, set(k, "v"+k))
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Affected)
	}

	res, err := tx.Execute(ctx, testSchema, metadataTable, queryir.Select{Columns: []string{"key"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"key"}, res.Columns)
	assert.Equal(t, [][]ir.IRValue{{ir.IRString("a")}, {ir.IRString("b")}, {ir.IRString("c")}}, res.Rows)
}

func TestTx_UpdateDeleteRecordMutations(t *testing.T) {
	s := createTestStore(t)
	deployTestTables(t, s)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.Execute(ctx, testSchema, metadataTable, set("target", "x1"))
	require.NoError(t, err)
	res, err := tx.Execute(ctx, testSchema, metadataTable, queryir.Update{
		Set:    []queryir.Assign{{Column: "value", Value: ir.IRString("x2")}},
		Filter: queryir.Equals{Column: "key", Value: ir.IRString("target")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)

	res, err = tx.Execute(ctx, testSchema, metadataTable, queryir.Delete{
		Filter: queryir.Equals{Column: "key", Value: ir.IRString("missing")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Affected)

	muts := tx.Mutations()
	require.Len(t, muts, 3)
	assert.Equal(t, "insert", muts[0].Op)
	assert.Equal(t, ir.IRObject{"key": ir.IRString("target"), "value": ir.IRString("x1")}, muts[0].Values)
	assert.Equal(t, "update", muts[1].Op)
	assert.Equal(t, ir.IRObject{"key": ir.IRString("target")}, muts[1].Where)
	assert.Equal(t, "delete", muts[2].Op)
	assert.Equal(t, int64(0), muts[2].Affected)
}

func TestTx_SelectDoesNotRecordMutation(t *testing.T) {
	s := createTestStore(t)
	deployTestTables(t, s)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.Execute(ctx, testSchema, metadataTable, queryir.Select{})
	require.NoError(t, err)
	assert.Empty(t, tx.Mutations())
}

func TestTx_BoolAndNullRoundTrip(t *testing.T) {
	s := createTestStore(t)
	deployTestTables(t, s)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.Execute(ctx, testSchema, flagsTable, queryir.Insert{Values: []queryir.Assign{
		{Column: "n", Value: ir.IRInt(1)},
		{Column: "on", Value: ir.IRBool(true)},
	}})
	require.NoError(t, err)
	_, err = tx.Execute(ctx, testSchema, flagsTable, queryir.Insert{Values: []queryir.Assign{
		{Column: "n", Value: ir.IRInt(2)},
	}})
	require.NoError(t, err)

	res, err := tx.Execute(ctx, testSchema, flagsTable, queryir.Select{})
	require.NoError(t, err)
	assert.Equal(t, [][]ir.IRValue{
		{ir.IRInt(1), ir.IRBool(true)},
		{ir.IRInt(2), ir.IRNull{}},
	}, res.Rows)
}

func TestTx_ConstraintError(t *testing.T) {
	s := createTestStore(t)
	deployTestTables(t, s)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.Execute(ctx, testSchema, metadataTable, set("k", "1"))
	require.NoError(t, err)
	_, err = tx.Execute(ctx, testSchema, metadataTable, set("k", "2"))

	var ce *ConstraintError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "metadata", ce.Table)
}

func TestTx_OpError(t *testing.T) {
	s := createTestStore(t)
	deployTestTables(t, s)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.Execute(ctx, testSchema, flagsTable, queryir.Insert{Values: []queryir.Assign{
		{Column: "n", Value: ir.IRString("one")},
	}})

	var oe *OpError
	require.True(t, errors.As(err, &oe), "got %v", err)
	assert.Contains(t, err.Error(), "expected int")
}

func TestTx_RollbackDiscards(t *testing.T) {
	s := createTestStore(t)
	deployTestTables(t, s)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Execute(ctx, testSchema, metadataTable, set("target", "x1"))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	assert.Empty(t, tx.Mutations())

	res, err := s.ReadTable(ctx, testSchema, metadataTable)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestTx_CommitPersists(t *testing.T) {
	s := createTestStore(t)
	deployTestTables(t, s)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Execute(ctx, testSchema, metadataTable, set("target", "x1"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	res, err := s.ReadTable(ctx, testSchema, metadataTable)
	require.NoError(t, err)
	assert.Equal(t, [][]ir.IRValue{{ir.IRString("target"), ir.IRString("x1")}}, res.Rows)
}

func TestTx_DoneRejectsUse(t *testing.T) {
	s := createTestStore(t)
	deployTestTables(t, s)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = tx.Execute(ctx, testSchema, metadataTable, queryir.Select{})
	assert.ErrorIs(t, err, ErrTxDone)
	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
	assert.NoError(t, tx.Rollback())
}

func TestTx_SchemaScopedTables(t *testing.T) {
	s := createTestStore(t)
	deployTestTables(t, s)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateTable(ctx, "xother", metadataTable))
	_, err = tx.Execute(ctx, "xother", metadataTable, set("target", "other"))
	require.NoError(t, err)

	res, err := tx.Execute(ctx, testSchema, metadataTable, queryir.Select{})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	require.NoError(t, tx.Commit())
}
