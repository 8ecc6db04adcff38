package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemahost/internal/ir"
)

func testRecord(seq int64, txID string) ir.TxRecord {
	return ir.TxRecord{
		Seq:         seq,
		TxID:        txID,
		Caller:      "alice",
		Height:      seq * 10,
		Schema:      testSchema,
		Procedure:   "set_target",
		Args:        ir.IRArray{ir.IRString("x1"), ir.IRNull{}},
		Status:      ir.StatusCommitted,
		Result:      ir.Scalar(ir.IRInt(7)),
		ResultHash:  "rh",
		DeltaDigest: "dd",
	}
}

func TestAppendTx_ReadBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	muts := []ir.Mutation{
		{Schema: testSchema, Table: "metadata", Op: "delete", Where: ir.IRObject{"key": ir.IRString("target")}, Affected: 0},
		{Schema: testSchema, Table: "metadata", Op: "insert", Values: ir.IRObject{"key": ir.IRString("target")}, Affected: 1},
	}
	require.NoError(t, s.AppendTx(ctx, testRecord(2, "tx-1"), muts))

	rec, err := s.ReadTx(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Seq)
	assert.Equal(t, ir.IRArray{ir.IRString("x1"), ir.IRNull{}}, rec.Args)
	assert.Equal(t, ir.Scalar(ir.IRInt(7)), rec.Result)
	assert.Equal(t, 2, rec.Mutations)

	got, err := s.ReadMutations(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, muts, got)

	h, err := s.LastHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), h)
}

func TestAppendTx_SeqConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendTx(ctx, testRecord(1, "tx-1"), nil))
	err := s.AppendTx(ctx, testRecord(1, "tx-2"), nil)
	require.Error(t, err)
	var ce *ConstraintError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "tx_log", ce.Table)

	recs, err := s.ReadTxLog(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "tx-1", recs[0].TxID)
}

func TestTxAppendTx_CommitsWithTransaction(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	muts := []ir.Mutation{{Schema: testSchema, Table: "metadata", Op: "insert", Affected: 1,
		Values: ir.IRObject{"key": ir.IRString("target")}}}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.AppendTx(ctx, testRecord(1, "tx-1"), muts))
	require.NoError(t, tx.Rollback())

	recs, err := s.ReadTxLog(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recs, "a rolled-back transaction keeps no log entry")
	got, err := s.ReadMutations(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, got)

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.AppendTx(ctx, testRecord(1, "tx-1"), muts))
	require.NoError(t, tx.Commit())

	recs, err = s.ReadTxLog(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1, recs[0].Mutations)
	got, err = s.ReadMutations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "metadata", got[0].Table)

	assert.ErrorIs(t, tx.AppendTx(ctx, testRecord(2, "tx-2"), nil), ErrTxDone)
}

func TestAppendTx_RolledBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := testRecord(1, "tx-1")
	rec.Status = ir.StatusRolledBack
	rec.ErrorKind = "ApplicationError"
	rec.ErrorMessage = "caller is not an admin"
	rec.Result = ir.None()
	require.NoError(t, s.AppendTx(ctx, rec, nil))

	got, err := s.ReadTx(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, ir.StatusRolledBack, got.Status)
	assert.Equal(t, "caller is not an admin", got.ErrorMessage)
	assert.Equal(t, ir.None(), got.Result)
}

func TestReadTxLog_Limit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, s.AppendTx(ctx, testRecord(i, "tx"), nil))
	}

	recs, err := s.ReadTxLog(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(4), recs[0].Seq)
	assert.Equal(t, int64(5), recs[1].Seq)
}

func TestReadTx_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadTx(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.ReadDeployment(context.Background(), "xnope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestWriteDeployment_Duplicate(t *testing.T) {
	s := createTestStore(t)
	deployTestTables(t, s)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	err = tx.WriteDeployment(ctx, ir.Deployment{Seq: 9, SchemaID: testSchema, Name: "test", Owner: "alice", Source: "", SourceHash: ""})
	var ce *ConstraintError
	assert.True(t, errors.As(err, &ce), "got %v", err)
}

func TestReadLog_Interleaved(t *testing.T) {
	s := createTestStore(t)
	deployTestTables(t, s) // seq 1
	ctx := context.Background()

	require.NoError(t, s.AppendTx(ctx, testRecord(2, "tx-a"), nil))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.WriteDeployment(ctx, ir.Deployment{Seq: 3, SchemaID: "xsecond", Name: "second", Owner: "bob"}))
	require.NoError(t, tx.Commit())

	require.NoError(t, s.AppendTx(ctx, testRecord(4, "tx-b"), nil))

	entries, err := s.ReadLog(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.NotNil(t, entries[0].Deployment)
	assert.NotNil(t, entries[1].Tx)
	assert.Equal(t, ir.SchemaID("xsecond"), entries[2].Deployment.SchemaID)
	assert.Equal(t, "tx-b", entries[3].Tx.TxID)

	seq, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), seq)
}
