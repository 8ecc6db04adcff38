package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/schemahost/internal/ir"
)

// WriteDeployment records a deployed source inside the deploy transaction,
// so tables and the log entry commit together. A duplicate schema id
// violates the UNIQUE constraint and is returned as *ConstraintError.
func (t *Tx) WriteDeployment(ctx context.Context, d ir.Deployment) error {
	if t.done {
		return ErrTxDone
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO deployments (seq, schema_id, name, owner, source, source_hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		d.Seq,
		string(d.SchemaID),
		d.Name,
		d.Owner,
		d.Source,
		d.SourceHash,
	)
	if err != nil {
		if isConstraint(err) {
			return &ConstraintError{Table: "deployments", Err: err}
		}
		return fmt.Errorf("write deployment: %w", err)
	}
	return nil
}

// execer is satisfied by *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AppendTx writes the log entry of a committing call and its storage deltas
// inside the call's own transaction, so state and log commit together.
// A seq already in the log is returned as *ConstraintError.
func (t *Tx) AppendTx(ctx context.Context, rec ir.TxRecord, mutations []ir.Mutation) error {
	if t.done {
		return ErrTxDone
	}
	return appendTx(ctx, t.tx, rec, mutations)
}

// AppendTx writes the outcome of a call whose own transaction has already
// ended, which is the case for rolled-back calls. A seq already in the log
// is returned as *ConstraintError.
func (s *Store) AppendTx(ctx context.Context, rec ir.TxRecord, mutations []ir.Mutation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append tx: begin: %w", err)
	}
	defer tx.Rollback()

	if err := appendTx(ctx, tx, rec, mutations); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append tx: commit: %w", err)
	}
	return nil
}

func appendTx(ctx context.Context, ex execer, rec ir.TxRecord, mutations []ir.Mutation) error {
	argsJSON, err := marshalValue(rec.Args)
	if err != nil {
		return fmt.Errorf("append tx: %w", err)
	}
	if rec.Args == nil {
		argsJSON = "[]"
	}
	resultJSON, err := marshalValue(rec.Result.Canonical())
	if err != nil {
		return fmt.Errorf("append tx: %w", err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO tx_log
		(seq, tx_id, caller, height, schema_id, procedure, args, status,
		 error_kind, error_message, result, result_hash, delta_digest, mutations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Seq,
		rec.TxID,
		rec.Caller,
		rec.Height,
		string(rec.Schema),
		rec.Procedure,
		argsJSON,
		rec.Status,
		rec.ErrorKind,
		rec.ErrorMessage,
		resultJSON,
		rec.ResultHash,
		rec.DeltaDigest,
		len(mutations),
	)
	if err != nil {
		if isConstraint(err) {
			return &ConstraintError{Table: "tx_log", Err: err}
		}
		return fmt.Errorf("append tx: %w", err)
	}

	for i, m := range mutations {
		vals, err := marshalObject(m.Values)
		if err != nil {
			return fmt.Errorf("append tx: mutation %d: %w", i, err)
		}
		filter, err := marshalObject(m.Where)
		if err != nil {
			return fmt.Errorf("append tx: mutation %d: %w", i, err)
		}
		_, err = ex.ExecContext(ctx, `
			INSERT INTO tx_mutations (tx_seq, idx, schema_id, table_name, op, vals, filter, affected)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.Seq, i, string(m.Schema), m.Table, m.Op, vals, filter, m.Affected)
		if err != nil {
			return fmt.Errorf("append tx: mutation %d: %w", i, err)
		}
	}
	return nil
}
