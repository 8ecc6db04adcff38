package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/queryir"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ReadDeployments returns every deployment in deploy order.
// Returns an empty slice (not nil) when nothing is deployed.
func (s *Store) ReadDeployments(ctx context.Context) ([]ir.Deployment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, schema_id, name, owner, source, source_hash
		FROM deployments
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query deployments: %w", err)
	}
	defer rows.Close()

	deployments := []ir.Deployment{}
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployments: %w", err)
	}
	return deployments, nil
}

// ReadDeployment returns one deployment by schema id.
func (s *Store) ReadDeployment(ctx context.Context, id ir.SchemaID) (ir.Deployment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, schema_id, name, owner, source, source_hash
		FROM deployments
		WHERE schema_id = ?
	`, string(id))
	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Deployment{}, fmt.Errorf("deployment %s: %w", id, ErrNotFound)
	}
	return d, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row scanner) (ir.Deployment, error) {
	var d ir.Deployment
	var id string
	if err := row.Scan(&d.Seq, &id, &d.Name, &d.Owner, &d.Source, &d.SourceHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return d, err
		}
		return d, fmt.Errorf("scan deployment: %w", err)
	}
	d.SchemaID = ir.SchemaID(id)
	return d, nil
}

// ReadTxLog returns logged calls ordered by seq. When limit > 0 only the
// most recent limit records are returned, still in ascending order.
func (s *Store) ReadTxLog(ctx context.Context, limit int) ([]ir.TxRecord, error) {
	query := `
		SELECT seq, tx_id, caller, height, schema_id, procedure, args, status,
		       error_kind, error_message, result, result_hash, delta_digest, mutations
		FROM tx_log
		ORDER BY seq ASC`
	var args []any
	if limit > 0 {
		query = `
		SELECT * FROM (
			SELECT seq, tx_id, caller, height, schema_id, procedure, args, status,
			       error_kind, error_message, result, result_hash, delta_digest, mutations
			FROM tx_log
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tx log: %w", err)
	}
	defer rows.Close()

	records := []ir.TxRecord{}
	for rows.Next() {
		rec, err := scanTxRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tx log: %w", err)
	}
	return records, nil
}

// ReadTx returns the most recent logged call with the given tx id.
func (s *Store) ReadTx(ctx context.Context, txID string) (ir.TxRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, tx_id, caller, height, schema_id, procedure, args, status,
		       error_kind, error_message, result, result_hash, delta_digest, mutations
		FROM tx_log
		WHERE tx_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, txID)
	rec, err := scanTxRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.TxRecord{}, fmt.Errorf("tx %s: %w", txID, ErrNotFound)
	}
	return rec, err
}

func scanTxRecord(row scanner) (ir.TxRecord, error) {
	var rec ir.TxRecord
	var schema, argsJSON, resultJSON string
	err := row.Scan(
		&rec.Seq, &rec.TxID, &rec.Caller, &rec.Height, &schema, &rec.Procedure,
		&argsJSON, &rec.Status, &rec.ErrorKind, &rec.ErrorMessage,
		&resultJSON, &rec.ResultHash, &rec.DeltaDigest, &rec.Mutations,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan tx record: %w", err)
	}
	rec.Schema = ir.SchemaID(schema)
	if rec.Args, err = unmarshalArray(argsJSON); err != nil {
		return rec, fmt.Errorf("tx %d args: %w", rec.Seq, err)
	}
	if rec.Result, err = unmarshalResult(resultJSON); err != nil {
		return rec, fmt.Errorf("tx %d: %w", rec.Seq, err)
	}
	return rec, nil
}

// ReadMutations returns the storage deltas of one logged call in execution
// order.
func (s *Store) ReadMutations(ctx context.Context, seq int64) ([]ir.Mutation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT schema_id, table_name, op, vals, filter, affected
		FROM tx_mutations
		WHERE tx_seq = ?
		ORDER BY idx ASC
	`, seq)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	mutations := []ir.Mutation{}
	for rows.Next() {
		var m ir.Mutation
		var schema, vals, filter string
		if err := rows.Scan(&schema, &m.Table, &m.Op, &vals, &filter, &m.Affected); err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		m.Schema = ir.SchemaID(schema)
		if m.Values, err = unmarshalObject(vals); err != nil {
			return nil, err
		}
		if m.Where, err = unmarshalObject(filter); err != nil {
			return nil, err
		}
		mutations = append(mutations, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mutations: %w", err)
	}
	return mutations, nil
}

// ReadTable returns every row of a schema-owned table in primary key order.
// It runs in its own read transaction and must not be called while a call
// transaction is open.
func (s *Store) ReadTable(ctx context.Context, schema ir.SchemaID, table ir.TableDef) (Result, error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()
	return tx.Execute(ctx, schema, table, queryir.Select{})
}
