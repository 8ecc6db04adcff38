package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/queryir"
	"github.com/roach88/schemahost/internal/querysql"
)

// Result is the outcome of one storage op. Select fills Columns and Rows;
// mutations fill Affected.
type Result struct {
	Columns  []string
	Rows     [][]ir.IRValue
	Affected int64
}

// Handle is the storage view given to executing procedures. It can run
// ops but cannot commit or roll back; only the owner of the *Tx can.
type Handle interface {
	Execute(ctx context.Context, schema ir.SchemaID, table ir.TableDef, op queryir.Op) (Result, error)
}

// OpError reports an op rejected before reaching SQLite: unknown column or
// a value that does not fit the column type.
type OpError struct {
	Table string
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("invalid op on %s: %v", e.Table, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// ConstraintError reports a SQLite constraint violation, such as a
// duplicate primary key.
type ConstraintError struct {
	Table string
	Err   error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation on %s: %v", e.Table, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

func isConstraint(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}

// ErrTxDone is returned when a finished Tx is used.
var ErrTxDone = errors.New("transaction already committed or rolled back")

// Tx is one atomic storage transaction. It records every mutation in
// execution order for delta digests.
type Tx struct {
	tx        *sql.Tx
	mutations []ir.Mutation
	done      bool
}

var _ Handle = (*Tx)(nil)

// Begin starts a transaction. Nothing else can use the store until it ends.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Execute runs op against the schema-scoped physical table.
func (t *Tx) Execute(ctx context.Context, schema ir.SchemaID, table ir.TableDef, op queryir.Op) (Result, error) {
	if t.done {
		return Result{}, ErrTxDone
	}
	if err := queryir.Validate(table, op); err != nil {
		return Result{}, &OpError{Table: table.Name, Err: err}
	}

	physical := querysql.PhysicalName(schema, table.Name)
	sqlText, params, cols, err := querysql.NewSQLCompiler(physical, table).Compile(op)
	if err != nil {
		return Result{}, &OpError{Table: table.Name, Err: err}
	}

	if !queryir.IsMutation(op) {
		return t.query(ctx, table, sqlText, params, cols)
	}

	res, err := t.tx.ExecContext(ctx, sqlText, params...)
	if err != nil {
		if isConstraint(err) {
			return Result{}, &ConstraintError{Table: table.Name, Err: err}
		}
		return Result{}, fmt.Errorf("execute %s on %s: %w", queryir.Kind(op), table.Name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Result{}, fmt.Errorf("rows affected: %w", err)
	}

	t.mutations = append(t.mutations, mutationOf(schema, table.Name, op, affected))
	return Result{Affected: affected}, nil
}

func (t *Tx) query(ctx context.Context, table ir.TableDef, sqlText string, params []any, cols []string) (Result, error) {
	rows, err := t.tx.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return Result{}, fmt.Errorf("select from %s: %w", table.Name, err)
	}
	defer rows.Close()

	types := make([]ir.Type, len(cols))
	for i, c := range cols {
		col, _ := table.Column(c)
		types[i] = col.Type
	}

	out := Result{Columns: cols, Rows: [][]ir.IRValue{}}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("scan %s: %w", table.Name, err)
		}
		row := make([]ir.IRValue, len(cols))
		for i := range raw {
			v, err := querysql.ScanValue(types[i], raw[i])
			if err != nil {
				return Result{}, fmt.Errorf("column %s.%s: %w", table.Name, cols[i], err)
			}
			row[i] = v
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate %s: %w", table.Name, err)
	}
	return out, nil
}

func mutationOf(schema ir.SchemaID, table string, op queryir.Op, affected int64) ir.Mutation {
	m := ir.Mutation{Schema: schema, Table: table, Op: queryir.Kind(op), Affected: affected}
	switch o := op.(type) {
	case queryir.Insert:
		m.Values = queryir.AssignObject(o.Values)
	case queryir.Update:
		m.Values = queryir.AssignObject(o.Set)
		m.Where = queryir.PredicateObject(o.Filter)
	case queryir.Delete:
		m.Where = queryir.PredicateObject(o.Filter)
	}
	return m
}

// Mutations returns the mutations recorded so far, in execution order.
func (t *Tx) Mutations() []ir.Mutation {
	out := make([]ir.Mutation, len(t.mutations))
	copy(out, t.mutations)
	return out
}

// CreateTable creates the physical table for a schema-owned table.
func (t *Tx) CreateTable(ctx context.Context, schema ir.SchemaID, table ir.TableDef) error {
	if t.done {
		return ErrTxDone
	}
	ddl := querysql.CreateTable(querysql.PhysicalName(schema, table.Name), table)
	if _, err := t.tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", table.Name, err)
	}
	return nil
}

// Commit makes every op of the transaction durable.
func (t *Tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards every op of the transaction. Rolling back a finished
// Tx is a no-op, so it is safe to defer.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.mutations = nil
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
