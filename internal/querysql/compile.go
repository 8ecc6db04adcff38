// Package querysql compiles queryir operations to parameterized SQLite.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/queryir"
)

// SQLCompiler compiles queryir ops against one physical table.
//
// Every SELECT has an ORDER BY with COLLATE BINARY so reads are
// deterministic. Values are always bound as parameters, never interpolated;
// identifiers are quoted.
type SQLCompiler struct {
	// Physical is the SQLite table name, already schema-scoped.
	Physical string
	// Table is the logical definition used for projection and ordering.
	Table ir.TableDef
}

// NewSQLCompiler creates a compiler for one physical table.
func NewSQLCompiler(physical string, table ir.TableDef) *SQLCompiler {
	return &SQLCompiler{Physical: physical, Table: table}
}

// PhysicalName returns the schema-scoped SQLite name of a logical table.
// Schema ids are hex with an "x" prefix, so the result is a valid
// identifier and cannot collide across schemas.
func PhysicalName(schema ir.SchemaID, table string) string {
	return string(schema) + "__" + table
}

// Compile converts op to SQL and its parameters.
// For Select it also returns the projected column names in output order.
func (c *SQLCompiler) Compile(op queryir.Op) (string, []any, []string, error) {
	switch o := op.(type) {
	case queryir.Select:
		return c.compileSelect(o)
	case queryir.Insert:
		sql, params, err := c.compileInsert(o)
		return sql, params, nil, err
	case queryir.Update:
		sql, params, err := c.compileUpdate(o)
		return sql, params, nil, err
	case queryir.Delete:
		sql, params, err := c.compileDelete(o)
		return sql, params, nil, err
	case nil:
		return "", nil, nil, fmt.Errorf("cannot compile nil op")
	default:
		return "", nil, nil, fmt.Errorf("unsupported op type: %T", op)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, []string, error) {
	cols := q.Columns
	if len(cols) == 0 {
		cols = c.Table.ColumnNames()
	}
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quote(col)
	}

	where, params, err := c.compileWhere(q.Filter)
	if err != nil {
		return "", nil, nil, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		strings.Join(quoted, ", "),
		quote(c.Physical),
		where,
		c.stableOrderKey())
	return sql, params, cols, nil
}

// stableOrderKey orders by the primary key, or by every column when the
// table has none. Text compares bytewise via COLLATE BINARY.
func (c *SQLCompiler) stableOrderKey() string {
	keys := c.Table.PrimaryKey
	if len(keys) == 0 {
		keys = c.Table.ColumnNames()
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = quote(k) + " ASC"
		if col, ok := c.Table.Column(k); ok && col.Type != ir.TypeInt && col.Type != ir.TypeBool {
			parts[i] = quote(k) + " COLLATE BINARY ASC"
		}
	}
	return strings.Join(parts, ", ")
}

func (c *SQLCompiler) compileInsert(q queryir.Insert) (string, []any, error) {
	if len(q.Values) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quote(c.Physical)), nil, nil
	}
	cols := make([]string, len(q.Values))
	marks := make([]string, len(q.Values))
	params := make([]any, len(q.Values))
	for i, a := range q.Values {
		p, err := irValueToParam(a.Value)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", a.Column, err)
		}
		cols[i] = quote(a.Column)
		marks[i] = "?"
		params[i] = p
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(c.Physical), strings.Join(cols, ", "), strings.Join(marks, ", "))
	return sql, params, nil
}

func (c *SQLCompiler) compileUpdate(q queryir.Update) (string, []any, error) {
	if len(q.Set) == 0 {
		return "", nil, fmt.Errorf("update sets no columns")
	}
	sets := make([]string, len(q.Set))
	params := make([]any, 0, len(q.Set))
	for i, a := range q.Set {
		p, err := irValueToParam(a.Value)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", a.Column, err)
		}
		sets[i] = quote(a.Column) + " = ?"
		params = append(params, p)
	}
	where, whereParams, err := c.compileWhere(q.Filter)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("UPDATE %s SET %s%s", quote(c.Physical), strings.Join(sets, ", "), where)
	return sql, append(params, whereParams...), nil
}

func (c *SQLCompiler) compileDelete(q queryir.Delete) (string, []any, error) {
	where, params, err := c.compileWhere(q.Filter)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("DELETE FROM %s%s", quote(c.Physical), where), params, nil
}

func (c *SQLCompiler) compileWhere(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	sql, params, err := c.compilePredicate(p)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return " WHERE " + sql, params, nil
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		if ir.IsNull(pred.Value) {
			// NULL = NULL is never true in SQL; keep that semantics explicit.
			return "1 = 0", nil, nil
		}
		param, err := irValueToParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("convert value: %w", err)
		}
		return quote(pred.Column) + " = ?", []any{param}, nil
	case queryir.IsNull:
		return quote(pred.Column) + " IS NULL", nil, nil
	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, sub := range pred.Predicates {
			sql, subParams, err := c.compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// CreateTable returns the DDL for a schema-owned table. bool and int map to
// INTEGER; text, uuid and blob map to TEXT.
func CreateTable(physical string, table ir.TableDef) string {
	defs := make([]string, 0, len(table.Columns)+1)
	for _, col := range table.Columns {
		defs = append(defs, quote(col.Name)+" "+sqlType(col.Type))
	}
	if len(table.PrimaryKey) > 0 {
		keys := make([]string, len(table.PrimaryKey))
		for i, k := range table.PrimaryKey {
			keys[i] = quote(k)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quote(physical), strings.Join(defs, ", "))
}

func sqlType(t ir.Type) string {
	switch t {
	case ir.TypeInt, ir.TypeBool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// irValueToParam converts an ir.IRValue to a driver parameter.
// Arrays and objects cannot be stored in a column.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return nil, nil
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.IRArray:
		return nil, fmt.Errorf("IRArray cannot be used as SQL parameter")
	case ir.IRObject:
		return nil, fmt.Errorf("IRObject cannot be used as SQL parameter")
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}

// ScanValue converts a driver value read from a column of type t back to an
// ir.IRValue.
func ScanValue(t ir.Type, raw any) (ir.IRValue, error) {
	if raw == nil {
		return ir.IRNull{}, nil
	}
	switch t {
	case ir.TypeInt:
		n, ok := raw.(int64)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %T", raw)
		}
		return ir.IRInt(n), nil
	case ir.TypeBool:
		n, ok := raw.(int64)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %T", raw)
		}
		return ir.IRBool(n != 0), nil
	default:
		switch s := raw.(type) {
		case string:
			return ir.IRString(s), nil
		case []byte:
			return ir.IRString(string(s)), nil
		default:
			return nil, fmt.Errorf("expected text, got %T", raw)
		}
	}
}
