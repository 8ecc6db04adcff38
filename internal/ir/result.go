package ir

// Result is the value returned by a procedure: nothing, a scalar, or a
// table. The VM also uses it for variable bindings.
type Result struct {
	Kind    ReturnKind  `json:"kind"`
	Value   IRValue     `json:"value,omitempty"`
	Columns []string    `json:"columns,omitempty"`
	Rows    [][]IRValue `json:"rows,omitempty"`
}

// None is the empty result.
func None() Result {
	return Result{Kind: ReturnNone}
}

// Scalar wraps a single value.
func Scalar(v IRValue) Result {
	if v == nil {
		v = IRNull{}
	}
	return Result{Kind: ReturnScalar, Value: v}
}

// Table builds a table result.
func Table(columns []string, rows [][]IRValue) Result {
	if rows == nil {
		rows = [][]IRValue{}
	}
	return Result{Kind: ReturnTable, Columns: columns, Rows: rows}
}

// Empty reports whether the result has no value: no rows, null scalar, or none.
func (r Result) Empty() bool {
	switch r.Kind {
	case ReturnTable:
		return len(r.Rows) == 0
	case ReturnScalar:
		return IsNull(r.Value)
	default:
		return true
	}
}

// Field returns column col of the first row, or null when the table is
// empty or lacks the column.
func (r Result) Field(col string) IRValue {
	if r.Kind != ReturnTable || len(r.Rows) == 0 {
		return IRNull{}
	}
	for i, c := range r.Columns {
		if c == col && i < len(r.Rows[0]) {
			return r.Rows[0][i]
		}
	}
	return IRNull{}
}

// Relabel returns a copy of a table result with new column names.
// Callers must pass exactly len(r.Columns) names.
func (r Result) Relabel(columns []string) Result {
	if r.Kind != ReturnTable {
		return r
	}
	return Result{Kind: ReturnTable, Columns: columns, Rows: r.Rows}
}

// Records returns table rows keyed by column name.
func (r Result) Records() []IRObject {
	out := make([]IRObject, len(r.Rows))
	for i, row := range r.Rows {
		obj := make(IRObject, len(r.Columns))
		for j, c := range r.Columns {
			if j < len(row) {
				obj[c] = row[j]
			}
		}
		out[i] = obj
	}
	return out
}

// Canonical returns the result as an IRObject for hashing.
func (r Result) Canonical() IRObject {
	kind := r.Kind
	if kind == "" {
		kind = ReturnNone
	}
	obj := IRObject{"kind": IRString(kind)}
	switch kind {
	case ReturnScalar:
		v := r.Value
		if v == nil {
			v = IRNull{}
		}
		obj["value"] = v
	case ReturnTable:
		cols := make(IRArray, len(r.Columns))
		for i, c := range r.Columns {
			cols[i] = IRString(c)
		}
		rows := make(IRArray, len(r.Rows))
		for i, row := range r.Rows {
			rows[i] = IRArray(row)
		}
		obj["columns"] = cols
		obj["rows"] = rows
	}
	return obj
}

// ResultFromCanonical is the inverse of Canonical; used when reading the
// transaction log.
func ResultFromCanonical(obj IRObject) Result {
	kind, _ := obj["kind"].(IRString)
	switch ReturnKind(kind) {
	case ReturnScalar:
		return Scalar(obj["value"])
	case ReturnTable:
		var cols []string
		if arr, ok := obj["columns"].(IRArray); ok {
			for _, c := range arr {
				s, _ := c.(IRString)
				cols = append(cols, string(s))
			}
		}
		var rows [][]IRValue
		if arr, ok := obj["rows"].(IRArray); ok {
			for _, r := range arr {
				row, _ := r.(IRArray)
				rows = append(rows, []IRValue(row))
			}
		}
		return Table(cols, rows)
	default:
		return None()
	}
}
