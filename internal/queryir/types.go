package queryir

import "github.com/roach88/schemahost/internal/ir"

// Op is a storage operation against one schema-owned table.
//
// This is a sealed interface: only Select, Insert, Update and Delete
// implement it, so backend compilers can switch exhaustively.
type Op interface {
	opNode()
}

// Predicate is a row filter.
//
// Sealed: Equals, IsNull and And are the only predicates. There are no OR
// predicates, subqueries or functions.
type Predicate interface {
	predicateNode()
}

// Select reads rows.
//
//	SELECT <columns> FROM <table> WHERE <filter> ORDER BY <primary key>
//
// Columns lists the projection in output order; empty means every column
// in declaration order. Filter may be nil.
type Select struct {
	Columns []string
	Filter  Predicate
}

func (Select) opNode() {}

// Insert writes one row. Columns not listed are stored as NULL.
type Insert struct {
	Values []Assign
}

func (Insert) opNode() {}

// Update sets columns on every row matching Filter.
type Update struct {
	Set    []Assign
	Filter Predicate
}

func (Update) opNode() {}

// Delete removes every row matching Filter.
type Delete struct {
	Filter Predicate
}

func (Delete) opNode() {}

// Assign is a column = value pair.
type Assign struct {
	Column string
	Value  ir.IRValue
}

// Equals matches rows whose column equals a literal.
// A null Value never matches; use IsNull.
type Equals struct {
	Column string
	Value  ir.IRValue
}

func (Equals) predicateNode() {}

// IsNull matches rows whose column is NULL.
type IsNull struct {
	Column string
}

func (IsNull) predicateNode() {}

// And matches rows satisfying every predicate. Empty means always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Match builds the conjunctive filter of a where-map: one Equals per column,
// or IsNull when the value is null. Returns nil for no conditions.
func Match(where []Assign) Predicate {
	if len(where) == 0 {
		return nil
	}
	preds := make([]Predicate, len(where))
	for i, a := range where {
		if ir.IsNull(a.Value) {
			preds[i] = IsNull{Column: a.Column}
		} else {
			preds[i] = Equals{Column: a.Column, Value: a.Value}
		}
	}
	if len(preds) == 1 {
		return preds[0]
	}
	return And{Predicates: preds}
}

// Kind names an op for logs and mutation records.
func Kind(op Op) string {
	switch op.(type) {
	case Select, *Select:
		return "select"
	case Insert, *Insert:
		return "insert"
	case Update, *Update:
		return "update"
	case Delete, *Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// IsMutation reports whether op writes.
func IsMutation(op Op) bool {
	switch Kind(op) {
	case "insert", "update", "delete":
		return true
	default:
		return false
	}
}

// AssignObject converts assignments to an IRObject, for mutation records.
func AssignObject(as []Assign) ir.IRObject {
	if len(as) == 0 {
		return nil
	}
	obj := make(ir.IRObject, len(as))
	for _, a := range as {
		v := a.Value
		if v == nil {
			v = ir.IRNull{}
		}
		obj[a.Column] = v
	}
	return obj
}

// PredicateObject flattens a conjunctive predicate to column -> value, for
// mutation records. IsNull becomes null.
func PredicateObject(p Predicate) ir.IRObject {
	if p == nil {
		return nil
	}
	obj := ir.IRObject{}
	var walk func(Predicate)
	walk = func(p Predicate) {
		switch pred := p.(type) {
		case Equals:
			obj[pred.Column] = pred.Value
		case IsNull:
			obj[pred.Column] = ir.IRNull{}
		case And:
			for _, sub := range pred.Predicates {
				walk(sub)
			}
		}
	}
	walk(p)
	return obj
}
