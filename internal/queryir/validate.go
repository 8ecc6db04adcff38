package queryir

import (
	"errors"
	"fmt"

	"github.com/roach88/schemahost/internal/ir"
)

// Validate checks op against the table definition: every referenced column
// must exist, every value must fit the column type, and inserts must not
// repeat a column. All problems are returned joined.
//
// Validate is a pure function with no side effects.
func Validate(table ir.TableDef, op Op) error {
	v := &validator{table: table}
	switch o := op.(type) {
	case Select:
		v.columns(o.Columns)
		v.predicate(o.Filter)
	case Insert:
		v.assigns(o.Values, true)
	case Update:
		if len(o.Set) == 0 {
			v.add("update of %q sets no columns", table.Name)
		}
		v.assigns(o.Set, true)
		v.predicate(o.Filter)
	case Delete:
		v.predicate(o.Filter)
	case nil:
		v.add("nil op")
	default:
		v.add("unsupported op %T", op)
	}
	return errors.Join(v.errs...)
}

type validator struct {
	table ir.TableDef
	errs  []error
}

func (v *validator) add(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) column(name string) (ir.Column, bool) {
	c, ok := v.table.Column(name)
	if !ok {
		v.add("table %q has no column %q", v.table.Name, name)
	}
	return c, ok
}

func (v *validator) columns(names []string) {
	for _, n := range names {
		v.column(n)
	}
}

func (v *validator) value(col string, value ir.IRValue) {
	c, ok := v.column(col)
	if !ok {
		return
	}
	if err := ir.CheckValue(c.Type, value); err != nil {
		v.add("column %s.%s: %v", v.table.Name, col, err)
	}
}

func (v *validator) assigns(as []Assign, unique bool) {
	seen := make(map[string]bool, len(as))
	for _, a := range as {
		if unique && seen[a.Column] {
			v.add("column %q assigned twice", a.Column)
		}
		seen[a.Column] = true
		v.value(a.Column, a.Value)
	}
}

func (v *validator) predicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.value(pred.Column, pred.Value)
	case IsNull:
		v.column(pred.Column)
	case And:
		for _, sub := range pred.Predicates {
			v.predicate(sub)
		}
	default:
		v.add("unsupported predicate %T", p)
	}
}
