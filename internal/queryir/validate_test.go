package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/schemahost/internal/ir"
)

var usersTable = ir.TableDef{
	Name: "users",
	Columns: []ir.Column{
		{Name: "id", Type: ir.TypeUUID},
		{Name: "name", Type: ir.TypeText},
		{Name: "age", Type: ir.TypeInt},
		{Name: "active", Type: ir.TypeBool},
	},
	PrimaryKey: []string{"id"},
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		op      Op
		wantErr string
	}{
		{"select all", Select{}, ""},
		{"select projection", Select{Columns: []string{"name", "id"}}, ""},
		{"select unknown column", Select{Columns: []string{"email"}}, `no column "email"`},
		{"filter type mismatch", Select{Filter: Equals{Column: "age", Value: ir.IRString("x")}}, "expected int"},
		{"insert ok", Insert{Values: []Assign{{Column: "id", Value: ir.IRString("u1")}, {Column: "active", Value: ir.IRBool(true)}}}, ""},
		{"insert null", Insert{Values: []Assign{{Column: "age", Value: ir.IRNull{}}}}, ""},
		{"insert duplicate", Insert{Values: []Assign{{Column: "name", Value: ir.IRString("a")}, {Column: "name", Value: ir.IRString("b")}}}, "assigned twice"},
		{"update empty", Update{}, "sets no columns"},
		{"delete nested and", Delete{Filter: And{Predicates: []Predicate{IsNull{Column: "nope"}}}}, `no column "nope"`},
		{"nil op", nil, "nil op"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(usersTable, tt.op)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
