package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemahost/internal/fault"
	"github.com/roach88/schemahost/internal/ir"
)

func TestCheckArgs(t *testing.T) {
	params := []ir.Param{
		{Name: "name", Type: ir.TypeText},
		{Name: "n", Type: ir.TypeInt},
		{Name: "ok", Type: ir.TypeBool},
		{Name: "id", Type: ir.TypeUUID},
	}
	good := []ir.IRValue{ir.IRString("a"), ir.IRInt(1), ir.IRBool(true), ir.IRString("6ba7b810-9dad-11d1-80b4-00c04fd430c8")}
	assert.NoError(t, CheckArgs(params, good))
	assert.NoError(t, CheckArgs(params, []ir.IRValue{ir.IRNull{}, ir.IRNull{}, ir.IRNull{}, ir.IRNull{}}))

	tests := []struct {
		name string
		args []ir.IRValue
	}{
		{"too few", good[:3]},
		{"too many", append(append([]ir.IRValue{}, good...), ir.IRInt(0))},
		{"int as text", []ir.IRValue{ir.IRInt(1), good[1], good[2], good[3]}},
		{"text as int", []ir.IRValue{good[0], ir.IRString("1"), good[2], good[3]}},
		{"int as bool", []ir.IRValue{good[0], good[1], ir.IRInt(1), good[3]}},
		{"bad uuid", []ir.IRValue{good[0], good[1], good[2], ir.IRString("not-a-uuid")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckArgs(params, tt.args)
			assert.True(t, fault.Is(err, fault.SignatureMismatch), "got %v", err)
		})
	}
}

func TestCheckResult(t *testing.T) {
	scalar := ir.ReturnShape{Kind: ir.ReturnScalar, Type: ir.TypeInt}
	table := ir.ReturnShape{Kind: ir.ReturnTable, Columns: []ir.Column{{Name: "id", Type: ir.TypeText}, {Name: "n", Type: ir.TypeInt}}}

	res, err := CheckResult(ir.ReturnShape{Kind: ir.ReturnNone}, ir.None())
	require.NoError(t, err)
	assert.Equal(t, ir.None(), res)

	_, err = CheckResult(ir.ReturnShape{Kind: ir.ReturnNone}, ir.Scalar(ir.IRInt(1)))
	assert.True(t, fault.Is(err, fault.SignatureMismatch))

	res, err = CheckResult(scalar, ir.Scalar(ir.IRInt(3)))
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(3), res.Value)

	_, err = CheckResult(scalar, ir.Scalar(ir.IRString("3")))
	assert.True(t, fault.Is(err, fault.SignatureMismatch))
	_, err = CheckResult(scalar, ir.None())
	assert.True(t, fault.Is(err, fault.SignatureMismatch))

	rows := [][]ir.IRValue{{ir.IRString("a"), ir.IRInt(1)}}
	res, err = CheckResult(table, ir.Table([]string{"k", "v"}, rows))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "n"}, res.Columns, "relabelled to declared names")

	_, err = CheckResult(table, ir.Table([]string{"k"}, [][]ir.IRValue{{ir.IRString("a")}}))
	assert.True(t, fault.Is(err, fault.SignatureMismatch))
	_, err = CheckResult(table, ir.Table([]string{"k", "v"}, [][]ir.IRValue{{ir.IRInt(1), ir.IRInt(1)}}))
	assert.True(t, fault.Is(err, fault.SignatureMismatch))
	_, err = CheckResult(table, ir.Scalar(ir.IRInt(1)))
	assert.True(t, fault.Is(err, fault.SignatureMismatch))
}

func TestCompatible(t *testing.T) {
	text := ir.Param{Name: "a", Type: ir.TypeText}
	num := ir.Param{Name: "b", Type: ir.TypeInt}
	users := ir.ReturnShape{Kind: ir.ReturnTable, Columns: []ir.Column{{Name: "id", Type: ir.TypeUUID}, {Name: "name", Type: ir.TypeText}}}

	stub := ir.ForeignStub{Name: "f", Params: []ir.Param{text, num}, Returns: users}

	renamed := ir.ProcedureSig{
		Name:   "f",
		Params: []ir.Param{{Name: "x", Type: ir.TypeText}, {Name: "y", Type: ir.TypeInt}},
		Returns: ir.ReturnShape{Kind: ir.ReturnTable, Columns: []ir.Column{
			{Name: "uid", Type: ir.TypeUUID}, {Name: "label", Type: ir.TypeText},
		}},
	}
	assert.NoError(t, Compatible(stub, renamed), "names are not compared")

	tests := []struct {
		name string
		proc ir.ProcedureSig
	}{
		{"param count", ir.ProcedureSig{Name: "f", Params: []ir.Param{text}, Returns: users}},
		{"param order", ir.ProcedureSig{Name: "f", Params: []ir.Param{num, text}, Returns: users}},
		{"return kind", ir.ProcedureSig{Name: "f", Params: []ir.Param{text, num}, Returns: ir.ReturnShape{Kind: ir.ReturnNone}}},
		{"scalar instead of table", ir.ProcedureSig{Name: "f", Params: []ir.Param{text, num}, Returns: ir.ReturnShape{Kind: ir.ReturnScalar, Type: ir.TypeText}}},
		{"column order", ir.ProcedureSig{Name: "f", Params: []ir.Param{text, num}, Returns: ir.ReturnShape{Kind: ir.ReturnTable, Columns: []ir.Column{
			{Name: "name", Type: ir.TypeText}, {Name: "id", Type: ir.TypeUUID},
		}}}},
		{"column count", ir.ProcedureSig{Name: "f", Params: []ir.Param{text, num}, Returns: ir.ReturnShape{Kind: ir.ReturnTable, Columns: []ir.Column{
			{Name: "id", Type: ir.TypeUUID},
		}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Compatible(stub, tt.proc)
			assert.True(t, fault.Is(err, fault.IncompatibleForeignSignature), "got %v", err)
		})
	}

	scalarStub := ir.ForeignStub{Name: "s", Returns: ir.ReturnShape{Kind: ir.ReturnScalar, Type: ir.TypeInt}}
	err := Compatible(scalarStub, ir.ProcedureSig{Name: "s", Returns: ir.ReturnShape{Kind: ir.ReturnScalar, Type: ir.TypeText}})
	assert.True(t, fault.Is(err, fault.IncompatibleForeignSignature))
	assert.NoError(t, Compatible(ir.ForeignStub{Name: "n"}, ir.ProcedureSig{Name: "n", Returns: ir.ReturnShape{Kind: ir.ReturnNone}}))
}
