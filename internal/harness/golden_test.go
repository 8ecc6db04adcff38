package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemahost/internal/ir"
)

func TestMarshalSnapshot(t *testing.T) {
	r := NewResult()
	r.AddTrace(TraceEvent{
		Seq:     2,
		Phase:   PhaseFlow,
		Call:    "p.f",
		Caller:  "alice",
		Height:  1,
		TxID:    "t-1",
		Status:  ir.StatusRolledBack,
		Kind:    "Unauthorized",
		Message: "f is restricted to the schema owner",
		Result:  ir.None(),
	})
	r.AddTrace(TraceEvent{
		Seq:       3,
		Phase:     PhaseFlow,
		Call:      "p.g",
		Caller:    "bob",
		Height:    2,
		TxID:      "t-2",
		Args:      ir.IRArray{ir.IRString("x")},
		Status:    ir.StatusCommitted,
		Result:    ir.Scalar(ir.IRInt(7)),
		Mutations: 1,
	})
	r.State["p.t"] = []ir.IRObject{{"k": ir.IRString("v")}}

	data, err := MarshalSnapshot("demo", r)
	require.NoError(t, err)

	want := `{"scenario":"demo","state":{"p.t":[{"k":"v"}]},"trace":[` +
		`{"args":[],"call":"p.f","caller":"alice","height":1,"kind":"Unauthorized","message":"f is restricted to the schema owner","mutations":0,"phase":"flow","result":{"kind":"none"},"seq":2,"status":"rolled_back","tx_id":"t-1"},` +
		`{"args":["x"],"call":"p.g","caller":"bob","height":2,"mutations":1,"phase":"flow","result":{"kind":"scalar","value":7},"seq":3,"status":"committed","tx_id":"t-2"}` +
		"]}\n"
	assert.Equal(t, want, string(data))
}

func TestMarshalSnapshot_Deterministic(t *testing.T) {
	result, err := Run(loadTestScenario(t, "target_swap"))
	require.NoError(t, err)
	again, err := Run(loadTestScenario(t, "target_swap"))
	require.NoError(t, err)

	a, err := MarshalSnapshot("target_swap", result)
	require.NoError(t, err)
	b, err := MarshalSnapshot("target_swap", again)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
