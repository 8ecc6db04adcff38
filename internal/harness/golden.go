package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/schemahost/internal/ir"
)

// GoldenDir holds golden traces relative to the test's package.
const GoldenDir = "testdata/golden"

// Snapshot is the canonical form of a run: its trace and final state.
type Snapshot struct {
	Scenario string
	Trace    []TraceEvent
	State    map[string][]ir.IRObject
}

// Canonical renders the snapshot as an IRObject for canonical JSON.
func (s Snapshot) Canonical() ir.IRObject {
	trace := make(ir.IRArray, len(s.Trace))
	for i, ev := range s.Trace {
		obj := ir.IRObject{
			"seq":       ir.IRInt(ev.Seq),
			"phase":     ir.IRString(ev.Phase),
			"call":      ir.IRString(ev.Call),
			"caller":    ir.IRString(ev.Caller),
			"height":    ir.IRInt(ev.Height),
			"tx_id":     ir.IRString(ev.TxID),
			"args":      nonNilArray(ev.Args),
			"status":    ir.IRString(ev.Status),
			"result":    ev.Result.Canonical(),
			"mutations": ir.IRInt(int64(ev.Mutations)),
		}
		if ev.Kind != "" {
			obj["kind"] = ir.IRString(ev.Kind)
			obj["message"] = ir.IRString(ev.Message)
		}
		trace[i] = obj
	}

	state := ir.IRObject{}
	for table, rows := range s.State {
		arr := make(ir.IRArray, len(rows))
		for i, r := range rows {
			arr[i] = r
		}
		state[table] = arr
	}

	return ir.IRObject{
		"scenario": ir.IRString(s.Scenario),
		"trace":    trace,
		"state":    state,
	}
}

// MarshalSnapshot returns the canonical JSON of a run, newline terminated.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snap := Snapshot{Scenario: name, Trace: result.Trace, State: result.State}
	b, err := ir.MarshalCanonical(snap.Canonical())
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// RunWithGolden runs a scenario and compares its snapshot with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()
	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()
	data, err := MarshalSnapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

func nonNilArray(a ir.IRArray) ir.IRArray {
	if a == nil {
		return ir.IRArray{}
	}
	return a
}
