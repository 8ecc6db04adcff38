package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/schemahost/internal/ir"
)

// AssertionError describes a failed assertion with the trace for context.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		buf.WriteString("\ntrace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s by %s -> %s", ev.Seq, ev.Phase, ev.Call, ev.Caller, ev.Status)
			if ev.Kind != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Kind)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result.State, a)
		case AssertRowCount:
			err = assertRowCount(result.State, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Call != a.Call {
			continue
		}
		if a.Status != "" && ev.Status != a.Status {
			continue
		}
		if a.Kind != "" && ev.Kind != a.Kind {
			continue
		}
		return nil
	}
	expected := a.Call
	if a.Status != "" {
		expected += " with status " + a.Status
	}
	if a.Kind != "" {
		expected += " failing with " + a.Kind
	}
	return &AssertionError{Type: AssertTraceContains, Expected: expected, Actual: "not found in trace", Trace: trace}
}

// assertTraceOrder checks that the first occurrence of each call comes in
// the given order. Other calls may appear in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if _, seen := positions[ev.Call]; !seen {
			positions[ev.Call] = i + 1
		}
	}
	for _, c := range a.Calls {
		if positions[c] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all calls present: %v", a.Calls),
				Actual:   "missing call: " + c,
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Calls); i++ {
		prev, curr := a.Calls[i-1], a.Calls[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("calls in order: %v", a.Calls),
				Actual:   fmt.Sprintf("%s (pos %d) should be before %s (pos %d)", prev, positions[prev], curr, positions[curr]),
				Trace:    trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Call == a.Call {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d calls of %s", a.Count, a.Call),
			Actual:   fmt.Sprintf("%d calls", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState passes when some row matches every where column and
// contains every expect column.
func assertFinalState(state map[string][]ir.IRObject, a Assertion) error {
	rows, ok := state[a.Table]
	if !ok {
		return &AssertionError{Type: AssertFinalState, Expected: "table " + a.Table, Actual: "no such table"}
	}
	where, err := toObject(a.Where)
	if err != nil {
		return fmt.Errorf("where: %w", err)
	}
	expect, err := toObject(a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}

	var candidates []ir.IRObject
	for _, row := range rows {
		if subsetOf(where, row) {
			candidates = append(candidates, row)
		}
	}
	if len(candidates) == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, ir.Format(where)),
			Actual:   "row not found",
		}
	}
	for _, row := range candidates {
		if subsetOf(expect, row) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("row in %s where %s with %s", a.Table, ir.Format(where), ir.Format(expect)),
		Actual:   ir.Format(candidates[0]),
	}
}

func assertRowCount(state map[string][]ir.IRObject, a Assertion) error {
	rows, ok := state[a.Table]
	if !ok {
		return &AssertionError{Type: AssertRowCount, Expected: "table " + a.Table, Actual: "no such table"}
	}
	if len(rows) != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s", a.Count, a.Table),
			Actual:   fmt.Sprintf("%d rows", len(rows)),
		}
	}
	return nil
}

func toObject(m map[string]any) (ir.IRObject, error) {
	if len(m) == 0 {
		return ir.IRObject{}, nil
	}
	v, err := ir.FromAny(normalizeYAML(m))
	if err != nil {
		return nil, err
	}
	return v.(ir.IRObject), nil
}

// subsetOf reports whether every key of want is in row with an equal value.
func subsetOf(want, row ir.IRObject) bool {
	for k, v := range want {
		got, ok := row[k]
		if !ok || !ir.Equal(v, got) {
			return false
		}
	}
	return true
}
