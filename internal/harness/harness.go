package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/schemahost/internal/engine"
	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/store"
	"github.com/roach88/schemahost/internal/testutil"
)

// Harness executes one scenario against a private engine.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	heights *testutil.DeterministicClock
	txids   *testutil.TxIDs
	logger  *slog.Logger

	// schemas maps aliases to deployed ids, in deploy order.
	schemas map[string]ir.SchemaID
	aliases []string
}

// Run executes a scenario on a fresh in-memory store.
//
// The returned error covers harness problems: unreadable sources, failed
// deploys, failed setup calls. Expectation and assertion failures are
// reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	txids := testutil.NewTxIDs(scenario.TxPrefix)
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithTxIDGenerator(txids),
	}
	if scenario.MaxCallDepth > 0 {
		opts = append(opts, engine.WithMaxCallDepth(scenario.MaxCallDepth))
	}

	h := &Harness{
		store:   st,
		engine:  engine.New(st, opts...),
		heights: testutil.NewDeterministicClock(),
		txids:   txids,
		logger:  logger,
		schemas: make(map[string]ir.SchemaID),
	}

	ctx := context.Background()
	if err := h.deploy(ctx, scenario.Schemas); err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Setup {
		ev, err := h.call(ctx, PhaseSetup, step)
		if err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
		result.AddTrace(ev)
		if ev.Status != ir.StatusCommitted {
			return nil, fmt.Errorf("setup[%d]: %s failed: %s: %s", i, step.Call, ev.Kind, ev.Message)
		}
	}

	for i, step := range scenario.Flow {
		ev, err := h.call(ctx, PhaseFlow, step.CallStep)
		if err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
		result.AddTrace(ev)
		for _, msg := range checkExpect(ev, step.Expect) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Call, msg))
		}
	}

	if err := h.snapshot(ctx, result); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// RunFile loads and runs a scenario file.
func RunFile(path string) (*Scenario, *Result, error) {
	s, err := LoadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	res, err := Run(s)
	return s, res, err
}

func (h *Harness) deploy(ctx context.Context, steps []SchemaStep) error {
	for _, step := range steps {
		src, err := os.ReadFile(step.Source)
		if err != nil {
			return fmt.Errorf("schema %s: %w", step.Alias, err)
		}
		id, err := h.engine.Deploy(ctx, string(src), step.Owner)
		if err != nil {
			return fmt.Errorf("schema %s: %w", step.Alias, err)
		}
		h.schemas[step.Alias] = id
		h.aliases = append(h.aliases, step.Alias)
	}
	return nil
}

// call runs one step and reads its outcome back from the transaction log,
// so that the trace records exactly what was logged.
func (h *Harness) call(ctx context.Context, phase string, step CallStep) (TraceEvent, error) {
	alias, procedure, err := splitRef(step.Call)
	if err != nil {
		return TraceEvent{}, err
	}
	schema, ok := h.schemas[alias]
	if !ok {
		return TraceEvent{}, fmt.Errorf("unknown schema alias %q", alias)
	}

	written, err := convertArgs(step.Args)
	if err != nil {
		return TraceEvent{}, err
	}
	args, err := h.resolveArgs(written)
	if err != nil {
		return TraceEvent{}, err
	}

	height := step.Height
	if height == 0 {
		height = h.heights.Next()
	}
	txID := step.TxID
	if txID == "" {
		txID = h.txids.Generate()
	}

	_, callErr := h.engine.Call(ctx, engine.CallRequest{
		Schema:    schema,
		Procedure: procedure,
		Args:      args,
		Caller:    step.Caller,
		TxID:      txID,
		Height:    height,
	})

	rec, err := h.store.ReadTx(ctx, txID)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("read tx %s: %w", txID, err)
	}
	if callErr != nil && rec.Status != ir.StatusRolledBack {
		return TraceEvent{}, fmt.Errorf("tx %s failed with %v but was logged %s", txID, callErr, rec.Status)
	}

	h.logger.Debug("scenario call", "phase", phase, "call", step.Call, "tx", txID, "status", rec.Status)
	return TraceEvent{
		Seq:       rec.Seq,
		Phase:     phase,
		Call:      step.Call,
		Caller:    step.Caller,
		Height:    height,
		TxID:      txID,
		Args:      written,
		Status:    rec.Status,
		Kind:      rec.ErrorKind,
		Message:   rec.ErrorMessage,
		Result:    rec.Result,
		Mutations: rec.Mutations,
	}, nil
}

// resolveArgs replaces ${alias} strings with deployed schema ids.
func (h *Harness) resolveArgs(args ir.IRArray) ([]ir.IRValue, error) {
	out := make([]ir.IRValue, len(args))
	for i, a := range args {
		s, ok := a.(ir.IRString)
		if !ok || !strings.HasPrefix(string(s), "${") || !strings.HasSuffix(string(s), "}") {
			out[i] = a
			continue
		}
		alias := string(s)[2 : len(s)-1]
		id, ok := h.schemas[alias]
		if !ok {
			return nil, fmt.Errorf("args[%d]: unknown schema alias %q", i, alias)
		}
		out[i] = ir.IRString(id)
	}
	return out, nil
}

// snapshot records every table of every scenario schema.
func (h *Harness) snapshot(ctx context.Context, result *Result) error {
	for _, alias := range h.aliases {
		desc, err := h.engine.Registry().Lookup(h.schemas[alias])
		if err != nil {
			return err
		}
		for _, table := range desc.Spec.Tables {
			rows, err := h.store.ReadTable(ctx, desc.ID(), table)
			if err != nil {
				return fmt.Errorf("read %s.%s: %w", alias, table.Name, err)
			}
			result.State[alias+"."+table.Name] = ir.Table(rows.Columns, rows.Rows).Records()
		}
	}
	return nil
}

// checkExpect compares a flow call against its expectation.
func checkExpect(ev TraceEvent, expect *ExpectClause) []string {
	var want ExpectClause
	if expect != nil {
		want = *expect
	}

	var errs []string
	if want.Kind == "" {
		if ev.Status != ir.StatusCommitted {
			return []string{fmt.Sprintf("expected success, got %s: %s", ev.Kind, ev.Message)}
		}
	} else {
		if ev.Kind != want.Kind {
			errs = append(errs, fmt.Sprintf("expected %s, got %s", want.Kind, describe(ev)))
		}
		if want.Message != "" && ev.Message != want.Message {
			errs = append(errs, fmt.Sprintf("expected message %q, got %q", want.Message, ev.Message))
		}
	}

	if want.Result != nil {
		expected, err := ir.FromAny(normalizeYAML(want.Result))
		if err != nil {
			return append(errs, fmt.Sprintf("expected result: %v", err))
		}
		if actual := resultValue(ev.Result); !ir.Equal(expected, actual) {
			errs = append(errs, fmt.Sprintf("expected result %s, got %s", ir.Format(expected), ir.Format(actual)))
		}
	}
	return errs
}

func describe(ev TraceEvent) string {
	if ev.Status == ir.StatusCommitted {
		return "success"
	}
	return fmt.Sprintf("%s: %s", ev.Kind, ev.Message)
}

// resultValue flattens a result for comparison: a scalar is its value, a
// table is a list of row objects, none is null.
func resultValue(r ir.Result) ir.IRValue {
	switch r.Kind {
	case ir.ReturnScalar:
		if r.Value == nil {
			return ir.IRNull{}
		}
		return r.Value
	case ir.ReturnTable:
		rows := r.Records()
		arr := make(ir.IRArray, len(rows))
		for i, row := range rows {
			arr[i] = row
		}
		return arr
	default:
		return ir.IRNull{}
	}
}

// convertArgs converts YAML values to IR.
func convertArgs(args []any) (ir.IRArray, error) {
	out := make(ir.IRArray, len(args))
	for i, a := range args {
		v, err := ir.FromAny(normalizeYAML(a))
		if err != nil {
			return nil, fmt.Errorf("args[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// normalizeYAML turns yaml.v3 map[any]any style values into
// map[string]any so FromAny accepts them.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalizeYAML(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[fmt.Sprint(k)] = normalizeYAML(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalizeYAML(e)
		}
		return out
	default:
		return v
	}
}
