// Package cond compiles and evaluates the CEL conditions used by
// require "expr" statements.
//
// A condition sees two map variables:
//
//	ctx   caller, txid, height and schema of the running frame
//	vars  every variable bound so far; tables are lists of row maps
//
// Programs are compiled once per source string and cached.
package cond

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/roach88/schemahost/internal/ir"
)

// costLimit caps evaluation work so a condition cannot stall a call.
const costLimit = 100_000

// Env is a CEL environment with a program cache. It is safe for concurrent use.
type Env struct {
	env      *cel.Env
	programs sync.Map // map[string]cel.Program
}

var shared = sync.OnceValues(New)

// Default returns the process-wide environment.
func Default() (*Env, error) {
	return shared()
}

// New creates an environment declaring ctx and vars.
func New() (*Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("ctx", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("vars", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	return &Env{env: env}, nil
}

// Check compiles src and reports why it cannot serve as a condition.
func (e *Env) Check(src string) error {
	_, err := e.program(src)
	return err
}

// Eval evaluates src against the given context values and bindings.
func (e *Env) Eval(src string, ctx map[string]ir.IRValue, vars map[string]ir.Result) (bool, error) {
	prg, err := e.program(src)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(Activation(ctx, vars))
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition yielded %s, not bool", out.Type().TypeName())
	}
	return b, nil
}

func (e *Env) program(src string) (cel.Program, error) {
	if p, ok := e.programs.Load(src); ok {
		return p.(cel.Program), nil
	}
	ast, iss := e.env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile: %w", iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("condition must be bool, got %s", out)
	}
	prg, err := e.env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	p, _ := e.programs.LoadOrStore(src, prg)
	return p.(cel.Program), nil
}

// Activation builds the CEL input from context values and bindings.
func Activation(ctx map[string]ir.IRValue, vars map[string]ir.Result) map[string]any {
	c := make(map[string]any, len(ctx))
	for k, v := range ctx {
		c[k] = Native(v)
	}
	bound := make(map[string]any, len(vars))
	for k, r := range vars {
		bound[k] = nativeResult(r)
	}
	return map[string]any{"ctx": c, "vars": bound}
}

// Native converts an IR value to the Go value CEL adapts natively.
func Native(v ir.IRValue) any {
	switch x := v.(type) {
	case ir.IRString:
		return string(x)
	case ir.IRInt:
		return int64(x)
	case ir.IRBool:
		return bool(x)
	case ir.IRArray:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = Native(el)
		}
		return out
	case ir.IRObject:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = Native(el)
		}
		return out
	default:
		return types.NullValue
	}
}

func nativeResult(r ir.Result) any {
	switch r.Kind {
	case ir.ReturnScalar:
		return Native(r.Value)
	case ir.ReturnTable:
		recs := r.Records()
		out := make([]any, len(recs))
		for i, rec := range recs {
			out[i] = Native(rec)
		}
		return out
	default:
		return types.NullValue
	}
}
