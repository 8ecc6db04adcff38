package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/schemahost/internal/compiler"
	"github.com/roach88/schemahost/internal/fault"
	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/metrics"
	"github.com/roach88/schemahost/internal/registry"
	"github.com/roach88/schemahost/internal/store"
	"github.com/roach88/schemahost/internal/vm"
)

// Engine deploys schemas and executes top-level calls.
//
// Thread-safety model:
//   - Deploy and Call must be serialized by the caller (one transaction at
//     a time; the store has a single connection).
//   - Registry reads are safe from any goroutine while a call runs.
//
// The only engine-wide mutable state is the registry, the clock and the
// store. Everything else lives in the ExecutionContext of one call.
type Engine struct {
	store    *store.Store
	registry *registry.Registry
	interp   *vm.Interpreter
	clock    *Clock
	txids    TxIDGenerator
	logger   *slog.Logger
	metrics  *metrics.Metrics
	maxDepth int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxCallDepth sets the invocation depth limit. The top-level
// invocation counts as depth 1. Values <= 0 keep the default.
func WithMaxCallDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithLogger sets the logger for the engine and its interpreter.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics enables Prometheus collection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTxIDGenerator sets the generator used for calls without a tx id.
func WithTxIDGenerator(g TxIDGenerator) Option {
	return func(e *Engine) {
		e.txids = g
	}
}

// WithClock sets the sequence clock. Used by replay.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an engine over s. Call Load to register schemas already
// deployed in s.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		registry: registry.New(),
		clock:    NewClock(),
		txids:    UUIDv7Generator{},
		logger:   slog.Default(),
		maxDepth: DefaultMaxCallDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.interp = vm.New(vm.WithLogger(e.logger))
	return e
}

// Registry returns the schema registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Store returns the underlying store.
func (e *Engine) Store() *store.Store { return e.store }

// MaxCallDepth returns the configured nested invocation limit.
func (e *Engine) MaxCallDepth() int { return e.maxDepth }

// Load recompiles every deployment recorded in the store, registers it,
// and moves the clock past the last logged sequence number.
func (e *Engine) Load(ctx context.Context) error {
	deps, err := e.store.ReadDeployments(ctx)
	if err != nil {
		return fmt.Errorf("load deployments: %w", err)
	}
	for _, d := range deps {
		spec, err := compiler.CompileSource(d.Source, d.Name+".cue", d.Owner)
		if err != nil {
			return fmt.Errorf("recompile %s: %w", d.SchemaID, err)
		}
		if spec.ID != d.SchemaID {
			return fmt.Errorf("recompile %s: source now yields id %s", d.SchemaID, spec.ID)
		}
		if _, err := e.registry.Register(*spec); err != nil {
			return fmt.Errorf("register %s: %w", d.SchemaID, err)
		}
	}
	last, err := e.store.LastSeq(ctx)
	if err != nil {
		return fmt.Errorf("load last seq: %w", err)
	}
	e.clock.AdvanceTo(last)
	e.logger.Info("engine loaded", "schemas", len(deps), "seq", last)
	return nil
}

// Compile compiles and statically validates source for deployer without
// deploying it.
func Compile(source, deployer string) (*ir.SchemaSpec, error) {
	spec, err := compiler.CompileSource(source, "schema.cue", deployer)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidSchema, err, "compile schema")
	}
	if verrs := compiler.Validate(spec); len(verrs) > 0 {
		return nil, invalidSchema(spec.Name, verrs)
	}
	return spec, nil
}

// Deploy compiles source, creates its tables, records the deployment and
// registers the schema, all or nothing. The schema id is derived from the
// schema name and deployer.
func (e *Engine) Deploy(ctx context.Context, source, deployer string) (id ir.SchemaID, err error) {
	defer func() {
		e.metrics.ObserveDeploy(string(fault.KindOf(err)), e.registry.Len())
	}()

	spec, err := Compile(source, deployer)
	if err != nil {
		e.logger.Warn("deploy rejected", "owner", deployer, "error", err)
		return "", err
	}
	if e.registry.Has(spec.ID) {
		return "", fault.New(fault.DuplicateSchema,
			"schema %s (%s by %s) is already deployed", spec.ID, spec.Name, deployer)
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return "", fault.Wrap(fault.Internal, err, "begin deploy")
	}
	defer tx.Rollback()

	for _, t := range spec.Tables {
		if err := tx.CreateTable(ctx, spec.ID, t); err != nil {
			return "", fault.Wrap(fault.Internal, err, "create table "+t.Name)
		}
	}
	dep := ir.Deployment{
		Seq:        e.clock.Next(),
		SchemaID:   spec.ID,
		Name:       spec.Name,
		Owner:      deployer,
		Source:     source,
		SourceHash: ir.SourceHash(source),
	}
	if err := tx.WriteDeployment(ctx, dep); err != nil {
		var dup *store.ConstraintError
		if errors.As(err, &dup) {
			return "", fault.Wrap(fault.DuplicateSchema, err, "schema "+string(spec.ID)+" is already deployed")
		}
		return "", fault.Wrap(fault.Internal, err, "record deployment")
	}
	if err := tx.Commit(); err != nil {
		return "", fault.Wrap(fault.Internal, err, "commit deploy")
	}
	if _, err := e.registry.Register(*spec); err != nil {
		return "", err
	}

	e.logger.Info("schema deployed",
		"schema", spec.ID,
		"name", spec.Name,
		"owner", deployer,
		"seq", dep.Seq,
		"procedures", len(spec.Procedures),
	)
	return spec.ID, nil
}

// CallRequest is one external call.
type CallRequest struct {
	Schema    ir.SchemaID
	Procedure string
	Args      []ir.IRValue
	Caller    string

	// TxID seeds deterministic uuids. Generated when empty.
	TxID   string
	Height int64
}

// Receipt is the outcome of a committed call.
type Receipt struct {
	Seq         int64     `json:"seq"`
	TxID        string    `json:"tx_id"`
	Height      int64     `json:"height"`
	Result      ir.Result `json:"result"`
	ResultHash  string    `json:"result_hash"`
	DeltaDigest string    `json:"delta_digest"`
	Mutations   int       `json:"mutations"`
	Depth       int       `json:"depth"`
	Invocations int       `json:"invocations"`
	Foreign     int       `json:"foreign_calls"`
}

// Call executes one top-level call in its own transaction. Any error at any
// depth rolls the whole transaction back. A committed call's log entry is
// written inside its own transaction; a rolled-back call is logged after
// the rollback.
//
// The returned error is always a *fault.Error. Call does not panic.
func (e *Engine) Call(ctx context.Context, req CallRequest) (receipt *Receipt, err error) {
	start := time.Now()
	if req.TxID == "" {
		req.TxID = e.txids.Generate()
	}
	if req.Args == nil {
		req.Args = []ir.IRValue{}
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "begin call")
	}
	ec := newRootContext(req.Caller, req.TxID, req.Height, tx, e.maxDepth)

	defer func() {
		e.metrics.ObserveCall(req.Procedure, string(fault.KindOf(err)), ec.Deepest(), time.Since(start))
	}()

	res, err := e.invokeSafely(ctx, ec, req)

	rec := ir.TxRecord{
		TxID:      req.TxID,
		Caller:    req.Caller,
		Height:    req.Height,
		Schema:    req.Schema,
		Procedure: req.Procedure,
		Args:      ir.IRArray(req.Args),
		Result:    ir.None(),
	}
	var logErr error
	if err == nil {
		mutations := tx.Mutations()
		rec.Result = res
		rec.Mutations = len(mutations)
		rec.Status = ir.StatusCommitted
		rec.ResultHash, err = ir.ResultHash(res)
		if err == nil {
			rec.DeltaDigest, err = ir.DeltaDigest(mutations)
		}
		if err == nil {
			rec.Seq = e.clock.Next()
			if logErr = tx.AppendTx(ctx, rec, mutations); logErr != nil {
				err = fault.Wrap(fault.Internal, logErr, "append tx log")
			}
		}
		if err == nil {
			err = tx.Commit()
		}
		if err != nil {
			err = fault.Wrap(fault.Internal, err, "commit call")
		}
	}

	if err != nil {
		_ = tx.Rollback()
		e.resyncClock(ctx, logErr)
		fe := fault.As(err)
		err = fe
		rec = ir.TxRecord{
			Seq:          e.clock.Next(),
			TxID:         rec.TxID,
			Caller:       rec.Caller,
			Height:       rec.Height,
			Schema:       rec.Schema,
			Procedure:    rec.Procedure,
			Args:         rec.Args,
			Status:       ir.StatusRolledBack,
			ErrorKind:    string(fe.Kind),
			ErrorMessage: fe.Message,
			Result:       ir.None(),
		}
		if appendErr := e.store.AppendTx(ctx, rec, nil); appendErr != nil {
			e.logger.Error("append tx log failed", "tx", req.TxID, "seq", rec.Seq, "error", appendErr)
		}
	}

	if err != nil {
		msg := "call rolled back"
		if fault.IsAccessDenied(err) {
			msg = "call denied"
		}
		e.logger.Warn(msg,
			"tx", req.TxID,
			"schema", req.Schema,
			"procedure", req.Procedure,
			"caller", req.Caller,
			"kind", fault.KindOf(err),
			"error", err,
		)
		return nil, err
	}

	e.logger.Info("call committed",
		"tx", req.TxID,
		"schema", req.Schema,
		"procedure", req.Procedure,
		"caller", req.Caller,
		"seq", rec.Seq,
		"mutations", rec.Mutations,
		"depth", ec.Deepest(),
	)
	return &Receipt{
		Seq:         rec.Seq,
		TxID:        req.TxID,
		Height:      req.Height,
		Result:      rec.Result,
		ResultHash:  rec.ResultHash,
		DeltaDigest: rec.DeltaDigest,
		Mutations:   rec.Mutations,
		Depth:       ec.Deepest(),
		Invocations: ec.stats.invoked,
		Foreign:     ec.stats.foreign,
	}, nil
}

// resyncClock moves the clock past a seq some other writer already logged.
// It reads the store, so the call transaction must have ended.
func (e *Engine) resyncClock(ctx context.Context, err error) {
	var ce *store.ConstraintError
	if err == nil || !errors.As(err, &ce) {
		return
	}
	last, lerr := e.store.LastSeq(ctx)
	if lerr != nil {
		e.logger.Error("read last seq failed", "error", lerr)
		return
	}
	e.clock.AdvanceTo(last)
}

// invokeSafely runs the top-level invocation and turns a panic anywhere
// below it into an Internal fault.
func (e *Engine) invokeSafely(ctx context.Context, ec *ExecutionContext, req CallRequest) (res ir.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic during call", "tx", req.TxID, "panic", r)
			res, err = ir.Result{}, fault.New(fault.Internal, "panic: %v", r)
		}
	}()
	return e.Invoke(ctx, ec, req.Schema, req.Procedure, req.Args, OriginExternal)
}
