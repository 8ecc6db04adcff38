// Package server exposes the engine over HTTP.
//
//	GET  /health
//	POST /schemas        deploy a CUE source
//	GET  /schemas        list deployed schemas
//	GET  /schemas/{id}   inspect one schema
//	POST /call           run a call, plain or signed
//	GET  /tx             recent transaction log
//	GET  /metrics        Prometheus exposition
//
// Deploys and calls are serialized by one mutex; the engine expects a
// single writer.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/schemahost/internal/engine"
	"github.com/roach88/schemahost/internal/fault"
	"github.com/roach88/schemahost/internal/identity"
	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/metrics"
	"github.com/roach88/schemahost/internal/store"
)

// Server serves one engine.
type Server struct {
	engine            *engine.Engine
	metrics           *metrics.Metrics
	identity          identity.Provider
	requireSignatures bool
	logger            *slog.Logger

	mu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics mounts m at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithIdentity sets the provider used for signed calls.
func WithIdentity(p identity.Provider) Option {
	return func(s *Server) { s.identity = p }
}

// RequireSignatures rejects unsigned calls.
func RequireSignatures(on bool) Option {
	return func(s *Server) { s.requireSignatures = on }
}

// New creates a server for e.
func New(e *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine:   e,
		identity: identity.Ed25519Provider{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/schemas", func(r chi.Router) {
		r.Post("/", s.handleDeploy)
		r.Get("/", s.handleListSchemas)
		r.Get("/{id}", s.handleGetSchema)
	})
	r.Post("/call", s.handleCall)
	r.Get("/tx", s.handleTxLog)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

type deployRequest struct {
	Source string `json:"source"`
	Owner  string `json:"owner"`
}

type deployResponse struct {
	ID ir.SchemaID `json:"id"`
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}
	if req.Source == "" || req.Owner == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "source and owner are required", nil)
		return
	}

	s.mu.Lock()
	id, err := s.engine.Deploy(r.Context(), req.Source, req.Owner)
	s.mu.Unlock()
	if err != nil {
		var details any
		if verrs := engine.ValidationErrors(err); len(verrs) > 0 {
			details = verrs
		}
		writeFault(w, err, details)
		return
	}
	writeJSON(w, http.StatusCreated, deployResponse{ID: id})
}

// schemaSummary is one entry of GET /schemas.
type schemaSummary struct {
	ID         ir.SchemaID `json:"id"`
	Name       string      `json:"name"`
	Owner      string      `json:"owner"`
	Procedures []string    `json:"procedures"`
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	descs := s.engine.Registry().List()
	out := make([]schemaSummary, 0, len(descs))
	for _, d := range descs {
		sum := schemaSummary{ID: d.ID(), Name: d.Spec.Name, Owner: d.Owner(), Procedures: []string{}}
		for _, p := range d.Spec.Procedures {
			sum.Procedures = append(sum.Procedures, p.Name)
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, map[string]any{"schemas": out})
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	desc, err := s.engine.Registry().Lookup(ir.SchemaID(chi.URLParam(r, "id")))
	if err != nil {
		writeFault(w, err, nil)
		return
	}
	sigs := make(map[string]string, len(desc.Spec.Procedures))
	for _, p := range desc.Spec.Procedures {
		sigs[p.Name] = p.Signature()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schema":     desc.Spec,
		"signatures": sigs,
	})
}

// callRequest carries either a signed envelope or a plain call naming its
// caller.
type callRequest struct {
	Envelope *identity.Envelope `json:"envelope,omitempty"`

	Schema    ir.SchemaID `json:"schema"`
	Procedure string      `json:"procedure"`
	Args      ir.IRArray  `json:"args"`
	Caller    string      `json:"caller"`
	TxID      string      `json:"tx_id"`
	Height    int64       `json:"height"`
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var body callRequest
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}

	req, status, err := s.callRequest(body)
	if err != nil {
		code := CodeBadRequest
		if status == http.StatusUnauthorized {
			code = CodeUnauthenticated
		}
		writeError(w, status, code, err.Error(), nil)
		return
	}

	receipt, err := s.call(r.Context(), req, body.Envelope != nil)
	if errors.Is(err, errReplayed) {
		writeError(w, http.StatusConflict, CodeReplayed, err.Error(), nil)
		return
	}
	if err != nil {
		writeFault(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// errReplayed reports a signed payload whose tx_id is already logged.
var errReplayed = errors.New("tx_id already logged")

// call runs req under the write lock. A signed payload runs at most once:
// its tx_id must not appear in the log, committed or rolled back.
func (s *Server) call(ctx context.Context, req engine.CallRequest, signed bool) (*engine.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if signed {
		_, err := s.engine.Store().ReadTx(ctx, req.TxID)
		switch {
		case err == nil:
			return nil, fmt.Errorf("%w: %s", errReplayed, req.TxID)
		case !errors.Is(err, store.ErrNotFound):
			return nil, fault.Wrap(fault.Internal, err, "read tx log")
		}
	}
	return s.engine.Call(ctx, req)
}

// callRequest resolves the caller of body. Signed envelopes take
// precedence over the plain fields.
func (s *Server) callRequest(body callRequest) (engine.CallRequest, int, error) {
	if body.Envelope != nil {
		caller, err := s.identity.Caller(*body.Envelope)
		if err != nil {
			return engine.CallRequest{}, http.StatusUnauthorized, err
		}
		p := body.Envelope.Payload
		if p.TxID == "" {
			return engine.CallRequest{}, http.StatusBadRequest, errors.New("signed payload must carry a tx_id")
		}
		return engine.CallRequest{
			Schema:    p.Schema,
			Procedure: p.Procedure,
			Args:      p.Args,
			Caller:    caller,
			TxID:      p.TxID,
			Height:    p.Height,
		}, 0, nil
	}
	if s.requireSignatures {
		return engine.CallRequest{}, http.StatusUnauthorized, errors.New("signed envelope required")
	}
	if body.Schema == "" || body.Procedure == "" {
		return engine.CallRequest{}, http.StatusBadRequest, errors.New("schema and procedure are required")
	}
	return engine.CallRequest{
		Schema:    body.Schema,
		Procedure: body.Procedure,
		Args:      body.Args,
		Caller:    body.Caller,
		TxID:      body.TxID,
		Height:    body.Height,
	}, 0, nil
}

func (s *Server) handleTxLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}
	recs, err := s.engine.Store().ReadTxLog(r.Context(), limit)
	if err != nil {
		writeFault(w, err, nil)
		return
	}
	if recs == nil {
		recs = []ir.TxRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": recs})
}
