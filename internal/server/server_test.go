package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemahost/internal/engine"
	"github.com/roach88/schemahost/internal/fault"
	"github.com/roach88/schemahost/internal/identity"
	"github.com/roach88/schemahost/internal/ir"
	"github.com/roach88/schemahost/internal/metrics"
	"github.com/roach88/schemahost/internal/store"
)

const counterSource = `
schema: counter: {
	table: counts: {
		columns: {key: "text", n: "int"}
		primary_key: ["key"]
	}
	procedure: bump: {
		modifiers: ["public"]
		params: {key: "text"}
		body: [
			{insert: "counts", values: {key: "$key", n: 1}},
		]
	}
	procedure: read: {
		modifiers: ["public", "view"]
		params: {key: "text"}
		returns: "int"
		body: [
			{select: "counts", columns: ["n"], where: {key: "$key"}, as: "row"},
			{return: "$row.n"},
		]
	}
	procedure: reset: {
		modifiers: ["owner"]
		body: [
			{delete: "counts"},
		]
	}
}
`

const seedHex = "1f1e1d1c1b1a191817161514131211100f0e0d0c0b0a09080706050403020100"

func newTestServer(t *testing.T, opts ...Option) (*Server, http.Handler) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	e := engine.New(s,
		engine.WithLogger(logger),
		engine.WithMetrics(m),
		engine.WithTxIDGenerator(engine.NewSequenceGenerator("tx")),
	)
	srv := New(e, append([]Option{WithLogger(logger), WithMetrics(m)}, opts...)...)
	return srv, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			raw = string(b)
		}
		rdr = strings.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rr)
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, rr.Body.String())
	return e["code"].(string)
}

func deploy(t *testing.T, h http.Handler, owner string) ir.SchemaID {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/schemas", deployRequest{Source: counterSource, Owner: owner})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return ir.SchemaID(decode(t, rr)["id"].(string))
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", nil).Code)
}

func TestDeploy(t *testing.T) {
	_, h := newTestServer(t)
	id := deploy(t, h, "owner")
	assert.Equal(t, ir.MustSchemaID("counter", "owner"), id)

	rr := do(t, h, http.MethodPost, "/schemas", deployRequest{Source: counterSource, Owner: "owner"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, string(fault.DuplicateSchema), errorCode(t, rr))
}

func TestDeployInvalid(t *testing.T) {
	_, h := newTestServer(t)
	src := `schema: bad: procedure: p: {modifiers: ["public"], body: [{select: "nope", as: "x"}]}`

	rr := do(t, h, http.MethodPost, "/schemas", deployRequest{Source: src, Owner: "owner"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := decode(t, rr)
	e := body["error"].(map[string]any)
	assert.Equal(t, string(fault.InvalidSchema), e["code"])
	details, ok := e["details"].([]any)
	require.True(t, ok, rr.Body.String())
	assert.NotEmpty(t, details)
}

func TestBadRequests(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"malformed deploy", "/schemas", "{"},
		{"unknown field", "/schemas", `{"source": "x", "owner": "o", "extra": 1}`},
		{"missing owner", "/schemas", deployRequest{Source: counterSource}},
		{"malformed call", "/call", "[]"},
		{"missing procedure", "/call", map[string]any{"schema": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, CodeBadRequest, errorCode(t, rr))
		})
	}
}

func TestSchemas(t *testing.T) {
	_, h := newTestServer(t)
	id := deploy(t, h, "owner")

	rr := do(t, h, http.MethodGet, "/schemas", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode(t, rr)["schemas"].([]any)
	require.Len(t, list, 1)
	first := list[0].(map[string]any)
	assert.Equal(t, string(id), first["id"])
	assert.Equal(t, "counter", first["name"])
	assert.Equal(t, []any{"bump", "read", "reset"}, first["procedures"])

	rr = do(t, h, http.MethodGet, "/schemas/"+string(id), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	sigs := decode(t, rr)["signatures"].(map[string]any)
	assert.Equal(t, "read(key text) returns int", sigs["read"])

	rr = do(t, h, http.MethodGet, "/schemas/xmissing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, string(fault.UnknownSchema), errorCode(t, rr))
}

func TestCall(t *testing.T) {
	_, h := newTestServer(t)
	id := deploy(t, h, "owner")

	rr := do(t, h, http.MethodPost, "/call", map[string]any{
		"schema": id, "procedure": "bump", "args": []any{"a"}, "caller": "alice",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	receipt := decode(t, rr)
	assert.Equal(t, "tx-1", receipt["tx_id"])
	assert.EqualValues(t, 1, receipt["mutations"])

	rr = do(t, h, http.MethodPost, "/call", map[string]any{
		"schema": id, "procedure": "read", "args": []any{"a"}, "caller": "bob",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	result := decode(t, rr)["result"].(map[string]any)
	assert.Equal(t, "scalar", result["kind"])
	assert.EqualValues(t, 1, result["value"])
}

func TestCallErrorStatuses(t *testing.T) {
	_, h := newTestServer(t)
	id := deploy(t, h, "owner")
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/call", map[string]any{
		"schema": id, "procedure": "bump", "args": []any{"a"}, "caller": "alice",
	}).Code)

	tests := []struct {
		name   string
		body   map[string]any
		status int
		kind   fault.Kind
	}{
		{"unknown schema", map[string]any{"schema": "xnope", "procedure": "bump", "caller": "alice"}, http.StatusNotFound, fault.UnknownSchema},
		{"unknown procedure", map[string]any{"schema": id, "procedure": "nope", "caller": "alice"}, http.StatusNotFound, fault.ProcedureNotFound},
		{"arity", map[string]any{"schema": id, "procedure": "bump", "caller": "alice"}, http.StatusBadRequest, fault.SignatureMismatch},
		{"not owner", map[string]any{"schema": id, "procedure": "reset", "caller": "alice"}, http.StatusForbidden, fault.Unauthorized},
		{"constraint", map[string]any{"schema": id, "procedure": "bump", "args": []any{"a"}, "caller": "alice"}, http.StatusConflict, fault.ApplicationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/call", tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Equal(t, string(tt.kind), errorCode(t, rr))
		})
	}
}

func TestSignedCall(t *testing.T) {
	signer, err := identity.NewSigner(seedHex)
	require.NoError(t, err)

	_, h := newTestServer(t, RequireSignatures(true))
	id := deploy(t, h, signer.Identity())

	rr := do(t, h, http.MethodPost, "/call", map[string]any{
		"schema": id, "procedure": "reset", "caller": signer.Identity(),
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, CodeUnauthenticated, errorCode(t, rr))

	env, err := signer.Sign(identity.Payload{Schema: id, Procedure: "reset", TxID: "signed-1", Height: 1})
	require.NoError(t, err)
	rr = do(t, h, http.MethodPost, "/call", map[string]any{"envelope": env})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "signed-1", decode(t, rr)["tx_id"])

	env.Payload.Height = 2
	rr = do(t, h, http.MethodPost, "/call", map[string]any{"envelope": env})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSignedCallRunsOnce(t *testing.T) {
	signer, err := identity.NewSigner(seedHex)
	require.NoError(t, err)

	_, h := newTestServer(t, RequireSignatures(true))
	id := deploy(t, h, signer.Identity())

	env, err := signer.Sign(identity.Payload{Schema: id, Procedure: "reset", TxID: "once", Height: 1})
	require.NoError(t, err)
	rr := do(t, h, http.MethodPost, "/call", map[string]any{"envelope": env})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/call", map[string]any{"envelope": env})
	assert.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())
	assert.Equal(t, CodeReplayed, errorCode(t, rr))

	rr = do(t, h, http.MethodGet, "/tx", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["transactions"].([]any), 1, "a replay never reaches the engine")

	env, err = signer.Sign(identity.Payload{Schema: id, Procedure: "reset", Height: 1})
	require.NoError(t, err)
	rr = do(t, h, http.MethodPost, "/call", map[string]any{"envelope": env})
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
	assert.Equal(t, CodeBadRequest, errorCode(t, rr))
}

func TestTxLog(t *testing.T) {
	_, h := newTestServer(t)
	id := deploy(t, h, "owner")
	for _, caller := range []string{"alice", "bob"} {
		do(t, h, http.MethodPost, "/call", map[string]any{
			"schema": id, "procedure": "bump", "args": []any{"k"}, "caller": caller,
		})
	}

	rr := do(t, h, http.MethodGet, "/tx", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	txs := decode(t, rr)["transactions"].([]any)
	require.Len(t, txs, 2)
	assert.Equal(t, ir.StatusCommitted, txs[0].(map[string]any)["status"])
	assert.Equal(t, ir.StatusRolledBack, txs[1].(map[string]any)["status"])

	rr = do(t, h, http.MethodGet, "/tx?limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["transactions"].([]any), 1)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/tx?limit=x", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t)
	id := deploy(t, h, "owner")
	do(t, h, http.MethodPost, "/call", map[string]any{
		"schema": id, "procedure": "bump", "args": []any{"a"}, "caller": "alice",
	})

	rr := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "schemahost_engine_calls_total")
	assert.Contains(t, body, "schemahost_registry_schemas 1")
}

func TestStatusFor(t *testing.T) {
	for _, k := range fault.Kinds {
		status := StatusFor(k)
		if k == fault.Internal {
			assert.Equal(t, http.StatusInternalServerError, status)
			continue
		}
		assert.GreaterOrEqual(t, status, 400, k)
		assert.Less(t, status, 500, k)
	}
}

func TestMetricsOptional(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	srv := New(engine.New(s, engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))))

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", bytes.NewReader(nil)))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
