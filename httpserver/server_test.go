package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipq/polyq/backend/mongobackend"
	"github.com/shipq/polyq/backend/sqlbackend"
	"github.com/shipq/polyq/migrate"
	"github.com/shipq/polyq/observe"
	"github.com/shipq/polyq/router"
)

var users = migrate.Schema{
	Name: "users",
	Fields: []migrate.Field{
		{Name: "name", Type: migrate.TypeString},
		{Name: "age", Type: migrate.TypeNumber},
	},
}

// newServer serves a router with an in-memory SQLite primary holding two
// users and an unconnected document backend named "docs".
func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	prom := observe.NewPrometheus()
	reg := prometheus.NewRegistry()
	prom.MustRegister(reg)

	r := router.New(router.WithObserver(prom))

	primary, err := sqlbackend.New(router.Primary, "sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, primary.Connect(ctx))
	r.Register(router.Primary, primary)

	docs, err := mongobackend.New("docs", "mongodb://localhost:27017/app")
	require.NoError(t, err)
	r.Register("docs", docs)

	require.NoError(t, primary.Sync(ctx, []migrate.Schema{users}))
	for _, body := range []string{
		`{"query": {"kind": "insert", "table": "users", "data": {"name": "ann", "age": 31}}}`,
		`{"query": {"kind": "insert", "table": "users", "data": {"name": "bob", "age": 19}}}`,
	} {
		resp := post(t, nil, "", body, Handler(r, Options{}))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	srv := httptest.NewServer(Handler(r, Options{Gatherer: reg}))
	t.Cleanup(func() {
		srv.Close()
		r.Close(ctx)
	})
	return srv
}

// post sends body to /query unless path is given. With a nil server the
// handler is called directly.
func post(t *testing.T, srv *httptest.Server, path, body string, h http.Handler) *http.Response {
	t.Helper()
	if path == "" {
		path = "/query"
	}
	if srv == nil {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		return rec.Result()
	}
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestQuery_RoutesToPrimary(t *testing.T) {
	srv := newServer(t)

	resp := post(t, srv, "", `{"query": {"kind": "select", "table": "users", "projection": ["name"],
		"conditions": [{"type": "condition", "field": "age", "op": "gt", "value": 20}]}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body := decode[QueryResponse](t, resp)
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "ann", body.Rows[0]["name"])
}

func TestQuery_EmptyResultIsArray(t *testing.T) {
	srv := newServer(t)

	resp := post(t, srv, "", `{"query": {"kind": "select", "table": "users",
		"conditions": [{"type": "condition", "field": "name", "op": "eq", "value": "zed"}]}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rows": []}`, string(raw))
}

func TestQuery_Errors(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name string
		body string
		code int
		kind string
	}{
		{"malformed body", `{"query":`, http.StatusBadRequest, "bad_request"},
		{"invalid ast", `{"query": {"kind": "update", "table": "users"}}`, http.StatusBadRequest, "invalid_query"},
		{"unknown backend", `{"backend": "nope", "query": {"kind": "select", "table": "users"}}`, http.StatusNotFound, "not_found"},
		{"disconnected backend", `{"backend": "docs", "query": {"kind": "select", "table": "users"}}`, http.StatusBadGateway, "backend_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv, "", tt.body, nil)
			assert.Equal(t, tt.code, resp.StatusCode)

			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.kind, body.Error.Code)
		})
	}
}

func TestQuery_NoPrimary(t *testing.T) {
	h := Handler(router.New(), Options{})
	resp := post(t, nil, "", `{"query": {"kind": "select", "table": "users"}}`, h)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCompile(t *testing.T) {
	srv := newServer(t)
	q := `"query": {"kind": "select", "table": "users", "projection": ["name"],
		"conditions": [{"type": "condition", "field": "age", "op": "gte", "value": 18}]}`

	resp := post(t, srv, "/compile", "{"+q+"}", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sql := decode[CompileResponse](t, resp)
	assert.Equal(t, router.Primary, sql.Backend)
	assert.Equal(t, "SELECT name FROM users WHERE age >= ?", sql.Native)
	assert.Equal(t, []any{18.0}, sql.Args)

	resp = post(t, srv, "/compile", `{"backend": "docs", `+q+"}", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decode[CompileResponse](t, resp)
	assert.Equal(t, "docs", doc.Backend)
	assert.True(t, strings.HasPrefix(doc.Native, "users.find("), doc.Native)
	assert.Empty(t, doc.Args)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	health := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, []any{router.Primary, "docs"}, health["backends"])

	post(t, srv, "", `{"query": {"kind": "select", "table": "users"}}`, nil)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	raw, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `polyq_executions_total{backend="primary",kind="select",status="ok"}`)
}

func TestRequestID_Propagated(t *testing.T) {
	var seen string
	h := logRequests(slog.New(slog.DiscardHandler), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, RequestID(context.Background()))
}
