// Package httpserver exposes a router over HTTP: queries in, rows out,
// plus health and Prometheus endpoints.
package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shipq/polyq/backend"
	"github.com/shipq/polyq/capability"
	"github.com/shipq/polyq/httperror"
	"github.com/shipq/polyq/query"
	"github.com/shipq/polyq/query/compile"
	"github.com/shipq/polyq/router"
)

// maxBody caps request bodies. Query ASTs are small.
const maxBody = 1 << 20

// Options configures the handler.
type Options struct {
	Logger *slog.Logger

	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Request is the body of POST /query and POST /compile. Backend pins the
// query to a registered backend; when empty it is routed by intent.
type Request struct {
	Backend string    `json:"backend,omitempty"`
	Query   query.AST `json:"query"`
}

// QueryResponse is the body of a successful POST /query.
type QueryResponse struct {
	Rows []query.Row `json:"rows"`
}

// CompileResponse is the body of a successful POST /compile.
type CompileResponse struct {
	Backend string `json:"backend"`
	Native  string `json:"native"`
	Args    []any  `json:"args,omitempty"`
}

type server struct {
	router *router.Router
	logger *slog.Logger
}

// Handler returns the HTTP handler for r.
func Handler(r *router.Router, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	s := &server{router: r, logger: opts.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /compile", s.handleCompile)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return logRequests(opts.Logger, mux)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	he := httperror.Respond(w, err)
	if he.Code() >= http.StatusInternalServerError {
		s.logger.Error("request_failed",
			"request_id", RequestID(r.Context()),
			"status", he.Code(),
			"error", err,
		)
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (Request, error) {
	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(&req); err != nil {
		return Request{}, httperror.Wrap(http.StatusBadRequest, "bad_request", "invalid request body", err)
	}
	return req, nil
}

// target resolves the adapter for a request without executing anything.
func (s *server) target(req Request) (string, backend.Adapter, error) {
	if req.Backend != "" {
		a, ok := s.router.Backend(req.Backend)
		if !ok {
			return "", nil, httperror.NotFoundf("backend %q is not registered", req.Backend)
		}
		return req.Backend, a, nil
	}
	a, err := s.router.Resolve(req.Query.Intent)
	if err != nil {
		return "", nil, err
	}
	return a.Name(), a, nil
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var rows []query.Row
	if req.Backend != "" {
		if _, ok := s.router.Backend(req.Backend); !ok {
			s.fail(w, r, httperror.NotFoundf("backend %q is not registered", req.Backend))
			return
		}
		rows, err = s.router.ExecuteOn(r.Context(), req.Backend, req.Query)
	} else {
		rows, err = s.router.Execute(r.Context(), req.Query)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []query.Row{}
	}
	respondJSON(w, http.StatusOK, QueryResponse{Rows: rows})
}

func (s *server) handleCompile(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	name, a, err := s.target(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := capability.Validate(req.Query, a.Capabilities()); err != nil {
		s.fail(w, r, capability.ForBackend(err, name))
		return
	}
	compiled, err := a.Compile(req.Query)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := CompileResponse{Backend: name, Native: compiled.String()}
	if stmt, ok := compiled.(compile.Statement); ok {
		resp.Args = stmt.Args
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"backends": s.router.Names(),
	})
}
