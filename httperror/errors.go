// Package httperror maps polyq errors onto HTTP status codes and writes
// them as JSON error bodies.
package httperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shipq/polyq/backend"
	"github.com/shipq/polyq/capability"
	"github.com/shipq/polyq/query"
	"github.com/shipq/polyq/router"
)

// Error implements the error interface with HTTP status code support.
type Error struct {
	code    int
	kind    string
	message string
	cause   error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the HTTP status code.
func (e *Error) Code() int { return e.code }

// Kind returns the machine-readable error code, e.g. "invalid_query".
func (e *Error) Kind() string { return e.kind }

// Message returns the error message without the cause.
func (e *Error) Message() string { return e.message }

// Unwrap returns the underlying cause for errors.As/errors.Is support.
func (e *Error) Unwrap() error { return e.cause }

// New creates a new HTTP error with the given code, kind and message.
func New(code int, kind, message string) *Error {
	return &Error{code: code, kind: kind, message: message}
}

// Wrap wraps an underlying error with an HTTP error.
func Wrap(code int, kind, message string, cause error) *Error {
	return &Error{code: code, kind: kind, message: message, cause: cause}
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *Error {
	return &Error{code: http.StatusBadRequest, kind: "bad_request", message: message}
}

// NotFoundf creates a 404 Not Found error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{code: http.StatusNotFound, kind: "not_found", message: fmt.Sprintf(format, args...)}
}

// From classifies err:
//
//	*Error                    as is
//	*query.CompilationError   400 invalid_query
//	*capability.Error         422 unsupported
//	router.ErrNoBackend       503 no_backend
//	*backend.Error            502 backend_error
//	anything else             500 internal_error
func From(err error) *Error {
	var he *Error
	if errors.As(err, &he) {
		return he
	}

	var ce *query.CompilationError
	if errors.As(err, &ce) {
		return &Error{code: http.StatusBadRequest, kind: "invalid_query", message: ce.Error()}
	}
	var capErr *capability.Error
	if errors.As(err, &capErr) {
		return &Error{code: http.StatusUnprocessableEntity, kind: "unsupported", message: capErr.Error()}
	}
	if errors.Is(err, router.ErrNoBackend) {
		return &Error{code: http.StatusServiceUnavailable, kind: "no_backend", message: err.Error()}
	}
	var be *backend.Error
	if errors.As(err, &be) {
		// driver messages can leak connection details
		return &Error{code: http.StatusBadGateway, kind: "backend_error", message: fmt.Sprintf("backend %s failed to %s", be.Backend, be.Op), cause: err}
	}
	return &Error{code: http.StatusInternalServerError, kind: "internal_error", message: "internal error", cause: err}
}

// Response is the JSON error body.
type Response struct {
	Error Detail `json:"error"`
}

// Detail contains the error code and message.
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Respond writes err as a JSON error response. The cause is never written.
func Respond(w http.ResponseWriter, err error) *Error {
	he := From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.code)
	_ = json.NewEncoder(w).Encode(Response{Error: Detail{Code: he.kind, Message: he.message}})
	return he
}
