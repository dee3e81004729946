// Package capability declares which optional query features a backend can
// execute and rejects queries that need a feature the backend lacks.
//
// Each feature is an independent flag with its own check. New flags get a
// new check appended to the list; existing checks never change.
package capability

import (
	"fmt"

	"github.com/shipq/polyq/query"
)

// Feature names an optional backend feature.
type Feature string

const (
	Transactions Feature = "transactions"
	Aggregation  Feature = "aggregation"
	Joins        Feature = "joins"
	SchemaSync   Feature = "schemaSync"
)

// Set is the fixed record of capabilities a backend adapter declares.
type Set struct {
	Transactions bool
	Aggregation  bool
	Joins        bool
	SchemaSync   bool
}

// Supports reports whether the set enables the given feature.
func (s Set) Supports(f Feature) bool {
	switch f {
	case Transactions:
		return s.Transactions
	case Aggregation:
		return s.Aggregation
	case Joins:
		return s.Joins
	case SchemaSync:
		return s.SchemaSync
	}
	return false
}

// Error reports a query or operation that needs a feature the selected
// backend does not declare. It is always returned before any backend I/O.
type Error struct {
	Backend string
	Feature Feature
}

func (e *Error) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("capability %q not supported by backend", e.Feature)
	}
	return fmt.Sprintf("capability %q not supported by backend %q", e.Feature, e.Backend)
}

// check inspects one feature of an AST against a capability set.
type check func(ast query.AST, s Set) error

// checks run in order; each one looks at a single flag.
var checks = []check{
	checkAggregation,
	checkJoins,
}

func checkAggregation(ast query.AST, s Set) error {
	if ast.HasAggregation() && !s.Aggregation {
		return &Error{Feature: Aggregation}
	}
	return nil
}

// The AST has no join surface yet, so every query passes.
func checkJoins(query.AST, Set) error {
	return nil
}

// Validate accepts the AST or returns a *Error naming the first missing
// feature. It has no side effects.
func Validate(ast query.AST, s Set) error {
	for _, c := range checks {
		if err := c(ast, s); err != nil {
			return err
		}
	}
	return nil
}

// Require returns a *Error when the set does not enable feature f.
// Used for operation-level gates (transactions, schema sync).
func Require(s Set, f Feature) error {
	if !s.Supports(f) {
		return &Error{Feature: f}
	}
	return nil
}

// ForBackend stamps the backend name on a capability error. Other errors
// pass through unchanged.
func ForBackend(err error, backend string) error {
	if ce, ok := err.(*Error); ok {
		out := *ce
		out.Backend = backend
		return &out
	}
	return err
}
