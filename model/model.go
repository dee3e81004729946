// Package model pairs a schema with a backend and a router so callers can
// query one logical table without repeating where it lives.
package model

import (
	"context"
	"fmt"

	"github.com/shipq/polyq/migrate"
	"github.com/shipq/polyq/query"
	"github.com/shipq/polyq/router"
)

// Model is a plain handle. It is built once and passed around; it holds no
// connection of its own.
type Model struct {
	Schema migrate.Schema
	// Backend pins every query to a named backend. When empty, queries are
	// routed by intent.
	Backend string
	Router  *router.Router
}

// New returns a handle for schema on r.
func New(r *router.Router, schema migrate.Schema, backend string) Model {
	return Model{Schema: schema, Backend: backend, Router: r}
}

// Query starts a builder on the model's table.
func (m Model) Query() *query.Builder {
	return query.Table(m.Schema.Name)
}

// Run executes a builder started from Query.
func (m Model) Run(ctx context.Context, b *query.Builder) ([]query.Row, error) {
	ast := b.Build()
	if ast.Table != m.Schema.Name {
		return nil, fmt.Errorf("model %s: query targets table %q", m.Schema.Name, ast.Table)
	}
	if m.Backend != "" {
		return m.Router.ExecuteOn(ctx, m.Backend, ast)
	}
	return m.Router.Execute(ctx, ast)
}

// All returns every row.
func (m Model) All(ctx context.Context) ([]query.Row, error) {
	return m.Run(ctx, m.Query().Intent(query.IntentRead))
}

// Create inserts one row and returns what the backend reported for it.
func (m Model) Create(ctx context.Context, data map[string]any) (query.Row, error) {
	rows, err := m.Run(ctx, m.Query().Insert(data).Intent(query.IntentWrite))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return query.Row{}, nil
	}
	return rows[0], nil
}

// Sync brings the model's backend in line with its schema. Without a
// pinned backend the primary is used.
func (m Model) Sync(ctx context.Context) error {
	name := m.Backend
	if name == "" {
		name = router.Primary
	}
	a, ok := m.Router.Backend(name)
	if !ok {
		return fmt.Errorf("model %s: backend %q: %w", m.Schema.Name, name, router.ErrNoBackend)
	}
	return a.Sync(ctx, []migrate.Schema{m.Schema})
}
