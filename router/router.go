// Package router sends each query to a named backend chosen by its intent
// and reports execution timings to observers.
//
// Routing is a fixed lookup on which role names are registered:
//
//	aggregate -> analytics, else primary
//	read      -> replica, else primary
//	anything  -> primary
//
// A Router is an ordinary value owned by the caller. Nothing is registered
// globally.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shipq/polyq/backend"
	"github.com/shipq/polyq/capability"
	"github.com/shipq/polyq/migrate"
	"github.com/shipq/polyq/query"
)

// Role names with routing meaning. Other names can be registered and
// reached through ExecuteOn.
const (
	Primary   = "primary"
	Replica   = "replica"
	Analytics = "analytics"
)

// ErrNoBackend is returned when neither the preferred role nor the primary
// is registered.
var ErrNoBackend = errors.New("no backend registered")

// Metrics describes one execution. Plan covers capability validation and
// compilation, Exec covers the backend round trip, Total is wall-clock.
type Metrics struct {
	ID       uuid.UUID
	Backend  string
	Intent   query.Intent
	Kind     query.Kind
	Table    string
	Plan     time.Duration
	Exec     time.Duration
	Total    time.Duration
	Rows     int
	Err      error
	Compiled fmt.Stringer
	AST      query.AST
}

// Observer receives Metrics after every execution that reached a backend.
// Observers run synchronously on the caller's goroutine.
type Observer interface {
	Observe(ctx context.Context, m Metrics)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, m Metrics)

func (f ObserverFunc) Observe(ctx context.Context, m Metrics) { f(ctx, m) }

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger used for sync and transaction diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) Option {
	return func(r *Router) { r.observers = append(r.observers, o) }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// Router holds named backends and observers.
type Router struct {
	mu        sync.RWMutex
	backends  map[string]backend.Adapter
	order     []string
	observers []Observer

	logger *slog.Logger
	now    func() time.Time
}

// New creates an empty router.
func New(opts ...Option) *Router {
	r := &Router{
		backends: make(map[string]backend.Adapter),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r
}

// Register adds or replaces the backend under name.
func (r *Router) Register(name string, a backend.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.backends[name]; !ok {
		r.order = append(r.order, name)
	}
	r.backends[name] = a
}

// Unregister removes a backend. It returns the removed adapter so the
// caller can close it.
func (r *Router) Unregister(name string) (backend.Adapter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.backends[name]
	if !ok {
		return nil, false
	}
	delete(r.backends, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return a, true
}

// Observe appends an observer. Observers are called in registration order.
func (r *Router) Observe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Backend returns the adapter registered under name.
func (r *Router) Backend(name string) (backend.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.backends[name]
	return a, ok
}

// Names returns the registered backend names in registration order.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Resolve picks the backend for an intent.
func (r *Router) Resolve(intent query.Intent) (backend.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var preferred string
	switch intent {
	case query.IntentAggregate:
		preferred = Analytics
	case query.IntentRead:
		preferred = Replica
	}
	if preferred != "" {
		if a, ok := r.backends[preferred]; ok {
			return a, nil
		}
	}
	if a, ok := r.backends[Primary]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("resolve %q: %w", intent, ErrNoBackend)
}

// Execute routes ast by its intent and runs it.
func (r *Router) Execute(ctx context.Context, ast query.AST) ([]query.Row, error) {
	a, err := r.Resolve(ast.Intent)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, a, ast, a.Execute)
}

// ExecuteOn runs ast on the named backend, bypassing intent routing.
func (r *Router) ExecuteOn(ctx context.Context, name string, ast query.AST) ([]query.Row, error) {
	a, ok := r.Backend(name)
	if !ok {
		return nil, fmt.Errorf("backend %q: %w", name, ErrNoBackend)
	}
	return r.run(ctx, a, ast, a.Execute)
}

type executeFunc func(ctx context.Context, compiled fmt.Stringer) ([]query.Row, error)

func (r *Router) run(ctx context.Context, a backend.Adapter, ast query.AST, exec executeFunc) ([]query.Row, error) {
	start := r.now()

	if err := capability.Validate(ast, a.Capabilities()); err != nil {
		return nil, capability.ForBackend(err, a.Name())
	}
	compiled, err := a.Compile(ast)
	if err != nil {
		return nil, err
	}
	planned := r.now()

	rows, err := exec(ctx, compiled)
	if err != nil {
		var be *backend.Error
		if !errors.As(err, &be) {
			err = backend.Wrap(a.Name(), "execute", err)
		}
	}
	done := r.now()

	r.notify(ctx, Metrics{
		ID:       uuid.New(),
		Backend:  a.Name(),
		Intent:   ast.Intent,
		Kind:     ast.Kind,
		Table:    ast.Table,
		Plan:     planned.Sub(start),
		Exec:     done.Sub(planned),
		Total:    done.Sub(start),
		Rows:     len(rows),
		Err:      err,
		Compiled: compiled,
		AST:      ast,
	})

	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Router) notify(ctx context.Context, m Metrics) {
	r.mu.RLock()
	observers := append([]Observer(nil), r.observers...)
	r.mu.RUnlock()

	for _, o := range observers {
		o.Observe(ctx, m)
	}
}

// =============================================================================
// Transactions
// =============================================================================

// Tx runs queries inside a transaction on the primary backend. Queries go
// through the same validation, compilation and observers as Execute.
type Tx struct {
	r  *Router
	a  backend.Adapter
	tx backend.Tx
}

// Execute runs ast inside the transaction. The AST's intent is ignored.
func (t *Tx) Execute(ctx context.Context, ast query.AST) ([]query.Row, error) {
	return t.r.run(ctx, t.a, ast, t.tx.Execute)
}

// Transaction runs fn in a transaction on the primary. It commits when fn
// returns nil and rolls back otherwise. Other backends are not involved.
func (r *Router) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	a, ok := r.Backend(Primary)
	if !ok {
		return fmt.Errorf("transaction: %w", ErrNoBackend)
	}
	if err := capability.Require(a.Capabilities(), capability.Transactions); err != nil {
		return capability.ForBackend(err, a.Name())
	}

	btx, err := a.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(ctx, &Tx{r: r, a: a, tx: btx}); err != nil {
		if rbErr := btx.Rollback(ctx); rbErr != nil {
			r.logger.Error("transaction_rollback_failed", "backend", a.Name(), "error", rbErr)
			return errors.Join(err, rbErr)
		}
		return err
	}
	return btx.Commit(ctx)
}

// =============================================================================
// Schema sync
// =============================================================================

type named struct {
	name string
	a    backend.Adapter
}

func (r *Router) syncable() ([]named, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []named
	for _, name := range r.order {
		a := r.backends[name]
		if a.Capabilities().SchemaSync {
			out = append(out, named{name: name, a: a})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no backend supports %s: %w", capability.SchemaSync, ErrNoBackend)
	}
	return out, nil
}

// PlanSync plans every backend that supports schema sync. Backends are
// independent so they are planned concurrently. The result is keyed by
// backend name.
func (r *Router) PlanSync(ctx context.Context, schemas []migrate.Schema) (map[string]migrate.Plan, error) {
	adapters, err := r.syncable()
	if err != nil {
		return nil, err
	}

	plans := make([]migrate.Plan, len(adapters))
	g, ctx := errgroup.WithContext(ctx)
	for i, n := range adapters {
		g.Go(func() error {
			p, err := n.a.PlanSync(ctx, schemas)
			if err != nil {
				return err
			}
			plans[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]migrate.Plan, len(adapters))
	for i, n := range adapters {
		out[n.name] = plans[i]
	}
	return out, nil
}

// Sync applies schemas to every backend that supports schema sync, one
// backend at a time in registration order.
func (r *Router) Sync(ctx context.Context, schemas []migrate.Schema) error {
	adapters, err := r.syncable()
	if err != nil {
		return err
	}
	for _, n := range adapters {
		r.logger.Info("sync_started", "backend", n.name, "schemas", len(schemas))
		if err := n.a.Sync(ctx, schemas); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every registered backend and joins the errors.
func (r *Router) Close(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, name := range r.order {
		if err := r.backends[name].Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
