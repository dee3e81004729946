// Package backend defines the contract between the router and a concrete
// data store.
//
// An adapter compiles an AST into its own native form and later executes
// exactly that compiled value. Adapters register a Factory per dialect so
// Open can build one from a URL, the way database/sql drivers do.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shipq/polyq/capability"
	"github.com/shipq/polyq/dburl"
	"github.com/shipq/polyq/migrate"
	"github.com/shipq/polyq/query"
)

// Adapter is a connected (or connectable) backend.
type Adapter interface {
	// Name is the stable name used in metrics and errors.
	Name() string

	Capabilities() capability.Set

	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	// Compile lowers an AST into the adapter's native form. The returned
	// value is handed back unchanged to Execute.
	Compile(ast query.AST) (fmt.Stringer, error)
	Execute(ctx context.Context, compiled fmt.Stringer) ([]query.Row, error)

	Begin(ctx context.Context) (Tx, error)

	PlanSync(ctx context.Context, schemas []migrate.Schema) (migrate.Plan, error)
	Sync(ctx context.Context, schemas []migrate.Schema) error
}

// Tx is a transaction on a single backend.
type Tx interface {
	Execute(ctx context.Context, compiled fmt.Stringer) ([]query.Row, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Error wraps an opaque failure from a backend. The driver error is kept
// as is and never interpreted or retried.
type Error struct {
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns err as a *Error for the given backend and operation, or nil
// when err is nil.
func Wrap(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Backend: backend, Op: op, Err: err}
}

// Options configures an adapter.
type Options struct {
	Logger  *slog.Logger
	Migrate migrate.Options
}

// Option mutates Options.
type Option func(*Options)

func WithLogger(l *slog.Logger) Option            { return func(o *Options) { o.Logger = l } }
func WithMigrateOptions(m migrate.Options) Option { return func(o *Options) { o.Migrate = m } }

// NewOptions applies opts over the defaults. A nil logger discards.
func NewOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Factory builds an unconnected adapter for a URL.
type Factory func(name, url string, opts ...Option) (Adapter, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a factory available for a dialect. It panics when called
// twice for the same dialect.
func Register(dialect string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if f == nil {
		panic("backend: Register factory is nil")
	}
	if _, dup := factories[dialect]; dup {
		panic("backend: Register called twice for dialect " + dialect)
	}
	factories[dialect] = f
}

// Dialects returns the registered dialect names, sorted.
func Dialects() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	out := make([]string, 0, len(factories))
	for d := range factories {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Open builds an adapter named name for the URL using the factory
// registered for the URL's dialect. The adapter is not connected.
func Open(name, url string, opts ...Option) (Adapter, error) {
	dialect, err := dburl.InferDialect(url)
	if err != nil {
		return nil, err
	}

	factoriesMu.RLock()
	f, ok := factories[dialect]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no backend registered for dialect %s (forgotten import?)", dialect)
	}

	return f(name, url, opts...)
}
