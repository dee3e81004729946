// Package sqlbackend runs compiled statements on PostgreSQL, MySQL and
// SQLite through database/sql.
//
// Importing the package registers it with backend.Open for the postgres,
// mysql and sqlite dialects.
package sqlbackend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/shipq/polyq/backend"
	"github.com/shipq/polyq/capability"
	"github.com/shipq/polyq/dburl"
	"github.com/shipq/polyq/migrate"
	"github.com/shipq/polyq/query"
	"github.com/shipq/polyq/query/compile"
)

func init() {
	for _, d := range []string{dburl.DialectPostgres, dburl.DialectMySQL, dburl.DialectSQLite} {
		backend.Register(d, func(name, url string, opts ...backend.Option) (backend.Adapter, error) {
			return New(name, url, opts...)
		})
	}
}

// Adapter is a relational backend.
type Adapter struct {
	name     string
	driver   string
	dsn      string
	dialect  string
	compiler compile.Dialect
	opts     backend.Options

	db *sql.DB
}

// New creates an unconnected adapter for a postgres://, mysql:// or
// sqlite:// URL.
func New(name, url string, opts ...backend.Option) (*Adapter, error) {
	dialect, err := dburl.InferDialect(url)
	if err != nil {
		return nil, err
	}
	driver, dsn, err := dburl.DriverDSN(url)
	if err != nil {
		return nil, err
	}
	a, err := newAdapter(name, dialect, opts)
	if err != nil {
		return nil, err
	}
	a.driver = driver
	a.dsn = dsn
	return a, nil
}

// NewFromDB wraps an already open database handle. Connect is a no-op
// afterwards; Close closes the handle.
func NewFromDB(name string, db *sql.DB, dialect string, opts ...backend.Option) (*Adapter, error) {
	a, err := newAdapter(name, dialect, opts)
	if err != nil {
		return nil, err
	}
	a.db = db
	return a, nil
}

func newAdapter(name, dialect string, opts []backend.Option) (*Adapter, error) {
	cd, err := compile.DialectFor(dialect)
	if err != nil {
		return nil, err
	}

	o := backend.NewOptions(opts...)

	return &Adapter{
		name:     name,
		dialect:  dialect,
		compiler: cd,
		opts:     o,
	}, nil
}

func (a *Adapter) Name() string { return a.name }

// Dialect returns the SQL dialect name.
func (a *Adapter) Dialect() string { return a.dialect }

// DB returns the underlying handle, or nil before Connect.
func (a *Adapter) DB() *sql.DB { return a.db }

// Capabilities reports full relational support.
func (a *Adapter) Capabilities() capability.Set {
	return capability.Set{
		Transactions: true,
		Aggregation:  true,
		Joins:        true,
		SchemaSync:   true,
	}
}

// Connect opens and pings the database.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.db != nil {
		return nil
	}

	db, err := sql.Open(a.driver, a.dsn)
	if err != nil {
		return backend.Wrap(a.name, "connect", err)
	}
	// every connection to :memory: would see its own empty database
	if a.dialect == dburl.DialectSQLite && a.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return backend.Wrap(a.name, "connect", err)
	}

	a.db = db
	return nil
}

// Close closes the database handle.
func (a *Adapter) Close(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return backend.Wrap(a.name, "close", err)
}

// Compile lowers the AST to a compile.Statement for this dialect.
func (a *Adapter) Compile(ast query.AST) (fmt.Stringer, error) {
	stmt, err := compile.NewCompiler(a.compiler).Compile(ast)
	if err != nil {
		return nil, err
	}
	return stmt, nil
}

// Execute runs a statement produced by Compile.
func (a *Adapter) Execute(ctx context.Context, compiled fmt.Stringer) ([]query.Row, error) {
	if a.db == nil {
		return nil, backend.Wrap(a.name, "execute", errors.New("not connected"))
	}
	rows, err := run(ctx, a.db, compiled)
	return rows, backend.Wrap(a.name, "execute", err)
}

// Begin starts a transaction.
func (a *Adapter) Begin(ctx context.Context) (backend.Tx, error) {
	if a.db == nil {
		return nil, backend.Wrap(a.name, "begin", errors.New("not connected"))
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, backend.Wrap(a.name, "begin", err)
	}
	return &Tx{name: a.name, tx: tx}, nil
}

// PlanSync diffs the schemas against the live database.
func (a *Adapter) PlanSync(ctx context.Context, schemas []migrate.Schema) (migrate.Plan, error) {
	if a.db == nil {
		return migrate.Plan{}, backend.Wrap(a.name, "plan", errors.New("not connected"))
	}
	planner := migrate.RelationalPlanner{
		Dialect:   a.dialect,
		Inspector: migrate.SQLInspector{DB: a.db, Dialect: a.dialect},
		Options:   a.opts.Migrate,
	}
	plan, err := planner.Plan(ctx, schemas)
	if err != nil {
		return migrate.Plan{}, backend.Wrap(a.name, "plan", err)
	}
	return plan, nil
}

// Sync plans and applies schema changes, tolerating objects that already
// exist.
func (a *Adapter) Sync(ctx context.Context, schemas []migrate.Schema) error {
	plan, err := a.PlanSync(ctx, schemas)
	if err != nil {
		return err
	}
	logger := a.opts.Logger.With("backend", a.name)
	return backend.Wrap(a.name, "sync", migrate.Sync(ctx, plan, migrate.SQLApplier{DB: a.db}, logger))
}

// Tx is a database/sql transaction.
type Tx struct {
	name string
	tx   *sql.Tx
}

func (t *Tx) Execute(ctx context.Context, compiled fmt.Stringer) ([]query.Row, error) {
	rows, err := run(ctx, t.tx, compiled)
	return rows, backend.Wrap(t.name, "execute", err)
}

func (t *Tx) Commit(ctx context.Context) error {
	return backend.Wrap(t.name, "commit", t.tx.Commit())
}

func (t *Tx) Rollback(ctx context.Context) error {
	return backend.Wrap(t.name, "rollback", t.tx.Rollback())
}
