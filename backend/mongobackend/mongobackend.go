// Package mongobackend runs compiled document commands on MongoDB.
//
// Importing the package registers it with backend.Open for mongodb:// and
// mongodb+srv:// URLs.
package mongobackend

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shipq/polyq/backend"
	"github.com/shipq/polyq/capability"
	"github.com/shipq/polyq/dburl"
	"github.com/shipq/polyq/migrate"
	"github.com/shipq/polyq/query"
	"github.com/shipq/polyq/query/docstore"
)

func init() {
	backend.Register(dburl.DialectMongo, func(name, url string, opts ...backend.Option) (backend.Adapter, error) {
		return New(name, url, opts...)
	})
}

// Adapter is a document backend.
type Adapter struct {
	name     string
	url      string
	database string
	opts     backend.Options

	client *mongo.Client
	db     *mongo.Database
}

// New creates an unconnected adapter. The database is taken from the URL
// path.
func New(name, url string, opts ...backend.Option) (*Adapter, error) {
	dialect, err := dburl.InferDialect(url)
	if err != nil {
		return nil, err
	}
	if dialect != dburl.DialectMongo {
		return nil, fmt.Errorf("mongobackend: unsupported dialect %s", dialect)
	}
	database := dburl.ParseDatabaseName(url)
	if database == "" {
		return nil, fmt.Errorf("mongobackend: no database name in URL %s", dburl.Redact(url))
	}

	o := backend.NewOptions(opts...)

	return &Adapter{name: name, url: url, database: database, opts: o}, nil
}

func (a *Adapter) Name() string { return a.name }

// Database returns the database name.
func (a *Adapter) Database() string { return a.database }

// Capabilities reports what a replica-set MongoDB deployment offers.
// Multi-document transactions need a replica set or sharded cluster.
func (a *Adapter) Capabilities() capability.Set {
	return capability.Set{
		Transactions: true,
		Aggregation:  true,
		Joins:        false,
		SchemaSync:   true,
	}
}

// Connect dials the server and pings it.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.client != nil {
		return nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(a.url))
	if err != nil {
		return backend.Wrap(a.name, "connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return backend.Wrap(a.name, "connect", err)
	}

	a.client = client
	a.db = client.Database(a.database)
	return nil
}

// Close disconnects the client.
func (a *Adapter) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	err := a.client.Disconnect(ctx)
	a.client = nil
	a.db = nil
	return backend.Wrap(a.name, "close", err)
}

// Compile lowers the AST to a docstore.Command.
func (a *Adapter) Compile(ast query.AST) (fmt.Stringer, error) {
	cmd, err := docstore.Compile(ast)
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

// Execute runs a command produced by Compile.
func (a *Adapter) Execute(ctx context.Context, compiled fmt.Stringer) ([]query.Row, error) {
	if a.db == nil {
		return nil, backend.Wrap(a.name, "execute", errors.New("not connected"))
	}
	rows, err := run(ctx, a.db, compiled)
	return rows, backend.Wrap(a.name, "execute", err)
}

// Begin starts a session with a multi-document transaction.
func (a *Adapter) Begin(ctx context.Context) (backend.Tx, error) {
	if a.client == nil {
		return nil, backend.Wrap(a.name, "begin", errors.New("not connected"))
	}
	sess, err := a.client.StartSession()
	if err != nil {
		return nil, backend.Wrap(a.name, "begin", err)
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, backend.Wrap(a.name, "begin", err)
	}
	return &Tx{name: a.name, db: a.db, sess: sess}, nil
}

// PlanSync diffs the schemas against the live collections.
func (a *Adapter) PlanSync(ctx context.Context, schemas []migrate.Schema) (migrate.Plan, error) {
	if a.db == nil {
		return migrate.Plan{}, backend.Wrap(a.name, "plan", errors.New("not connected"))
	}
	planner := migrate.DocumentPlanner{
		Inspector: collections{db: a.db},
		Options:   a.opts.Migrate,
	}
	plan, err := planner.Plan(ctx, schemas)
	if err != nil {
		return migrate.Plan{}, backend.Wrap(a.name, "plan", err)
	}
	return plan, nil
}

// Sync plans and applies collection and validator changes.
func (a *Adapter) Sync(ctx context.Context, schemas []migrate.Schema) error {
	plan, err := a.PlanSync(ctx, schemas)
	if err != nil {
		return err
	}
	logger := a.opts.Logger.With("backend", a.name)
	return backend.Wrap(a.name, "sync", migrate.Sync(ctx, plan, commandApplier{db: a.db}, logger))
}

// Tx is a MongoDB session transaction.
type Tx struct {
	name string
	db   *mongo.Database
	sess mongo.Session
}

func (t *Tx) Execute(ctx context.Context, compiled fmt.Stringer) ([]query.Row, error) {
	rows, err := run(mongo.NewSessionContext(ctx, t.sess), t.db, compiled)
	return rows, backend.Wrap(t.name, "execute", err)
}

func (t *Tx) Commit(ctx context.Context) error {
	defer t.sess.EndSession(ctx)
	return backend.Wrap(t.name, "commit", t.sess.CommitTransaction(ctx))
}

func (t *Tx) Rollback(ctx context.Context) error {
	defer t.sess.EndSession(ctx)
	return backend.Wrap(t.name, "rollback", t.sess.AbortTransaction(ctx))
}

// =============================================================================
// Migration plumbing
// =============================================================================

// namespaceExists is the server error code for creating a collection that
// already exists.
const namespaceExists = 48

type collections struct {
	db *mongo.Database
}

func (c collections) Collections(ctx context.Context) ([]string, error) {
	return c.db.ListCollectionNames(ctx, bson.D{})
}

type commandApplier struct {
	db *mongo.Database
}

func (c commandApplier) Apply(ctx context.Context, op migrate.Operation) error {
	if op.Family != migrate.Document {
		return fmt.Errorf("cannot apply %s operation to a document database", op.Family)
	}
	return c.db.RunCommand(ctx, op.Command).Err()
}

func (c commandApplier) IsConflict(err error) bool {
	return IsConflict(err)
}

// IsConflict reports whether err is a NamespaceExists command error.
func IsConflict(err error) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return ce.Code == namespaceExists
	}
	return false
}
