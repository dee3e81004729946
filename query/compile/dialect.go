package compile

import "fmt"

// Dialect defines the SQL dialect-specific behavior for compilation.
// Each dialect (Postgres, MySQL, SQLite) implements this interface
// to customize placeholders and optional clauses.
type Dialect interface {
	// Name returns the dialect name for debugging/logging.
	Name() string

	// Placeholder returns the parameter placeholder for the given index (1-based).
	// Postgres uses $1, $2, etc. MySQL and SQLite use ?.
	Placeholder(index int) string

	// SupportsReturning returns true if the dialect supports the RETURNING clause
	// in INSERT statements. Postgres and SQLite (3.35+) support this,
	// MySQL does not (it uses LAST_INSERT_ID() instead).
	SupportsReturning() bool

	// NoLimit returns the LIMIT literal that stands for "all rows", written
	// before an OFFSET that has no limit. Empty when OFFSET may stand alone.
	NoLimit() string
}

// PostgresDialect implements Dialect for PostgreSQL.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) SupportsReturning() bool { return true }

func (d *PostgresDialect) NoLimit() string { return "" }

// MySQLDialect implements Dialect for MySQL.
type MySQLDialect struct{}

func (d *MySQLDialect) Name() string { return "mysql" }

func (d *MySQLDialect) Placeholder(index int) string { return "?" }

func (d *MySQLDialect) SupportsReturning() bool { return false }

// NoLimit is the largest unsigned BIGINT, which is how MySQL spells "no limit".
func (d *MySQLDialect) NoLimit() string { return "18446744073709551615" }

// SQLiteDialect implements Dialect for SQLite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string { return "?" }

func (d *SQLiteDialect) SupportsReturning() bool { return true }

func (d *SQLiteDialect) NoLimit() string { return "-1" }

var (
	// Postgres is the singleton PostgreSQL dialect.
	Postgres Dialect = &PostgresDialect{}

	// MySQL is the singleton MySQL dialect.
	MySQL Dialect = &MySQLDialect{}

	// SQLite is the singleton SQLite dialect.
	SQLite Dialect = &SQLiteDialect{}
)

// DialectFor returns the dialect with the given name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case "postgres":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", name)
	}
}
