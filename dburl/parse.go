package dburl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Supported backend dialects
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
	DialectMongo    = "mongodb"
)

var (
	ErrUnknownDialect = errors.New("unknown database dialect")
	ErrInvalidURL     = errors.New("invalid database URL")
)

// InferDialect returns the dialect ("postgres", "mysql", "sqlite" or
// "mongodb") based on the URL scheme.
func InferDialect(dbURL string) (string, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "postgres", "postgresql":
		return DialectPostgres, nil
	case "mysql":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "mongodb", "mongodb+srv":
		return DialectMongo, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownDialect, scheme)
	}
}

// IsDocument reports whether the dialect is served by a document store.
func IsDocument(dialect string) bool {
	return dialect == DialectMongo
}

// DriverDSN returns the database/sql driver name and DSN for a relational
// URL. Postgres URLs pass through to pgx unchanged; mysql:// URLs are
// rewritten to the go-sql-driver DSN format; sqlite URLs become file paths.
func DriverDSN(dbURL string) (driver, dsn string, err error) {
	dialect, err := InferDialect(dbURL)
	if err != nil {
		return "", "", err
	}

	switch dialect {
	case DialectPostgres:
		return "pgx", dbURL, nil
	case DialectMySQL:
		dsn, err := MySQLURLToDSN(dbURL)
		if err != nil {
			return "", "", err
		}
		return "mysql", dsn, nil
	case DialectSQLite:
		return "sqlite", SQLiteURLToPath(dbURL), nil
	default:
		return "", "", fmt.Errorf("%w: %s is not a SQL dialect", ErrUnknownDialect, dialect)
	}
}

// MySQLURLToDSN converts a mysql:// URL to a MySQL driver DSN.
// Format: user:password@tcp(host:port)/dbname?params
func MySQLURLToDSN(mysqlURL string) (string, error) {
	u, err := url.Parse(mysqlURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	// Scan DATETIME/TIMESTAMP into time.Time like the other drivers do.
	cfg.ParseTime = true

	q := u.Query()
	if len(q) > 0 {
		cfg.Params = make(map[string]string, len(q))
		for k := range q {
			cfg.Params[k] = q.Get(k)
		}
	}

	return cfg.FormatDSN(), nil
}

// SQLiteURLToPath extracts the file path from a SQLite URL.
func SQLiteURLToPath(sqliteURL string) string {
	for _, prefix := range []string{"sqlite3://", "sqlite://", "sqlite3:", "sqlite:"} {
		if strings.HasPrefix(sqliteURL, prefix) {
			return sqliteURL[len(prefix):]
		}
	}
	return sqliteURL
}

// IsLocalhost returns true if the URL points to localhost (127.0.0.1, localhost, or ::1).
// For SQLite URLs, this always returns true since SQLite is file-based.
func IsLocalhost(dbURL string) bool {
	u, err := url.Parse(dbURL)
	if err != nil {
		return false
	}

	scheme := strings.ToLower(u.Scheme)

	// SQLite is always local
	if scheme == "sqlite" || scheme == "sqlite3" {
		return true
	}

	host := strings.ToLower(u.Hostname())
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// ParseDatabaseName extracts the database name from a URL.
// Returns an empty string if no database name is present.
func ParseDatabaseName(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return ""
	}

	// Remove leading slash from path
	return strings.TrimPrefix(u.Path, "/")
}

// Redact returns the URL with any password replaced, for logs.
func Redact(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
