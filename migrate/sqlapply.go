package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
)

// Postgres SQLSTATE codes for objects that already exist.
const (
	pgDuplicateColumn = "42701"
	pgDuplicateTable  = "42P07"
)

// MySQL error numbers for objects that already exist.
const (
	mysqlDupFieldName = 1060
	mysqlTableExists  = 1050
)

// SQLApplier executes relational operations on a database/sql handle.
type SQLApplier struct {
	DB *sql.DB
}

// Apply runs the operation's SQL statement.
func (a SQLApplier) Apply(ctx context.Context, op Operation) error {
	if op.Family != Relational {
		return fmt.Errorf("cannot apply %s operation to a relational database", op.Family)
	}
	_, err := a.DB.ExecContext(ctx, op.SQL)
	return err
}

// IsConflict reports duplicate-column and duplicate-table errors from any of
// the supported drivers.
func (a SQLApplier) IsConflict(err error) bool {
	return IsSQLConflict(err)
}

// IsSQLConflict reports whether err means a table or column already exists.
func IsSQLConflict(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgDuplicateColumn || pgErr.Code == pgDuplicateTable
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDupFieldName || myErr.Number == mysqlTableExists
	}

	// modernc.org/sqlite reports these as generic SQLITE_ERROR, so the
	// message is the only signal.
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		msg := liteErr.Error()
		return strings.Contains(msg, "duplicate column name") || strings.Contains(msg, "already exists")
	}
	return false
}
