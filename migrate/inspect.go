package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLInspector reads table and column names from a live database.
type SQLInspector struct {
	DB      *sql.DB
	Dialect string
}

// Tables returns the list of all user table names in the database.
func (i SQLInspector) Tables(ctx context.Context) ([]string, error) {
	var querySQL string

	switch i.Dialect {
	case Postgres:
		querySQL = `
			SELECT tablename FROM pg_tables
			WHERE schemaname = current_schema()
			ORDER BY tablename`
	case MySQL:
		querySQL = `
			SELECT table_name FROM information_schema.tables
			WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
			ORDER BY table_name`
	case SQLite:
		querySQL = `
			SELECT name FROM sqlite_master
			WHERE type='table' AND name NOT LIKE 'sqlite_%'
			ORDER BY name`
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", i.Dialect)
	}

	return i.names(ctx, querySQL)
}

// Columns returns the column names of a table in ordinal order.
func (i SQLInspector) Columns(ctx context.Context, table string) ([]string, error) {
	switch i.Dialect {
	case Postgres:
		return i.names(ctx, `
			SELECT column_name FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1
			ORDER BY ordinal_position`, strings.ToLower(table))
	case MySQL:
		return i.names(ctx, `
			SELECT column_name FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ?
			ORDER BY ordinal_position`, table)
	case SQLite:
		return i.names(ctx, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, table)
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", i.Dialect)
	}
}

func (i SQLInspector) names(ctx context.Context, querySQL string, args ...any) ([]string, error) {
	rows, err := i.DB.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating names: %w", err)
	}

	return names, nil
}
