package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shipq/polyq/query"
	"github.com/shipq/polyq/query/compile"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func run(ctx context.Context, q querier, compiled fmt.Stringer) ([]query.Row, error) {
	stmt, ok := compiled.(compile.Statement)
	if !ok {
		return nil, fmt.Errorf("expected compile.Statement, got %T", compiled)
	}

	if stmt.ReturnsRows() {
		rows, err := q.QueryContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanRows(rows)
	}

	res, err := q.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}

	// Without RETURNING an insert reports only the generated key.
	if stmt.Kind == query.InsertQuery {
		if id, err := res.LastInsertId(); err == nil {
			return []query.Row{{"id": id}}, nil
		}
	}
	return []query.Row{}, nil
}

// scanRows reads every row into a map keyed by column name. Text that the
// driver returns as []byte is converted to string.
func scanRows(rows *sql.Rows) ([]query.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	out := []query.Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(query.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return out, nil
}
