package compile

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shipq/polyq/query"
)

func TestCompile_PlaceholderOrder(t *testing.T) {
	ast := query.Table("users").
		Gt("age", 18).
		Or(query.Cond("status", query.OpEq, "active"), query.Cond("status", query.OpEq, "pending")).
		Build()

	stmt, err := Compile(ast)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	wantSQL := "SELECT * FROM users WHERE age > $1 AND (status = $2 OR status = $3)"
	if stmt.SQL != wantSQL {
		t.Errorf("SQL mismatch:\n got: %s\nwant: %s", stmt.SQL, wantSQL)
	}
	if diff := cmp.Diff([]any{18, "active", "pending"}, stmt.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestCompile_NestedGroupsDepthFirst(t *testing.T) {
	ast := query.Table("orders").
		And(
			query.Cond("a", query.OpEq, 1),
			query.AnyOf(
				query.Cond("b", query.OpLt, 2),
				query.AllOf(query.Cond("c", query.OpGte, 3), query.Cond("d", query.OpIn, []int{4, 5})),
			),
			query.Cond("e", query.OpLte, 6),
		).
		Build()

	stmt, err := Compile(ast)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	wantSQL := "SELECT * FROM orders WHERE (a = $1 AND (b < $2 OR (c >= $3 AND d IN ($4, $5))) AND e <= $6)"
	if stmt.SQL != wantSQL {
		t.Errorf("SQL mismatch:\n got: %s\nwant: %s", stmt.SQL, wantSQL)
	}
	if diff := cmp.Diff([]any{1, 2, 3, 4, 5, 6}, stmt.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestCompile_EmptyIn(t *testing.T) {
	ast := query.Table("users").In("id", []any{}).Build()

	stmt, err := Compile(ast)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if stmt.SQL != "SELECT * FROM users WHERE 1=0" {
		t.Errorf("unexpected SQL: %s", stmt.SQL)
	}
	if len(stmt.Args) != 0 {
		t.Errorf("expected no args, got %v", stmt.Args)
	}
}

func TestCompile_EmptyGroupMatchesAll(t *testing.T) {
	ast := query.Table("users").Eq("name", "bob").Or().Build()

	stmt, err := Compile(ast)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if stmt.SQL != "SELECT * FROM users WHERE name = $1 AND 1=1" {
		t.Errorf("unexpected SQL: %s", stmt.SQL)
	}
}

func TestCompile_GroupByAggregation(t *testing.T) {
	ast := query.Table("sales").
		Eq("status", "paid").
		GroupBy("category", "year").
		Sum("amount", "total").
		Build()

	stmt, err := Compile(ast)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	wantSQL := "SELECT SUM(amount) AS total FROM sales WHERE status = $1 GROUP BY category, year"
	if stmt.SQL != wantSQL {
		t.Errorf("SQL mismatch:\n got: %s\nwant: %s", stmt.SQL, wantSQL)
	}
	if diff := cmp.Diff([]any{"paid"}, stmt.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestCompile_SelectShape(t *testing.T) {
	offsetOnly := query.Table("users").OrderBy("name", query.Asc).Offset(1).Build()

	tests := []struct {
		name     string
		dialect  Dialect // Postgres when nil
		ast      query.AST
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "projection",
			ast:     query.Table("users").Select("id", "name").Build(),
			wantSQL: "SELECT id, name FROM users",
		},
		{
			name:    "count rows",
			ast:     query.Table("users").Count("", "n").Build(),
			wantSQL: "SELECT COUNT(*) AS n FROM users",
		},
		{
			name:    "aggregations before projection",
			ast:     query.Table("users").Select("team").GroupBy("team").Avg("age", "").Build(),
			wantSQL: "SELECT AVG(age), team FROM users GROUP BY team",
		},
		{
			name:     "order limit offset",
			ast:      query.Table("users").OrderBy("age", query.Desc).Limit(10).Offset(20).Build(),
			wantSQL:  "SELECT * FROM users ORDER BY age DESC LIMIT $1 OFFSET $2",
			wantArgs: []any{10, 20},
		},
		{
			name:     "default direction ascending",
			ast:      query.Table("users").Eq("team", "a").OrderBy("age", "").Limit(1).Build(),
			wantSQL:  "SELECT * FROM users WHERE team = $1 ORDER BY age ASC LIMIT $2",
			wantArgs: []any{"a", 1},
		},
		{
			name:     "offset without limit postgres",
			ast:      offsetOnly,
			wantSQL:  "SELECT * FROM users ORDER BY name ASC OFFSET $1",
			wantArgs: []any{1},
		},
		{
			name:     "offset without limit mysql",
			dialect:  MySQL,
			ast:      offsetOnly,
			wantSQL:  "SELECT * FROM users ORDER BY name ASC LIMIT 18446744073709551615 OFFSET ?",
			wantArgs: []any{1},
		},
		{
			name:     "offset without limit sqlite",
			dialect:  SQLite,
			ast:      offsetOnly,
			wantSQL:  "SELECT * FROM users ORDER BY name ASC LIMIT -1 OFFSET ?",
			wantArgs: []any{1},
		},
		{
			name:     "zero limit",
			dialect:  SQLite,
			ast:      query.Table("users").Limit(0).Build(),
			wantSQL:  "SELECT * FROM users LIMIT ?",
			wantArgs: []any{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialect := tt.dialect
			if dialect == nil {
				dialect = Postgres
			}
			stmt, err := NewCompiler(dialect).Compile(tt.ast)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			if stmt.SQL != tt.wantSQL {
				t.Errorf("SQL mismatch:\n got: %s\nwant: %s", stmt.SQL, tt.wantSQL)
			}
			if diff := cmp.Diff(tt.wantArgs, stmt.Args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompile_Writes(t *testing.T) {
	data := map[string]any{"name": "alice", "age": 30}

	tests := []struct {
		name     string
		dialect  Dialect
		ast      query.AST
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "insert postgres",
			dialect:  Postgres,
			ast:      query.Table("users").Insert(data).Build(),
			wantSQL:  "INSERT INTO users (age, name) VALUES ($1, $2) RETURNING *",
			wantArgs: []any{30, "alice"},
		},
		{
			name:     "insert mysql has no returning",
			dialect:  MySQL,
			ast:      query.Table("users").Insert(data).Build(),
			wantSQL:  "INSERT INTO users (age, name) VALUES (?, ?)",
			wantArgs: []any{30, "alice"},
		},
		{
			name:     "insert sqlite",
			dialect:  SQLite,
			ast:      query.Table("users").Insert(data).Build(),
			wantSQL:  "INSERT INTO users (age, name) VALUES (?, ?) RETURNING *",
			wantArgs: []any{30, "alice"},
		},
		{
			name:     "update with filter",
			dialect:  Postgres,
			ast:      query.Table("users").Eq("id", 7).Update(data).Build(),
			wantSQL:  "UPDATE users SET age = $1, name = $2 WHERE id = $3",
			wantArgs: []any{30, "alice", 7},
		},
		{
			name:     "update without filter",
			dialect:  MySQL,
			ast:      query.Table("users").Update(map[string]any{"active": false}).Build(),
			wantSQL:  "UPDATE users SET active = ?",
			wantArgs: []any{false},
		},
		{
			name:     "delete",
			dialect:  Postgres,
			ast:      query.Table("users").In("id", []int{1, 2}).Delete().Build(),
			wantSQL:  "DELETE FROM users WHERE id IN ($1, $2)",
			wantArgs: []any{1, 2},
		},
		{
			name:    "delete everything",
			dialect: SQLite,
			ast:     query.Table("users").Delete().Build(),
			wantSQL: "DELETE FROM users",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := NewCompiler(tt.dialect).Compile(tt.ast)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			if stmt.SQL != tt.wantSQL {
				t.Errorf("SQL mismatch:\n got: %s\nwant: %s", stmt.SQL, tt.wantSQL)
			}
			if diff := cmp.Diff(tt.wantArgs, stmt.Args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		ast  query.AST
	}{
		{"empty table", query.AST{Kind: query.SelectQuery}},
		{"unknown kind", query.AST{Kind: "merge", Table: "users"}},
		{"insert without data", query.AST{Kind: query.InsertQuery, Table: "users"}},
		{"update with empty data", query.AST{Kind: query.UpdateQuery, Table: "users", Data: map[string]any{}}},
		{"select with data", query.AST{Kind: query.SelectQuery, Table: "users", Data: map[string]any{"a": 1}}},
		{"unknown operator", query.Table("users").Where("age", "like", 1).Build()},
		{"in with scalar", query.Table("users").In("id", 5).Build()},
		{"bad identifier", query.Table("users; DROP TABLE users").Build()},
		{"negative limit", query.Table("users").Limit(-1).Build()},
		{"unknown aggregate", query.Table("users").Aggregate("median", "age", "").Build()},
		{"unknown logical op", query.AST{Kind: query.SelectQuery, Table: "users", LogicalGroups: []query.Group{{Op: "XOR"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Compile(tt.ast)
			if err == nil {
				t.Fatalf("expected error, got SQL: %s", stmt.SQL)
			}
			var ce *query.CompilationError
			if !errors.As(err, &ce) {
				t.Errorf("expected *query.CompilationError, got %T: %v", err, err)
			}
			if stmt.SQL != "" || stmt.Args != nil {
				t.Errorf("expected no partial output, got %+v", stmt)
			}
		})
	}
}

func TestCompile_ReusedCompilerResetsArgs(t *testing.T) {
	c := NewCompiler(Postgres)

	if _, err := c.Compile(query.Table("users").Eq("a", 1).Build()); err != nil {
		t.Fatalf("first compile failed: %v", err)
	}
	stmt, err := c.Compile(query.Table("users").Eq("b", 2).Build())
	if err != nil {
		t.Fatalf("second compile failed: %v", err)
	}

	if stmt.SQL != "SELECT * FROM users WHERE b = $1" {
		t.Errorf("unexpected SQL: %s", stmt.SQL)
	}
	if diff := cmp.Diff([]any{2}, stmt.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestDialectFor(t *testing.T) {
	for _, name := range []string{"postgres", "mysql", "sqlite"} {
		d, err := DialectFor(name)
		if err != nil {
			t.Fatalf("DialectFor(%q) failed: %v", name, err)
		}
		if d.Name() != name {
			t.Errorf("DialectFor(%q).Name() = %q", name, d.Name())
		}
	}
	if _, err := DialectFor("oracle"); err == nil {
		t.Error("expected error for unsupported dialect")
	}
}
