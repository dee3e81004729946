// Package compile lowers a query AST into a parameterized SQL statement.
//
// Every literal becomes a positional argument. Placeholder n always refers
// to Args[n-1]; values are appended left to right, depth first, in the
// order they appear in the statement text.
package compile

import (
	"sort"
	"strings"

	"github.com/shipq/polyq/query"
)

// Statement is the output of compiling an AST to SQL.
type Statement struct {
	// SQL is the statement text with dialect placeholders.
	SQL string

	// Args holds the positional values, in placeholder order.
	Args []any

	// Kind is the kind of the compiled query.
	Kind query.Kind

	// Returning is set when a write statement yields rows (RETURNING *).
	Returning bool
}

// ReturnsRows reports whether the statement produces a result set.
func (s Statement) ReturnsRows() bool {
	return s.Kind == query.SelectQuery || s.Returning
}

// String returns the SQL text.
func (s Statement) String() string { return s.SQL }

// Compiler compiles AST to SQL for a specific dialect.
type Compiler struct {
	dialect Dialect
	args    []any
}

// NewCompiler creates a new compiler for the given dialect.
func NewCompiler(dialect Dialect) *Compiler {
	return &Compiler{dialect: dialect}
}

// Compile compiles an AST to SQL using the Postgres dialect.
func Compile(ast query.AST) (Statement, error) {
	return NewCompiler(Postgres).Compile(ast)
}

// Compile compiles an AST to SQL.
// A *query.CompilationError is returned for structurally invalid ASTs;
// no partial output is produced.
func (c *Compiler) Compile(ast query.AST) (Statement, error) {
	if err := query.ValidateAST(ast); err != nil {
		return Statement{}, err
	}

	c.args = nil

	var (
		sql string
		err error
	)
	switch ast.Kind {
	case query.SelectQuery:
		sql, err = c.compileSelect(ast)
	case query.InsertQuery:
		sql = c.compileInsert(ast)
	case query.UpdateQuery:
		sql, err = c.compileUpdate(ast)
	case query.DeleteQuery:
		sql, err = c.compileDelete(ast)
	default:
		err = query.Errorf("unknown query kind: %s", ast.Kind)
	}
	if err != nil {
		return Statement{}, err
	}

	return Statement{
		SQL:       sql,
		Args:      c.args,
		Kind:      ast.Kind,
		Returning: ast.Kind == query.InsertQuery && c.dialect.SupportsReturning(),
	}, nil
}

// =============================================================================
// SELECT Compilation
// =============================================================================

func (c *Compiler) compileSelect(ast query.AST) (string, error) {
	var b strings.Builder

	b.WriteString("SELECT ")
	cols := selectList(ast)
	if len(cols) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(cols, ", "))
	}

	b.WriteString(" FROM ")
	b.WriteString(ast.Table)

	if err := c.writeWhere(&b, ast); err != nil {
		return "", err
	}

	if len(ast.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(ast.GroupBy, ", "))
	}

	if ast.OrderBy != nil {
		b.WriteString(" ORDER BY ")
		b.WriteString(ast.OrderBy.Field)
		if ast.OrderBy.Direction == query.Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}

	switch {
	case ast.Limit != nil:
		b.WriteString(" LIMIT ")
		b.WriteString(c.bind(*ast.Limit))
	case ast.Offset != nil && c.dialect.NoLimit() != "":
		// MySQL and SQLite only accept OFFSET after a LIMIT
		b.WriteString(" LIMIT ")
		b.WriteString(c.dialect.NoLimit())
	}

	if ast.Offset != nil {
		b.WriteString(" OFFSET ")
		b.WriteString(c.bind(*ast.Offset))
	}

	return b.String(), nil
}

// selectList renders aggregations followed by the projection.
func selectList(ast query.AST) []string {
	var cols []string
	for _, agg := range ast.Aggregations {
		arg := agg.Field
		if agg.CountsRows() {
			arg = "*"
		}
		col := strings.ToUpper(string(agg.Func)) + "(" + arg + ")"
		if agg.Alias != "" {
			col += " AS " + agg.Alias
		}
		cols = append(cols, col)
	}
	return append(cols, ast.Projection...)
}

// =============================================================================
// INSERT / UPDATE / DELETE Compilation
// =============================================================================

func (c *Compiler) compileInsert(ast query.AST) string {
	var b strings.Builder

	keys := sortedKeys(ast.Data)

	b.WriteString("INSERT INTO ")
	b.WriteString(ast.Table)
	b.WriteString(" (")
	b.WriteString(strings.Join(keys, ", "))
	b.WriteString(") VALUES (")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.bind(ast.Data[k]))
	}
	b.WriteString(")")

	if c.dialect.SupportsReturning() {
		b.WriteString(" RETURNING *")
	}

	return b.String()
}

func (c *Compiler) compileUpdate(ast query.AST) (string, error) {
	var b strings.Builder

	b.WriteString("UPDATE ")
	b.WriteString(ast.Table)
	b.WriteString(" SET ")
	for i, k := range sortedKeys(ast.Data) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(" = ")
		b.WriteString(c.bind(ast.Data[k]))
	}

	if err := c.writeWhere(&b, ast); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (c *Compiler) compileDelete(ast query.AST) (string, error) {
	var b strings.Builder

	b.WriteString("DELETE FROM ")
	b.WriteString(ast.Table)

	if err := c.writeWhere(&b, ast); err != nil {
		return "", err
	}
	return b.String(), nil
}

// =============================================================================
// WHERE Compilation
// =============================================================================

var opSymbols = map[query.Operator]string{
	query.OpEq:  "=",
	query.OpGt:  ">",
	query.OpLt:  "<",
	query.OpGte: ">=",
	query.OpLte: "<=",
}

func (c *Compiler) writeWhere(b *strings.Builder, ast query.AST) error {
	if !ast.HasFilter() {
		return nil
	}

	var parts []string
	for _, cond := range ast.Conditions {
		s, err := c.condition(cond)
		if err != nil {
			return err
		}
		parts = append(parts, s)
	}
	for _, g := range ast.LogicalGroups {
		s, err := c.group(g)
		if err != nil {
			return err
		}
		parts = append(parts, s)
	}

	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(parts, " AND "))
	return nil
}

func (c *Compiler) node(n query.Node) (string, error) {
	switch v := n.(type) {
	case query.Condition:
		return c.condition(v)
	case *query.Condition:
		return c.condition(*v)
	case query.Group:
		return c.group(v)
	case *query.Group:
		return c.group(*v)
	default:
		return "", query.Errorf("unknown filter node type: %T", n)
	}
}

func (c *Compiler) condition(cond query.Condition) (string, error) {
	if cond.Op == query.OpIn {
		vals, err := query.ListValues(cond.Value)
		if err != nil {
			return "", err
		}
		// IN () is invalid SQL; an empty list matches no rows.
		if len(vals) == 0 {
			return "1=0", nil
		}
		placeholders := make([]string, len(vals))
		for i, v := range vals {
			placeholders[i] = c.bind(v)
		}
		return cond.Field + " IN (" + strings.Join(placeholders, ", ") + ")", nil
	}

	sym, ok := opSymbols[cond.Op]
	if !ok {
		return "", query.Errorf("unknown operator %q", cond.Op)
	}
	return cond.Field + " " + sym + " " + c.bind(cond.Value), nil
}

func (c *Compiler) group(g query.Group) (string, error) {
	if len(g.Children) == 0 {
		return "1=1", nil
	}

	var sep string
	switch g.Op {
	case query.And:
		sep = " AND "
	case query.Or:
		sep = " OR "
	default:
		return "", query.Errorf("unknown logical operator %q", g.Op)
	}

	parts := make([]string, 0, len(g.Children))
	for _, child := range g.Children {
		s, err := c.node(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// bind appends a value and returns its placeholder. The placeholder index
// equals len(args) after the append.
func (c *Compiler) bind(v any) string {
	c.args = append(c.args, v)
	return c.dialect.Placeholder(len(c.args))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
