package query

// Builder accumulates a query through chained calls.
//
// It never validates; malformed combinations are reported when the built
// AST is compiled or capability-checked. Mode switches (Select, Insert,
// Update, Delete) are last-write-wins.
type Builder struct {
	ast AST
}

// Table starts a query against the given table or collection.
// The query is a select until another mode is chosen.
func Table(name string) *Builder {
	return &Builder{ast: AST{Kind: SelectQuery, Table: name}}
}

// Build returns a snapshot of the accumulated query. Further builder calls
// do not affect ASTs returned earlier.
func (b *Builder) Build() AST {
	return b.ast.Clone()
}

// =============================================================================
// Filtering
// =============================================================================

// Where adds a flat condition.
func (b *Builder) Where(field string, op Operator, value any) *Builder {
	b.ast.Conditions = append(b.ast.Conditions, Condition{Field: field, Op: op, Value: value})
	return b
}

// Eq adds field = value.
func (b *Builder) Eq(field string, value any) *Builder { return b.Where(field, OpEq, value) }

// Gt adds field > value.
func (b *Builder) Gt(field string, value any) *Builder { return b.Where(field, OpGt, value) }

// Lt adds field < value.
func (b *Builder) Lt(field string, value any) *Builder { return b.Where(field, OpLt, value) }

// Gte adds field >= value.
func (b *Builder) Gte(field string, value any) *Builder { return b.Where(field, OpGte, value) }

// Lte adds field <= value.
func (b *Builder) Lte(field string, value any) *Builder { return b.Where(field, OpLte, value) }

// In adds field IN (values...). values should be a slice.
func (b *Builder) In(field string, values any) *Builder { return b.Where(field, OpIn, values) }

// And appends a logical AND group over the given nodes.
func (b *Builder) And(nodes ...Node) *Builder {
	return b.group(AllOf(nodes...))
}

// Or appends a logical OR group over the given nodes.
func (b *Builder) Or(nodes ...Node) *Builder {
	return b.group(AnyOf(nodes...))
}

func (b *Builder) group(g Group) *Builder {
	b.ast.LogicalGroups = append(b.ast.LogicalGroups, g)
	return b
}

// Cond creates a flat condition for use inside groups.
func Cond(field string, op Operator, value any) Condition {
	return Condition{Field: field, Op: op, Value: value}
}

// AllOf creates an AND group.
func AllOf(nodes ...Node) Group {
	return Group{Op: And, Children: append([]Node(nil), nodes...)}
}

// AnyOf creates an OR group.
func AnyOf(nodes ...Node) Group {
	return Group{Op: Or, Children: append([]Node(nil), nodes...)}
}

// =============================================================================
// Select Shape
// =============================================================================

// Select switches to select mode and sets the projection.
// Calling it without fields keeps any projection set earlier.
func (b *Builder) Select(fields ...string) *Builder {
	b.ast.Kind = SelectQuery
	b.ast.Data = nil
	if len(fields) > 0 {
		b.ast.Projection = append([]string(nil), fields...)
	}
	return b
}

// GroupBy sets the grouping fields.
func (b *Builder) GroupBy(fields ...string) *Builder {
	b.ast.GroupBy = append([]string(nil), fields...)
	return b
}

// Aggregate appends an aggregation.
func (b *Builder) Aggregate(fn AggFunc, field, alias string) *Builder {
	b.ast.Aggregations = append(b.ast.Aggregations, Aggregation{Func: fn, Field: field, Alias: alias})
	return b
}

// Count appends COUNT(*) (or COUNT(field) when field is set).
func (b *Builder) Count(field, alias string) *Builder { return b.Aggregate(AggCount, field, alias) }

// Sum appends SUM(field).
func (b *Builder) Sum(field, alias string) *Builder { return b.Aggregate(AggSum, field, alias) }

// Avg appends AVG(field).
func (b *Builder) Avg(field, alias string) *Builder { return b.Aggregate(AggAvg, field, alias) }

// Min appends MIN(field).
func (b *Builder) Min(field, alias string) *Builder { return b.Aggregate(AggMin, field, alias) }

// Max appends MAX(field).
func (b *Builder) Max(field, alias string) *Builder { return b.Aggregate(AggMax, field, alias) }

// OrderBy sets the single sort key.
func (b *Builder) OrderBy(field string, dir Direction) *Builder {
	b.ast.OrderBy = &OrderBy{Field: field, Direction: dir}
	return b
}

// Limit sets the maximum number of rows.
func (b *Builder) Limit(n int) *Builder {
	b.ast.Limit = &n
	return b
}

// Offset sets the number of rows to skip.
func (b *Builder) Offset(n int) *Builder {
	b.ast.Offset = &n
	return b
}

// =============================================================================
// Write Modes
// =============================================================================

// Insert switches to insert mode with the given row data.
func (b *Builder) Insert(data map[string]any) *Builder {
	b.ast.Kind = InsertQuery
	b.ast.Data = copyData(data)
	return b
}

// Update switches to update mode with the given changes.
func (b *Builder) Update(data map[string]any) *Builder {
	b.ast.Kind = UpdateQuery
	b.ast.Data = copyData(data)
	return b
}

// Delete switches to delete mode. Data from an earlier Insert or Update
// is dropped.
func (b *Builder) Delete() *Builder {
	b.ast.Kind = DeleteQuery
	b.ast.Data = nil
	return b
}

// Intent sets the routing hint.
func (b *Builder) Intent(i Intent) *Builder {
	b.ast.Intent = i
	return b
}

func copyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
