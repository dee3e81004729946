package query

// Kind identifies the type of query.
type Kind string

const (
	SelectQuery Kind = "select"
	InsertQuery Kind = "insert"
	UpdateQuery Kind = "update"
	DeleteQuery Kind = "delete"
)

// Intent is a routing hint. Compilers ignore it.
type Intent string

const (
	IntentNone      Intent = ""
	IntentRead      Intent = "read"
	IntentWrite     Intent = "write"
	IntentAggregate Intent = "aggregate"
)

// AST is the root of a backend-neutral query.
//
// Conditions and LogicalGroups are AND-ed together. Data is only set for
// inserts and updates; GroupBy and Aggregations only apply to selects.
type AST struct {
	Kind          Kind
	Table         string
	Conditions    []Condition
	LogicalGroups []Group
	GroupBy       []string
	Aggregations  []Aggregation
	Projection    []string
	OrderBy       *OrderBy
	Limit         *int
	Offset        *int
	Data          map[string]any
	Intent        Intent
}

// HasAggregation reports whether the query groups or aggregates rows.
func (a AST) HasAggregation() bool {
	return len(a.GroupBy) > 0 || len(a.Aggregations) > 0
}

// HasFilter reports whether the query carries any filtering node.
func (a AST) HasFilter() bool {
	return len(a.Conditions) > 0 || len(a.LogicalGroups) > 0
}

// Clone returns a deep copy of the AST. Condition values and data values
// are copied by reference; the containers holding them are not shared.
func (a AST) Clone() AST {
	out := a
	out.Conditions = cloneSlice(a.Conditions)
	out.LogicalGroups = nil
	for _, g := range a.LogicalGroups {
		out.LogicalGroups = append(out.LogicalGroups, g.clone())
	}
	out.GroupBy = cloneSlice(a.GroupBy)
	out.Aggregations = cloneSlice(a.Aggregations)
	out.Projection = cloneSlice(a.Projection)
	if a.OrderBy != nil {
		ob := *a.OrderBy
		out.OrderBy = &ob
	}
	if a.Limit != nil {
		n := *a.Limit
		out.Limit = &n
	}
	if a.Offset != nil {
		n := *a.Offset
		out.Offset = &n
	}
	if a.Data != nil {
		out.Data = make(map[string]any, len(a.Data))
		for k, v := range a.Data {
			out.Data[k] = v
		}
	}
	return out
}

// =============================================================================
// Filter Nodes
// =============================================================================

// Operator is a comparison operator used in a Condition.
type Operator string

const (
	OpEq  Operator = "eq"
	OpGt  Operator = "gt"
	OpLt  Operator = "lt"
	OpGte Operator = "gte"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpGt, OpLt, OpGte, OpLte, OpIn:
		return true
	}
	return false
}

// Node is a filter node: either a Condition or a Group.
//
// The interface is sealed so compilers can switch over both cases
// exhaustively.
type Node interface {
	filterNode()
}

// Condition is a flat (field, operator, value) triple.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

func (Condition) filterNode() {}

// LogicalOp combines the children of a Group.
type LogicalOp string

const (
	And LogicalOp = "AND"
	Or  LogicalOp = "OR"
)

// Group is a recursive AND/OR node. An empty group matches every row.
type Group struct {
	Op       LogicalOp
	Children []Node
}

func (Group) filterNode() {}

func (g Group) clone() Group {
	out := Group{Op: g.Op}
	for _, child := range g.Children {
		switch c := child.(type) {
		case Group:
			out.Children = append(out.Children, c.clone())
		case *Group:
			if c != nil {
				out.Children = append(out.Children, c.clone())
			}
		default:
			out.Children = append(out.Children, child)
		}
	}
	return out
}

// =============================================================================
// Grouping, Aggregation, Ordering
// =============================================================================

// AggFunc is an aggregate function.
type AggFunc string

const (
	AggCount AggFunc = "count"
	AggSum   AggFunc = "sum"
	AggAvg   AggFunc = "avg"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
)

// Valid reports whether f is a known aggregate function.
func (f AggFunc) Valid() bool {
	switch f {
	case AggCount, AggSum, AggAvg, AggMin, AggMax:
		return true
	}
	return false
}

// Aggregation is an aggregate over a field. A count with an empty field
// (or "*") counts rows.
type Aggregation struct {
	Func  AggFunc
	Field string
	Alias string
}

// Name returns the document field an aggregation is stored under: the
// alias, "count" for a row count, or "<func>_<field>". Relational backends
// name unaliased columns themselves.
func (a Aggregation) Name() string {
	if a.Alias != "" {
		return a.Alias
	}
	if a.CountsRows() {
		return "count"
	}
	return string(a.Func) + "_" + a.Field
}

// CountsRows reports whether the aggregation is a plain row count.
func (a Aggregation) CountsRows() bool {
	return a.Func == AggCount && (a.Field == "" || a.Field == "*")
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// OrderBy sorts the result by a single field.
type OrderBy struct {
	Field     string
	Direction Direction
}

// Row is a single result row, keyed by column or field name.
type Row map[string]any

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
