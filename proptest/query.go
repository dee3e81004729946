package proptest

import (
	"fmt"

	"github.com/shipq/polyq/migrate"
	"github.com/shipq/polyq/query"
)

// =============================================================================
// Query Generators
// =============================================================================

// Items is the fixture schema the query generators target. String fields
// draw from a small vocabulary and number fields hold halves, so equality
// filters hit and sums are exact in float64.
var Items = migrate.Schema{
	Name: "items",
	Fields: []migrate.Field{
		{Name: "name", Type: migrate.TypeString},
		{Name: "cat", Type: migrate.TypeString},
		{Name: "qty", Type: migrate.TypeNumber},
		{Name: "price", Type: migrate.TypeNumber},
		{Name: Seq, Type: migrate.TypeNumber},
	},
}

// Seq is the Items field that ItemRows numbers uniquely. Sorting on it is
// a total order, so paginated results are deterministic on every backend.
const Seq = "seq"

var directions = []query.Direction{query.Asc, query.Desc}

var vocabulary = []string{"ash", "birch", "cedar", "elm", "fir", "oak"}

var comparisons = []query.Operator{query.OpEq, query.OpGt, query.OpLt, query.OpGte, query.OpLte}

func fieldsOf(s migrate.Schema, t migrate.FieldType) []string {
	var out []string
	for _, f := range s.Fields {
		if f.Type == t {
			out = append(out, f.Name)
		}
	}
	return out
}

func fieldNames(s migrate.Schema) []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Value returns a value for a field of type t.
func (g *Generator) Value(t migrate.FieldType) any {
	switch t {
	case migrate.TypeNumber:
		return float64(g.IntRange(0, 40)) / 2
	case migrate.TypeBoolean:
		return g.Bool()
	default:
		return Pick(g, vocabulary)
	}
}

// Row returns a row with every field of s set.
func (g *Generator) Row(s migrate.Schema) query.Row {
	row := make(query.Row, len(s.Fields))
	for _, f := range s.Fields {
		row[f.Name] = g.Value(f.Type)
	}
	return row
}

// Rows returns between minN and maxN rows.
func (g *Generator) Rows(s migrate.Schema, minN, maxN int) []query.Row {
	return SliceN(g, minN, maxN, func(g *Generator) query.Row { return g.Row(s) })
}

// ItemRows returns between minN and maxN Items rows whose seq values are
// 0..n-1 in shuffled order, so insertion order never matches seq order.
func (g *Generator) ItemRows(minN, maxN int) []query.Row {
	rows := g.Rows(Items, minN, maxN)
	for i, j := range g.rng.Perm(len(rows)) {
		rows[i][Seq] = float64(j)
	}
	return rows
}

// Condition returns a condition on a random field of s. The value always
// has the field's type; in-lists may be empty.
func (g *Generator) Condition(s migrate.Schema) query.Condition {
	f := Pick(g, s.Fields)
	if g.BoolWithProb(0.2) {
		values := SliceN(g, 0, 3, func(g *Generator) any { return g.Value(f.Type) })
		return query.Cond(f.Name, query.OpIn, values)
	}
	return query.Cond(f.Name, Pick(g, comparisons), g.Value(f.Type))
}

// Node returns a condition or, while depth allows, a group of nodes.
// Groups may be empty.
func (g *Generator) Node(s migrate.Schema, depth int) query.Node {
	if depth <= 0 || g.BoolWithProb(0.6) {
		return g.Condition(s)
	}
	children := SliceN(g, 0, 3, func(g *Generator) query.Node { return g.Node(s, depth-1) })
	if g.Bool() {
		return query.AllOf(children...)
	}
	return query.AnyOf(children...)
}

func (g *Generator) filter(s migrate.Schema, b *query.Builder) *query.Builder {
	for _, c := range SliceN(g, 0, 3, func(g *Generator) query.Condition { return g.Condition(s) }) {
		b.Where(c.Field, c.Op, c.Value)
	}
	for n := g.IntRange(0, 2); n > 0; n-- {
		node := g.Node(s, 2)
		if grp, ok := node.(query.Group); ok {
			if grp.Op == query.Or {
				b.Or(grp.Children...)
			} else {
				b.And(grp.Children...)
			}
			continue
		}
		b.And(node)
	}
	return b
}

// FilterAST returns a select with random filters and a non-empty
// projection over s.
func (g *Generator) FilterAST(s migrate.Schema) query.AST {
	names := fieldNames(s)
	projection := Sample(g, names, g.IntRange(1, len(names)))
	return g.filter(s, query.Table(s.Name)).Select(projection...).Build()
}

// AggregateAST returns a grouped select over s. Each aggregation gets a
// distinct alias a0, a1, ... and the projection is the group-by fields.
func (g *Generator) AggregateAST(s migrate.Schema) query.AST {
	keys := fieldsOf(s, migrate.TypeString)
	groupBy := Sample(g, keys, g.IntRange(1, len(keys)))

	b := g.filter(s, query.Table(s.Name)).GroupBy(groupBy...).Intent(query.IntentAggregate)
	g.aggregations(s, b)
	return b.Select(groupBy...).Build()
}

func (g *Generator) aggregations(s migrate.Schema, b *query.Builder) {
	numbers := fieldsOf(s, migrate.TypeNumber)
	for i, n := 0, g.IntRange(1, 3); i < n; i++ {
		alias := fmt.Sprintf("a%d", i)
		fn := Weighted(g,
			[]float64{2, 2, 1, 1, 1},
			[]query.AggFunc{query.AggCount, query.AggSum, query.AggAvg, query.AggMin, query.AggMax})
		if fn == query.AggCount {
			b.Count("", alias)
			continue
		}
		b.Aggregate(fn, Pick(g, numbers), alias)
	}
}

// =============================================================================
// Ordered and Paginated Queries
// =============================================================================

// page adds an optional limit, zero included, and an optional offset.
// Either may appear without the other.
func (g *Generator) page(b *query.Builder) *query.Builder {
	if g.BoolWithProb(0.6) {
		b.Limit(g.IntRange(0, 5))
	}
	if g.BoolWithProb(0.5) {
		b.Offset(g.IntRange(0, 4))
	}
	return b
}

// OrderedAST returns a filtered select over Items sorted on Seq in a random
// direction, with an optional limit and offset. The projection may leave
// Seq out.
func (g *Generator) OrderedAST() query.AST {
	names := fieldNames(Items)
	b := g.filter(Items, query.Table(Items.Name)).
		Select(Sample(g, names, g.IntRange(1, len(names)))...).
		OrderBy(Seq, Pick(g, directions))
	return g.page(b).Build()
}

// OrderedAggregateAST returns a select over Items grouped on one string
// field and sorted on it, with an optional limit and offset. Group keys are
// distinct, so the order is total.
func (g *Generator) OrderedAggregateAST() query.AST {
	key := Pick(g, fieldsOf(Items, migrate.TypeString))
	b := g.filter(Items, query.Table(Items.Name)).GroupBy(key).Intent(query.IntentAggregate)
	g.aggregations(Items, b)
	b.Select(key).OrderBy(key, Pick(g, directions))
	return g.page(b).Build()
}
