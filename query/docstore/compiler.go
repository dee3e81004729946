// Package docstore lowers a query AST into MongoDB filter documents and
// aggregation pipelines.
//
// The output is plain bson.D values: nothing here talks to a server. The
// compiled Command is executed by the mongo backend adapter.
package docstore

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/shipq/polyq/query"
)

var comparisonOps = map[query.Operator]string{
	query.OpGt:  "$gt",
	query.OpLt:  "$lt",
	query.OpGte: "$gte",
	query.OpLte: "$lte",
}

var accumulators = map[query.AggFunc]string{
	query.AggSum: "$sum",
	query.AggAvg: "$avg",
	query.AggMin: "$min",
	query.AggMax: "$max",
}

// Compile lowers an AST into a document command.
// A *query.CompilationError is returned for structurally invalid ASTs.
func Compile(ast query.AST) (Command, error) {
	if err := query.ValidateAST(ast); err != nil {
		return Command{}, err
	}

	filter, err := compileFilter(ast)
	if err != nil {
		return Command{}, err
	}

	cmd := Command{
		Kind:       ast.Kind,
		Collection: ast.Table,
		Filter:     filter,
	}

	switch ast.Kind {
	case query.SelectQuery:
		cmd.Empty = ast.Limit != nil && *ast.Limit == 0
		if ast.HasAggregation() {
			cmd.GroupBy = append([]string(nil), ast.GroupBy...)
			cmd.Projection = append([]string(nil), ast.Projection...)
			cmd.Pipeline = compilePipeline(ast, filter)
			cmd.Filter = nil
		} else {
			cmd.Find = compileFind(ast)
		}
	case query.InsertQuery, query.UpdateQuery:
		cmd.Data = sortedDoc(ast.Data)
	}

	return cmd, nil
}

// =============================================================================
// Filters
// =============================================================================

// compileFilter AND-s the top-level conditions and groups. A single clause
// is used as is; empty groups match everything and are dropped.
func compileFilter(ast query.AST) (bson.D, error) {
	var clauses []bson.D
	for _, c := range ast.Conditions {
		doc, err := condition(c)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, doc)
	}
	for _, g := range ast.LogicalGroups {
		if len(g.Children) == 0 {
			continue
		}
		doc, err := group(g)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, doc)
	}

	switch len(clauses) {
	case 0:
		return bson.D{}, nil
	case 1:
		return clauses[0], nil
	default:
		return bson.D{{Key: "$and", Value: docsToArray(clauses)}}, nil
	}
}

func node(n query.Node) (bson.D, error) {
	switch v := n.(type) {
	case query.Condition:
		return condition(v)
	case *query.Condition:
		return condition(*v)
	case query.Group:
		return group(v)
	case *query.Group:
		return group(*v)
	default:
		return nil, query.Errorf("unknown filter node type: %T", n)
	}
}

func condition(c query.Condition) (bson.D, error) {
	switch c.Op {
	case query.OpEq:
		return bson.D{{Key: c.Field, Value: c.Value}}, nil
	case query.OpIn:
		vals, err := query.ListValues(c.Value)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: c.Field, Value: bson.D{{Key: "$in", Value: bson.A(vals)}}}}, nil
	}

	op, ok := comparisonOps[c.Op]
	if !ok {
		return nil, query.Errorf("unknown operator %q", c.Op)
	}
	return bson.D{{Key: c.Field, Value: bson.D{{Key: op, Value: c.Value}}}}, nil
}

func group(g query.Group) (bson.D, error) {
	if len(g.Children) == 0 {
		return bson.D{}, nil
	}

	var key string
	switch g.Op {
	case query.And:
		key = "$and"
	case query.Or:
		key = "$or"
	default:
		return nil, query.Errorf("unknown logical operator %q", g.Op)
	}

	children := make([]bson.D, 0, len(g.Children))
	for _, child := range g.Children {
		doc, err := node(child)
		if err != nil {
			return nil, err
		}
		children = append(children, doc)
	}
	return bson.D{{Key: key, Value: docsToArray(children)}}, nil
}

// =============================================================================
// Plain Selects
// =============================================================================

func compileFind(ast query.AST) *FindOptions {
	opts := &FindOptions{}

	if len(ast.Projection) > 0 {
		wantsID := false
		for _, f := range ast.Projection {
			opts.Projection = append(opts.Projection, bson.E{Key: f, Value: 1})
			if f == "_id" {
				wantsID = true
			}
		}
		if !wantsID {
			opts.Projection = append(opts.Projection, bson.E{Key: "_id", Value: 0})
		}
	}

	if ast.OrderBy != nil {
		opts.Sort = bson.D{{Key: ast.OrderBy.Field, Value: direction(ast.OrderBy.Direction)}}
	}
	if ast.Offset != nil {
		n := int64(*ast.Offset)
		opts.Skip = &n
	}
	if ast.Limit != nil && *ast.Limit > 0 {
		n := int64(*ast.Limit)
		opts.Limit = &n
	}
	return opts
}

// =============================================================================
// Aggregation Pipelines
// =============================================================================

// compilePipeline builds $match, $group, $sort, $skip, $limit in that order,
// omitting stages that have nothing to do. A zero limit leaves no $limit
// stage; the command is marked Empty instead.
func compilePipeline(ast query.AST, filter bson.D) mongo.Pipeline {
	var pipeline mongo.Pipeline

	if len(filter) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: filter}})
	}

	groupStage := bson.D{{Key: "_id", Value: groupID(ast.GroupBy)}}
	for _, agg := range ast.Aggregations {
		groupStage = append(groupStage, bson.E{Key: agg.Name(), Value: accumulator(agg)})
	}
	pipeline = append(pipeline, bson.D{{Key: "$group", Value: groupStage}})

	if ast.OrderBy != nil {
		field := sortKey(ast.OrderBy.Field, ast.GroupBy)
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: bson.D{{Key: field, Value: direction(ast.OrderBy.Direction)}}}})
	}
	if ast.Offset != nil {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: int64(*ast.Offset)}})
	}
	if ast.Limit != nil && *ast.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: int64(*ast.Limit)}})
	}

	return pipeline
}

func groupID(fields []string) any {
	switch len(fields) {
	case 0:
		return nil
	case 1:
		return "$" + fields[0]
	default:
		id := make(bson.D, 0, len(fields))
		for _, f := range fields {
			id = append(id, bson.E{Key: f, Value: "$" + f})
		}
		return id
	}
}

// accumulator renders one $group accumulator. Counting a named field only
// counts documents where the field is present and not null, matching
// COUNT(field).
func accumulator(agg query.Aggregation) bson.D {
	if agg.CountsRows() {
		return bson.D{{Key: "$sum", Value: 1}}
	}
	if agg.Func == query.AggCount {
		notNull := bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$" + agg.Field, nil}}},
				nil,
			}}},
			0,
			1,
		}}}
		return bson.D{{Key: "$sum", Value: notNull}}
	}
	return bson.D{{Key: accumulators[agg.Func], Value: "$" + agg.Field}}
}

// sortKey maps a group-by field to its position inside _id.
func sortKey(field string, groupBy []string) string {
	for _, g := range groupBy {
		if g != field {
			continue
		}
		if len(groupBy) == 1 {
			return "_id"
		}
		return "_id." + field
	}
	return field
}

func direction(d query.Direction) int {
	if d == query.Desc {
		return -1
	}
	return 1
}

func docsToArray(docs []bson.D) bson.A {
	out := make(bson.A, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}

func sortedDoc(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: m[k]})
	}
	return doc
}
