package docstore

import (
	"fmt"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/shipq/polyq/query"
)

// Command is a compiled document-store operation.
//
// Plain selects carry Filter and Find. Grouped or aggregated selects carry
// Pipeline and GroupBy, with Filter nil. Writes carry Filter, plus Data for
// inserts and updates.
type Command struct {
	Kind       query.Kind
	Collection string
	Filter     bson.D
	Find       *FindOptions
	Pipeline   mongo.Pipeline
	Data       bson.D

	// GroupBy lists the fields folded into _id by the $group stage.
	// Reshape uses it to flatten results.
	GroupBy []string

	// Projection is the select's projection. Reshape copies only the group
	// keys listed here, as GROUP BY returns only selected columns.
	Projection []string

	// Empty marks a select with a zero limit. It returns no rows and is
	// never sent: find treats limit 0 as unlimited and $limit rejects it.
	Empty bool
}

// FindOptions are the modifiers of a plain find.
type FindOptions struct {
	Projection bson.D
	Sort       bson.D
	Skip       *int64
	Limit      *int64
}

// IsAggregate reports whether the command runs as an aggregation pipeline.
func (c Command) IsAggregate() bool {
	return c.Kind == query.SelectQuery && c.Pipeline != nil
}

// Reshape flattens the _id of grouped results onto the projected group-by
// field names so rows look the same as GROUP BY rows from a relational
// backend. Rows of non-aggregate commands are returned unchanged.
func (c Command) Reshape(rows []query.Row) []query.Row {
	if !c.IsAggregate() {
		return rows
	}

	out := make([]query.Row, 0, len(rows))
	for _, row := range rows {
		flat := make(query.Row, len(row)+len(c.GroupBy))
		for k, v := range row {
			if k != "_id" {
				flat[k] = v
			}
		}

		id := row["_id"]
		for _, f := range c.GroupBy {
			if !slices.Contains(c.Projection, f) {
				continue
			}
			if len(c.GroupBy) == 1 {
				flat[f] = id
			} else {
				flat[f] = lookup(id, f)
			}
		}
		out = append(out, flat)
	}
	return out
}

// lookup reads a key from a decoded compound _id, which the driver may hand
// back as bson.M, bson.D or a plain map.
func lookup(doc any, key string) any {
	switch d := doc.(type) {
	case bson.M:
		return d[key]
	case map[string]any:
		return d[key]
	case bson.D:
		for _, e := range d {
			if e.Key == key {
				return e.Value
			}
		}
	}
	return nil
}

// String renders the command in mongo shell form for logs and metrics.
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(c.Collection)

	switch c.Kind {
	case query.SelectQuery:
		if c.IsAggregate() {
			stages := make([]string, len(c.Pipeline))
			for i, stage := range c.Pipeline {
				stages[i] = extJSON(stage)
			}
			fmt.Fprintf(&b, ".aggregate([%s])", strings.Join(stages, ","))
			if c.Empty {
				b.WriteString(".limit(0)")
			}
			break
		}
		fmt.Fprintf(&b, ".find(%s", extJSON(c.Filter))
		if c.Find != nil && len(c.Find.Projection) > 0 {
			fmt.Fprintf(&b, ", %s", extJSON(c.Find.Projection))
		}
		b.WriteString(")")
		if c.Find != nil {
			if len(c.Find.Sort) > 0 {
				fmt.Fprintf(&b, ".sort(%s)", extJSON(c.Find.Sort))
			}
			if c.Find.Skip != nil {
				fmt.Fprintf(&b, ".skip(%d)", *c.Find.Skip)
			}
			if c.Find.Limit != nil {
				fmt.Fprintf(&b, ".limit(%d)", *c.Find.Limit)
			}
		}
		if c.Empty {
			b.WriteString(".limit(0)")
		}
	case query.InsertQuery:
		fmt.Fprintf(&b, ".insertOne(%s)", extJSON(c.Data))
	case query.UpdateQuery:
		fmt.Fprintf(&b, ".updateMany(%s, %s)", extJSON(c.Filter), extJSON(bson.D{{Key: "$set", Value: c.Data}}))
	case query.DeleteQuery:
		fmt.Fprintf(&b, ".deleteMany(%s)", extJSON(c.Filter))
	}
	return b.String()
}

func extJSON(doc bson.D) string {
	if doc == nil {
		doc = bson.D{}
	}
	out, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return fmt.Sprint(doc)
	}
	return string(out)
}
