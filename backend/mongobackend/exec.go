package mongobackend

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shipq/polyq/query"
	"github.com/shipq/polyq/query/docstore"
)

func run(ctx context.Context, db *mongo.Database, compiled fmt.Stringer) ([]query.Row, error) {
	cmd, ok := compiled.(docstore.Command)
	if !ok {
		return nil, fmt.Errorf("expected docstore.Command, got %T", compiled)
	}
	if cmd.Empty {
		return []query.Row{}, nil
	}
	coll := db.Collection(cmd.Collection)

	switch cmd.Kind {
	case query.SelectQuery:
		if cmd.IsAggregate() {
			cur, err := coll.Aggregate(ctx, cmd.Pipeline)
			if err != nil {
				return nil, err
			}
			rows, err := drain(ctx, cur)
			if err != nil {
				return nil, err
			}
			return cmd.Reshape(rows), nil
		}

		cur, err := coll.Find(ctx, cmd.Filter, findOptions(cmd.Find))
		if err != nil {
			return nil, err
		}
		return drain(ctx, cur)

	case query.InsertQuery:
		res, err := coll.InsertOne(ctx, cmd.Data)
		if err != nil {
			return nil, err
		}
		row := make(query.Row, len(cmd.Data)+1)
		for _, e := range cmd.Data {
			row[e.Key] = e.Value
		}
		row["_id"] = res.InsertedID
		return []query.Row{row}, nil

	case query.UpdateQuery:
		if _, err := coll.UpdateMany(ctx, cmd.Filter, bson.D{{Key: "$set", Value: cmd.Data}}); err != nil {
			return nil, err
		}
		return []query.Row{}, nil

	case query.DeleteQuery:
		if _, err := coll.DeleteMany(ctx, cmd.Filter); err != nil {
			return nil, err
		}
		return []query.Row{}, nil
	}

	return nil, fmt.Errorf("unknown command kind %q", cmd.Kind)
}

func findOptions(f *docstore.FindOptions) *options.FindOptions {
	opts := options.Find()
	if f == nil {
		return opts
	}
	if len(f.Projection) > 0 {
		opts.SetProjection(f.Projection)
	}
	if len(f.Sort) > 0 {
		opts.SetSort(f.Sort)
	}
	if f.Skip != nil {
		opts.SetSkip(*f.Skip)
	}
	if f.Limit != nil {
		opts.SetLimit(*f.Limit)
	}
	return opts
}

func drain(ctx context.Context, cur *mongo.Cursor) ([]query.Row, error) {
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	rows := make([]query.Row, len(docs))
	for i, d := range docs {
		rows[i] = query.Row(d)
	}
	return rows, nil
}
