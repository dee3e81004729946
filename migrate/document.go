package migrate

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// CollectionInspector lists the collections of a document database.
type CollectionInspector interface {
	Collections(ctx context.Context) ([]string, error)
}

// DocumentPlanner diffs schemas against a document database.
type DocumentPlanner struct {
	Inspector CollectionInspector
	Options   Options
}

// Plan emits a create command for every missing collection and a collMod
// validator sync for every schema, whether or not it changed.
func (p DocumentPlanner) Plan(ctx context.Context, schemas []Schema) (Plan, error) {
	plan := Plan{Family: Document}

	names, err := p.Inspector.Collections(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to list collections: %w", err)
	}
	existing := make(map[string]bool, len(names))
	for _, n := range names {
		existing[n] = true
	}

	for _, s := range schemas {
		if err := s.Validate(); err != nil {
			return Plan{}, err
		}

		if !existing[s.Name] {
			plan.add(Operation{
				Family:  Document,
				Kind:    CreateCollection,
				Table:   s.Name,
				Command: bson.D{{Key: "create", Value: s.Name}},
			}, fmt.Sprintf("create collection %s", s.Name))
		}

		plan.add(Operation{
			Family: Document,
			Kind:   CollMod,
			Table:  s.Name,
			Command: bson.D{
				{Key: "collMod", Value: s.Name},
				{Key: "validator", Value: Validator(s, p.Options)},
			},
		}, fmt.Sprintf("sync validator for %s with %d fields", s.Name, len(s.Fields)))
	}

	return plan, nil
}

// Validator renders the $jsonSchema validator document for a schema.
func Validator(s Schema, opts Options) bson.D {
	props := make(bson.D, 0, len(s.Fields))
	var required bson.A
	for _, f := range s.Fields {
		props = append(props, bson.E{Key: f.Name, Value: bson.D{{Key: "bsonType", Value: BSONType(f.Type)}}})
		if opts.EnforceRequired && f.Required {
			required = append(required, f.Name)
		}
	}

	schema := bson.D{
		{Key: "bsonType", Value: "object"},
		{Key: "properties", Value: props},
	}
	if len(required) > 0 {
		schema = append(schema, bson.E{Key: "required", Value: required})
	}
	return bson.D{{Key: "$jsonSchema", Value: schema}}
}

// BSONType maps a field type to its $jsonSchema bsonType. Numbers accept
// every numeric storage type since documents written by different clients
// mix them.
func BSONType(t FieldType) any {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return bson.A{"int", "long", "double", "decimal"}
	case TypeBoolean:
		return "bool"
	case TypeDate:
		return "date"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	}
	return "string"
}
