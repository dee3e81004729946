package migrate

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"
)

type fakeCollections []string

func (f fakeCollections) Collections(ctx context.Context) ([]string, error) {
	return f, nil
}

func TestDocumentPlanner_NewCollection(t *testing.T) {
	p := DocumentPlanner{Inspector: fakeCollections{}}
	s := Schema{Name: "sales", Fields: []Field{
		{Name: "amount", Type: TypeNumber, Required: true},
		{Name: "status", Type: TypeString},
	}}

	plan, err := p.Plan(context.Background(), []Schema{s})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if plan.Family != Document {
		t.Errorf("expected family %q, got %q", Document, plan.Family)
	}
	if len(plan.Operations) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(plan.Operations))
	}

	if diff := cmp.Diff(bson.D{{Key: "create", Value: "sales"}}, plan.Operations[0].Command); diff != "" {
		t.Errorf("create command mismatch (-want +got):\n%s", diff)
	}

	wantMod := bson.D{
		{Key: "collMod", Value: "sales"},
		{Key: "validator", Value: bson.D{{Key: "$jsonSchema", Value: bson.D{
			{Key: "bsonType", Value: "object"},
			{Key: "properties", Value: bson.D{
				{Key: "amount", Value: bson.D{{Key: "bsonType", Value: bson.A{"int", "long", "double", "decimal"}}}},
				{Key: "status", Value: bson.D{{Key: "bsonType", Value: "string"}}},
			}},
		}}}},
	}
	if diff := cmp.Diff(wantMod, plan.Operations[1].Command); diff != "" {
		t.Errorf("collMod command mismatch (-want +got):\n%s", diff)
	}

	wantLog := []string{"create collection sales", "sync validator for sales with 2 fields"}
	if diff := cmp.Diff(wantLog, plan.Log); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
}

func TestDocumentPlanner_ExistingCollectionStillSyncsValidator(t *testing.T) {
	p := DocumentPlanner{Inspector: fakeCollections{"sales"}}

	plan, err := p.Plan(context.Background(), []Schema{{Name: "sales", Fields: []Field{{Name: "at", Type: TypeDate}}}})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if len(plan.Operations) != 1 || plan.Operations[0].Kind != CollMod {
		t.Fatalf("expected a single collMod, got %v", plan.Log)
	}
}

func TestValidator_EnforceRequired(t *testing.T) {
	s := Schema{Name: "users", Fields: []Field{
		{Name: "email", Type: TypeString, Required: true},
		{Name: "verified", Type: TypeBoolean},
		{Name: "tags", Type: TypeArray, Required: true},
	}}

	lenient := Validator(s, Options{})
	inner := lenient[0].Value.(bson.D)
	for _, e := range inner {
		if e.Key == "required" {
			t.Errorf("lenient validator should not list required fields, got %v", e.Value)
		}
	}

	strict := Validator(s, Options{EnforceRequired: true})
	inner = strict[0].Value.(bson.D)
	last := inner[len(inner)-1]
	if last.Key != "required" {
		t.Fatalf("expected required key, got %q", last.Key)
	}
	if diff := cmp.Diff(bson.A{"email", "tags"}, last.Value); diff != "" {
		t.Errorf("required mismatch (-want +got):\n%s", diff)
	}
}

func TestBSONType(t *testing.T) {
	tests := []struct {
		in   FieldType
		want any
	}{
		{TypeString, "string"},
		{TypeNumber, bson.A{"int", "long", "double", "decimal"}},
		{TypeBoolean, "bool"},
		{TypeDate, "date"},
		{TypeObject, "object"},
		{TypeArray, "array"},
	}

	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, BSONType(tt.in)); diff != "" {
			t.Errorf("BSONType(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
