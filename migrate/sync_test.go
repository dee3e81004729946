package migrate

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

var errDuplicate = errors.New("duplicate")

// scriptedApplier returns the scripted error for each table in turn.
type scriptedApplier struct {
	errs    map[string]error
	applied []string
}

func (a *scriptedApplier) Apply(ctx context.Context, op Operation) error {
	a.applied = append(a.applied, op.Table)
	return a.errs[op.Table]
}

func (a *scriptedApplier) IsConflict(err error) bool {
	return errors.Is(err, errDuplicate)
}

func testPlan(tables ...string) Plan {
	p := Plan{Family: Relational}
	for _, tbl := range tables {
		p.add(Operation{Family: Relational, Kind: CreateTable, Table: tbl, SQL: "CREATE TABLE " + tbl}, "create table "+tbl)
	}
	return p
}

func TestSync_AppliesInOrder(t *testing.T) {
	a := &scriptedApplier{}

	if err := Sync(context.Background(), testPlan("a", "b", "c"), a, nil); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if strings.Join(a.applied, ",") != "a,b,c" {
		t.Errorf("expected a,b,c applied in order, got %v", a.applied)
	}
}

func TestSync_ToleratesConflicts(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	a := &scriptedApplier{errs: map[string]error{"b": errDuplicate}}

	if err := Sync(context.Background(), testPlan("a", "b", "c"), a, logger); err != nil {
		t.Fatalf("expected conflict to be tolerated, got %v", err)
	}

	if len(a.applied) != 3 {
		t.Errorf("expected all operations attempted, got %v", a.applied)
	}
	if !strings.Contains(buf.String(), "migration_conflict_skipped") {
		t.Errorf("expected conflict to be logged, got %s", buf.String())
	}
}

func TestSync_AbortsOnOtherErrors(t *testing.T) {
	boom := errors.New("syntax error")
	a := &scriptedApplier{errs: map[string]error{"b": boom}}

	err := Sync(context.Background(), testPlan("a", "b", "c"), a, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}

	if strings.Join(a.applied, ",") != "a,b" {
		t.Errorf("expected to stop after b, got %v", a.applied)
	}
}

func TestSQLApplier_RejectsDocumentOperations(t *testing.T) {
	err := SQLApplier{}.Apply(context.Background(), Operation{Family: Document, Kind: CollMod, Table: "t"})
	if err == nil {
		t.Error("expected error for document operation")
	}
}
